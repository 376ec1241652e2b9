// Package storage provides S3 storage integration.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kyiku/tangram-back/internal/coverage"
)

// S3ClientInterface defines the interface for S3 operations.
type S3ClientInterface interface {
	GetObject(key string) ([]byte, error)
	PutObject(key string, data []byte) error
	ListObjects(prefix string) ([]string, error)
}

// Key prefixes used in the bucket.
const (
	LevelsPrefix   = "levels/"
	RecordsPrefix  = "records/"
	OverlaysPrefix = "overlays/"
)

// S3Client wraps S3 operations for level data, progress records and
// overlay snapshots.
type S3Client struct {
	client        S3ClientInterface
	bucket        string
	cloudfrontURL string
}

// NewS3Client creates a new S3Client.
func NewS3Client(client S3ClientInterface, bucket string, cloudfrontURL string) *S3Client {
	return &S3Client{
		client:        client,
		bucket:        bucket,
		cloudfrontURL: strings.TrimSuffix(cloudfrontURL, "/"),
	}
}

// GetObject returns the raw object at key.
func (c *S3Client) GetObject(key string) ([]byte, error) {
	data, err := c.client.GetObject(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, nil
}

// PutObject stores data at key.
func (c *S3Client) PutObject(key string, data []byte) error {
	if err := c.client.PutObject(key, data); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// ListLevelFiles returns the keys of every JSON file under LevelsPrefix.
func (c *S3Client) ListLevelFiles() ([]string, error) {
	keys, err := c.client.ListObjects(LevelsPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list level files: %w", err)
	}

	files := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasSuffix(key, ".json") {
			files = append(files, key)
		}
	}
	return files, nil
}

// RecordKey returns the object key holding a player's records.
func RecordKey(playerID string) string {
	return RecordsPrefix + playerID + ".json"
}

// UploadOverlay encodes a coverage overlay as PNG, uploads it and returns
// its CloudFront URL.
func (c *S3Client) UploadOverlay(res coverage.Result) (string, error) {
	if res.Overlay == nil {
		return "", errors.New("no overlay to upload")
	}

	var buf bytes.Buffer
	if err := res.EncodePNG(&buf); err != nil {
		return "", fmt.Errorf("failed to encode overlay image: %w", err)
	}

	key := OverlaysPrefix + uuid.New().String() + ".png"
	if err := c.client.PutObject(key, buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to upload overlay image: %w", err)
	}

	return c.URL(key), nil
}

// URL returns the CloudFront URL for key. Absolute URLs are returned as is.
func (c *S3Client) URL(key string) string {
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}
	return fmt.Sprintf("%s/%s", c.cloudfrontURL, strings.TrimPrefix(key, "/"))
}
