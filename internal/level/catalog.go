// Package level loads level definitions and lays out pieces for play.
package level

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/labstack/gommon/log"

	"github.com/kyiku/tangram-back/internal/model"
)

// ErrNoLevels is returned when a source holds no levels.
var ErrNoLevels = errors.New("no levels found")

// Source supplies level definitions.
type Source interface {
	Load() ([]model.Level, error)
}

// ObjectGetter reads raw objects, such as S3 keys.
type ObjectGetter interface {
	GetObject(key string) ([]byte, error)
}

// levelFile is the on-disk format: {"levels": [...]}.
type levelFile struct {
	Levels []model.Level `json:"levels"`
}

// Parse decodes a levels document. Both {"levels": [...]} and a bare array
// are accepted.
func Parse(data []byte) ([]model.Level, error) {
	var file levelFile
	if err := json.Unmarshal(data, &file); err == nil && file.Levels != nil {
		return nonEmpty(file.Levels)
	}

	var levels []model.Level
	if err := json.Unmarshal(data, &levels); err != nil {
		return nil, fmt.Errorf("failed to parse levels: %w", err)
	}
	return nonEmpty(levels)
}

func nonEmpty(levels []model.Level) ([]model.Level, error) {
	if len(levels) == 0 {
		return nil, ErrNoLevels
	}
	return levels, nil
}

// S3Source loads levels from a single object.
type S3Source struct {
	Client ObjectGetter
	Key    string
}

// Load implements Source.
func (s S3Source) Load() ([]model.Level, error) {
	data, err := s.Client.GetObject(s.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to load levels from s3: %w", err)
	}
	return Parse(data)
}

// FileSource loads levels from a local JSON file.
type FileSource struct {
	Path string
}

// Load implements Source.
func (s FileSource) Load() ([]model.Level, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read levels file: %w", err)
	}
	return Parse(data)
}

// NormalizedSource wraps a Source and fits each level's pieces, as a
// group, into its silhouette's bounding box.
type NormalizedSource struct {
	Source Source
}

// Load implements Source.
func (s NormalizedSource) Load() ([]model.Level, error) {
	levels, err := s.Source.Load()
	if err != nil {
		return nil, err
	}
	for i := range levels {
		Normalize(&levels[i])
	}
	return levels, nil
}

// Summary is the listing form of a level.
type Summary struct {
	LevelID    int    `json:"levelId"`
	Name       string `json:"name"`
	PieceCount int    `json:"pieceCount"`
	HasHint    bool   `json:"hasHint"`
}

// Catalog holds the loaded levels, ordered by id.
type Catalog struct {
	mu       sync.RWMutex
	levels   []*model.Level
	byID     map[int]*model.Level
	fallback bool
}

// NewCatalog creates a Catalog from levels. Later duplicates of an id are
// ignored.
func NewCatalog(levels []model.Level) *Catalog {
	c := &Catalog{byID: make(map[int]*model.Level, len(levels))}
	for i := range levels {
		lvl := levels[i].Clone()
		if _, dup := c.byID[lvl.LevelID]; dup {
			continue
		}
		c.byID[lvl.LevelID] = lvl
		c.levels = append(c.levels, lvl)
	}
	sort.SliceStable(c.levels, func(i, j int) bool {
		return c.levels[i].LevelID < c.levels[j].LevelID
	})
	return c
}

// Load tries each source in order and builds a Catalog from the first that
// succeeds. If none does, the catalog holds only the built-in fallback level.
func Load(logger *log.Logger, sources ...Source) *Catalog {
	if logger == nil {
		logger = log.New("level")
	}
	for _, src := range sources {
		if src == nil {
			continue
		}
		levels, err := src.Load()
		if err != nil {
			logger.Warnf("level source failed: %v", err)
			continue
		}
		logger.Infof("loaded %d levels", len(levels))
		return NewCatalog(levels)
	}

	logger.Warnf("no level source available, using the built-in fallback level")
	c := NewCatalog([]model.Level{*Fallback()})
	c.fallback = true
	return c
}

// UsingFallback reports whether the catalog fell back to the built-in level.
func (c *Catalog) UsingFallback() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fallback
}

// Get returns a copy of the level with id.
func (c *Catalog) Get(id int) (*model.Level, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lvl, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return lvl.Clone(), true
}

// First returns a copy of the lowest-numbered level.
func (c *Catalog) First() (*model.Level, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.levels) == 0 {
		return nil, false
	}
	return c.levels[0].Clone(), true
}

// Len returns the number of levels.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.levels)
}

// List returns summaries of every level in id order.
func (c *Catalog) List() []Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Summary, len(c.levels))
	for i, lvl := range c.levels {
		out[i] = Summary{
			LevelID:    lvl.LevelID,
			Name:       lvl.Name,
			PieceCount: len(lvl.Pieces),
			HasHint:    lvl.Hint != "",
		}
	}
	return out
}

// Adjacent returns the ids of the levels before and after id, or 0 where
// there is none.
func (c *Catalog) Adjacent(id int) (prev, next int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i, lvl := range c.levels {
		if lvl.LevelID != id {
			continue
		}
		if i > 0 {
			prev = c.levels[i-1].LevelID
		}
		if i+1 < len(c.levels) {
			next = c.levels[i+1].LevelID
		}
		return prev, next
	}
	return 0, 0
}
