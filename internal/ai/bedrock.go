// Package ai provides AI integration for puzzle hints.
package ai

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kyiku/tangram-back/internal/judge"
)

// BedrockClientInterface defines the interface for Bedrock client.
type BedrockClientInterface interface {
	InvokeModel(modelID string, prompt string) (string, error)
}

// DefaultModelID is the Claude 3 Haiku model ID.
const DefaultModelID = "anthropic.claude-3-haiku-20240307-v1:0"

// BedrockClient wraps the Bedrock client for hint generation.
type BedrockClient struct {
	client          BedrockClientInterface
	modelID         string
	fallbackEnabled bool
}

// ClaudeResponse represents the response from Claude.
type ClaudeResponse struct {
	Content []ContentBlock `json:"content"`
}

// ContentBlock represents a content block in Claude's response.
type ContentBlock struct {
	Text string `json:"text"`
}

// HintRequest describes the arrangement a hint is asked for.
type HintRequest struct {
	LevelName  string
	PieceCount int
	Verdict    judge.Verdict
}

// NewBedrockClient creates a new BedrockClient. An empty modelID selects
// DefaultModelID.
func NewBedrockClient(client BedrockClientInterface, modelID string) *BedrockClient {
	if modelID == "" {
		modelID = DefaultModelID
	}
	return &BedrockClient{
		client:  client,
		modelID: modelID,
	}
}

// EnableFallback enables or disables fallback mode.
// When enabled, returns a fallback message instead of error when API fails.
func (c *BedrockClient) EnableFallback(enabled bool) {
	c.fallbackEnabled = enabled
}

// GenerateHint asks Claude for a short hint about the current arrangement.
func (c *BedrockClient) GenerateHint(req HintRequest) (string, error) {
	if c.client == nil {
		if c.fallbackEnabled {
			return FallbackHint(req.Verdict), nil
		}
		return "", errors.New("bedrock client not configured")
	}

	response, err := c.client.InvokeModel(c.modelID, buildPrompt(req))
	if err != nil {
		if c.fallbackEnabled {
			return FallbackHint(req.Verdict), nil
		}
		return "", fmt.Errorf("failed to invoke Bedrock: %w", err)
	}

	result, err := parseResponse(response)
	if err != nil {
		if c.fallbackEnabled {
			return FallbackHint(req.Verdict), nil
		}
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return result, nil
}

func buildPrompt(req HintRequest) string {
	v := req.Verdict
	return fmt.Sprintf(`あなたはタングラムパズルのやさしいコーチです。
プレイヤーはレベル「%s」で %d 個のピースを並べています。
現在の判定: %s
シルエット内で埋まっていないピクセル: %d
重なっているピクセル: %d
シルエットの外に出ている頂点・辺の中点: %d 点

答えそのものは教えずに、次に試すとよいことを短く（1-2文で）日本語で助言してください。`,
		req.LevelName, req.PieceCount, v.Status, v.Uncovered, v.Overlap, len(v.Markers))
}

func parseResponse(response string) (string, error) {
	var claudeResp ClaudeResponse
	if err := json.Unmarshal([]byte(response), &claudeResp); err != nil {
		return "", err
	}

	if len(claudeResp.Content) == 0 {
		return "", errors.New("empty content in response")
	}

	return claudeResp.Content[0].Text, nil
}

// FallbackHint returns a canned hint for the verdict.
func FallbackHint(v judge.Verdict) string {
	switch v.Status {
	case judge.StatusSolved:
		return "完成しています！次のレベルに挑戦しましょう。"
	case judge.StatusOutside:
		return "赤い印の点がシルエットの外に出ています。そのピースを内側へ動かしてみましょう。"
	case judge.StatusTooMuchOverlap:
		return "ピース同士が重なっています。青い部分を減らすように位置や向きを変えてみましょう。"
	case judge.StatusAlmost:
		return "あと少しです。ピースを少しずつ動かして隙間を詰めてみましょう。"
	default:
		return "大きいピースから角に合わせて置くと、残りの形が見えやすくなります。"
	}
}
