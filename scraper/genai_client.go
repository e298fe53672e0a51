package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cartscout/config"
)

// Generator produces schema-constrained JSON from a prompt. Satisfied
// by GenAIClient in production and by fakes in tests.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string, schema json.RawMessage) ([]byte, error)
}

// GenAIClient calls a Gemini-style generateContent REST endpoint
type GenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewGenAIClient(cfg *config.Config) *GenAIClient {
	return &GenAIClient{
		baseURL: strings.TrimRight(cfg.GenAIAPIURL, "/"),
		apiKey:  cfg.GenAIAPIKey,
		model:   cfg.GenAIModel,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type generatePart struct {
	Text string `json:"text"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generationConfig struct {
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
	Temperature      float64         `json:"temperature"`
}

type generateRequest struct {
	Contents         []generateContent `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []generatePart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// GenerateJSON sends the prompt with a response schema and returns the
// raw JSON text the model produced
func (gc *GenAIClient) GenerateJSON(ctx context.Context, prompt string, schema json.RawMessage) ([]byte, error) {
	payload := generateRequest{
		Contents: []generateContent{
			{Parts: []generatePart{{Text: prompt}}},
		},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
			Temperature:      0.1,
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %v", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", gc.baseURL, gc.model, url.QueryEscape(gc.apiKey))
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := gc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send generation request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read generation response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model API returned status %d: %s", resp.StatusCode, truncateForLog(body, 512))
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return nil, fmt.Errorf("failed to parse generation response: %v", err)
	}

	if genResp.Error != nil {
		return nil, fmt.Errorf("model API error %d (%s): %s", genResp.Error.Code, genResp.Error.Status, genResp.Error.Message)
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("model returned no candidates")
	}

	text := strings.TrimSpace(genResp.Candidates[0].Content.Parts[0].Text)
	return []byte(stripCodeFence(text)), nil
}

// stripCodeFence removes a markdown fence around the JSON. Some model
// versions fence their output even when a JSON MIME type is requested.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncateForLog(body []byte, max int) string {
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
