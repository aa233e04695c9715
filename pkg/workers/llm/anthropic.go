package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type anthropicProvider struct{}

func (anthropicProvider) name() string {
	return "anthropic"
}

func (anthropicProvider) defaults(cfg *Config) {
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}

	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.anthropic.com/v1/messages"
	}
}

func (anthropicProvider) buildRequest(ctx context.Context, cfg Config, prompt string) (*http.Request, error) {
	payload := map[string]any{
		"model":       cfg.Model,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"temperature": cfg.Temperature,
		"max_tokens":  cfg.MaxTokens,
		"stream":      cfg.Stream,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	return req, nil
}

func (anthropicProvider) parseResponse(body io.Reader) (string, error) {
	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}

	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return "", err
	}

	for _, block := range parsed.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", fmt.Errorf("response contained no text block")
}

// parseStream consumes the SSE stream of content_block_delta events.
func (anthropicProvider) parseStream(body io.Reader, emit func(chunk string)) (string, error) {
	var full strings.Builder

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		var event struct {
			Type  string `json:"type"`
			Delta struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"delta"`
		}

		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}

		if event.Type == "content_block_delta" && event.Delta.Text != "" {
			full.WriteString(event.Delta.Text)

			if emit != nil {
				emit(event.Delta.Text)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return "", err
	}

	return full.String(), nil
}
