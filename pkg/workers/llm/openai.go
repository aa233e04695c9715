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

type openAIProvider struct{}

func (openAIProvider) name() string {
	return "openai"
}

func (openAIProvider) defaults(cfg *Config) {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.openai.com/v1/chat/completions"
	}
}

func (openAIProvider) buildRequest(ctx context.Context, cfg Config, prompt string) (*http.Request, error) {
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
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	return req, nil
}

func (openAIProvider) parseResponse(body io.Reader) (string, error) {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return "", err
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("response contained no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// parseStream consumes the SSE stream, emitting each content delta.
func (openAIProvider) parseStream(body io.Reader, emit func(chunk string)) (string, error) {
	var full strings.Builder

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		data, ok := strings.CutPrefix(line, "data: ")
		if !ok || data == "[DONE]" {
			continue
		}

		var event struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}

		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}

		if len(event.Choices) > 0 && event.Choices[0].Delta.Content != "" {
			chunk := event.Choices[0].Delta.Content
			full.WriteString(chunk)

			if emit != nil {
				emit(chunk)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return "", err
	}

	return full.String(), nil
}
