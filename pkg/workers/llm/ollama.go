package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

type ollamaProvider struct{}

func (ollamaProvider) name() string {
	return "ollama"
}

func (ollamaProvider) defaults(cfg *Config) {
	if cfg.Model == "" {
		cfg.Model = "llama3"
	}

	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:11434/api/generate"
	}
}

func (ollamaProvider) buildRequest(ctx context.Context, cfg Config, prompt string) (*http.Request, error) {
	payload := map[string]any{
		"model":  cfg.Model,
		"prompt": prompt,
		"stream": cfg.Stream,
		"options": map[string]any{
			"temperature": cfg.Temperature,
			"num_predict": cfg.MaxTokens,
		},
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

	return req, nil
}

func (ollamaProvider) parseResponse(body io.Reader) (string, error) {
	var parsed struct {
		Response string `json:"response"`
	}

	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return "", err
	}

	return parsed.Response, nil
}

// parseStream consumes the newline-delimited JSON stream ollama produces.
func (ollamaProvider) parseStream(body io.Reader, emit func(chunk string)) (string, error) {
	var full strings.Builder

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		var event struct {
			Response string `json:"response"`
			Done     bool   `json:"done"`
		}

		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}

		if event.Response != "" {
			full.WriteString(event.Response)

			if emit != nil {
				emit(event.Response)
			}
		}

		if event.Done {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return "", err
	}

	return full.String(), nil
}
