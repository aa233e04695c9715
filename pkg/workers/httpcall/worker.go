// Package httpcall provides the outbound HTTP request worker with multiple output ports.
package httpcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lariat-run/lariat/pkg/protocol"
	"github.com/lariat-run/lariat/pkg/template"
)

const (
	OutputPortSuccess = "success"
	OutputPortError   = "error"
	InputPortMain     = "main"
)

// Auth types supported by the worker.
const (
	AuthNone   = ""
	AuthBearer = "bearer"
	AuthBasic  = "basic"
	AuthAPIKey = "api_key"
)

// Config defines the configuration for HTTP call workers.
type Config struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body,omitempty"`
	Timeout int               `json:"timeout"`
	Retries RetryConfig       `json:"retries"`
	Auth    AuthConfig        `json:"auth"`
}

// RetryConfig defines retry behavior for HTTP calls. Delay is the base for
// exponential backoff: attempt n sleeps delay<<n.
type RetryConfig struct {
	Attempts int `json:"attempts"`
	Delay    int `json:"delay"`
}

// AuthConfig defines the pluggable request authentication.
type AuthConfig struct {
	Type     string `json:"type"`
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Header   string `json:"header,omitempty"`
	Key      string `json:"key,omitempty"`
}

// Worker performs an outbound HTTP request and routes the response to the
// success or error output port.
type Worker struct {
	id     string
	config Config
}

// NewWorker creates a new HTTP call worker.
func NewWorker(id string, config map[string]any) (*Worker, error) {
	cfg := Config{
		Method:  http.MethodGet,
		Headers: make(map[string]string),
		Timeout: 30,
		Retries: RetryConfig{Attempts: 1, Delay: 1},
	}

	if url, ok := config["url"].(string); ok {
		cfg.URL = url
	} else {
		return nil, errors.New("missing required field 'url'")
	}

	if method, ok := config["method"].(string); ok {
		cfg.Method = strings.ToUpper(method)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if strVal, ok := v.(string); ok {
				cfg.Headers[k] = strVal
			}
		}
	}

	if body, ok := config["body"].(string); ok {
		cfg.Body = body
	}

	if timeout, ok := config["timeout"].(float64); ok {
		cfg.Timeout = int(timeout)
	}

	if retries, ok := config["retries"].(map[string]any); ok {
		if attempts, ok := retries["attempts"].(float64); ok {
			cfg.Retries.Attempts = int(attempts)
		}

		if delay, ok := retries["delay"].(float64); ok {
			cfg.Retries.Delay = int(delay)
		}
	}

	if auth, ok := config["auth"].(map[string]any); ok {
		if err := parseAuth(auth, &cfg.Auth); err != nil {
			return nil, err
		}
	}

	return &Worker{id: id, config: cfg}, nil
}

func parseAuth(auth map[string]any, out *AuthConfig) error {
	authType, _ := auth["type"].(string)

	switch authType {
	case AuthBearer:
		token, ok := auth["token"].(string)
		if !ok {
			return errors.New("bearer auth requires field 'token'")
		}

		out.Token = token
	case AuthBasic:
		username, uok := auth["username"].(string)
		password, pok := auth["password"].(string)

		if !uok || !pok {
			return errors.New("basic auth requires fields 'username' and 'password'")
		}

		out.Username = username
		out.Password = password
	case AuthAPIKey:
		key, ok := auth["key"].(string)
		if !ok {
			return errors.New("api_key auth requires field 'key'")
		}

		out.Key = key

		out.Header = "X-API-Key"
		if header, ok := auth["header"].(string); ok {
			out.Header = header
		}
	case AuthNone:
		return nil
	default:
		return fmt.Errorf("unknown auth type %q", authType)
	}

	out.Type = authType

	return nil
}

// ID returns the node ID.
func (w *Worker) ID() string {
	return w.id
}

// Type returns the worker type.
func (w *Worker) Type() string {
	return "httpcall"
}

// Execute performs the HTTP request with retry and exponential backoff.
func (w *Worker) Execute(ctx context.Context, inputs map[string]any, info protocol.ExecutionInfo) (map[string]any, error) {
	data := mergeData(info.Variables, inputs)

	url := template.RenderAdvanced(w.config.URL, data)
	body := template.RenderAdvanced(w.config.Body, data)

	client := &http.Client{Timeout: time.Duration(w.config.Timeout) * time.Second}

	var lastErr error

	attempts := max(w.config.Retries.Attempts, 1)

	for attempt := range attempts {
		if attempt > 0 {
			backoff := time.Duration(w.config.Retries.Delay<<(attempt-1)) * time.Second

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		outputs, err := w.doRequest(ctx, client, url, body)
		if err == nil {
			return outputs, nil
		}

		lastErr = err
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

// doRequest performs one HTTP attempt. Transport errors are returned for
// retry; an HTTP-level error status lands on the error output port instead.
func (w *Worker) doRequest(ctx context.Context, client *http.Client, url, body string) (map[string]any, error) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, w.config.Method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for k, v := range w.config.Headers {
		req.Header.Set(k, v)
	}

	if req.Header.Get("Content-Type") == "" && body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w.applyAuth(req)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	payload := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headerMap(resp.Header),
		"body":        decodeBody(raw),
	}

	if resp.StatusCode >= 400 {
		return map[string]any{OutputPortError: payload}, nil
	}

	return map[string]any{OutputPortSuccess: payload}, nil
}

func (w *Worker) applyAuth(req *http.Request) {
	switch w.config.Auth.Type {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+w.config.Auth.Token)
	case AuthBasic:
		req.SetBasicAuth(w.config.Auth.Username, w.config.Auth.Password)
	case AuthAPIKey:
		req.Header.Set(w.config.Auth.Header, w.config.Auth.Key)
	}
}

// decodeBody parses the body as JSON when possible, otherwise returns the
// raw string.
func decodeBody(raw []byte) any {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			return decoded
		}
	}

	return string(raw)
}

func headerMap(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}

	return out
}

func mergeData(variables, inputs map[string]any) map[string]any {
	data := make(map[string]any, len(variables)+len(inputs))

	for k, v := range variables {
		data[k] = v
	}

	for k, v := range inputs {
		data[k] = v
	}

	return data
}
