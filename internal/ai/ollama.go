package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultOllamaHost is where a local Ollama listens by default.
const DefaultOllamaHost = "http://127.0.0.1:11434"

// OllamaClient talks to a local Ollama runtime. No key is needed.
type OllamaClient struct {
	httpClient *http.Client
	host       string
	retryMax   int
	baseDelay  time.Duration
}

// NewOllamaClient creates a client for host (e.g. http://127.0.0.1:11434).
func NewOllamaClient(host string, timeout time.Duration, retryMax int) *OllamaClient {
	if host == "" {
		host = DefaultOllamaHost
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 2
	}
	return &OllamaClient{
		httpClient: &http.Client{Timeout: timeout},
		host:       strings.TrimRight(host, "/"),
		retryMax:   retryMax,
		baseDelay:  200 * time.Millisecond,
	}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Chat sends a non-streaming /api/chat request.
func (c *OllamaClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	oreq := ollamaChatRequest{Model: req.Model, Messages: req.Messages}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		oreq.Options = map[string]any{}
		if req.Temperature > 0 {
			oreq.Options["temperature"] = req.Temperature
		}
		if req.MaxTokens > 0 {
			oreq.Options["num_predict"] = req.MaxTokens
		}
	}
	var oresp ollamaChatResponse
	if err := c.post(ctx, "/api/chat", oreq, &oresp); err != nil {
		return nil, err
	}
	return &ChatResponse{
		Choices:   []Choice{{Message: Message{Role: "assistant", Content: oresp.Message.Content}}},
		RequestID: fmt.Sprintf("ollama_%d", time.Now().UnixNano()),
	}, nil
}

// Embed uses the batch /api/embed endpoint.
func (c *OllamaClient) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if model == "" {
		return nil, errors.New("embedding model cannot be empty")
	}
	if len(inputs) == 0 {
		return nil, errors.New("inputs cannot be empty")
	}
	var out ollamaEmbedResponse
	if err := c.post(ctx, "/api/embed", ollamaEmbedRequest{Model: model, Input: inputs}, &out); err != nil {
		return nil, err
	}
	if len(out.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(out.Embeddings), len(inputs))
	}
	vectors := make([][]float32, len(out.Embeddings))
	for i, e := range out.Embeddings {
		vectors[i] = toFloat32(e)
	}
	return vectors, nil
}

// post retries connection failures and 5xx responses. A 404 from Ollama almost
// always means the model has not been pulled.
func (c *OllamaClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	backoff := c.baseDelay
	var lastErr error
	for attempt := 1; attempt <= c.retryMax; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = &UnreachableError{Host: c.host, Err: err}
			if !isRetryableNetErr(err) {
				return lastErr
			}
		} else {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				err := json.NewDecoder(resp.Body).Decode(out)
				resp.Body.Close()
				if err != nil {
					return fmt.Errorf("decode response: %w", err)
				}
				return nil
			}
			apiErr := readAPIError(resp)
			resp.Body.Close()
			switch {
			case resp.StatusCode == http.StatusNotFound:
				return &ModelNotFoundError{APIError: apiErr}
			case resp.StatusCode == http.StatusBadRequest:
				return &BadRequestError{APIError: apiErr}
			case resp.StatusCode >= 500:
				lastErr = &ServerError{APIError: apiErr}
			default:
				return apiErr
			}
		}
		if attempt < c.retryMax {
			if err := sleepCtx(ctx, withJitter(backoff)); err != nil {
				return err
			}
			backoff *= 2
		}
	}
	return lastErr
}
