package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pranav271103/smart-scheduler-ai-agent/internal/domain"
)

// generateRequest is the minimal request shape for the generateContent
// endpoint of the Generative Language API.
type generateRequest struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      *float64        `json:"temperature,omitempty"`
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

// generateResponse is the minimal response shape for generateContent.
type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Getter supplies the API key from a parameter store. Consumers that keep
// the key in the environment pass a static key instead.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("gemini: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused client for the Gemini generateContent API.
type Client struct {
	baseURL    string
	httpClient *http.Client

	staticKey   string
	getter      Getter
	paramPrefix string

	keyOnce sync.Once
	apiKey  string
	keyErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithParamStore resolves the API key from the given parameter store under
// <prefix>/gemini-api-key instead of a static key. The key is fetched on
// the first request and reused for the process lifetime.
func WithParamStore(g Getter, prefix string) Option {
	return func(c *Client) {
		c.getter = g
		c.paramPrefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	}
}

// NewClient creates a Client. apiKey may be empty when WithParamStore is
// supplied.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    "https://generativelanguage.googleapis.com/v1beta",
		httpClient: &http.Client{Timeout: 20 * time.Second},
		staticKey:  strings.TrimSpace(apiKey),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.staticKey == "" && c.getter == nil {
		return nil, errors.New("gemini: API key or parameter store required")
	}
	if c.getter != nil && c.paramPrefix == "" {
		return nil, errors.New("gemini: parameter prefix must not be empty")
	}
	return c, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		if c.staticKey != "" {
			c.apiKey = c.staticKey
			return
		}
		raw, err := c.getter.GetParameter(ctx, c.paramPrefix+"/gemini-api-key")
		if err != nil {
			c.keyErr = fmt.Errorf("gemini: fetch API key from paramstore: %w", err)
			return
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			c.keyErr = errors.New("gemini: API key parameter is empty")
			return
		}
		c.apiKey = raw
	})
	return c.apiKey, c.keyErr
}

// Generate sends a plain-text completion request and returns the first
// candidate's text.
func (c *Client) Generate(ctx context.Context, model string, messages []domain.ChatMessage) (string, error) {
	return c.generate(ctx, model, messages, nil)
}

// GenerateJSON forces a JSON response conforming to the given schema,
// used for structured field extraction.
func (c *Client) GenerateJSON(ctx context.Context, model string, messages []domain.ChatMessage, schema json.RawMessage) (string, error) {
	cfg := &generationConfig{ResponseMimeType: "application/json"}
	if len(schema) > 0 {
		cfg.ResponseSchema = schema
	}
	return c.generate(ctx, model, messages, cfg)
}

func (c *Client) generate(ctx context.Context, model string, messages []domain.ChatMessage, cfg *generationConfig) (string, error) {
	if model == "" {
		return "", errors.New("gemini: model must not be empty")
	}
	if len(messages) == 0 {
		return "", errors.New("gemini: messages must not be empty")
	}

	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(toGenerateRequest(messages, cfg))
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.baseURL, "/"), model)
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return "", fmt.Errorf("gemini: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return "", fmt.Errorf("gemini: request failed: %w", err)
	}

	var payload generateResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", fmt.Errorf("gemini: decode response: %w", decErr)
	}
	if len(payload.Candidates) == 0 || len(payload.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini: no candidates in response")
	}
	return payload.Candidates[0].Content.Parts[0].Text, nil
}

// toGenerateRequest maps provider-agnostic chat messages onto the Gemini
// shape: system messages become the system instruction, assistant turns
// become role "model".
func toGenerateRequest(messages []domain.ChatMessage, cfg *generationConfig) generateRequest {
	out := generateRequest{GenerationConfig: cfg}
	for _, m := range messages {
		switch m.Role {
		case "system":
			if out.SystemInstruction == nil {
				out.SystemInstruction = &content{Parts: []part{{Text: m.Content}}}
			} else {
				out.SystemInstruction.Parts = append(out.SystemInstruction.Parts, part{Text: m.Content})
			}
		case "assistant":
			out.Contents = append(out.Contents, content{Role: "model", Parts: []part{{Text: m.Content}}})
		default:
			out.Contents = append(out.Contents, content{Role: "user", Parts: []part{{Text: m.Content}}})
		}
	}
	return out
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
