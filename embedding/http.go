package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

const defaultModel = "embed-v4.0"

// HTTPOptions contains configuration options for the HTTP embedding client.
type HTTPOptions struct {
	// HTTPClient performs the requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Model is the embedding model identifier.
	Model string

	// Dimension, when non-zero, is enforced on every returned vector.
	Dimension int

	// RateLimit bounds the request rate against the backend. Defaults to
	// 10 requests per second with a burst of 10.
	RateLimit *rate.Limiter
}

// HTTPClient is a Client backed by a Cohere-compatible v2 embed endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	opts    HTTPOptions
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates an embedding client for the given endpoint.
func NewHTTPClient(baseURL, apiKey string, optFns ...func(o *HTTPOptions)) *HTTPClient {
	opts := HTTPOptions{
		HTTPClient: http.DefaultClient,
		Model:      defaultModel,
		RateLimit:  rate.NewLimiter(10, 10),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &HTTPClient{baseURL: baseURL, apiKey: apiKey, opts: opts}
}

// WithModel sets the embedding model identifier.
func WithModel(model string) func(o *HTTPOptions) {
	return func(o *HTTPOptions) {
		o.Model = model
	}
}

// WithDimension enables dimension validation on returned vectors.
func WithDimension(dim int) func(o *HTTPOptions) {
	return func(o *HTTPOptions) {
		o.Dimension = dim
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(client *http.Client) func(o *HTTPOptions) {
	return func(o *HTTPOptions) {
		o.HTTPClient = client
	}
}

type embedRequest struct {
	Model          string   `json:"model"`
	InputType      string   `json:"input_type"`
	EmbeddingTypes []string `json:"embedding_types"`
	Texts          []string `json:"texts,omitempty"`
	Images         []string `json:"images,omitempty"`
}

type embedResponse struct {
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
}

// EmbedText implements Client.
func (c *HTTPClient) EmbedText(ctx context.Context, text string, mode Mode) ([]float32, error) {
	return c.embed(ctx, embedRequest{
		Model:          c.opts.Model,
		InputType:      string(mode),
		EmbeddingTypes: []string{"float"},
		Texts:          []string{text},
	})
}

// EmbedImage implements Client. The image is sent as a base64 data URI,
// which is how the embed protocol accepts binary inputs.
func (c *HTTPClient) EmbedImage(ctx context.Context, image []byte, contentType string) ([]float32, error) {
	if contentType == "" {
		contentType = "image/png"
	}
	dataURI := fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(image))

	return c.embed(ctx, embedRequest{
		Model:          c.opts.Model,
		InputType:      string(ModeDocument),
		EmbeddingTypes: []string{"float"},
		Images:         []string{dataURI},
	})
}

func (c *HTTPClient) embed(ctx context.Context, reqBody embedRequest) ([]float32, error) {
	if err := c.opts.RateLimit.Wait(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrService, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrService, err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrService, res.StatusCode, truncate(body, 256))
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrService, err)
	}
	if len(parsed.Embeddings.Float) != 1 {
		return nil, fmt.Errorf("%w: expected 1 embedding, got %d", ErrService, len(parsed.Embeddings.Float))
	}

	vec := parsed.Embeddings.Float[0]
	if c.opts.Dimension != 0 && len(vec) != c.opts.Dimension {
		return nil, &ErrDimensionMismatch{Expected: c.opts.Dimension, Actual: len(vec)}
	}
	return vec, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
