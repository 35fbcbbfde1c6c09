package answer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	defaultModel = "gemini-2.0-flash"

	answerPrompt = "Answer the following question using only the attached document page images. " +
		"If the pages do not contain the answer, say so. Question: %s"
)

// HTTPOptions contains configuration options for the HTTP answer client.
type HTTPOptions struct {
	// HTTPClient performs the requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Model is the generation model identifier.
	Model string
}

// HTTPClient is a Client backed by a Gemini-compatible generateContent
// endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	opts    HTTPOptions
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates an answer client for the given endpoint.
func NewHTTPClient(baseURL, apiKey string, optFns ...func(o *HTTPOptions)) *HTTPClient {
	opts := HTTPOptions{
		HTTPClient: http.DefaultClient,
		Model:      defaultModel,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &HTTPClient{baseURL: baseURL, apiKey: apiKey, opts: opts}
}

// WithModel sets the generation model identifier.
func WithModel(model string) func(o *HTTPOptions) {
	return func(o *HTTPOptions) {
		o.Model = model
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(client *http.Client) func(o *HTTPOptions) {
	return func(o *HTTPOptions) {
		o.HTTPClient = client
	}
}

type generatePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *inlineDataPart `json:"inline_data,omitempty"`
}

type inlineDataPart struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generateRequest struct {
	Contents []generateContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Answer implements Client.
func (c *HTTPClient) Answer(ctx context.Context, query string, images [][]byte) (string, error) {
	parts := make([]generatePart, 0, len(images)+1)
	parts = append(parts, generatePart{Text: fmt.Sprintf(answerPrompt, query)})
	for _, img := range images {
		parts = append(parts, generatePart{
			InlineData: &inlineDataPart{
				MimeType: "image/png",
				Data:     base64.StdEncoding.EncodeToString(img),
			},
		})
	}

	payload, err := json.Marshal(generateRequest{Contents: []generateContent{{Parts: parts}}})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.opts.Model), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrService, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrService, err)
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrService, res.StatusCode)
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrService, err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrService)
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
