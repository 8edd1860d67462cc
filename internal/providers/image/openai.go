package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"toonlab/internal/infra"
)

// OpenAIOptions configures the OpenAI Responses API backend.
type OpenAIOptions struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// OpenAIGenerator asks a Responses API model to call the built-in
// image_generation tool and returns the decoded tool result.
type OpenAIGenerator struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type responsesRequest struct {
	Model string           `json:"model"`
	Input []responsesInput `json:"input"`
	Tools []responsesTool  `json:"tools"`
}

type responsesInput struct {
	Role    string             `json:"role"`
	Content []responsesContent `json:"content"`
}

type responsesContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type responsesTool struct {
	Type string `json:"type"`
}

type responsesResponse struct {
	ID     string `json:"id"`
	Output []struct {
		Type         string `json:"type"`
		Result       string `json:"result"`
		OutputFormat string `json:"output_format"`
	} `json:"output"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewOpenAIGenerator constructs the backend with defaults for the hosted API.
func NewOpenAIGenerator(opts OpenAIOptions) *OpenAIGenerator {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-4.1-mini"
	}
	return &OpenAIGenerator{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     discardLogger(opts.Logger),
	}
}

func (g *OpenAIGenerator) Name() string { return "openai" }

// HasCredentials reports whether an API key is configured.
func (g *OpenAIGenerator) HasCredentials() bool { return g.apiKey != "" }

// Generate fulfils the Generator interface.
func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	if !g.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("openai: prompt is required")
	}
	content := []responsesContent{{Type: "input_text", Text: prompt}}
	if src := req.SourceImage; src != nil && len(src.Data) > 0 {
		mime := src.MIME
		if mime == "" {
			mime = http.DetectContentType(src.Data)
		}
		content = append(content, responsesContent{
			Type:     "input_image",
			ImageURL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(src.Data),
		})
	}
	payload := responsesRequest{
		Model: g.model,
		Input: []responsesInput{{Role: "user", Content: content}},
		Tools: []responsesTool{{Type: "image_generation"}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("openai: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{Backend: "openai", Code: resp.StatusCode, Body: string(raw)}
	}

	var decoded responsesResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return nil, fmt.Errorf("openai: %s (%s)", decoded.Error.Message, decoded.Error.Code)
	}
	for _, out := range decoded.Output {
		if out.Type != "image_generation_call" || out.Result == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(out.Result)
		if err != nil {
			return nil, fmt.Errorf("openai: decode image: %w", err)
		}
		g.logger.Debug().
			Str("model", g.model).
			Str("response_id", decoded.ID).
			Int("bytes", len(data)).
			Msg("openai: generated image")
		return &Asset{Format: normalizeFormat(http.DetectContentType(data)), Data: data}, nil
	}
	return nil, fmt.Errorf("openai: %w", ErrEmptyResult)
}

var _ Generator = (*OpenAIGenerator)(nil)
