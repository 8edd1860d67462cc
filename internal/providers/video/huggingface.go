package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"toonlab/internal/infra"
)

// HuggingFaceOptions configures the hosted inference backend.
type HuggingFaceOptions struct {
	Token          string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// HuggingFaceGenerator posts text-to-video requests to the Hugging Face
// inference router and returns the raw video bytes.
type HuggingFaceGenerator struct {
	token      string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	NumFrames         int    `json:"num_frames,omitempty"`
	NumInferenceSteps int    `json:"num_inference_steps,omitempty"`
	Seed              *int64 `json:"seed,omitempty"`
}

type hfError struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

// NewHuggingFaceGenerator constructs the backend with hosted defaults.
func NewHuggingFaceGenerator(opts HuggingFaceOptions) *HuggingFaceGenerator {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://router.huggingface.co/hf-inference/models"
	}
	model := strings.Trim(strings.TrimSpace(opts.Model), "/")
	if model == "" {
		model = "Lightricks/LTX-Video-0.9.7-distilled"
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &HuggingFaceGenerator{
		token:      strings.TrimSpace(opts.Token),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (g *HuggingFaceGenerator) Name() string { return "huggingface" }

// Model returns the configured model repository id.
func (g *HuggingFaceGenerator) Model() string { return g.model }

// HasCredentials reports whether an inference token is configured.
func (g *HuggingFaceGenerator) HasCredentials() bool { return g.token != "" }

// Generate fulfils the Generator interface.
func (g *HuggingFaceGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	if !g.HasCredentials() {
		return nil, ErrMissingToken
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("huggingface: prompt is required")
	}
	frames := req.NumFrames
	if frames <= 0 {
		frames = DefaultNumFrames
	}
	steps := req.NumInferenceSteps
	if steps <= 0 {
		steps = DefaultNumInferenceSteps
	}
	body, err := json.Marshal(hfRequest{
		Inputs: prompt,
		Parameters: hfParameters{
			NumFrames:         frames,
			NumInferenceSteps: steps,
			Seed:              req.Seed,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("huggingface: encode request: %w", err)
	}
	endpoint := g.baseURL + "/" + g.model
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("huggingface: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "video/mp4")
	httpReq.Header.Set("Authorization", "Bearer "+g.token)

	started := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("huggingface: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("huggingface: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail hfError
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Error != "" {
			return nil, &StatusError{Backend: "huggingface", Code: resp.StatusCode, Body: detail.Error}
		}
		return nil, &StatusError{Backend: "huggingface", Code: resp.StatusCode, Body: string(raw)}
	}
	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var detail hfError
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Error != "" {
			return nil, fmt.Errorf("huggingface: %s", detail.Error)
		}
		return nil, fmt.Errorf("huggingface: unexpected json response: %w", ErrEmptyResult)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("huggingface: %w", ErrEmptyResult)
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "video/mp4"
	}
	g.logger.Debug().
		Str("model", g.model).
		Int("num_frames", frames).
		Int("steps", steps).
		Int("bytes", len(raw)).
		Dur("elapsed", time.Since(started)).
		Msg("huggingface: generated video")
	return &Asset{Format: contentType, Data: raw}, nil
}

var _ Generator = (*HuggingFaceGenerator)(nil)
