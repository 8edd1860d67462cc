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

// DiffusionPreset holds the sampler settings sent to an
// AUTOMATIC1111-compatible server.
type DiffusionPreset struct {
	Name           string
	Steps          int
	CFGScale       float64
	ImageCFGScale  float64
	Denoising      float64
	Width          int
	Height         int
	SamplerName    string
	NegativePrompt string
}

var (
	// GPUPreset targets a local GPU diffusion server.
	GPUPreset = DiffusionPreset{
		Name:        "diffusion",
		Steps:       30,
		CFGScale:    7,
		Denoising:   0.6,
		Width:       768,
		Height:      768,
		SamplerName: "DPM++ 2M Karras",
	}
	// CPUPix2PixPreset keeps InstructPix2Pix edits tractable on CPU.
	CPUPix2PixPreset = DiffusionPreset{
		Name:          "pix2pix-cpu",
		Steps:         10,
		CFGScale:      7,
		ImageCFGScale: 1.5,
		Denoising:     1,
		Width:         512,
		Height:        512,
		SamplerName:   "Euler a",
	}
)

// DiffusionOptions configures the diffusion server backend.
type DiffusionOptions struct {
	BaseURL        string
	Preset         DiffusionPreset
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// DiffusionGenerator calls txt2img for prompt-only requests and img2img when a
// source image is supplied.
type DiffusionGenerator struct {
	baseURL    string
	preset     DiffusionPreset
	httpClient *http.Client
	logger     *infra.Logger
}

type sdRequest struct {
	Prompt            string   `json:"prompt"`
	NegativePrompt    string   `json:"negative_prompt,omitempty"`
	Steps             int      `json:"steps"`
	CFGScale          float64  `json:"cfg_scale"`
	ImageCFGScale     float64  `json:"image_cfg_scale,omitempty"`
	Width             int      `json:"width"`
	Height            int      `json:"height"`
	SamplerName       string   `json:"sampler_name,omitempty"`
	InitImages        []string `json:"init_images,omitempty"`
	DenoisingStrength float64  `json:"denoising_strength,omitempty"`
	BatchSize         int      `json:"batch_size"`
}

type sdResponse struct {
	Images []string `json:"images"`
	Error  string   `json:"error"`
	Detail string   `json:"detail"`
}

// NewDiffusionGenerator builds the backend. The base URL is required.
func NewDiffusionGenerator(opts DiffusionOptions) (*DiffusionGenerator, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("diffusion: base url is required")
	}
	preset := opts.Preset
	if preset.Name == "" {
		preset = GPUPreset
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &DiffusionGenerator{
		baseURL:    baseURL,
		preset:     preset,
		httpClient: httpClient,
		logger:     discardLogger(opts.Logger),
	}, nil
}

func (g *DiffusionGenerator) Name() string { return g.preset.Name }

// HasCredentials is always true: the server is self-hosted and unauthenticated.
func (g *DiffusionGenerator) HasCredentials() bool { return true }

// Generate fulfils the Generator interface.
func (g *DiffusionGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%s: prompt is required", g.preset.Name)
	}
	payload := sdRequest{
		Prompt:         prompt,
		NegativePrompt: g.preset.NegativePrompt,
		Steps:          g.preset.Steps,
		CFGScale:       g.preset.CFGScale,
		Width:          g.preset.Width,
		Height:         g.preset.Height,
		SamplerName:    g.preset.SamplerName,
		BatchSize:      1,
	}
	endpoint := g.baseURL + "/sdapi/v1/txt2img"
	if src := req.SourceImage; src != nil && len(src.Data) > 0 {
		endpoint = g.baseURL + "/sdapi/v1/img2img"
		payload.InitImages = []string{base64.StdEncoding.EncodeToString(src.Data)}
		payload.DenoisingStrength = g.preset.Denoising
		payload.ImageCFGScale = g.preset.ImageCFGScale
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", g.preset.Name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", g.preset.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: http request: %w", g.preset.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", g.preset.Name, err)
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{Backend: g.preset.Name, Code: resp.StatusCode, Body: string(raw)}
	}
	var decoded sdResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", g.preset.Name, err)
	}
	if msg := strings.TrimSpace(decoded.Error + " " + decoded.Detail); msg != "" && len(decoded.Images) == 0 {
		return nil, fmt.Errorf("%s: %s", g.preset.Name, msg)
	}
	if len(decoded.Images) == 0 || decoded.Images[0] == "" {
		return nil, fmt.Errorf("%s: %w", g.preset.Name, ErrEmptyResult)
	}
	encoded := decoded.Images[0]
	if i := strings.IndexByte(encoded, ','); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%s: decode image: %w", g.preset.Name, err)
	}
	g.logger.Debug().
		Str("preset", g.preset.Name).
		Str("endpoint", endpoint).
		Dur("elapsed", time.Since(started)).
		Msg("diffusion: generated image")
	return &Asset{Format: normalizeFormat(http.DetectContentType(data)), Data: data}, nil
}

var _ Generator = (*DiffusionGenerator)(nil)
