// Package generation forwards prompt-driven image and video requests to the
// configured backend. Every backend failure is logged with its cause and
// collapsed into domain.ErrProviderFailure.
package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"toonlab/internal/domain"
	"toonlab/internal/infra"
	imageprovider "toonlab/internal/providers/image"
	videoprovider "toonlab/internal/providers/video"
)

// Options tunes timeouts and retries around backend calls.
type Options struct {
	// Timeout bounds each attempt. Zero disables the per-attempt deadline.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after a transient failure.
	MaxRetries int
	// Backoff is the pause before a retry.
	Backoff time.Duration
	Logger  *infra.Logger
}

// Gateway delegates to exactly one image backend and one video backend.
type Gateway struct {
	images imageprovider.Generator
	videos videoprovider.Generator
	opts   Options
	logger *infra.Logger
}

// VideoRequest carries the video generation parameters accepted at the boundary.
type VideoRequest struct {
	Prompt            string
	NumFrames         int
	NumInferenceSteps int
	Seed              *int64
	RequestID         string
}

// BackendStatus describes one configured backend.
type BackendStatus struct {
	Backend        string `json:"backend"`
	Model          string `json:"model,omitempty"`
	HasCredentials bool   `json:"has_credentials"`
}

// Status summarises the configured backends.
type Status struct {
	Image *BackendStatus `json:"image,omitempty"`
	Video *BackendStatus `json:"video,omitempty"`
}

// New wires a gateway. Either backend may be nil, in which case requests for
// it fail with domain.ErrProviderFailure.
func New(images imageprovider.Generator, videos videoprovider.Generator, opts Options) *Gateway {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Gateway{images: images, videos: videos, opts: opts, logger: logger}
}

// GenerateImage produces an image from prompt, conditioned on source when it
// is non-empty.
func (g *Gateway) GenerateImage(ctx context.Context, source []byte, prompt string, requestID string) ([]byte, error) {
	if g.images == nil {
		return nil, g.collapse("image", "", errors.New("no image backend configured"))
	}
	req := imageprovider.GenerateRequest{Prompt: prompt, RequestID: requestID}
	if len(source) > 0 {
		req.SourceImage = &imageprovider.SourceImage{Data: source}
	}
	var asset *imageprovider.Asset
	err := g.do(ctx, "image", g.images.Name(), func(ctx context.Context) error {
		var err error
		asset, err = g.images.Generate(ctx, req)
		return err
	})
	if err == nil && (asset == nil || len(asset.Data) == 0) {
		err = imageprovider.ErrEmptyResult
	}
	if err != nil {
		return nil, g.collapse("image", g.images.Name(), err)
	}
	return asset.Data, nil
}

// GenerateVideo produces an encoded video for the request.
func (g *Gateway) GenerateVideo(ctx context.Context, req VideoRequest) ([]byte, error) {
	if g.videos == nil {
		return nil, g.collapse("video", "", errors.New("no video backend configured"))
	}
	var asset *videoprovider.Asset
	err := g.do(ctx, "video", g.videos.Name(), func(ctx context.Context) error {
		var err error
		asset, err = g.videos.Generate(ctx, videoprovider.GenerateRequest{
			Prompt:            req.Prompt,
			NumFrames:         req.NumFrames,
			NumInferenceSteps: req.NumInferenceSteps,
			Seed:              req.Seed,
			RequestID:         req.RequestID,
		})
		return err
	})
	if err == nil && (asset == nil || len(asset.Data) == 0) {
		err = videoprovider.ErrEmptyResult
	}
	if err != nil {
		return nil, g.collapse("video", g.videos.Name(), err)
	}
	return asset.Data, nil
}

// Status reports backend names and credential availability.
func (g *Gateway) Status() Status {
	var s Status
	if g.images != nil {
		s.Image = &BackendStatus{Backend: g.images.Name(), HasCredentials: g.images.HasCredentials()}
	}
	if g.videos != nil {
		s.Video = &BackendStatus{Backend: g.videos.Name(), Model: g.videos.Model(), HasCredentials: g.videos.HasCredentials()}
	}
	return s
}

func (g *Gateway) do(ctx context.Context, kind, backend string, call func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= g.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn().Err(err).Str("kind", kind).Str("backend", backend).Int("attempt", attempt+1).
				Msg("generation: retrying transient backend failure")
			if waitErr := sleep(ctx, g.opts.Backoff); waitErr != nil {
				return errors.Join(err, waitErr)
			}
		}
		err = g.attempt(ctx, call)
		if err == nil || ctx.Err() != nil || !isTransient(err) {
			return err
		}
	}
	return err
}

func (g *Gateway) attempt(ctx context.Context, call func(context.Context) error) error {
	if g.opts.Timeout <= 0 {
		return call(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()
	return call(ctx)
}

func (g *Gateway) collapse(kind, backend string, cause error) error {
	g.logger.Error().Err(cause).Str("kind", kind).Str("backend", backend).Msg("generation: backend failed")
	return fmt.Errorf("%w: %s generation failed", domain.ErrProviderFailure, kind)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type temporary interface {
	Temporary() bool
}

// isTransient limits retries to network-level failures and upstream 5xx/429.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, imageprovider.ErrMissingAPIKey) || errors.Is(err, videoprovider.ErrMissingToken) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *imageprovider.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var ve *videoprovider.StatusError
	if errors.As(err, &ve) {
		return ve.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var tmp temporary
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "service unavailable") || strings.Contains(msg, "connection reset")
}
