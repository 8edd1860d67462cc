package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"toonlab/internal/infra"
)

// ErrMissingAPIKey indicates that a backend was configured without credentials.
var ErrMissingAPIKey = errors.New("image: api key is required")

// ErrEmptyResult is returned when a backend answered without image data.
var ErrEmptyResult = errors.New("image: backend returned no image")

// SourceImage is the optional conditioning image uploaded by the caller.
type SourceImage struct {
	MIME string
	Data []byte
}

// GenerateRequest describes a normalized request passed to any image backend.
type GenerateRequest struct {
	Prompt      string
	RequestID   string
	SourceImage *SourceImage
}

// Asset represents a generated image.
type Asset struct {
	Format string
	Data   []byte
}

// Generator is the contract implemented by all image backends.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
	Name() string
	HasCredentials() bool
}

// StatusError carries the HTTP status of a failed backend call so callers
// can tell transient failures apart.
type StatusError struct {
	Backend string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("%s: status %d: %s", e.Backend, e.Code, body)
}

// Temporary reports whether the upstream failure is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == 429 || e.Code >= 500
}

func discardLogger(l *infra.Logger) *infra.Logger {
	if l != nil {
		return l
	}
	discard := zerolog.New(io.Discard)
	out := infra.Logger(discard)
	return &out
}

func normalizeFormat(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch mime {
	case "image/jpeg", "image/jpg":
		return "image/jpeg"
	case "image/png":
		return "image/png"
	default:
		if strings.HasPrefix(mime, "image/") {
			return mime
		}
		return "image/png"
	}
}
