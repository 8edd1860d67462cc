package video

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrMissingToken indicates that the backend has no inference token.
var ErrMissingToken = errors.New("video: inference token is required")

// ErrEmptyResult is returned when the backend answered without video data.
var ErrEmptyResult = errors.New("video: backend returned no video")

// Default sampling parameters used when the caller leaves them unset.
const (
	DefaultNumFrames         = 32
	DefaultNumInferenceSteps = 7
)

// GenerateRequest describes a text-to-video request.
type GenerateRequest struct {
	Prompt            string
	NumFrames         int
	NumInferenceSteps int
	Seed              *int64
	RequestID         string
}

// Asset is an encoded video.
type Asset struct {
	Format string
	Data   []byte
}

// Generator is the contract implemented by all video backends.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
	Name() string
	Model() string
	HasCredentials() bool
}

// StatusError carries the HTTP status of a failed backend call.
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

// Temporary reports whether the upstream failure is worth retrying. The
// hosted API answers 503 while a model is loading.
func (e *StatusError) Temporary() bool {
	return e.Code == 429 || e.Code >= 500
}
