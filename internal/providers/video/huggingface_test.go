package video

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHuggingFaceGeneratorReturnsVideo(t *testing.T) {
	var got hfRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Lightricks/LTX-Video-0.9.7-distilled" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer hf_test" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("\x00\x00\x00\x18ftypmp42"))
	}))
	defer srv.Close()

	seed := int64(1234)
	gen := NewHuggingFaceGenerator(HuggingFaceOptions{Token: "hf_test", BaseURL: srv.URL, HTTPClient: srv.Client()})
	asset, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "a young man walking", Seed: &seed})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if asset.Format != "video/mp4" || len(asset.Data) == 0 {
		t.Fatalf("asset = %s (%d bytes)", asset.Format, len(asset.Data))
	}
	if got.Inputs != "a young man walking" {
		t.Fatalf("inputs = %q", got.Inputs)
	}
	if got.Parameters.NumFrames != DefaultNumFrames || got.Parameters.NumInferenceSteps != DefaultNumInferenceSteps {
		t.Fatalf("parameters = %+v", got.Parameters)
	}
	if got.Parameters.Seed == nil || *got.Parameters.Seed != seed {
		t.Fatalf("seed not forwarded")
	}
}

func TestHuggingFaceGeneratorLoadingIsTemporary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Model is currently loading","estimated_time":20}`))
	}))
	defer srv.Close()

	gen := NewHuggingFaceGenerator(HuggingFaceOptions{Token: "t", BaseURL: srv.URL})
	_, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	var se *StatusError
	if !errors.As(err, &se) || !se.Temporary() || se.Body != "Model is currently loading" {
		t.Fatalf("err = %v", err)
	}
}

func TestHuggingFaceGeneratorEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
	}))
	defer srv.Close()

	gen := NewHuggingFaceGenerator(HuggingFaceOptions{Token: "t", BaseURL: srv.URL})
	if _, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "p"}); !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("err = %v, want ErrEmptyResult", err)
	}
}

func TestHuggingFaceGeneratorWithoutToken(t *testing.T) {
	gen := NewHuggingFaceGenerator(HuggingFaceOptions{})
	if gen.HasCredentials() {
		t.Fatalf("expected no credentials")
	}
	if gen.Model() != "Lightricks/LTX-Video-0.9.7-distilled" {
		t.Fatalf("model = %s", gen.Model())
	}
	if _, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "p"}); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("err = %v", err)
	}
}
