package image

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n0000")

func TestOpenAIGeneratorDecodesToolResult(t *testing.T) {
	var got responsesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "resp_1",
			"output": []map[string]any{
				{"type": "message"},
				{"type": "image_generation_call", "result": base64.StdEncoding.EncodeToString(pngMagic)},
			},
		})
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator(OpenAIOptions{APIKey: "sk-test", BaseURL: srv.URL, HTTPClient: srv.Client()})
	asset, err := gen.Generate(context.Background(), GenerateRequest{
		Prompt:      "a fox in a hat",
		SourceImage: &SourceImage{MIME: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(asset.Data) != string(pngMagic) || asset.Format != "image/png" {
		t.Fatalf("asset = %q (%s)", asset.Data, asset.Format)
	}
	if got.Model != "gpt-4.1-mini" || len(got.Tools) != 1 || got.Tools[0].Type != "image_generation" {
		t.Fatalf("request = %+v", got)
	}
	content := got.Input[0].Content
	if len(content) != 2 || content[0].Text != "a fox in a hat" || !strings.HasPrefix(content[1].ImageURL, "data:image/jpeg;base64,") {
		t.Fatalf("content = %+v", content)
	}
}

func TestOpenAIGeneratorErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr func(error) bool
	}{
		{"server error", http.StatusBadGateway, `{"error":{"message":"upstream"}}`, func(err error) bool {
			var se *StatusError
			return errors.As(err, &se) && se.Temporary()
		}},
		{"no image", http.StatusOK, `{"output":[{"type":"message"}]}`, func(err error) bool {
			return errors.Is(err, ErrEmptyResult)
		}},
		{"api error", http.StatusOK, `{"error":{"code":"bad","message":"nope"}}`, func(err error) bool {
			return err != nil && strings.Contains(err.Error(), "nope")
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			gen := NewOpenAIGenerator(OpenAIOptions{APIKey: "k", BaseURL: srv.URL})
			_, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "x"})
			if !tc.wantErr(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestOpenAIGeneratorMissingKey(t *testing.T) {
	gen := NewOpenAIGenerator(OpenAIOptions{})
	if gen.HasCredentials() {
		t.Fatalf("expected no credentials")
	}
	if _, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "x"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v", err)
	}
}

func TestDiffusionGeneratorRoutesBySourceImage(t *testing.T) {
	var paths []string
	var last sdRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if err := json.NewDecoder(r.Body).Decode(&last); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(sdResponse{Images: []string{base64.StdEncoding.EncodeToString(pngMagic)}})
	}))
	defer srv.Close()

	gen, err := NewDiffusionGenerator(DiffusionOptions{BaseURL: srv.URL, Preset: CPUPix2PixPreset})
	if err != nil {
		t.Fatalf("NewDiffusionGenerator: %v", err)
	}
	if gen.Name() != "pix2pix-cpu" {
		t.Fatalf("name = %s", gen.Name())
	}
	if _, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "watercolor"}); err != nil {
		t.Fatalf("txt2img: %v", err)
	}
	if last.Steps != 10 || last.Width != 512 || len(last.InitImages) != 0 {
		t.Fatalf("txt2img payload = %+v", last)
	}
	asset, err := gen.Generate(context.Background(), GenerateRequest{
		Prompt:      "make it snow",
		SourceImage: &SourceImage{Data: []byte("jpeg")},
	})
	if err != nil {
		t.Fatalf("img2img: %v", err)
	}
	if len(last.InitImages) != 1 || last.ImageCFGScale != 1.5 {
		t.Fatalf("img2img payload = %+v", last)
	}
	if asset.Format != "image/png" {
		t.Fatalf("format = %s", asset.Format)
	}
	if len(paths) != 2 || paths[0] != "/sdapi/v1/txt2img" || paths[1] != "/sdapi/v1/img2img" {
		t.Fatalf("paths = %v", paths)
	}
}

func TestDiffusionGeneratorEmptyImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"images":[]}`))
	}))
	defer srv.Close()
	gen, err := NewDiffusionGenerator(DiffusionOptions{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewDiffusionGenerator: %v", err)
	}
	if _, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "x"}); !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("err = %v, want ErrEmptyResult", err)
	}
}

func TestNewDiffusionGeneratorRequiresBaseURL(t *testing.T) {
	if _, err := NewDiffusionGenerator(DiffusionOptions{}); err == nil {
		t.Fatalf("expected error for missing base url")
	}
}
