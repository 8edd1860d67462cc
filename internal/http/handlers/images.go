package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"toonlab/internal/cartoon"
	"toonlab/internal/domain"
	"toonlab/internal/generation"
	"toonlab/internal/middleware"
	"toonlab/pkg/zip"
)

// ApplyFilter runs a cartoon filter on the uploaded image. The debug_stage
// query parameter returns an intermediate artifact instead of the final image.
func (a *App) ApplyFilter(w http.ResponseWriter, r *http.Request) {
	pipeline, err := a.Filters.Get(chi.URLParam(r, "filter_name"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	data, err := a.filterUpload(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.filterSlots.Acquire(r.Context(), 1); err != nil {
		a.fail(w, r, err)
		return
	}
	defer a.filterSlots.Release(1)

	stage, _ := cartoon.ParseStage(r.URL.Query().Get("debug_stage"))
	res, err := pipeline.Apply(r.Context(), data, stage)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("X-Filter-Stage", string(res.Stage))
	if res.FellBack {
		w.Header().Set("X-Filter-Fallback", "true")
	}
	a.bytes(w, res.ContentType, res.Data)
}

// FilterStages returns a zip archive holding every stage artifact.
func (a *App) FilterStages(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filter_name")
	pipeline, err := a.Filters.Get(name)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	data, err := a.filterUpload(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.filterSlots.Acquire(r.Context(), 1); err != nil {
		a.fail(w, r, err)
		return
	}
	defer a.filterSlots.Release(1)

	artifacts, err := pipeline.CollectStages(r.Context(), data)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	assets := make([]zip.Asset, 0, len(artifacts))
	for i, art := range artifacts {
		assets = append(assets, zip.Asset{
			Filename: fmt.Sprintf("%d_%s%s", i, art.Stage, art.Extension),
			MIME:     art.ContentType,
			Data:     art.Data,
		})
	}
	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.fail(w, r, fmt.Errorf("%w: %w", domain.ErrEncode, err))
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-stages.zip", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	a.bytes(w, "application/zip", archive)
}

func (a *App) filterUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if _, err := a.formFields(w, r); err != nil {
		return nil, err
	}
	data, _, err := upload(r, "file", true)
	return data, err
}

// ImagesGenerate forwards an optional source image and a prompt to the image
// backend.
func (a *App) ImagesGenerate(w http.ResponseWriter, r *http.Request) {
	fields, err := a.formFields(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	prompt, err := generation.ValidatePrompt(fields["prompt"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	source, _, err := upload(r, "file", false)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, err := a.Gateway.GenerateImage(r.Context(), source, prompt, middleware.RequestIDFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.bytes(w, http.DetectContentType(out), out)
}
