package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"toonlab/internal/domain"
	"toonlab/internal/generation"
	"toonlab/internal/middleware"
	"toonlab/internal/payment"
	videoprovider "toonlab/internal/providers/video"
	"toonlab/internal/videostore"
)

const (
	maxNumFrames         = 257
	maxNumInferenceSteps = 50
)

// VideoGenerate turns a prompt into an mp4. The video is also kept unpaid in
// the video store under the id returned in X-Video-ID.
func (a *App) VideoGenerate(w http.ResponseWriter, r *http.Request) {
	fields, err := a.formFields(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	req, err := videoRequestFromFields(fields)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	req.RequestID = middleware.RequestIDFromContext(r.Context())

	video, err := a.Gateway.GenerateVideo(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	if a.Videos != nil {
		rec := videostore.Record{
			ID:        uuid.NewString(),
			Video:     video,
			Prompt:    req.Prompt,
			CreatedAt: time.Now().UTC(),
		}
		if err := a.Videos.Put(r.Context(), rec); err != nil {
			a.Logger.Warn().Err(err).Str("request_id", req.RequestID).Msg("video: could not store generated video")
		} else {
			w.Header().Set("X-Video-ID", rec.ID)
		}
	}
	w.Header().Set("Content-Disposition", "inline; filename=video.mp4")
	a.bytes(w, "video/mp4", video)
}

func videoRequestFromFields(fields map[string]string) (generation.VideoRequest, error) {
	prompt, err := generation.ValidatePrompt(fields["prompt"])
	if err != nil {
		return generation.VideoRequest{}, err
	}
	frames, err := intField(fields, "num_frames", videoprovider.DefaultNumFrames, 1, maxNumFrames)
	if err != nil {
		return generation.VideoRequest{}, err
	}
	steps, err := intField(fields, "num_inference_steps", videoprovider.DefaultNumInferenceSteps, 1, maxNumInferenceSteps)
	if err != nil {
		return generation.VideoRequest{}, err
	}
	req := generation.VideoRequest{Prompt: prompt, NumFrames: frames, NumInferenceSteps: steps}
	if v := strings.TrimSpace(fields["seed"]); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return generation.VideoRequest{}, fmt.Errorf("%w: seed must be an integer", domain.ErrValidation)
		}
		req.Seed = &seed
	}
	return req, nil
}

// VideoStatus reports the configured backends and optional features.
func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	status := a.Gateway.Status()
	a.json(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"video":    status.Video,
		"image":    status.Image,
		"payments": a.paymentMode(),
		"email":    a.Mailer != nil && a.Mailer.Configured(),
	})
}

// VideoHealth reports whether video generation can currently be served.
func (a *App) VideoHealth(w http.ResponseWriter, r *http.Request) {
	video := a.Gateway.Status().Video
	if video == nil || !video.HasCredentials {
		a.json(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "has_token": false})
		return
	}
	a.json(w, http.StatusOK, map[string]any{"status": "healthy", "has_token": true, "model": video.Model})
}

// VerifyPayment checks a transaction for a stored video and marks it paid.
func (a *App) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	if a.Payments == nil || a.Videos == nil {
		a.fail(w, r, fmt.Errorf("%w: payments are not configured", domain.ErrUnavailable))
		return
	}
	fields, err := a.formFields(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	rec, err := a.lookupVideo(r, fields)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	hash, err := payment.ValidateTransactionHash(fields["transaction_hash"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if rec.Paid && strings.EqualFold(rec.TransactionHash, hash) {
		a.json(w, http.StatusOK, map[string]any{"video_id": rec.ID, "paid": true, "transaction_hash": rec.TransactionHash})
		return
	}
	claim := payment.Claim{VideoID: rec.ID, TransactionHash: hash, ClientVerified: boolField(fields, "payment_verified")}
	if err := a.Payments.Verify(r.Context(), claim); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Videos.ClaimTransaction(r.Context(), hash, rec.ID); err != nil {
		a.fail(w, r, err)
		return
	}
	rec.Paid = true
	rec.TransactionHash = hash
	if err := a.Videos.Put(r.Context(), rec); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"video_id": rec.ID, "paid": true, "transaction_hash": hash})
}

// VideoDownload returns a stored video once its payment has been verified.
func (a *App) VideoDownload(w http.ResponseWriter, r *http.Request) {
	if a.Videos == nil {
		a.fail(w, r, fmt.Errorf("%w: video store is not configured", domain.ErrUnavailable))
		return
	}
	fields, err := a.formFields(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	rec, err := a.lookupVideo(r, fields)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !rec.Paid {
		a.fail(w, r, fmt.Errorf("%w: video %s has not been paid for", domain.ErrPaymentRequired, rec.ID))
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=video-%s.mp4", rec.ID))
	a.bytes(w, "video/mp4", rec.Video)
}

func (a *App) lookupVideo(r *http.Request, fields map[string]string) (videostore.Record, error) {
	id := strings.TrimSpace(fields["video_id"])
	if _, err := uuid.Parse(id); err != nil {
		return videostore.Record{}, fmt.Errorf("%w: video_id must be a uuid", domain.ErrValidation)
	}
	return a.Videos.Get(r.Context(), id)
}

func (a *App) paymentMode() string {
	switch a.Payments.(type) {
	case nil:
		return "disabled"
	case *payment.ClaimVerifier:
		return "client_claim"
	default:
		return "receipt"
	}
}
