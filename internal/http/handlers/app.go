package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"toonlab/internal/cartoon"
	"toonlab/internal/generation"
	"toonlab/internal/infra"
	"toonlab/internal/mailer"
	"toonlab/internal/payment"
	"toonlab/internal/videostore"
)

// Mailer is the subset of mailer.Mailer used by the email handler.
type Mailer interface {
	Configured() bool
	Send(ctx context.Context, msg mailer.Message) error
}

// App carries the dependencies shared by every handler.
type App struct {
	Config   *infra.Config
	Logger   *infra.Logger
	Filters  *cartoon.Registry
	Gateway  *generation.Gateway
	Videos   videostore.Store
	Payments payment.Verifier
	Mailer   Mailer

	filterSlots *semaphore.Weighted
}

// NewApp wires the handler dependencies. Filter requests share
// cfg.FilterConcurrency slots.
func NewApp(cfg *infra.Config, logger *infra.Logger, filters *cartoon.Registry, gateway *generation.Gateway, videos videostore.Store, payments payment.Verifier, mail Mailer) *App {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	slots := int64(cfg.FilterConcurrency)
	if slots <= 0 {
		slots = 1
	}
	return &App{
		Config:      cfg,
		Logger:      logger,
		Filters:     filters,
		Gateway:     gateway,
		Videos:      videos,
		Payments:    payments,
		Mailer:      mail,
		filterSlots: semaphore.NewWeighted(slots),
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, errorResponse{Error: errCode, Message: msg})
}

func (a *App) bytes(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
