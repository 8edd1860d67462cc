package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"toonlab/internal/http/handlers"
	"toonlab/internal/infra"
	"toonlab/internal/middleware"
)

// Options configures the cross-cutting middleware.
type Options struct {
	Logger          infra.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
	CountryLookup   middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Country(opts.CountryLookup),
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
	)

	// Health
	r.Get("/v1/healthz", app.Health)

	limited := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)

	r.Route("/image", func(r chi.Router) {
		r.With(limited).Post("/generate", app.ImagesGenerate)
		r.Post("/{filter_name}", app.ApplyFilter)
		r.Post("/{filter_name}/stages", app.FilterStages)
	})

	r.Route("/video", func(r chi.Router) {
		r.With(limited).Post("/generate", app.VideoGenerate)
		r.Get("/status", app.VideoStatus)
		r.Get("/health", app.VideoHealth)
		r.Post("/verify-zora-payment", app.VerifyPayment)
		r.Post("/download", app.VideoDownload)
		r.With(limited).Post("/send-email", app.SendEmail)
	})

	return r
}
