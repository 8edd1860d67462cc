package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"toonlab/internal/cartoon"
	"toonlab/internal/generation"
	"toonlab/internal/http/handlers"
	httpapi "toonlab/internal/http/httpapi"
	"toonlab/internal/imaging"
	"toonlab/internal/imaging/opencv"
	"toonlab/internal/infra"
	"toonlab/internal/infra/geoip"
	"toonlab/internal/mailer"
	"toonlab/internal/middleware"
	"toonlab/internal/payment"
	imageprovider "toonlab/internal/providers/image"
	videoprovider "toonlab/internal/providers/video"
	"toonlab/internal/videostore"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	filters, err := buildFilters(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build cartoon filters")
	}

	images, err := buildImageBackend(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure image backend")
	}
	gateway := generation.New(images, buildVideoBackend(cfg, &logger), generation.Options{
		Timeout:    cfg.ProviderTimeout,
		MaxRetries: cfg.ProviderMaxRetries,
		Backoff:    2 * time.Second,
		Logger:     &logger,
	})

	videos, closeStore, err := buildVideoStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open video store")
	}
	defer closeStore()

	payments, err := buildPayments(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure payment verification")
	}

	mail := mailer.New(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPAppPassword,
		From:     cfg.SMTPFrom,
	}, &logger)

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		defer resolver.Close()
		lookup = resolver.CountryCode
	}

	app := handlers.NewApp(cfg, &logger, filters, gateway, videos, payments, mail)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CountryLookup:   lookup,
	})

	server := infra.NewHTTPServer(cfg, router, logger)

	go func() {
		logger.Info().
			Str("image_backend", cfg.ImageBackend).
			Str("video_backend", cfg.VideoBackend).
			Str("video_store", cfg.VideoStoreBackend).
			Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func buildFilters(cfg *infra.Config, logger *infra.Logger) (*cartoon.Registry, error) {
	kmeans := imaging.DefaultKMeansOptions
	kmeans.Seed = cfg.KMeansSeed
	kmeans.MaxSamples = cfg.KMeansMaxSamples

	policies := make(map[string]cartoon.FailurePolicy, len(cfg.FilterPolicies))
	for name, raw := range cfg.FilterPolicies {
		policy, ok := cartoon.ParseFailurePolicy(raw)
		if !ok {
			return nil, fmt.Errorf("unknown failure policy %q for %s", raw, name)
		}
		policies[name] = policy
	}
	opts := cartoon.Options{KMeans: kmeans, Logger: logger, Policies: policies, MaxPixels: cfg.MaxImagePixels}
	if cfg.FilterEngine == "opencv" {
		engine, err := opencv.New()
		if err != nil {
			return nil, err
		}
		opts.Engine = engine
		logger.Info().Msg("cartoon filters running on OpenCV")
	}
	return cartoon.DefaultRegistry(opts)
}

func buildImageBackend(cfg *infra.Config, logger *infra.Logger) (imageprovider.Generator, error) {
	switch cfg.ImageBackend {
	case "diffusion", "pix2pix-cpu":
		preset := imageprovider.GPUPreset
		if cfg.ImageBackend == "pix2pix-cpu" {
			preset = imageprovider.CPUPix2PixPreset
		}
		return imageprovider.NewDiffusionGenerator(imageprovider.DiffusionOptions{
			BaseURL:        cfg.DiffusionBaseURL,
			Preset:         preset,
			Logger:         logger,
			RequestTimeout: cfg.ProviderTimeout,
		})
	default:
		if cfg.OpenAIAPIKey == "" {
			logger.Warn().Msg("OPENAI_API_KEY not set; image generation will fail")
		}
		return imageprovider.NewOpenAIGenerator(imageprovider.OpenAIOptions{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			Model:          cfg.OpenAIModel,
			Logger:         logger,
			RequestTimeout: cfg.ProviderTimeout,
		}), nil
	}
}

func buildVideoBackend(cfg *infra.Config, logger *infra.Logger) videoprovider.Generator {
	if cfg.VideoBackend == "none" {
		return nil
	}
	if cfg.HFToken == "" {
		logger.Warn().Msg("HF_TOKEN not set; video generation will fail")
	}
	return videoprovider.NewHuggingFaceGenerator(videoprovider.HuggingFaceOptions{
		Token:          cfg.HFToken,
		BaseURL:        cfg.HFBaseURL,
		Model:          cfg.HFVideoModel,
		Logger:         logger,
		RequestTimeout: cfg.ProviderTimeout,
	})
}

func buildVideoStore(cfg *infra.Config) (videostore.Store, func(), error) {
	if cfg.VideoStoreBackend != "redis" {
		return videostore.NewMemoryStore(cfg.VideoStoreTTL, cfg.VideoStoreMaxEntries), func() {}, nil
	}
	store := videostore.NewRedisStore(cfg.RedisAddr, cfg.VideoStoreTTL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}
	return store, func() { _ = store.Close() }, nil
}

func buildPayments(cfg *infra.Config, logger *infra.Logger) (payment.Verifier, error) {
	switch {
	case cfg.PaymentTrustClientClaim:
		logger.Warn().Msg("PAYMENT_TRUST_CLIENT_CLAIM enabled; downloads unlock on the client's word")
		return payment.NewClaimVerifier(logger), nil
	case cfg.PaymentRPCURL != "":
		return payment.NewRPCVerifier(payment.RPCOptions{
			URL:       cfg.PaymentRPCURL,
			Recipient: cfg.PaymentRecipient,
			Logger:    logger,
		})
	default:
		return nil, nil
	}
}
