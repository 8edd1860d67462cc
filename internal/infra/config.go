package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	MaxUploadBytes     int64
	CORSAllowedOrigins []string
	RateLimitPerMin    int
	GeoIPDBPath        string

	ImageBackend     string
	OpenAIAPIKey     string
	OpenAIModel      string
	OpenAIBaseURL    string
	DiffusionBaseURL string

	VideoBackend string
	HFToken      string
	HFBaseURL    string
	HFVideoModel string

	ProviderTimeout    time.Duration
	ProviderMaxRetries int

	KMeansSeed        *uint64
	KMeansMaxSamples  int
	FilterConcurrency int
	// FilterEngine is "go" or "opencv".
	FilterEngine   string
	MaxImagePixels int
	// FilterPolicies maps filter names to failure policy names.
	FilterPolicies map[string]string

	VideoStoreBackend    string
	RedisAddr            string
	VideoStoreTTL        time.Duration
	VideoStoreMaxEntries int

	PaymentRPCURL           string
	PaymentRecipient        string
	PaymentTrustClientClaim bool

	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPAppPassword string
	SMTPFrom        string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_MB", 20)) << 20,
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),

		ImageBackend:     strings.ToLower(getEnv("IMAGE_BACKEND", "openai")),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		DiffusionBaseURL: os.Getenv("DIFFUSION_BASE_URL"),

		VideoBackend: strings.ToLower(getEnv("VIDEO_BACKEND", "huggingface")),
		HFToken:      os.Getenv("HF_TOKEN"),
		HFBaseURL:    getEnv("HF_BASE_URL", "https://router.huggingface.co/hf-inference/models"),
		HFVideoModel: getEnv("HF_VIDEO_MODEL", "Lightricks/LTX-Video-0.9.7-distilled"),

		ProviderTimeout:    time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 180)),
		ProviderMaxRetries: getEnvInt("PROVIDER_MAX_RETRIES", 1),

		KMeansMaxSamples:  getEnvInt("KMEANS_MAX_SAMPLES", 100000),
		FilterConcurrency: getEnvInt("FILTER_CONCURRENCY", 4),
		FilterEngine:      strings.ToLower(getEnv("FILTER_ENGINE", "go")),
		MaxImagePixels:    getEnvInt("MAX_IMAGE_PIXELS", 50_000_000),
		FilterPolicies:    map[string]string{},

		VideoStoreBackend:    strings.ToLower(getEnv("VIDEO_STORE_BACKEND", "memory")),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		VideoStoreTTL:        time.Minute * time.Duration(getEnvInt("VIDEO_STORE_TTL_MINUTES", 60)),
		VideoStoreMaxEntries: getEnvInt("VIDEO_STORE_MAX_ENTRIES", 256),

		PaymentRPCURL:           os.Getenv("PAYMENT_RPC_URL"),
		PaymentRecipient:        os.Getenv("PAYMENT_RECIPIENT"),
		PaymentTrustClientClaim: getEnvBool("PAYMENT_TRUST_CLIENT_CLAIM", false),

		SMTPHost:        getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:        getEnvInt("SMTP_PORT", 587),
		SMTPUsername:    os.Getenv("SMTP_USERNAME"),
		SMTPAppPassword: os.Getenv("SMTP_APP_PASSWORD"),
		SMTPFrom:        os.Getenv("SMTP_FROM"),
	}

	if v := strings.TrimSpace(os.Getenv("KMEANS_SEED")); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("KMEANS_SEED must be an unsigned integer: %w", err)
		}
		cfg.KMeansSeed = &seed
	}
	for env, filter := range map[string]string{"CARTOON_A_ON_FAILURE": "cartoon_a", "CARTOON_B_ON_FAILURE": "cartoon_b"} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			cfg.FilterPolicies[filter] = v
		}
	}

	switch cfg.ImageBackend {
	case "openai":
	case "diffusion", "pix2pix-cpu":
		if cfg.DiffusionBaseURL == "" {
			return nil, fmt.Errorf("DIFFUSION_BASE_URL is required for IMAGE_BACKEND=%s", cfg.ImageBackend)
		}
	default:
		return nil, fmt.Errorf("unsupported IMAGE_BACKEND %q", cfg.ImageBackend)
	}
	if cfg.VideoBackend != "huggingface" && cfg.VideoBackend != "none" {
		return nil, fmt.Errorf("unsupported VIDEO_BACKEND %q", cfg.VideoBackend)
	}
	if cfg.VideoStoreBackend != "memory" && cfg.VideoStoreBackend != "redis" {
		return nil, fmt.Errorf("unsupported VIDEO_STORE_BACKEND %q", cfg.VideoStoreBackend)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if cfg.FilterConcurrency <= 0 {
		return nil, fmt.Errorf("FILTER_CONCURRENCY must be positive")
	}
	if cfg.FilterEngine != "go" && cfg.FilterEngine != "opencv" {
		return nil, fmt.Errorf("unsupported FILTER_ENGINE %q", cfg.FilterEngine)
	}
	if cfg.MaxImagePixels <= 0 {
		return nil, fmt.Errorf("MAX_IMAGE_PIXELS must be positive")
	}

	return cfg, nil
}

// SMTPConfigured reports whether outbound email can be sent.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPUsername != "" && c.SMTPAppPassword != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
