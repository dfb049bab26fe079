package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the studio and its external collaborators.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string
	SiteURL        string
	LogLevel       string
	MySQLDSN       string
	StatePath      string

	GeminiAPIKey      string
	GeminiBaseURL     string
	ImageModel        string
	VideoModel        string
	VideoResolution   string
	RequestTimeout    time.Duration
	RequestsPerMinute int
	PollInterval      time.Duration
	PollMaxInterval   time.Duration
	PollMaxAttempts   int
	RefundOnFailure   bool

	JWTSecret          string
	SessionTTL         time.Duration
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	AdminEmailSuffix string
	AdminEmails      []string
	SignupCredits    int
	CheckoutDelay    time.Duration

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string

	TelegramBotToken string
	TelegramChatID   int64
}

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:        getEnv("STUDIO_LISTEN_ADDR", ":8080"),
		AllowedOrigins:    getList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		SiteURL:           strings.TrimRight(getEnv("SITE_URL", "http://localhost:5173"), "/"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		StatePath:         getEnv("STUDIO_STATE_PATH", filepath.Join("data", "studio.db")),
		GeminiBaseURL:     normalizeBaseURL(getEnv("GEMINI_BASE_URL", defaultGeminiBaseURL), defaultGeminiBaseURL),
		ImageModel:        getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		VideoModel:        getEnv("GEMINI_VIDEO_MODEL", "veo-3.1-fast-generate-preview"),
		VideoResolution:   getEnv("GEMINI_VIDEO_RESOLUTION", "720p"),
		RequestTimeout:    time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 120)),
		RequestsPerMinute: getInt("GEMINI_REQUESTS_PER_MINUTE", 30),
		PollInterval:      getDuration("VIDEO_POLL_INTERVAL", 8*time.Second),
		PollMaxInterval:   getDuration("VIDEO_POLL_MAX_INTERVAL", time.Minute),
		PollMaxAttempts:   getInt("VIDEO_POLL_MAX_ATTEMPTS", 90),
		RefundOnFailure:   getBool("REFUND_ON_FAILURE", false),
		SessionTTL:        getDuration("SESSION_TTL", time.Hour),
		GoogleRedirectURL: getEnv("GOOGLE_REDIRECT_URL", ""),
		AdminEmailSuffix:  getEnv("ADMIN_EMAIL_SUFFIX", "@hydra.ai"),
		AdminEmails:       getList("ADMIN_EMAILS", []string{"admin@hydra.ai", "nathan@onemoreshot.ai"}),
		SignupCredits:     getInt("SIGNUP_CREDITS", 5),
		CheckoutDelay:     getDuration("CHECKOUT_DELAY", 2500*time.Millisecond),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          os.Getenv("S3_REGION"),
		S3AccessKey:       os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("S3_SECRET_KEY"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:    getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:          getEnv("S3_PREFIX", "generations"),
		TelegramChatID:    getInt64("TELEGRAM_NOTIFY_CHAT_ID", 0),
	}

	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")

	if cfg.GoogleRedirectURL == "" {
		cfg.GoogleRedirectURL = cfg.SiteURL + "/auth/callback"
	}

	if missing := cfg.missing(); len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

func (c Config) missing() []string {
	var missing []string
	if c.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if c.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.GoogleClientID != "" && c.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if c.S3Enabled() {
		if c.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if c.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if c.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if c.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		missing = append(missing, "TELEGRAM_NOTIFY_CHAT_ID")
	}
	return missing
}

// S3Enabled reports whether video artifacts go to a bucket instead of the in-process blob store.
func (c Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// GoogleEnabled reports whether third-party sign-in is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != ""
}

// normalizeBaseURL keeps a scheme and host on the API base even when the env value omits them.
func normalizeBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}

	return strings.TrimRight(parsed.String(), "/")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// loadEnvFile overlays the first .env file found. An explicit CONFIG_ENV_PATH must exist;
// the conventional locations are optional.
func loadEnvFile() error {
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		if err := godotenv.Overload(custom); err != nil {
			return fmt.Errorf("load env file %s: %w", custom, err)
		}
		return nil
	}

	candidates := []string{
		filepath.Join("configs", ".env"),
		".env",
	}
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
