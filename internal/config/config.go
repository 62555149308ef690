// Package config loads the evaluation service configuration. It uses koanf
// to read an optional YAML file; environment variables take precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds every setting of the API server.
type Config struct {
	// Server
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Content store. Empty DatabaseURL selects the in-memory store, which
	// is only allowed outside production.
	DatabaseURL string `koanf:"database_url"`

	// Redis backs the trending cache and the rate limiter when set.
	RedisURL string `koanf:"redis_url"`

	// Ranking calibration. A bucket takes precedence over the local path.
	CalibrationPath      string `koanf:"calibration_path"`
	LexiconPath          string `koanf:"lexicon_path"`
	CalibrationBucket    string `koanf:"calibration_bucket"`
	CalibrationKey       string `koanf:"calibration_key"`
	CalibrationEndpoint  string `koanf:"calibration_endpoint"`
	CalibrationAccessKey string `koanf:"calibration_access_key"`
	CalibrationSecretKey string `koanf:"calibration_secret_key"`

	// Enrichment service
	EnrichmentURL     string        `koanf:"enrichment_url"`
	EnrichmentAPIKey  string        `koanf:"enrichment_api_key"`
	EnrichmentTimeout time.Duration `koanf:"enrichment_timeout"`

	// Bearer tokens are optional; without a secret requests are anonymous.
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`
	JWTIssuer         string `koanf:"jwt_issuer"`

	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	TrendingCacheTTL     time.Duration `koanf:"trending_cache_ttl"`
	TrendingWarmInterval time.Duration `koanf:"trending_warm_interval"`
	StreamInterval       time.Duration `koanf:"stream_interval"`

	AnalyticsEnabled       bool          `koanf:"analytics_enabled"`
	AnalyticsFlushInterval time.Duration `koanf:"analytics_flush_interval"`

	TracingEnabled      bool    `koanf:"tracing_enabled"`
	TracingExporter     string  `koanf:"tracing_exporter"`
	TracingEndpoint     string  `koanf:"tracing_endpoint"`
	TracingSamplingRate float64 `koanf:"tracing_sampling_rate"`
	TracingInsecure     bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrInvalidPort               = errors.New("PORT must be a valid integer between 1 and 65535")
	ErrInvalidEnv                = errors.New("ENV must be development, staging or production")
	ErrMissingDatabaseURL        = errors.New("DATABASE_URL is required in production")
	ErrInvalidDatabaseURL        = errors.New("DATABASE_URL must be a postgres:// or postgresql:// URL")
	ErrInvalidRedisURL           = errors.New("REDIS_URL must be a redis:// or rediss:// URL")
	ErrIncompleteCalibrationS3   = errors.New("CALIBRATION_BUCKET requires CALIBRATION_KEY, CALIBRATION_ENDPOINT, CALIBRATION_ACCESS_KEY and CALIBRATION_SECRET_KEY")
	ErrInvalidEnrichmentURL      = errors.New("ENRICHMENT_URL must be an http(s) URL")
	ErrShortJWTSecret            = errors.New("JWT_SECRET must be at least 32 characters")
	ErrJWTPreviousWithoutCurrent = errors.New("JWT_PREVIOUS_SECRET requires JWT_SECRET")
	ErrInvalidDuration           = errors.New("value must be a positive duration")
	ErrInvalidSamplingRate       = errors.New("TRACING_SAMPLING_RATE must be between 0 and 1")
	ErrInvalidBool               = errors.New("value must be a boolean")
)

// Defaults for non-secret settings.
const (
	DefaultPort                   = 8080
	DefaultEnv                    = "development"
	DefaultCalibrationPath        = "configs/ranking.calibration.json"
	DefaultLexiconPath            = "configs/lexicon.yaml"
	DefaultCalibrationKey         = "ranking.calibration.json"
	DefaultEnrichmentTimeout      = 5 * time.Second
	DefaultTrendingCacheTTL       = 60 * time.Second
	DefaultTrendingWarmInterval   = 45 * time.Second
	DefaultStreamInterval         = 10 * time.Second
	DefaultAnalyticsFlushInterval = 5 * time.Second
	DefaultTracingExporter        = "otlp-http"
	DefaultTracingSamplingRate    = 0.1

	minJWTSecretLength = 32
)

// Load reads configuration from an optional YAML file and the environment.
// It returns the config and every problem found; a config file that cannot
// be read is the only error that yields a nil config.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	l := loader{k: k}
	cfg := &Config{
		Port:        l.getInt([]string{"CONTENTRANK_PORT", "PORT"}, "port", DefaultPort),
		Env:         l.getString([]string{"CONTENTRANK_ENV", "ENV", "GO_ENV"}, "env", DefaultEnv),
		DatabaseURL: l.getString([]string{"DATABASE_URL"}, "database_url", ""),
		RedisURL:    l.getString([]string{"REDIS_URL"}, "redis_url", ""),

		CalibrationPath:      l.getString([]string{"CALIBRATION_PATH"}, "calibration_path", DefaultCalibrationPath),
		LexiconPath:          l.getString([]string{"LEXICON_PATH"}, "lexicon_path", DefaultLexiconPath),
		CalibrationBucket:    l.getString([]string{"CALIBRATION_BUCKET"}, "calibration_bucket", ""),
		CalibrationKey:       l.getString([]string{"CALIBRATION_KEY"}, "calibration_key", DefaultCalibrationKey),
		CalibrationEndpoint:  l.getString([]string{"CALIBRATION_ENDPOINT"}, "calibration_endpoint", ""),
		CalibrationAccessKey: l.getString([]string{"CALIBRATION_ACCESS_KEY"}, "calibration_access_key", ""),
		CalibrationSecretKey: l.getString([]string{"CALIBRATION_SECRET_KEY"}, "calibration_secret_key", ""),

		EnrichmentURL:     l.getString([]string{"ENRICHMENT_URL"}, "enrichment_url", ""),
		EnrichmentAPIKey:  l.getString([]string{"ENRICHMENT_API_KEY"}, "enrichment_api_key", ""),
		EnrichmentTimeout: l.getDuration("ENRICHMENT_TIMEOUT", "enrichment_timeout", DefaultEnrichmentTimeout),

		JWTSecret:         l.getString([]string{"JWT_SECRET"}, "jwt_secret", ""),
		JWTPreviousSecret: l.getString([]string{"JWT_PREVIOUS_SECRET"}, "jwt_previous_secret", ""),
		JWTIssuer:         l.getString([]string{"JWT_ISSUER"}, "jwt_issuer", ""),

		CORSAllowedOrigins: l.getList("CORS_ALLOWED_ORIGINS", "cors_allowed_origins"),

		TrendingCacheTTL:     l.getDuration("TRENDING_CACHE_TTL", "trending_cache_ttl", DefaultTrendingCacheTTL),
		TrendingWarmInterval: l.getDuration("TRENDING_WARM_INTERVAL", "trending_warm_interval", DefaultTrendingWarmInterval),
		StreamInterval:       l.getDuration("STREAM_INTERVAL", "stream_interval", DefaultStreamInterval),

		AnalyticsEnabled:       l.getBool("ANALYTICS_ENABLED", "analytics_enabled", true),
		AnalyticsFlushInterval: l.getDuration("ANALYTICS_FLUSH_INTERVAL", "analytics_flush_interval", DefaultAnalyticsFlushInterval),

		TracingEnabled:      l.getBool("TRACING_ENABLED", "tracing_enabled", false),
		TracingExporter:     l.getString([]string{"TRACING_EXPORTER"}, "tracing_exporter", DefaultTracingExporter),
		TracingEndpoint:     l.getString([]string{"OTEL_EXPORTER_OTLP_ENDPOINT", "TRACING_ENDPOINT"}, "tracing_endpoint", ""),
		TracingSamplingRate: l.getFloat("TRACING_SAMPLING_RATE", "tracing_sampling_rate", DefaultTracingSamplingRate),
		TracingInsecure:     l.getBool("TRACING_INSECURE", "tracing_insecure", false),
	}

	return cfg, append(l.errs, cfg.Validate()...)
}

// loader resolves one setting from the environment, then the file, then a
// default, collecting parse errors.
type loader struct {
	k    *koanf.Koanf
	errs []error
}

func (l *loader) env(keys []string) (string, string, bool) {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return key, val, true
		}
	}
	return "", "", false
}

func (l *loader) getString(envKeys []string, path, def string) string {
	if _, val, ok := l.env(envKeys); ok {
		return val
	}
	if v := l.k.String(path); v != "" {
		return v
	}
	return def
}

func (l *loader) getInt(envKeys []string, path string, def int) int {
	if key, val, ok := l.env(envKeys); ok {
		i, err := strconv.Atoi(val)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s=%q: %w", key, val, ErrInvalidPort))
			return def
		}
		return i
	}
	if l.k.Exists(path) {
		return l.k.Int(path)
	}
	return def
}

func (l *loader) getFloat(envKey, path string, def float64) float64 {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s must be a number: %w", envKey, err))
			return def
		}
		return f
	}
	if l.k.Exists(path) {
		return l.k.Float64(path)
	}
	return def
}

func (l *loader) getBool(envKey, path string, def bool) bool {
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
		l.errs = append(l.errs, fmt.Errorf("%s=%q: %w", envKey, val, ErrInvalidBool))
		return def
	}
	if l.k.Exists(path) {
		return l.k.Bool(path)
	}
	return def
}

// getDuration accepts Go duration strings in both sources.
func (l *loader) getDuration(envKey, path string, def time.Duration) time.Duration {
	raw, source := os.Getenv(envKey), envKey
	if raw == "" {
		raw, source = l.k.String(path), path
	}
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		l.errs = append(l.errs, fmt.Errorf("%s=%q: %w", source, raw, ErrInvalidDuration))
		return def
	}
	return d
}

// getList reads a comma-separated env var or a YAML list.
func (l *loader) getList(envKey, path string) []string {
	if val := os.Getenv(envKey); val != "" {
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return l.k.Strings(path)
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks the loaded values and returns every problem found.
func (c *Config) Validate() []error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	switch c.Env {
	case "development", "staging", "production":
	default:
		errs = append(errs, fmt.Errorf("%w, got %q", ErrInvalidEnv, c.Env))
	}

	if c.DatabaseURL == "" {
		if c.IsProduction() {
			errs = append(errs, ErrMissingDatabaseURL)
		}
	} else if !hasScheme(c.DatabaseURL, "postgres", "postgresql") {
		errs = append(errs, ErrInvalidDatabaseURL)
	}
	if c.RedisURL != "" && !hasScheme(c.RedisURL, "redis", "rediss") {
		errs = append(errs, ErrInvalidRedisURL)
	}

	if c.CalibrationBucket != "" &&
		(c.CalibrationKey == "" || c.CalibrationEndpoint == "" || c.CalibrationAccessKey == "" || c.CalibrationSecretKey == "") {
		errs = append(errs, ErrIncompleteCalibrationS3)
	}
	if c.EnrichmentURL != "" && !hasScheme(c.EnrichmentURL, "http", "https") {
		errs = append(errs, ErrInvalidEnrichmentURL)
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < minJWTSecretLength {
		errs = append(errs, ErrShortJWTSecret)
	}
	if c.JWTPreviousSecret != "" && c.JWTSecret == "" {
		errs = append(errs, ErrJWTPreviousWithoutCurrent)
	}

	for name, d := range map[string]time.Duration{
		"ENRICHMENT_TIMEOUT":       c.EnrichmentTimeout,
		"TRENDING_CACHE_TTL":       c.TrendingCacheTTL,
		"TRENDING_WARM_INTERVAL":   c.TrendingWarmInterval,
		"STREAM_INTERVAL":          c.StreamInterval,
		"ANALYTICS_FLUSH_INTERVAL": c.AnalyticsFlushInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: %w", name, ErrInvalidDuration))
		}
	}
	if c.TracingSamplingRate < 0 || c.TracingSamplingRate > 1 {
		errs = append(errs, ErrInvalidSamplingRate)
	}

	return errs
}

func hasScheme(raw string, schemes ...string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return true
		}
	}
	return false
}

// LogSummary returns the configuration with secrets masked, for the
// startup log line.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                   strconv.Itoa(c.Port),
		"env":                    c.Env,
		"database_url":           maskURL(c.DatabaseURL),
		"redis_url":              maskURL(c.RedisURL),
		"calibration_path":       c.CalibrationPath,
		"lexicon_path":           c.LexiconPath,
		"calibration_bucket":     c.CalibrationBucket,
		"calibration_key":        c.CalibrationKey,
		"calibration_endpoint":   c.CalibrationEndpoint,
		"calibration_access_key": maskSecret(c.CalibrationAccessKey),
		"calibration_secret_key": maskSecret(c.CalibrationSecretKey),
		"enrichment_url":         c.EnrichmentURL,
		"enrichment_api_key":     maskSecret(c.EnrichmentAPIKey),
		"enrichment_timeout":     c.EnrichmentTimeout.String(),
		"jwt_secret":             maskSecret(c.JWTSecret),
		"jwt_previous_secret":    maskSecret(c.JWTPreviousSecret),
		"jwt_issuer":             c.JWTIssuer,
		"cors_allowed_origins":   strings.Join(c.CORSAllowedOrigins, ","),
		"trending_cache_ttl":     c.TrendingCacheTTL.String(),
		"trending_warm_interval": c.TrendingWarmInterval.String(),
		"stream_interval":        c.StreamInterval.String(),
		"analytics_enabled":      strconv.FormatBool(c.AnalyticsEnabled),
		"tracing_enabled":        strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":       c.TracingExporter,
		"tracing_endpoint":       c.TracingEndpoint,
		"tracing_sampling_rate":  strconv.FormatFloat(c.TracingSamplingRate, 'g', -1, 64),
	}
}

// maskSecret shows the first 4 characters of secrets of 8 or more
// characters and hides shorter ones entirely.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskURL hides the password of a connection URL.
func maskURL(s string) string {
	if s == "" {
		return "<not set>"
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return maskSecret(s)
	}
	return strings.Replace(u.Redacted(), ":xxxxx@", ":****@", 1)
}
