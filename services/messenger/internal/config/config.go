package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the config file location, overridable with MESSENGER_CONFIG.
var ConfigPath = configPathFromEnv()

func configPathFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("MESSENGER_CONFIG")); v != "" {
		return v
	}
	return "config.yaml"
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                     string   `yaml:"port"`
	LogLevel                 string   `yaml:"logLevel"`
	DatabaseURL              string   `yaml:"databaseURL"`
	SlowQueryThreshold       string   `yaml:"slowQueryThreshold"`
	RedisAddr                string   `yaml:"redisAddr"`
	RedisPassword            string   `yaml:"redisPassword"`
	JWTSecret                string   `yaml:"jwtSecret"`
	JWTIssuer                string   `yaml:"jwtIssuer"`
	JWTAudience              string   `yaml:"jwtAudience"`
	JWTLeeway                string   `yaml:"jwtLeeway"`
	SessionTTL               string   `yaml:"sessionTTL"`
	MinioEndpoint            string   `yaml:"minioEndpoint"`
	MinioAccessKey           string   `yaml:"minioAccessKey"`
	MinioSecretKey           string   `yaml:"minioSecretKey"`
	MinioBucket              string   `yaml:"minioBucket"`
	MinioUseSSL              bool     `yaml:"minioUseSSL"`
	PresignExpiry            string   `yaml:"presignExpiry"`
	FileURLPrefix            string   `yaml:"fileURLPrefix"`
	MaxUploadBytes           int64    `yaml:"maxUploadBytes"`
	AllowedUploadTypes       []string `yaml:"allowedUploadTypes"`
	CORSAllowedOrigins       []string `yaml:"corsAllowedOrigins"`
	TrustedProxies           []string `yaml:"trustedProxies"`
	SignupRateLimitPerMinute int      `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute  int      `yaml:"loginRateLimitPerMinute"`
	ShutdownTimeout          string   `yaml:"shutdownTimeout"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		cfg.SessionTTL = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("FILE_URL_PREFIX"); v != "" {
		cfg.FileURLPrefix = v
	}
	if v := os.Getenv("MESSENGER_SIGNUP_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SignupRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("MESSENGER_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if len(cfg.JWTSecret) < 32 {
		return errors.New("config: jwtSecret must be at least 32 bytes (set in config.yaml or JWT_SECRET)")
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "") {
		return errors.New("config: minioAccessKey, minioSecretKey and minioBucket are required with minioEndpoint")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	for name, raw := range map[string]string{
		"slowQueryThreshold": cfg.SlowQueryThreshold,
		"jwtLeeway":          cfg.JWTLeeway,
		"sessionTTL":         cfg.SessionTTL,
		"presignExpiry":      cfg.PresignExpiry,
		"shutdownTimeout":    cfg.ShutdownTimeout,
	} {
		if _, err := parseDuration(name, raw, 0); err != nil {
			return err
		}
	}
	return nil
}

// ParseSessionTTL parses the session TTL, defaulting to 24h.
func ParseSessionTTL(raw string) (time.Duration, error) {
	return parseDuration("sessionTTL", raw, 24*time.Hour)
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(raw string) (time.Duration, error) {
	return parseDuration("jwtLeeway", raw, 0)
}

// ParsePresignExpiry parses the presigned URL lifetime, defaulting to 15m.
func ParsePresignExpiry(raw string) (time.Duration, error) {
	return parseDuration("presignExpiry", raw, 15*time.Minute)
}

// ParseSlowQueryThreshold parses the gorm slow query threshold.
func ParseSlowQueryThreshold(raw string) (time.Duration, error) {
	return parseDuration("slowQueryThreshold", raw, 0)
}

// ParseShutdownTimeout parses the graceful shutdown budget, defaulting to 10s.
func ParseShutdownTimeout(raw string) (time.Duration, error) {
	return parseDuration("shutdownTimeout", raw, 10*time.Second)
}

func parseDuration(name, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must be >= 0", name)
	}
	return dur, nil
}
