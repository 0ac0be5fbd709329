package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"messenger/pkg/storage"
	"messenger/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL        string
	SlowQueryThreshold time.Duration
	Redis              *redis.Client
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	JWTLeeway          time.Duration
	SessionTTL         time.Duration
	MinioEndpoint      string
	MinioAccessKey     string
	MinioSecretKey     string
	MinioBucket        string
	MinioUseSSL        bool
	PresignExpiry      time.Duration
	FileURLPrefix      string
	MaxUploadBytes     int64
	AllowedUploadTypes []string

	Store    store.Store
	Sessions store.SessionStore
	Objects  storage.ObjectStore
	Now      func() time.Time
}

// App is the core application service wiring together storage, sessions and chat logic.
type App struct {
	store         store.Store
	sessions      store.SessionStore
	uploads       *storage.Uploads
	presignExpiry time.Duration
	now           func() time.Time
}

// New constructs the application. Collaborators left nil in cfg are built
// from the connection settings; without a database URL the in-memory store is used.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.PresignExpiry == 0 {
		cfg.PresignExpiry = 15 * time.Minute
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			slog.Warn("databaseURL not set, using in-memory store")
			dataStore = store.NewMemoryStore()
		} else {
			gormStore, err := store.NewGormStore(cfg.DatabaseURL, store.WithSlowThreshold(cfg.SlowQueryThreshold))
			if err != nil {
				return nil, fmt.Errorf("init postgres store: %w", err)
			}
			dataStore = gormStore
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		var revoker store.TokenRevoker
		if cfg.Redis != nil {
			revoker = store.NewRedisTokenRevoker(cfg.Redis)
		} else {
			slog.Warn("redis not configured, token revocation is process local")
			revoker = store.NewMemoryTokenRevoker()
		}
		jwtStore, err := store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL, revoker, store.JWTOptions{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Leeway:   cfg.JWTLeeway,
		})
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
		sessionStore = jwtStore
	}

	objects := cfg.Objects
	if objects == nil {
		if strings.TrimSpace(cfg.MinioEndpoint) == "" {
			slog.Warn("minioEndpoint not set, uploads are kept in memory")
			objects = storage.NewMemoryStore()
		} else {
			minioStore, err := storage.NewMinioStore(context.Background(), storage.MinioConfig{
				Endpoint:  cfg.MinioEndpoint,
				AccessKey: cfg.MinioAccessKey,
				SecretKey: cfg.MinioSecretKey,
				Bucket:    cfg.MinioBucket,
				UseSSL:    cfg.MinioUseSSL,
			})
			if err != nil {
				return nil, fmt.Errorf("init object store: %w", err)
			}
			objects = minioStore
		}
	}

	return &App{
		store:         dataStore,
		sessions:      sessionStore,
		uploads:       storage.NewUploads(objects, cfg.MaxUploadBytes, cfg.AllowedUploadTypes, cfg.FileURLPrefix),
		presignExpiry: cfg.PresignExpiry,
		now:           cfg.Now,
	}, nil
}

// Close releases the data store when it holds external resources.
func (a *App) Close() error {
	if closer, ok := a.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Ready reports whether the backing store answers.
func (a *App) Ready(ctx context.Context) error {
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if p, ok := a.store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return storageErr("ping database", err)
		}
	}
	return nil
}

// timestamp returns the current time at the precision the database keeps.
func (a *App) timestamp() time.Time {
	return a.now().UTC().Truncate(time.Microsecond)
}
