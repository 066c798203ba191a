package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/MosinFAM/blog-posts/internal/auth"
	"github.com/MosinFAM/blog-posts/internal/categories"
	"github.com/MosinFAM/blog-posts/internal/config"
	"github.com/MosinFAM/blog-posts/internal/db"
	"github.com/MosinFAM/blog-posts/internal/logger"
	"github.com/MosinFAM/blog-posts/internal/media"
	"github.com/MosinFAM/blog-posts/internal/storage"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const categoriesCacheKey = "blog:categories"

// app - общие зависимости команд
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	store   storage.Storage
	redis   *redis.Client
	closers []func() error
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Logger, os.Stderr)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("failed to close resource")
		}
	}
}

// openPostgres подключается к PostgreSQL из конфигурации
func (a *app) openPostgres(ctx context.Context) (*sql.DB, error) {
	if a.cfg.Storage.PostgresDSN == "" {
		return nil, errors.New("storage.postgres_dsn is not set")
	}
	return db.Connect(ctx, a.cfg.Storage.PostgresDSN, a.log)
}

// openStorage открывает бэкенд документов. Для postgres перед стартом применяются миграции.
func (a *app) openStorage(ctx context.Context) error {
	st := a.cfg.Storage
	switch st.Backend {
	case "postgres":
		conn, err := a.openPostgres(ctx)
		if err != nil {
			return err
		}
		if err := storage.Migrate(conn, st.MigrationsDir); err != nil {
			conn.Close()
			return err
		}
		a.store = storage.NewPostgresStorage(conn, st.PostgresDSN, a.log)
	case "mongo":
		client, err := db.ConnectMongo(ctx, st.MongoURI, a.log)
		if err != nil {
			return err
		}
		a.store = storage.NewMongoStorage(ctx, client, st.MongoDatabase, a.log)
	default:
		a.store = storage.NewMemoryStorage(a.log)
		a.log.Warn("using in-memory storage, data is lost on restart")
	}
	a.closers = append(a.closers, a.store.Close)
	a.log.WithField("backend", st.Backend).Info("storage ready")
	return nil
}

// categoryDirectory - справочник категорий, с кэшем в Redis если он настроен
func (a *app) categoryDirectory(ctx context.Context) *categories.Directory {
	rc := a.cfg.Redis
	ttl := a.cfg.Categories.TTL
	if rc.Addr == "" {
		return categories.NewDirectory(a.store, nil, a.log).WithTTL(ttl)
	}
	client, err := db.ConnectRedis(ctx, rc.Addr, rc.Password, rc.DB, a.log)
	if err != nil {
		a.log.WithError(err).Warn("redis is unavailable, categories are not cached")
		return categories.NewDirectory(a.store, nil, a.log).WithTTL(ttl)
	}
	a.redis = client
	a.closers = append(a.closers, client.Close)
	cache := categories.NewRedisCache(client, categoriesCacheKey, rc.TTL)
	return categories.NewDirectory(a.store, cache, a.log).WithTTL(ttl)
}

// objectStore - хранилище загруженных картинок
func (a *app) objectStore(ctx context.Context) (media.ObjectStore, error) {
	mc := a.cfg.Media
	if mc.Backend != "minio" {
		if err := os.MkdirAll(mc.Root, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create media root: %w", err)
		}
		return media.NewFilesystemStore(mc.Root, mc.BaseURL), nil
	}

	store, err := media.NewMinioStore(mc.Endpoint, mc.AccessKey, mc.SecretKey, mc.Bucket, mc.UseSSL, mc.URLTTL)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	a.log.WithField("bucket", mc.Bucket).Info("minio storage ready")
	return store, nil
}

// authService собирает сервис аутентификации. Без секрета токены живут до перезапуска.
func (a *app) authService() (*auth.Service, error) {
	ac := a.cfg.Auth
	secret := []byte(ac.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate token secret: %w", err)
		}
		a.log.Warn("auth.secret is not set, using a random one")
	}

	svc := auth.NewService(a.store, auth.Config{Secret: secret, TokenTTL: ac.TokenTTL}, a.log)
	if a.cfg.GoogleEnabled() {
		auth.NewGoogleProvider(svc, auth.GoogleConfig{
			ClientID:     ac.GoogleClientID,
			ClientSecret: ac.GoogleClientSecret,
			RedirectURL:  ac.GoogleRedirectURL,
		})
		a.log.Info("google sign-in enabled")
	}
	return svc, nil
}
