// Package config - конфигурация сервиса: значения по умолчанию, YAML-файл,
// переменные окружения с префиксом BLOG_ и .env.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "BLOG"

type Config struct {
	Server     *Server
	Storage    *Storage
	Redis      *Redis
	Categories *Categories
	Media      *Media
	Auth       *Auth
	Logger     *Logger
	Viper      *viper.Viper
}

type Server struct {
	Addr           string
	AllowedOrigins []string
	RateLimit      float64
	RateBurst      int
	SecureCookies  bool
	TrustedProxies []string
}

// Storage - бэкенд документов: memory, postgres или mongo
type Storage struct {
	Backend       string
	PostgresDSN   string
	MongoURI      string
	MongoDatabase string
	MigrationsDir string
}

// Redis - кэш справочника категорий; пустой Addr отключает кэш
type Redis struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Categories - время жизни списка категорий в памяти процесса
type Categories struct {
	TTL time.Duration
}

// Media - хранилище картинок: fs или minio
type Media struct {
	Backend        string
	Root           string
	BaseURL        string
	MaxUploadBytes int64
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
	URLTTL         time.Duration
}

type Auth struct {
	Secret             string
	TokenTTL           time.Duration
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
}

type Logger struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("server.secure_cookies", false)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.mongo_database", "blog")
	v.SetDefault("storage.migrations_dir", "migrations")

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 10*time.Minute)

	v.SetDefault("categories.ttl", 30*time.Second)

	v.SetDefault("media.backend", "fs")
	v.SetDefault("media.root", "uploads")
	v.SetDefault("media.base_url", "/media")
	v.SetDefault("media.max_upload_bytes", 10<<20)
	v.SetDefault("media.bucket", "blog-media")
	v.SetDefault("media.url_ttl", 24*time.Hour)

	v.SetDefault("auth.token_ttl", 7*24*time.Hour)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
}

// Load читает конфигурацию. configPath может быть пустым; .env в рабочем
// каталоге подхватывается, если есть.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Server:  getServerConfig(v),
		Storage: getStorageConfig(v),
		Redis:   getRedisConfig(v),
		Categories: &Categories{
			TTL: v.GetDuration("categories.ttl"),
		},
		Media:  getMediaConfig(v),
		Auth:   getAuthConfig(v),
		Logger: getLoggerConfig(v),
		Viper:  v,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getServerConfig(v *viper.Viper) *Server {
	return &Server{
		Addr:           v.GetString("server.addr"),
		AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		RateLimit:      v.GetFloat64("server.rate_limit"),
		RateBurst:      v.GetInt("server.rate_burst"),
		SecureCookies:  v.GetBool("server.secure_cookies"),
		TrustedProxies: v.GetStringSlice("server.trusted_proxies"),
	}
}

func getStorageConfig(v *viper.Viper) *Storage {
	return &Storage{
		Backend:       strings.ToLower(v.GetString("storage.backend")),
		PostgresDSN:   v.GetString("storage.postgres_dsn"),
		MongoURI:      v.GetString("storage.mongo_uri"),
		MongoDatabase: v.GetString("storage.mongo_database"),
		MigrationsDir: v.GetString("storage.migrations_dir"),
	}
}

func getRedisConfig(v *viper.Viper) *Redis {
	return &Redis{
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
		TTL:      v.GetDuration("redis.ttl"),
	}
}

func getMediaConfig(v *viper.Viper) *Media {
	return &Media{
		Backend:        strings.ToLower(v.GetString("media.backend")),
		Root:           v.GetString("media.root"),
		BaseURL:        v.GetString("media.base_url"),
		MaxUploadBytes: v.GetInt64("media.max_upload_bytes"),
		Endpoint:       v.GetString("media.endpoint"),
		AccessKey:      v.GetString("media.access_key"),
		SecretKey:      v.GetString("media.secret_key"),
		Bucket:         v.GetString("media.bucket"),
		UseSSL:         v.GetBool("media.use_ssl"),
		URLTTL:         v.GetDuration("media.url_ttl"),
	}
}

func getAuthConfig(v *viper.Viper) *Auth {
	return &Auth{
		Secret:             v.GetString("auth.secret"),
		TokenTTL:           v.GetDuration("auth.token_ttl"),
		GoogleClientID:     v.GetString("auth.google_client_id"),
		GoogleClientSecret: v.GetString("auth.google_client_secret"),
		GoogleRedirectURL:  v.GetString("auth.google_redirect_url"),
	}
}

func getLoggerConfig(v *viper.Viper) *Logger {
	return &Logger{
		Level:  v.GetString("logger.level"),
		Format: v.GetString("logger.format"),
	}
}

// GoogleEnabled сообщает, настроен ли вход через Google
func (c *Config) GoogleEnabled() bool {
	return c.Auth.GoogleClientID != "" && c.Auth.GoogleClientSecret != ""
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres backend")
		}
	case "mongo":
		if c.Storage.MongoURI == "" {
			return errors.New("storage.mongo_uri is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Media.Backend {
	case "fs":
		// base_url служит и префиксом маршрута раздачи файлов
		if !strings.HasPrefix(c.Media.BaseURL, "/") || strings.ContainsAny(c.Media.BaseURL, ":*?#") {
			return fmt.Errorf("media.base_url must be an absolute path for the fs backend, got %q", c.Media.BaseURL)
		}
	case "minio":
		if c.Media.Endpoint == "" {
			return errors.New("media.endpoint is required for the minio backend")
		}
	default:
		return fmt.Errorf("unknown media backend %q", c.Media.Backend)
	}
	return nil
}
