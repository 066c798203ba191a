package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inDir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	inDir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "fs", cfg.Media.Backend)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "/media", cfg.Media.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Categories.TTL)
	assert.False(t, cfg.GoogleEnabled())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	inDir(t, dir)
	path := filepath.Join(dir, "blog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
storage:
  backend: postgres
  postgres_dsn: postgres://localhost/blog
logger:
  level: debug
`), 0o600))
	t.Setenv("BLOG_LOGGER_LEVEL", "warn")
	t.Setenv("BLOG_REDIS_TTL", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "warn", cfg.Logger.Level)
	assert.Equal(t, 30*time.Second, cfg.Redis.TTL)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	inDir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BLOG_AUTH_GOOGLE_CLIENT_ID=id\nBLOG_AUTH_GOOGLE_CLIENT_SECRET=secret\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("BLOG_AUTH_GOOGLE_CLIENT_ID")
		os.Unsetenv("BLOG_AUTH_GOOGLE_CLIENT_SECRET")
	})

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.GoogleEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	inDir(t, t.TempDir())

	t.Setenv("BLOG_STORAGE_BACKEND", "postgres")
	_, err := Load("")
	assert.ErrorContains(t, err, "postgres_dsn")

	t.Setenv("BLOG_STORAGE_BACKEND", "sqlite")
	_, err = Load("")
	assert.ErrorContains(t, err, "unknown storage backend")

	t.Setenv("BLOG_STORAGE_BACKEND", "memory")
	t.Setenv("BLOG_MEDIA_BASE_URL", "http://cdn.example.com/media")
	_, err = Load("")
	assert.ErrorContains(t, err, "media.base_url")

	t.Setenv("BLOG_MEDIA_BASE_URL", "media")
	_, err = Load("")
	assert.ErrorContains(t, err, "media.base_url")

	t.Setenv("BLOG_MEDIA_BASE_URL", "/media")
	t.Setenv("BLOG_MEDIA_BACKEND", "minio")
	_, err = Load("")
	assert.ErrorContains(t, err, "media.endpoint")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
