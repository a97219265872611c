package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "APP_ENV", "API_BASE_PATH",
		"STORAGE_BACKEND", "STORAGE_CONTAINER", "STORAGE_ENDPOINT",
		"STORAGE_ACCESS_KEY", "STORAGE_SECRET_KEY", "STORAGE_REGION",
		"STORAGE_USE_SSL", "STORAGE_PUBLIC_READ", "STORAGE_PUBLIC_BASE",
		"GCS_CREDENTIALS_FILE", "GCS_PROJECT_ID", "STORAGE_LOCAL_PATH", "DATABASE_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "/api/pdflibrary", cfg.BasePath)
	assert.Equal(t, BackendMinio, cfg.Storage.Backend)
	assert.Equal(t, "pdflibrary", cfg.Storage.Container)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "9090"
app_env: production
storage:
  backend: local
  container: pdfs
  local_path: /var/lib/pdflibrary
  public_base: https://cdn.example.com/pdfs
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("STORAGE_CONTAINER", "override")
	t.Setenv("STORAGE_USE_SSL", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, BackendLocal, cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/pdflibrary", cfg.Storage.LocalPath)
	assert.Equal(t, "https://cdn.example.com/pdfs", cfg.Storage.PublicBase)
	assert.Equal(t, "override", cfg.Storage.Container)
	assert.True(t, cfg.Storage.UseSSL)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "defaults", modify: func(c *Config) {}},
		{name: "non-numeric port", modify: func(c *Config) { c.Port = "http" }, wantErr: true},
		{name: "port out of range", modify: func(c *Config) { c.Port = "70000" }, wantErr: true},
		{name: "relative base path", modify: func(c *Config) { c.BasePath = "api" }, wantErr: true},
		{name: "unknown backend", modify: func(c *Config) { c.Storage.Backend = "ftp" }, wantErr: true},
		{name: "empty container", modify: func(c *Config) { c.Storage.Container = "" }, wantErr: true},
		{name: "minio without endpoint", modify: func(c *Config) { c.Storage.Endpoint = "" }, wantErr: true},
		{
			name: "s3 without region",
			modify: func(c *Config) {
				c.Storage.Backend = BackendS3
				c.Storage.Region = ""
			},
			wantErr: true,
		},
		{
			name: "local without path",
			modify: func(c *Config) {
				c.Storage.Backend = BackendLocal
				c.Storage.LocalPath = ""
			},
			wantErr: true,
		},
		{
			name: "postgres without url",
			modify: func(c *Config) {
				c.Storage.Backend = BackendPostgres
				c.Storage.DatabaseURL = ""
			},
			wantErr: true,
		},
		{name: "gcs", modify: func(c *Config) { c.Storage.Backend = BackendGCS }},
		{name: "memory", modify: func(c *Config) { c.Storage.Backend = BackendMemory }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
