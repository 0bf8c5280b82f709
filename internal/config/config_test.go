package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Rrens/inspection-service/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 10000, cfg.Server.Port)
	assert.Equal(t, "http://localhost:10000", cfg.PublicBaseURL)
	assert.Equal(t, "http://localhost:10000/artifacts/", cfg.ArtifactStore.Local.BaseURL)
	assert.Equal(t, config.DriverMemory, cfg.SessionStore.Driver)
	assert.Equal(t, config.DriverLocal, cfg.ArtifactStore.Driver)
	assert.Equal(t, 30*time.Second, cfg.Finalize.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Finalize.ClaimLease)
	assert.Empty(t, cfg.Auth.AppTokens)
	assert.Equal(t, 3306, cfg.MySQL.Port)
	assert.Empty(t, cfg.Report.FontPath)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("PORT", "8080")
	t.Setenv("APP_UPLOAD_TOKEN", "alpha, beta ,,gamma")
	t.Setenv("RENDER_EXTERNAL_URL", "https://apv.example.com/")
	t.Setenv("SESSION_STORE", "SQLite")
	t.Setenv("MYSQL_PASSWORD", "s3cret")
	t.Setenv("REPORT_FONT_PATH", "/fonts/DejaVuSans.ttf")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.MySQL.Password)
	assert.Equal(t, "/fonts/DejaVuSans.ttf", cfg.Report.FontPath)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, cfg.Auth.AppTokens)
	assert.Equal(t, "https://apv.example.com", cfg.PublicBaseURL)
	assert.Equal(t, "https://apv.example.com/artifacts/", cfg.ArtifactStore.Local.BaseURL)
	assert.Equal(t, config.DriverSQLite, cfg.SessionStore.Driver)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
public_base_url: https://inspect.example.org
artifact_store:
  driver: s3
  s3:
    bucket: reports
    region: eu-north-1
finalize:
  timeout: 10s
  claim_lease: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, config.DriverS3, cfg.ArtifactStore.Driver)
	assert.Equal(t, "reports", cfg.ArtifactStore.S3.Bucket)
	assert.Equal(t, 10*time.Second, cfg.Finalize.Timeout)
	assert.Equal(t, time.Minute, cfg.Finalize.ClaimLease)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			SessionStore:  config.SessionStoreConfig{Driver: config.DriverMemory},
			ArtifactStore: config.ArtifactStoreConfig{Driver: config.DriverLocal, Local: config.LocalConfig{Dir: "/tmp"}},
			Finalize:      config.FinalizeConfig{Timeout: time.Second, ClaimLease: time.Minute},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr bool
	}{
		{"valid", func(c *config.Config) {}, false},
		{"mysql session driver", func(c *config.Config) { c.SessionStore.Driver = config.DriverMySQL }, false},
		{"unknown session driver", func(c *config.Config) { c.SessionStore.Driver = "etcd" }, true},
		{"unknown artifact driver", func(c *config.Config) { c.ArtifactStore.Driver = "ftp" }, true},
		{"missing local dir", func(c *config.Config) { c.ArtifactStore.Local.Dir = "" }, true},
		{"s3 without bucket", func(c *config.Config) { c.ArtifactStore.Driver = config.DriverS3 }, true},
		{"zero timeout", func(c *config.Config) { c.Finalize.Timeout = 0 }, true},
		{"lease shorter than timeout", func(c *config.Config) { c.Finalize.ClaimLease = time.Millisecond }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
