package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scanner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "https://api.donutsmp.net", cfg.Upstream.BaseURL)
	assert.Equal(t, 3, cfg.Scanner.Pages)
	assert.Equal(t, 10, cfg.Scanner.TransactionPages)
	assert.Equal(t, 7, cfg.Retention.RawRetentionDays)
	assert.Equal(t, 24*time.Hour, cfg.Retention.CompactionInterval)
	assert.InDelta(t, 0.7, cfg.Analytics.UnderpriceThreshold, 1e-9)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
scanner:
  pages: 5
  interval: 45s
retention:
  raw_retention_days: 3
database:
  path: /tmp/from-file.db
`)
	t.Setenv("DONUTSMP_AUTH_KEY", "secret-key")
	t.Setenv("DONUTSMP_INTERVAL", "20")
	t.Setenv("DONUTSMP_UNDERPRICE_THRESHOLD", "0.6")
	t.Setenv("DONUTSMP_BASE_URL", "http://localhost:9000/")
	t.Setenv("COMPACTION_INTERVAL_HOURS", "6")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Scanner.Pages)
	assert.Equal(t, 20*time.Second, cfg.Scanner.Interval, "env overrides file")
	assert.Equal(t, 3, cfg.Retention.RawRetentionDays)
	assert.Equal(t, 6*time.Hour, cfg.Retention.CompactionInterval)
	assert.Equal(t, "/tmp/from-file.db", cfg.Database.Path)
	assert.Equal(t, "http://localhost:9000", cfg.Upstream.BaseURL)
	assert.Equal(t, "secret-key", cfg.Upstream.AuthKey)
	assert.InDelta(t, 0.6, cfg.Analytics.UnderpriceThreshold, 1e-9)
	assert.Equal(t, 10, cfg.Scanner.InitialScanPages)
	require.NoError(t, cfg.RequireAuth())
}

func TestLoadDurationEnv(t *testing.T) {
	t.Setenv("DONUTSMP_INTERVAL", "1m30s")
	t.Setenv("DONUTSMP_REQUEST_TIMEOUT", "15")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Scanner.Interval)
	assert.Equal(t, 15*time.Second, cfg.Upstream.Timeout)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero pages", func(c *Config) { c.Scanner.Pages = 0 }},
		{"too many transaction pages", func(c *Config) { c.Scanner.TransactionPages = 11 }},
		{"threshold above one", func(c *Config) { c.Analytics.UnderpriceThreshold = 1.2 }},
		{"zero rpm", func(c *Config) { c.Upstream.RequestsPerMinute = 0 }},
		{"negative retention", func(c *Config) { c.Retention.RawRetentionDays = -1 }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without url", func(c *Config) { c.Database.Driver = "postgres" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRequireAuth(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.RequireAuth())
}

func TestS3Enabled(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.S3.Enabled())
	cfg.S3 = S3Config{Bucket: "b", AccessKeyID: "id", SecretAccessKey: "secret"}
	assert.True(t, cfg.S3.Enabled())
}

func TestStringHidesSecrets(t *testing.T) {
	cfg := Default()
	cfg.Upstream.AuthKey = "super-secret-token"
	cfg.S3.SecretAccessKey = "aws-secret"
	cfg.Database.URL = "postgres://u:pw@db/ah"

	s := cfg.String()
	assert.Contains(t, s, "auth=set")
	assert.NotContains(t, s, "super-secret-token")
	assert.NotContains(t, s, "aws-secret")
	assert.NotContains(t, s, "pw@db")
}
