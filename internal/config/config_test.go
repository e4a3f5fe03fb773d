package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sftocsv/internal/config"
	"sftocsv/internal/secret"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sftocsv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := writeFile(t, `
salesforce:
  base_url: https://acme.my.salesforce.com
  api_version: "59.0"
log:
  level: debug
data_dir: /var/lib/sftocsv
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://acme.my.salesforce.com", cfg.Salesforce.BaseURL)
	assert.Equal(t, "59.0", cfg.Salesforce.APIVersion)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, secret.DefaultTokenPath, cfg.Token.StorePath)
	assert.Equal(t, filepath.Join("/var/lib/sftocsv", "runs.db"), cfg.RunLogPath())
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "salesforce:\n  baseurl: x\n")
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "config file not found")
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := config.Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "58.0", cfg.Salesforce.APIVersion)
}

func TestApplyEnv_Overrides(t *testing.T) {
	env := map[string]string{
		"SF_BASE_URL":       "https://env.example.com",
		"SF_CLIENT_ID":      "cid",
		"SF_CLIENT_SECRET":  "secret",
		"SF_KEY_TAG":        "prod",
		"SFTOCSV_LOG_LEVEL": "",
	}
	cfg := config.Default()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, "https://env.example.com", cfg.Salesforce.BaseURL)
	assert.Equal(t, "prod", cfg.Token.Tag)
	assert.Equal(t, "info", cfg.Log.Level, "empty values do not override")
	assert.True(t, cfg.HasClientCredentials())
}
