// Package config loads sftocsv settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"sftocsv/internal/secret"
)

// Config is the resolved configuration.
type Config struct {
	Salesforce Salesforce `yaml:"salesforce"`
	Token      Token      `yaml:"token"`
	Log        Log        `yaml:"log"`

	// DataDir holds the run-log database and relative job outputs.
	DataDir string `yaml:"data_dir"`
	// JobsDir is scanned for *.yaml job definitions by watch and mcp.
	JobsDir string `yaml:"jobs_dir"`
}

type Salesforce struct {
	BaseURL      string `yaml:"base_url"`
	APIVersion   string `yaml:"api_version"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AccessToken  string `yaml:"access_token"`
}

type Token struct {
	StorePath string `yaml:"store_path"`
	Tag       string `yaml:"tag"`
}

type Log struct {
	Level  string `yaml:"level"`
	SeqURL string `yaml:"seq_url"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Salesforce: Salesforce{APIVersion: "58.0"},
		Token:      Token{StorePath: secret.DefaultTokenPath, Tag: secret.DefaultTag},
		Log:        Log{Level: "info"},
		DataDir:    defaultDataDir(),
		JobsDir:    "jobs",
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "sftocsv")
	}
	return ".sftocsv"
}

// Load reads path (if non-empty) over the defaults and then applies
// environment overrides. A missing file is an error only when path was
// given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overrides fields from the environment via lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Salesforce.BaseURL, "SF_BASE_URL")
	set(&c.Salesforce.APIVersion, "SF_API_VERSION")
	set(&c.Salesforce.ClientID, "SF_CLIENT_ID")
	set(&c.Salesforce.ClientSecret, "SF_CLIENT_SECRET")
	set(&c.Salesforce.AccessToken, "SF_ACCESS_TOKEN")
	set(&c.Token.StorePath, "SF_TOKEN_STORE")
	set(&c.Token.Tag, "SF_KEY_TAG")
	set(&c.Log.Level, "SFTOCSV_LOG_LEVEL")
	set(&c.Log.SeqURL, "SFTOCSV_SEQ_URL")
	set(&c.DataDir, "SFTOCSV_DATA_DIR")
	set(&c.JobsDir, "SFTOCSV_JOBS_DIR")
}

// RunLogPath is the SQLite file holding job run history.
func (c *Config) RunLogPath() string {
	return filepath.Join(c.DataDir, "runs.db")
}

// HasClientCredentials reports whether a token can be fetched.
func (c *Config) HasClientCredentials() bool {
	return c.Salesforce.ClientID != "" && c.Salesforce.ClientSecret != ""
}
