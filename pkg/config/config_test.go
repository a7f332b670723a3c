package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
provider:
  text_url: "http://localhost:9000/text"
  image_url: "http://localhost:9000/image"
  api_key: "file-key"
  timeout: 30s
  max_attempts: 5
  rate_limit: 1.5

server:
  addr: ":9090"
  max_upload_mb: 10

analysis:
  max_chars_per_chunk: 1000
  min_chars_required: 100
  ocr_for_pdf: false
  ocr_for_office_images: true

ocr:
  language: "tur"
  workers: 3

store:
  driver: "sqlite"
  url: "file:test.db"

log:
  mode: "production"
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000/text", config.Provider.TextURL)
	assert.Equal(t, 30*time.Second, config.Provider.Timeout)
	assert.Equal(t, 5, config.Provider.MaxAttempts)
	assert.Equal(t, time.Second, config.Provider.BackoffBase)
	assert.Equal(t, 1.5, config.Provider.RateLimit)
	assert.Equal(t, int64(10<<20), config.MaxUploadBytes())
	assert.Equal(t, 1000, config.Analysis.MaxCharsPerChunk)
	assert.Equal(t, 500000, config.Analysis.MaxCharsCap)
	assert.False(t, config.OCRForPDFEnabled())
	assert.True(t, config.Analysis.OCRForOfficeImages)
	assert.Equal(t, "tur", config.OCR.Language)
	assert.Equal(t, 300, config.OCR.DPI)
	assert.Equal(t, "sqlite", config.Store.Driver)
	assert.Equal(t, "messages", config.Store.TableName)
	assert.Equal(t, "production", config.Log.Mode)
}

func TestDefaults(t *testing.T) {
	config := &Config{}
	applyDefaults(config)

	assert.Equal(t, 60*time.Second, config.Provider.Timeout)
	assert.Equal(t, 3, config.Provider.MaxAttempts)
	assert.Equal(t, 25, config.Server.MaxUploadMB)
	assert.Equal(t, 200000, config.Analysis.MaxCharsPerChunk)
	assert.Equal(t, 250, config.Analysis.MinCharsRequired)
	assert.True(t, config.OCRForPDFEnabled())
	assert.Equal(t, "none", config.Store.Driver)
	assert.Equal(t, "tr", config.Analysis.DefaultLanguage)
}

func TestConfigValidation(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		c.Provider.APIKey = "k"
		applyDefaults(c)
		return c
	}

	tests := []struct {
		name          string
		mutate        func(c *Config)
		errorMessages []string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name: "invalid config",
			mutate: func(c *Config) {
				c.Provider.APIKey = ""
				c.Provider.TextURL = "not a url"
				c.Provider.MaxAttempts = -1
				c.Analysis.MaxCharsPerChunk = 600000
				c.Store.Driver = "mongo"
			},
			errorMessages: []string{
				"provider.api_key: provider API key is required",
				"provider.text_url: invalid provider URL",
				"provider.max_attempts: max_attempts must be positive",
				"analysis.max_chars_per_chunk: max_chars_per_chunk must be between 1 and max_chars_cap",
				"store.driver: unknown store driver: mongo",
			},
		},
		{
			name: "store without url",
			mutate: func(c *Config) {
				c.Store.Driver = "postgres"
			},
			errorMessages: []string{
				"store.url: url is required for driver postgres",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			errors := c.Validate()
			require.Len(t, errors, len(tt.errorMessages))

			for i, msg := range tt.errorMessages {
				assert.Equal(t, msg, errors[i].Error())
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("AIORNOT_API_KEY", "env-key")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("PORT", "7070")

	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)

	assert.Equal(t, "env-key", config.Provider.APIKey)
	assert.Equal(t, "postgres://env-db:5432/test", config.Store.URL)
	assert.Equal(t, "postgres", config.Store.Driver)
	assert.Equal(t, ":7070", config.Server.Addr)
}
