package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Provider struct {
		TextURL     string        `yaml:"text_url"`
		ImageURL    string        `yaml:"image_url"`
		APIKey      string        `yaml:"api_key"`
		Timeout     time.Duration `yaml:"timeout"`
		MaxAttempts int           `yaml:"max_attempts"`
		BackoffBase time.Duration `yaml:"backoff_base"`
		RateLimit   float64       `yaml:"rate_limit"`
	} `yaml:"provider"`

	Server struct {
		Addr        string `yaml:"addr"`
		MaxUploadMB int    `yaml:"max_upload_mb"`
	} `yaml:"server"`

	Analysis struct {
		MaxCharsPerChunk    int    `yaml:"max_chars_per_chunk"`
		MaxCharsCap         int    `yaml:"max_chars_cap"`
		MinCharsRequired    int    `yaml:"min_chars_required"`
		OCRForPDF           *bool  `yaml:"ocr_for_pdf"`
		OCRForOfficeImages  bool   `yaml:"ocr_for_office_images"`
		OfficeLegacyConvert bool   `yaml:"office_legacy_convert"`
		DefaultLanguage     string `yaml:"default_language"`
	} `yaml:"analysis"`

	OCR struct {
		Tesseract   string `yaml:"tesseract"`
		Pdftoppm    string `yaml:"pdftoppm"`
		Language    string `yaml:"language"`
		DPI         int    `yaml:"dpi"`
		MaxPages    int    `yaml:"max_pages"`
		Workers     int    `yaml:"workers"`
		PageWorkers int    `yaml:"page_workers"`
	} `yaml:"ocr"`

	Convert struct {
		Soffice string `yaml:"soffice"`
	} `yaml:"convert"`

	Store struct {
		Driver    string `yaml:"driver"`
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
	} `yaml:"store"`

	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/doccheck/config.yaml"),
			"/etc/doccheck/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

// OCRForPDFEnabled reports the analysis.ocr_for_pdf setting, which defaults to true.
func (c *Config) OCRForPDFEnabled() bool {
	return c.Analysis.OCRForPDF == nil || *c.Analysis.OCRForPDF
}

// MaxUploadBytes is the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

func applyDefaults(config *Config) {
	if config.Provider.TextURL == "" {
		config.Provider.TextURL = "https://api.aiornot.com/v2/text/sync"
	}
	if config.Provider.ImageURL == "" {
		config.Provider.ImageURL = "https://api.aiornot.com/v2/image/sync"
	}
	if config.Provider.Timeout == 0 {
		config.Provider.Timeout = 60 * time.Second
	}
	if config.Provider.MaxAttempts == 0 {
		config.Provider.MaxAttempts = 3
	}
	if config.Provider.BackoffBase == 0 {
		config.Provider.BackoffBase = time.Second
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.MaxUploadMB == 0 {
		config.Server.MaxUploadMB = 25
	}

	if config.Analysis.MaxCharsPerChunk == 0 {
		config.Analysis.MaxCharsPerChunk = 200000
	}
	if config.Analysis.MaxCharsCap == 0 {
		config.Analysis.MaxCharsCap = 500000
	}
	if config.Analysis.MinCharsRequired == 0 {
		config.Analysis.MinCharsRequired = 250
	}
	if config.Analysis.DefaultLanguage == "" {
		config.Analysis.DefaultLanguage = "tr"
	}

	if config.OCR.Tesseract == "" {
		config.OCR.Tesseract = "tesseract"
	}
	if config.OCR.Pdftoppm == "" {
		config.OCR.Pdftoppm = "pdftoppm"
	}
	if config.OCR.Language == "" {
		config.OCR.Language = "eng"
	}
	if config.OCR.DPI == 0 {
		config.OCR.DPI = 300
	}
	if config.OCR.Workers == 0 {
		config.OCR.Workers = 2
	}
	if config.OCR.PageWorkers == 0 {
		config.OCR.PageWorkers = 4
	}

	if config.Convert.Soffice == "" {
		config.Convert.Soffice = "soffice"
	}

	if config.Store.Driver == "" {
		if config.Store.URL != "" {
			config.Store.Driver = "postgres"
		} else {
			config.Store.Driver = "none"
		}
	}
	if config.Store.TableName == "" {
		config.Store.TableName = "messages"
	}

	if config.Log.Mode == "" {
		config.Log.Mode = "development"
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("AIORNOT_API_KEY"); key != "" {
		config.Provider.APIKey = key
	}
	if url := os.Getenv("AIORNOT_TEXT_URL"); url != "" {
		config.Provider.TextURL = url
	}
	if url := os.Getenv("AIORNOT_IMAGE_URL"); url != "" {
		config.Provider.ImageURL = url
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Addr = ":" + port
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Store.URL = dbURL
	}
	if mode := os.Getenv("LOG_MODE"); mode != "" {
		config.Log.Mode = mode
	}
}
