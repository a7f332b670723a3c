package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate provider config
	if c.Provider.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "provider.api_key",
			Message: "provider API key is required",
		})
	}

	if !validURL(c.Provider.TextURL) {
		errors = append(errors, ValidationError{
			Field:   "provider.text_url",
			Message: "invalid provider URL",
		})
	}

	if !validURL(c.Provider.ImageURL) {
		errors = append(errors, ValidationError{
			Field:   "provider.image_url",
			Message: "invalid provider URL",
		})
	}

	if c.Provider.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "provider.max_attempts",
			Message: "max_attempts must be positive",
		})
	}

	if c.Provider.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "provider.timeout",
			Message: "timeout must be positive",
		})
	}

	if c.Provider.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "provider.rate_limit",
			Message: "rate_limit must not be negative",
		})
	}

	// Validate analysis config
	if c.Analysis.MaxCharsCap < 1 {
		errors = append(errors, ValidationError{
			Field:   "analysis.max_chars_cap",
			Message: "max_chars_cap must be positive",
		})
	}

	if c.Analysis.MaxCharsPerChunk < 1 || c.Analysis.MaxCharsPerChunk > c.Analysis.MaxCharsCap {
		errors = append(errors, ValidationError{
			Field:   "analysis.max_chars_per_chunk",
			Message: "max_chars_per_chunk must be between 1 and max_chars_cap",
		})
	}

	if c.Analysis.MinCharsRequired < 0 {
		errors = append(errors, ValidationError{
			Field:   "analysis.min_chars_required",
			Message: "min_chars_required must not be negative",
		})
	}

	if c.Server.MaxUploadMB < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.max_upload_mb",
			Message: "max_upload_mb must be positive",
		})
	}

	// Validate OCR config
	if c.OCR.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "ocr.workers",
			Message: "workers must be positive",
		})
	}

	// Validate store config
	switch c.Store.Driver {
	case "none":
	case "postgres", "sqlite":
		if c.Store.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "store.url",
				Message: fmt.Sprintf("url is required for driver %s", c.Store.Driver),
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "store.driver",
			Message: fmt.Sprintf("unknown store driver: %s", c.Store.Driver),
		})
	}

	return errors
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
