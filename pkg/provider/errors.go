package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const previewChars = 300

// ErrRetriesExhausted marks a unit that failed every attempt. Callers skip the unit.
var ErrRetriesExhausted = errors.New("provider retries exhausted")

// ClientError is a 4xx answer. It aborts the whole analysis.
type ClientError struct {
	StatusCode int
	Body       string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Body)
}

// Key is the stable error key reported to API callers.
func (e *ClientError) Key() string {
	switch e.StatusCode {
	case http.StatusNotFound:
		return "upstream_404"
	case http.StatusTooManyRequests:
		return "upstream_429"
	case http.StatusUnauthorized, http.StatusForbidden:
		return "upstream_401"
	case http.StatusRequestTimeout:
		return "upstream_timeout"
	}
	return "unknown_error"
}

// TransientError is a 5xx, a network failure or an unreadable 2xx body.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider transient failure (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// bodyPreview returns at most previewChars characters of a response body. HTML error pages from
// gateways are reduced to their visible text.
func bodyPreview(contentType string, body []byte) string {
	text := string(body)
	if strings.Contains(strings.ToLower(contentType), "html") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(text)); err == nil {
			doc.Find("script, style").Remove()
			text = strings.Join(strings.Fields(doc.Text()), " ")
		}
	}
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) > previewChars {
		return string(runes[:previewChars])
	}
	return text
}
