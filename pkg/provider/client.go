package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/xhad/doccheck/internal/logger"
	"github.com/xhad/doccheck/internal/types"
)

const maxResponseBytes = 4 << 20

// ClientConfig represents the configuration for the classification provider.
type ClientConfig struct {
	TextURL     string
	ImageURL    string
	APIKey      string
	Timeout     time.Duration // per attempt
	MaxAttempts int
	BackoffBase time.Duration // sleep before retry n is BackoffBase * 2^n
	RateLimit   float64       // requests per second, 0 disables limiting
	HTTPClient  *http.Client
}

// Client submits text and images to the provider one request at a time.
type Client struct {
	config  ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewWithConfig creates a new Client with the given configuration.
func NewWithConfig(config ClientConfig, log *logger.Logger) (*Client, error) {
	if config.TextURL == "" || config.ImageURL == "" {
		return nil, fmt.Errorf("provider text and image URLs are required")
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BackoffBase == 0 {
		config.BackoffBase = time.Second
	}
	if log == nil {
		log = logger.Nop()
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	c := &Client{
		config: config,
		http:   httpClient,
		log:    log,
		sleep:  sleepContext,
	}
	if config.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return c, nil
}

// ClassifyText posts one chunk as a form field. externalID is forwarded as a query parameter
// when set.
func (c *Client) ClassifyText(ctx context.Context, text, externalID string) (*types.Verdict, error) {
	endpoint := c.config.TextURL
	if externalID != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid text endpoint: %w", err)
		}
		q := u.Query()
		q.Set("external_id", externalID)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	form := url.Values{"text": {text}}.Encode()
	raw, err := c.do(ctx, "text", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	v := NormalizeTextVerdict(raw)
	return &v, nil
}

// ClassifyImage uploads a JPEG as the multipart field "object".
func (c *Client) ClassifyImage(ctx context.Context, jpeg []byte) (*types.Verdict, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="object"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to build image form: %w", err)
	}
	if _, err := part.Write(jpeg); err != nil {
		return nil, fmt.Errorf("failed to build image form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build image form: %w", err)
	}
	payload := body.Bytes()

	raw, err := c.do(ctx, "image", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.ImageURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	v := NormalizeImageVerdict(raw)
	return &v, nil
}

// do runs the retry loop. 2xx decodes the body, 4xx aborts with a ClientError, everything else
// is retried with exponential backoff and ends in ErrRetriesExhausted.
func (c *Client) do(ctx context.Context, kind string, build func(context.Context) (*http.Request, error)) (map[string]any, error) {
	var lastErr error

	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		raw, err := c.attempt(ctx, kind, attempt, build)
		if err == nil {
			return raw, nil
		}

		var clientErr *ClientError
		if errors.As(err, &clientErr) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err

		if attempt == c.config.MaxAttempts-1 {
			break
		}
		backoff := c.config.BackoffBase * time.Duration(1<<attempt)
		c.log.Warn("provider request retrying",
			"kind", kind,
			"attempt", attempt+1,
			"max_attempts", c.config.MaxAttempts,
			"sleep_ms", backoff.Milliseconds(),
			"error", err,
		)
		if err := c.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.config.MaxAttempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, kind string, attempt int, build func(context.Context) (*http.Request, error)) (map[string]any, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	c.log.Debug("provider.http.request", "kind", kind, "attempt", attempt+1, "request_id", requestID, "url", req.URL.Redacted())

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("provider.http.error", "kind", kind, "request_id", requestID, "elapsed_ms", time.Since(start).Milliseconds(), "error", err)
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.log.Debug("provider.http.response",
		"kind", kind,
		"request_id", requestID,
		"status", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
		"bytes", len(body),
	)
	if err != nil {
		return nil, &TransientError{StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, &TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("invalid provider response: %w", err)}
		}
		return raw, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &ClientError{
			StatusCode: resp.StatusCode,
			Body:       bodyPreview(resp.Header.Get("Content-Type"), body),
		}
	default:
		return nil, &TransientError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", bodyPreview(resp.Header.Get("Content-Type"), body)),
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
