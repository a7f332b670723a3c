package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_BackoffDoubles(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewWithConfig(ClientConfig{TextURL: srv.URL, ImageURL: srv.URL, APIKey: "k"}, nil)
	require.NoError(t, err)

	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	_, err = c.ClassifyText(context.Background(), "some text", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)

	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, http.StatusServiceUnavailable, transient.StatusCode)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
}

func TestDo_SleepCancelled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewWithConfig(ClientConfig{TextURL: srv.URL, ImageURL: srv.URL, MaxAttempts: 5}, nil)
	require.NoError(t, err)
	c.sleep = func(context.Context, time.Duration) error { return context.Canceled }

	_, err = c.ClassifyText(context.Background(), "some text", "")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(1), calls.Load())
}
