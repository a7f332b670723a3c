package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/doccheck/internal/models"
	"github.com/xhad/doccheck/pkg/store"
)

func newSQLite(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "messages.db"), "test_messages")
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func testMessage() models.Message {
	return models.Message{
		UserID:          "user-1",
		ChatID:          "chat-1",
		ClientMessageID: "client-1",
		Content:         "Analysis done.\nMessages: This document is mostly human written (80%)",
		Metadata: map[string]any{
			"language": "en",
			"tool":     "ai_or_not_analysis",
		},
	}
}

func TestSQLite_SaveAssistantMessage(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	ack, err := s.SaveAssistantMessage(ctx, testMessage())
	require.NoError(t, err)
	assert.True(t, ack.Saved)
	assert.NotEmpty(t, ack.MessageID)
	assert.Empty(t, ack.Error)

	msgs, err := s.Messages(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	got := msgs[0]
	assert.Equal(t, ack.MessageID, got.ID)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "client-1", got.ClientMessageID)
	assert.Equal(t, testMessage().Content, got.Content)
	assert.Equal(t, "ai_or_not_analysis", got.Metadata["tool"])
	assert.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)
}

func TestSQLite_KeepsGivenIDAndOrder(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	second := testMessage()
	second.ID = "b"
	second.CreatedAt = base.Add(time.Second)
	first := testMessage()
	first.ID = "a"
	first.CreatedAt = base
	first.ClientMessageID = ""

	for _, m := range []models.Message{second, first} {
		_, err := s.SaveAssistantMessage(ctx, m)
		require.NoError(t, err)
	}

	msgs, err := s.Messages(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].ID)
	assert.Equal(t, "", msgs[0].ClientMessageID)
	assert.Equal(t, "b", msgs[1].ID)
}

func TestSQLite_OverwritesSameID(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	msg := testMessage()
	msg.ID = "client-1"
	_, err := s.SaveAssistantMessage(ctx, msg)
	require.NoError(t, err)

	msg.Content = "Second analysis"
	msg.Metadata = map[string]any{"error": "upstream_429"}
	ack, err := s.SaveAssistantMessage(ctx, msg)
	require.NoError(t, err)
	assert.True(t, ack.Saved)
	assert.Equal(t, "client-1", ack.MessageID)

	msgs, err := s.Messages(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Second analysis", msgs[0].Content)
	assert.Equal(t, map[string]any{"error": "upstream_429"}, msgs[0].Metadata)
}

func TestSQLite_SanitizesContent(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	msg := testMessage()
	msg.Content = "bad \xff byte"
	_, err := s.SaveAssistantMessage(ctx, msg)
	require.NoError(t, err)

	msgs, err := s.Messages(ctx, "chat-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "bad  byte", msgs[0].Content)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := store.New(ctx, store.DriverNone, "", "")
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = store.New(ctx, "mysql", "dsn", "")
	assert.EqualError(t, err, "unknown store driver: mysql")

	_, err = store.New(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "x.db"), "drop table;")
	assert.Error(t, err)

	s, err = store.New(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "x.db"), "")
	require.NoError(t, err)
	defer s.Close()
	ack, err := s.SaveAssistantMessage(ctx, testMessage())
	require.NoError(t, err)
	assert.True(t, ack.Saved)
}

func TestPostgres_SaveAssistantMessage(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	s, err := store.NewPostgres(context.Background(), url, "test_messages")
	require.NoError(t, err)
	defer s.Close()

	ack, err := s.SaveAssistantMessage(context.Background(), testMessage())
	require.NoError(t, err)
	assert.True(t, ack.Saved)
	assert.NotEmpty(t, ack.MessageID)

	again := testMessage()
	again.ID = ack.MessageID
	again.Content = "Second analysis"
	ack, err = s.SaveAssistantMessage(context.Background(), again)
	require.NoError(t, err, "saving the same id again overwrites the message")
	assert.Equal(t, again.ID, ack.MessageID)
}
