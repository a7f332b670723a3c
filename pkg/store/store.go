// Package store persists analysis summaries as assistant chat messages.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/xhad/doccheck/internal/models"
	"github.com/xhad/doccheck/internal/types"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverNone     = "none"

	defaultTable = "messages"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// New opens the store selected by driver. The "none" driver returns a nil store and no error;
// callers treat that as persistence being disabled.
func New(ctx context.Context, driver, url, table string) (types.MessageStore, error) {
	switch driver {
	case DriverPostgres:
		s, err := NewPostgres(ctx, url, table)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		s, err := NewSQLite(ctx, url, table)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverNone, "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown store driver: %s", driver)
}

func tableName(table string) (string, error) {
	if table == "" {
		return defaultTable, nil
	}
	if !tableNameRe.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// prepare fills the generated fields and returns the row values shared by every driver.
func prepare(msg models.Message) (models.Message, []byte, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Content = sanitizeUTF8(msg.Content)

	meta := msg.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return msg, nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return msg, raw, nil
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
