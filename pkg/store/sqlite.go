package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xhad/doccheck/internal/models"
	"github.com/xhad/doccheck/internal/types"
)

// SQLite keeps messages in a local file. It serves single-node deployments and tests.
type SQLite struct {
	table string
	db    *sql.DB
}

func NewSQLite(ctx context.Context, path, table string) (*SQLite, error) {
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{table: table, db: db}
	if err := s.initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initialize(ctx context.Context) error {
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			client_message_id TEXT,
			role TEXT NOT NULL DEFAULT 'assistant',
			content TEXT NOT NULL,
			metadata TEXT,
			created_at TEXT NOT NULL
		)`, s.table)
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

func (s *SQLite) SaveAssistantMessage(ctx context.Context, msg models.Message) (types.Ack, error) {
	msg, meta, err := prepare(msg)
	if err != nil {
		return types.Ack{Error: err.Error()}, err
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, chat_id, client_message_id, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			chat_id = excluded.chat_id,
			client_message_id = excluded.client_message_id,
			content = excluded.content,
			metadata = excluded.metadata,
			created_at = excluded.created_at`, s.table)
	_, err = s.db.ExecContext(ctx, stmt,
		msg.ID,
		msg.UserID,
		msg.ChatID,
		nullable(msg.ClientMessageID),
		msg.Content,
		string(meta),
		msg.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return types.Ack{Error: err.Error()}, fmt.Errorf("failed to insert message: %w", err)
	}
	return types.Ack{Saved: true, MessageID: msg.ID}, nil
}

// messages lists a chat's messages oldest first.
func (s *SQLite) messages(ctx context.Context, chatID string) ([]models.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, chat_id, COALESCE(client_message_id, ''), content, metadata, created_at
		FROM %s
		WHERE chat_id = ?
		ORDER BY created_at, id`, s.table)

	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var (
			msg     models.Message
			meta    sql.NullString
			created string
		)
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.ChatID, &msg.ClientMessageID, &msg.Content, &meta, &created); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata: %w", err)
			}
		}
		msg.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() {
	if s.db != nil {
		s.db.Close()
	}
}
