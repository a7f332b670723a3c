package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xhad/doccheck/internal/models"
	"github.com/xhad/doccheck/internal/types"
)

type Postgres struct {
	table string
	pool  *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connString, table string) (*Postgres, error) {
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Postgres{table: table, pool: pool}
	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) initialize(ctx context.Context) error {
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			client_message_id TEXT,
			role TEXT NOT NULL DEFAULT 'assistant',
			content TEXT NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)`, s.table)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_chat_idx ON %s (chat_id, created_at)`, s.table, s.table)
	if _, err := s.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

func (s *Postgres) SaveAssistantMessage(ctx context.Context, msg models.Message) (types.Ack, error) {
	msg, meta, err := prepare(msg)
	if err != nil {
		return types.Ack{Error: err.Error()}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.Ack{Error: err.Error()}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, chat_id, client_message_id, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			chat_id = excluded.chat_id,
			client_message_id = excluded.client_message_id,
			content = excluded.content,
			metadata = excluded.metadata,
			created_at = excluded.created_at`, s.table)
	if _, err := tx.Exec(ctx, stmt, msg.ID, msg.UserID, msg.ChatID, nullable(msg.ClientMessageID), msg.Content, meta, msg.CreatedAt); err != nil {
		return types.Ack{Error: err.Error()}, fmt.Errorf("failed to insert message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Ack{Error: err.Error()}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return types.Ack{Saved: true, MessageID: msg.ID}, nil
}

func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
