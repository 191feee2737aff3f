package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists transcripts and session metadata in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS session_messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			origin TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_session_messages_session_created
			ON session_messages (session_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS session_metadata (
			session_id TEXT PRIMARY KEY,
			metadata JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveMessage(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.ID) == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_messages (id, session_id, role, origin, content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.SessionID, msg.Role, msg.Origin, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, origin, content, created_at
		 FROM session_messages
		 WHERE session_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Origin, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent messages rows: %w", err)
	}
	// Oldest first, matching the in-memory store.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *PostgresStore) SearchMessages(ctx context.Context, sessionID, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx,
		`SELECT content
		 FROM session_messages
		 WHERE session_id = $1 AND content ILIKE '%' || $2 || '%'
		 ORDER BY created_at
		 LIMIT $3`,
		sessionID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		out = append(out, content)
	}
	return out, rows.Err()
}

func (s *PostgresStore) HasSystemLog(ctx context.Context, sessionID, content string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM session_messages
			WHERE session_id = $1 AND role = $2 AND content = $3
		)`,
		sessionID, RoleSystem, content).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has system log: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) SaveMetadata(ctx context.Context, sessionID string, meta Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO session_metadata (session_id, metadata, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (session_id)
		 DO UPDATE SET metadata = EXCLUDED.metadata, updated_at = now()`,
		sessionID, data)
	if err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadMetadata(ctx context.Context, sessionID string) (Metadata, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT metadata FROM session_metadata WHERE session_id = $1`,
		sessionID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Metadata{}, nil
	}
	if err != nil {
		return Metadata{}, fmt.Errorf("load metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return meta, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
