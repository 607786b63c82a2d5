package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roomlog/cmd/identity/ids"
	"roomlog/cmd/internal/history"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Ordering is not stored: message ids are ULIDs, so ORDER BY id is creation order.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "roomlog").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("session: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "roomlog",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("session: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// EnsureSchema creates the schema and the room_messages table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	messages := pgIdent(s.schema, "room_messages")
	index := pgx.Identifier{"idx_room_messages_room_id"}.Sanitize()

	ddl := fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %s;

CREATE TABLE IF NOT EXISTS %s (
  id               TEXT PRIMARY KEY CHECK (char_length(id) = 26),
  room_id          TEXT NOT NULL,
  author_id        TEXT NOT NULL,
  text             TEXT NOT NULL CHECK (char_length(text) <= 4096),
  created_at       TIMESTAMPTZ NOT NULL,
  sent_at          TIMESTAMPTZ,
  edits            SMALLINT NOT NULL DEFAULT 0,
  delivered_to_all BOOLEAN NOT NULL DEFAULT false,
  viewed_by_all    BOOLEAN NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS %s ON %s (room_id, id);
`, pgx.Identifier{s.schema}.Sanitize(), messages, index, messages)

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LoadRoom returns every stored message of room.
func (s *PostgresStore) LoadRoom(ctx context.Context, room ids.ID) (map[ids.MessageID]history.Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("session: nil store")
	}
	if room.IsZero() {
		return nil, fmt.Errorf("load room: %w", ErrInvalidInput)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, author_id, text, created_at, sent_at, edits, delivered_to_all, viewed_by_all
		   FROM `+pgIdent(s.schema, "room_messages")+`
		  WHERE room_id = $1
		  ORDER BY id ASC`,
		room.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", room, err)
	}
	defer rows.Close()

	out := make(map[ids.MessageID]history.Message)
	for rows.Next() {
		var (
			rawID, rawAuthor string
			sent             *time.Time
			edits            int16
			b                history.Body
		)
		if err := rows.Scan(&rawID, &rawAuthor, &b.Text, &b.Created, &sent, &edits, &b.DeliveredToAll, &b.ViewedByAll); err != nil {
			return nil, err
		}

		id, err := ids.ParseMessageID(rawID)
		if err != nil {
			return nil, err
		}
		author, err := ids.ParseID(rawAuthor)
		if err != nil {
			return nil, err
		}
		if sent != nil {
			b.Sent = sent.UTC()
		}
		b.Created = b.Created.UTC()
		b.Edits = uint8(min(max(edits, 0), 255))

		out[id] = history.Message{ID: id, RoomID: room, Author: author, Body: &b}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// AppendMessage inserts m. Inserting an id twice keeps the first record.
func (s *PostgresStore) AppendMessage(ctx context.Context, m history.Message) error {
	if s == nil || s.pool == nil {
		return errors.New("session: nil store")
	}
	if m.RoomID.IsZero() || m.ID.IsZero() || m.Body == nil {
		return fmt.Errorf("append message: %w", ErrInvalidInput)
	}

	b := m.Body
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, "room_messages")+` (
		     id, room_id, author_id, text, created_at, sent_at, edits, delivered_to_all, viewed_by_all
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		m.ID.String(), m.RoomID.String(), m.Author.String(), b.Text, b.Created, nullTime(b.Sent), int16(b.Edits), b.DeliveredToAll, b.ViewedByAll,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// UpdateMessage replaces the body stored under m.ID.
func (s *PostgresStore) UpdateMessage(ctx context.Context, m history.Message) error {
	if s == nil || s.pool == nil {
		return errors.New("session: nil store")
	}
	if m.Body == nil {
		return fmt.Errorf("update message: %w", ErrInvalidInput)
	}

	b := m.Body
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "room_messages")+`
		    SET text = $3, sent_at = $4, edits = $5, delivered_to_all = $6, viewed_by_all = $7
		  WHERE id = $1 AND room_id = $2`,
		m.ID.String(), m.RoomID.String(), b.Text, nullTime(b.Sent), int16(b.Edits), b.DeliveredToAll, b.ViewedByAll,
	)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update message %s: %w", m.ID, ErrUnknownMessage)
	}
	return nil
}

// DeleteMessage removes the row stored under id.
func (s *PostgresStore) DeleteMessage(ctx context.Context, room ids.ID, id ids.MessageID) error {
	if s == nil || s.pool == nil {
		return errors.New("session: nil store")
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+pgIdent(s.schema, "room_messages")+` WHERE id = $1 AND room_id = $2`,
		id.String(), room.String(),
	)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete message %s: %w", id, ErrUnknownMessage)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
