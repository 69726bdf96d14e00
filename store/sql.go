package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/samber/lo"

	"messageboard/logger"
	"messageboard/models"
)

const (
	dialectSQLite   = "sqlite3"
	dialectPostgres = "postgres"
)

// SQLStore keeps messages in SQLite or Postgres.
type SQLStore struct {
	DB      *sql.DB
	dialect string
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := sql.Open(dialectSQLite, path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// sqlite serializes writers; a single connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	return &SQLStore{DB: db, dialect: dialectSQLite}, nil
}

func OpenPostgres(dsn string) (*SQLStore, error) {
	db, err := sql.Open(dialectPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	return &SQLStore{DB: db, dialect: dialectPostgres}, nil
}

func (s *SQLStore) Close(context.Context) error { return s.DB.Close() }

func (s *SQLStore) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

// Migrate creates the messages table and its ordering index.
func (s *SQLStore) Migrate(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS messages (
  id TEXT PRIMARY KEY,
  text TEXT NOT NULL,
  created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages (created_at, id);
`
	if s.dialect == dialectPostgres {
		ddl = strings.Replace(ddl, "DATETIME", "TIMESTAMPTZ", 1)
	}
	if _, err := s.DB.ExecContext(ctx, ddl); err != nil {
		return err
	}
	logger.Debug("schema ready", logger.FieldKV("dialect", s.dialect))
	return nil
}

func (s *SQLStore) InsertMessage(ctx context.Context, msg models.Message) error {
	_, err := s.DB.ExecContext(ctx,
		s.rebind(`INSERT INTO messages (id, text, created_at) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`),
		msg.ID, msg.Text, msg.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert message %s: %w", msg.ID, err)
	}
	return nil
}

func (s *SQLStore) GetAllMessages(ctx context.Context) ([]models.Message, error) {
	return s.query(ctx, `SELECT id, text, created_at FROM messages ORDER BY created_at ASC, id ASC`)
}

func (s *SQLStore) GetRecentMessages(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return s.GetAllMessages(ctx)
	}
	out, err := s.query(ctx, `SELECT id, text, created_at FROM messages ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return lo.Reverse(out), nil
}

func (s *SQLStore) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, s.rebind(`DELETE FROM messages WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) query(ctx context.Context, q string, args ...interface{}) ([]models.Message, error) {
	rows, err := s.DB.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	out := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(q string) string {
	if s.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
