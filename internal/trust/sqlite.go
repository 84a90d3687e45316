// ABOUTME: SQLite implementation of the trust Store using modernc.org/sqlite.
// ABOUTME: Single bot_trust table with automatic schema creation.

package trust

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite trust store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "trust")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS bot_trust (
		bot_id     INTEGER PRIMARY KEY,
		granted    INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// IsTrusted reports whether the user has consented to web-views for the bot.
func (s *SQLiteStore) IsTrusted(ctx context.Context, botID int64) (bool, error) {
	var granted int
	err := s.db.QueryRowContext(ctx,
		"SELECT granted FROM bot_trust WHERE bot_id = ?", botID,
	).Scan(&granted)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying bot trust: %w", err)
	}
	return granted != 0, nil
}

// MarkTrusted records consent for the bot. Overwrites any previous record.
func (s *SQLiteStore) MarkTrusted(ctx context.Context, botID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_trust (bot_id, granted) VALUES (?, 1)
		ON CONFLICT(bot_id) DO UPDATE SET granted = 1`,
		botID,
	)
	if err != nil {
		return fmt.Errorf("marking bot trusted: %w", err)
	}
	s.logger.Debug("bot marked trusted", "bot_id", botID)
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
