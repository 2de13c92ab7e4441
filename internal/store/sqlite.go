package store

import (
	"context"
	"database/sql"
	"fmt"

	"dijon/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
    user_id TEXT PRIMARY KEY,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (user_id) REFERENCES conversations(user_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id, id);`

// SQLite persists conversations in a local sqlite database, one row per
// message. History reads order by rowid so append order survives equal
// timestamps.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) History(ctx context.Context, userID string) ([]models.Message, error) {
	query := `
        SELECT role, content, created_at
        FROM messages
        WHERE user_id = ?
        ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLite) Append(ctx context.Context, userID string, msg models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO conversations (user_id, created_at)
        VALUES (?, CURRENT_TIMESTAMP)
        ON CONFLICT(user_id) DO NOTHING`, userID); err != nil {
		return fmt.Errorf("ensure conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO messages (user_id, role, content, created_at)
        VALUES (?, ?, ?, ?)`, userID, msg.Role, msg.Content, msg.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return tx.Commit()
}

// Clear empties the message log but keeps the conversation row, so the
// user's creation timestamp survives a history wipe.
func (s *SQLite) Clear(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE user_id = ?", userID)
	return err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
