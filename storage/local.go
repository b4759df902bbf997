package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"flowboard-api/domain"
)

// Storage keys mirror the original on-device layout: two blobs plus the
// theme preference.
const (
	keyUserBoards = "userBoardsData"
	keyComments   = "commentsData"
	keyTheme      = "theme"
)

// Local persists serialized state to an on-device sqlite database, one row
// per key. Every write is a full overwrite of the key's value; there are no
// partial writes and no versioning beyond the migration pass on load.
type Local struct {
	db     *sql.DB
	logger *log.Logger
}

// OpenLocal opens (or creates) the local database at path.
func OpenLocal(path string, logger *log.Logger) (*Local, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open local db: %w", err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS app_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create app_state table: %w", err)
	}
	return &Local{db: db, logger: logger}, nil
}

func (l *Local) Close() error { return l.db.Close() }

func (l *Local) Source() string { return "local" }

// FetchUserBoards loads and migrates the saved aggregate. Missing or
// malformed data is treated as absent so the caller falls back to defaults.
func (l *Local) FetchUserBoards(ctx context.Context) (domain.UserBoards, bool, error) {
	raw, ok, err := l.get(ctx, keyUserBoards)
	if err != nil || !ok {
		return domain.UserBoards{}, false, err
	}
	boards, err := domain.MigrateUserBoards([]byte(raw))
	if err != nil {
		l.logger.WithError(err).Warn("discarding malformed local board data")
		return domain.UserBoards{}, false, nil
	}
	return boards, true, nil
}

func (l *Local) StoreUserBoards(ctx context.Context, boards domain.UserBoards) error {
	data, err := json.Marshal(boards)
	if err != nil {
		return fmt.Errorf("encode user boards: %w", err)
	}
	return l.set(ctx, keyUserBoards, string(data))
}

func (l *Local) FetchComments(ctx context.Context) ([]domain.Comment, error) {
	raw, ok, err := l.get(ctx, keyComments)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.Comment{}, nil
	}
	var comments []domain.Comment
	if err := json.Unmarshal([]byte(raw), &comments); err != nil {
		l.logger.WithError(err).Warn("discarding malformed local comment data")
		return []domain.Comment{}, nil
	}
	if comments == nil {
		comments = []domain.Comment{}
	}
	return comments, nil
}

func (l *Local) StoreComments(ctx context.Context, _ string, comments []domain.Comment) error {
	if comments == nil {
		comments = []domain.Comment{}
	}
	data, err := json.Marshal(comments)
	if err != nil {
		return fmt.Errorf("encode comments: %w", err)
	}
	return l.set(ctx, keyComments, string(data))
}

// StoreComment rewrites the stored collection with the comment upserted.
// The session persists local comment changes as whole-collection overwrites
// through StoreComments; this per-comment form completes the Backend
// contract.
func (l *Local) StoreComment(ctx context.Context, boardID string, comment domain.Comment) error {
	comments, err := l.FetchComments(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range comments {
		if comments[i].ID == comment.ID {
			comments[i] = comment
			replaced = true
			break
		}
	}
	if !replaced {
		comments = append(comments, comment)
	}
	return l.StoreComments(ctx, boardID, comments)
}

func (l *Local) DeleteComment(ctx context.Context, commentID int) error {
	comments, err := l.FetchComments(ctx)
	if err != nil {
		return err
	}
	remaining, removed := domain.RemoveComment(comments, commentID)
	if !removed {
		return nil
	}
	return l.StoreComments(ctx, "", remaining)
}

// Theme returns the saved theme preference, defaulting to "light".
func (l *Local) Theme(ctx context.Context) (string, error) {
	theme, ok, err := l.get(ctx, keyTheme)
	if err != nil {
		return "", err
	}
	if !ok {
		return "light", nil
	}
	return theme, nil
}

func (l *Local) StoreTheme(ctx context.Context, theme string) error {
	if theme != "dark" && theme != "light" {
		return fmt.Errorf("unknown theme %q", theme)
	}
	return l.set(ctx, keyTheme, theme)
}

func (l *Local) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := l.db.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return value, true, nil
}

func (l *Local) set(ctx context.Context, key, value string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO app_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
