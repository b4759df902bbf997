package api

import (
	"context"

	"flowboard-api/domain"
	"flowboard-api/session"
)

// Store abstracts the session for handlers.
type Store interface {
	Snapshot() session.Snapshot
	CreateBoard(name string) domain.Board
	SwitchBoard(boardID string) error
	AddColumn(boardID, title string) (domain.Column, error)
	AddTask(boardID string, columnID int, title string) (domain.Task, error)
	UpdateTask(boardID string, taskID int, fields domain.TaskFields, targetColumnID *int) (domain.Task, error)
	UpdateColumn(boardID string, columnID int, fields domain.ColumnFields) (domain.Column, error)
	AddComment(boardID string, taskID int, text string) (domain.Comment, error)
	DeleteComment(boardID string, commentID int) error
	CommentsForTask(taskID int) []domain.Comment
	Theme(ctx context.Context) (string, error)
	SetTheme(ctx context.Context, theme string) error
	SignIn(ctx context.Context, profile domain.UserProfile) (string, error)
	SignOut() string
	OutboxStats() session.OutboxStats
}

// Authenticator is implemented by types able to extract the caller's
// identity from an Authorization header.
type Authenticator interface {
	ProfileFromAuthHeader(header string) (domain.UserProfile, error)
}

// Deduper prevents reprocessing of replayed mutation requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, key string) (bool, error)
	// Remove deletes a previously added key, used when the mutation fails.
	Remove(ctx context.Context, key string) error
}
