package session

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"flowboard-api/domain"
	"flowboard-api/storage"
)

// ErrRemoteUnavailable is returned by SignIn when no remote persistence is
// configured for this deployment.
var ErrRemoteUnavailable = errors.New("remote persistence not configured")

// ProfileStore records the user profile document on first sign-in.
type ProfileStore interface {
	EnsureUserProfile(ctx context.Context, profile domain.UserProfile) error
}

// RemoteFactory builds the remote backend for an authenticated user.
type RemoteFactory func(userID string) (storage.Backend, ProfileStore, error)

const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Session owns the in-memory board/comment state for one app instance and
// is the only writer. Mutations are applied synchronously and
// optimistically; persistence happens through the write-behind outbox
// against whichever backend is authoritative at the time of the change.
type Session struct {
	mu        sync.Mutex
	boards    domain.UserBoards
	comments  []domain.Comment
	local     *storage.Local
	newRemote RemoteFactory
	remote    storage.Backend
	user      *domain.UserProfile
	outbox    *outbox
	logger    *log.Logger
	now       func() int64
}

// Snapshot is the read-only view handed to the rendering layer.
type Snapshot struct {
	UserBoards domain.UserBoards `json:"userBoards"`
	Comments   []domain.Comment  `json:"comments"`
	DataSource string            `json:"dataSource"`
}

// New loads local state (running migrations as needed) and starts the
// outbox. The session always begins on the local backend; SignIn upgrades
// it. A missing or malformed local save falls back to a fresh default
// aggregate with a single empty board.
func New(ctx context.Context, local *storage.Local, newRemote RemoteFactory, logger *log.Logger, cfg OutboxConfig) (*Session, error) {
	s := &Session{
		local:     local,
		newRemote: newRemote,
		logger:    logger,
		outbox:    newOutbox(cfg, logger),
		now:       nextMillis,
	}

	boards, present, err := local.FetchUserBoards(ctx)
	if err != nil {
		s.outbox.close()
		return nil, err
	}
	if present {
		s.boards = boards
	} else {
		s.boards = domain.NewUserBoards()
		s.persistBoardsLocked()
	}

	comments, err := local.FetchComments(ctx)
	if err != nil {
		s.outbox.close()
		return nil, err
	}
	s.comments = comments
	return s, nil
}

// Close drains pending writes and stops the outbox.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox.close()
}

// Flush blocks until all scheduled writes are delivered. Intended for tests
// and graceful shutdown.
func (s *Session) Flush() {
	s.outbox.flush()
}

// OutboxStats reports the write-behind queue state.
func (s *Session) OutboxStats() OutboxStats {
	return s.outbox.stats()
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	comments := make([]domain.Comment, len(s.comments))
	copy(comments, s.comments)
	return Snapshot{
		UserBoards: s.boards,
		Comments:   comments,
		DataSource: s.sourceLocked(),
	}
}

// CreateBoard inserts a new empty board and makes it active.
func (s *Session) CreateBoard(name string) domain.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, board := s.boards.CreateBoard(name)
	s.boards = next
	s.persistBoardsLocked()
	return board
}

// SwitchBoard changes the active board.
func (s *Session) SwitchBoard(boardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.boards.SwitchBoard(boardID)
	if err != nil {
		return err
	}
	s.boards = next
	s.persistBoardsLocked()
	return nil
}

// AddColumn appends a column to the board.
func (s *Session) AddColumn(boardID, title string) (domain.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, col, err := s.boards.AddColumn(boardID, title)
	if err != nil {
		return domain.Column{}, err
	}
	s.boards = next
	s.persistBoardsLocked()
	return col, nil
}

// AddTask appends a task to a column with the created timestamp set to now.
func (s *Session) AddTask(boardID string, columnID int, title string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, task, err := s.boards.AddTask(boardID, columnID, title, s.now())
	if err != nil {
		return domain.Task{}, err
	}
	s.boards = next
	s.persistBoardsLocked()
	return task, nil
}

// UpdateTask merges fields and optionally moves the task to another column.
func (s *Session) UpdateTask(boardID string, taskID int, fields domain.TaskFields, targetColumnID *int) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, task, err := s.boards.UpdateTask(boardID, taskID, fields, targetColumnID)
	if err != nil {
		return domain.Task{}, err
	}
	s.boards = next
	s.persistBoardsLocked()
	return task, nil
}

// UpdateColumn merges fields onto a column.
func (s *Session) UpdateColumn(boardID string, columnID int, fields domain.ColumnFields) (domain.Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, col, err := s.boards.UpdateColumn(boardID, columnID, fields)
	if err != nil {
		return domain.Column{}, err
	}
	s.boards = next
	s.persistBoardsLocked()
	return col, nil
}

// AddComment allocates a comment id from the board counter, records the id
// on the owning task and inserts the comment into the flat collection, all
// in one apply so the pieces persist together.
func (s *Session) AddComment(boardID string, taskID int, text string) (domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, id, err := s.boards.AttachComment(boardID, taskID)
	if err != nil {
		return domain.Comment{}, err
	}
	comment := domain.Comment{ID: id, Text: text, CreatedAt: s.now(), TaskID: taskID}
	s.boards = next
	s.comments = append(s.comments, comment)
	s.persistBoardsLocked()
	s.persistCommentChangeLocked(&writeJob{
		kind:    opCommentUpsert,
		boardID: boardID,
		comment: comment,
	})
	return comment, nil
}

// DeleteComment removes the comment from the flat collection and strips its
// id from whichever task references it. Deleting an id that is already gone
// is a no-op.
func (s *Session) DeleteComment(boardID string, commentID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining, removed := domain.RemoveComment(s.comments, commentID)
	next, detached, err := s.boards.DetachComment(boardID, commentID)
	if errors.Is(err, domain.ErrBoardNotFound) {
		// Stale board references are tolerated; the flat collection is
		// still scrubbed.
		s.logger.Debugf("delete comment %d: unknown board %s", commentID, boardID)
		next = s.boards
	} else if err != nil {
		return err
	}

	if !removed && !detached {
		return nil
	}
	s.boards = next
	s.comments = remaining
	s.persistBoardsLocked()
	s.persistCommentChangeLocked(&writeJob{
		kind:      opCommentDelete,
		commentID: commentID,
	})
	return nil
}

// CommentsForTask returns the task's comments, newest first.
func (s *Session) CommentsForTask(taskID int) []domain.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CommentsForTask(s.comments, taskID)
}

// Theme reads the locally stored theme preference.
func (s *Session) Theme(ctx context.Context) (string, error) {
	return s.local.Theme(ctx)
}

// SetTheme stores the theme preference. The theme never syncs remotely.
func (s *Session) SetTheme(ctx context.Context, theme string) error {
	return s.local.StoreTheme(ctx, theme)
}

// SignIn moves the session onto the remote backend. When the user already
// has a remote aggregate it fully replaces in-memory state; otherwise the
// current state seeds the remote store. Comments follow the same rule
// independently. A failed remote load leaves the session on local storage.
func (s *Session) SignIn(ctx context.Context, profile domain.UserProfile) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user != nil && s.user.UserID == profile.UserID && s.remote != nil {
		return SourceRemote, nil
	}
	if s.newRemote == nil {
		return SourceLocal, ErrRemoteUnavailable
	}

	backend, profiles, err := s.newRemote(profile.UserID)
	if err != nil {
		return SourceLocal, err
	}

	if err := profiles.EnsureUserProfile(ctx, profile); err != nil {
		s.logger.WithError(err).Warn("failed to record user profile")
	}

	boards, present, err := backend.FetchUserBoards(ctx)
	if err != nil {
		s.logger.WithError(err).Error("remote board load failed, staying on local storage")
		return SourceLocal, err
	}
	remoteComments, err := backend.FetchComments(ctx)
	if err != nil {
		s.logger.WithError(err).Error("remote comment load failed, staying on local storage")
		return SourceLocal, err
	}

	if present {
		s.boards = boards
	} else {
		s.outbox.enqueue(&writeJob{backend: backend, kind: opBoards, boards: s.boards})
	}
	if len(remoteComments) > 0 {
		s.comments = remoteComments
	} else if len(s.comments) > 0 {
		seed := make([]domain.Comment, len(s.comments))
		copy(seed, s.comments)
		s.outbox.enqueue(&writeJob{
			backend:  backend,
			kind:     opCommentBulk,
			boardID:  s.boards.ActiveBoardID,
			comments: seed,
		})
	}

	s.remote = backend
	s.user = &profile
	s.logger.WithField("user", profile.UserID).Info("session upgraded to remote storage")
	return SourceRemote, nil
}

// SignOut drops back to local storage. No data is transferred: in-memory
// state stays as-is and future writes simply target the local backend.
func (s *Session) SignOut() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user != nil {
		s.logger.WithField("user", s.user.UserID).Info("session reverted to local storage")
	}
	s.remote = nil
	s.user = nil
	return SourceLocal
}

// User returns the signed-in profile, or nil.
func (s *Session) User() *domain.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) sourceLocked() string {
	if s.remote != nil {
		return SourceRemote
	}
	return SourceLocal
}

func (s *Session) activeLocked() storage.Backend {
	if s.remote != nil {
		return s.remote
	}
	return s.local
}

func (s *Session) persistBoardsLocked() {
	s.outbox.enqueue(&writeJob{
		backend: s.activeLocked(),
		kind:    opBoards,
		boards:  s.boards,
	})
}

// persistCommentChangeLocked schedules the comment write. Remote comments
// are individual documents, so the delta job goes out as-is. Local comment
// storage is one serialized collection, so the current in-memory collection
// is rewritten wholesale instead, mirroring persistBoardsLocked. That keeps
// the durable local copy equal to memory even when memory was replaced by a
// remote load since the last local write.
func (s *Session) persistCommentChangeLocked(job *writeJob) {
	if s.remote != nil {
		job.backend = s.remote
		s.outbox.enqueue(job)
		return
	}
	snapshot := make([]domain.Comment, len(s.comments))
	copy(snapshot, s.comments)
	s.outbox.enqueue(&writeJob{
		backend:  s.local,
		kind:     opCommentBulk,
		boardID:  s.boards.ActiveBoardID,
		comments: snapshot,
	})
}
