package domain

import "github.com/google/uuid"

// DefaultBoardName is used when the app starts with no saved state.
const DefaultBoardName = "My First Board"

// Task is a unit of work inside a column. IDs are unique within a board and
// stable across column moves.
type Task struct {
	ID         int     `json:"id" firestore:"id"`
	Title      string  `json:"title" firestore:"title"`
	CommentIDs []int   `json:"commentIds" firestore:"commentIds"`
	Created    int64   `json:"created" firestore:"created"`
	DueDate    *string `json:"dueDate" firestore:"dueDate"`
}

// Column is an ordered sub-list of tasks. Position in Board.Columns is the
// display order; there is no separate sort key.
type Column struct {
	ID    int    `json:"id" firestore:"id"`
	Title string `json:"title" firestore:"title"`
	Tasks []Task `json:"tasks" firestore:"tasks"`
}

// Board owns its columns plus the allocator counters for columns, tasks and
// comments. Counters start at 1 and are bumped together with the entity they
// produced.
type Board struct {
	ID            string   `json:"id" firestore:"id"`
	Name          string   `json:"name" firestore:"name"`
	Columns       []Column `json:"columns" firestore:"columns"`
	NextColumnID  int      `json:"nextColumnId" firestore:"nextColumnId"`
	NextTaskID    int      `json:"nextTaskId" firestore:"nextTaskId"`
	NextCommentID int      `json:"nextCommentId" firestore:"nextCommentId"`
}

// Comment is a timestamped note attached to exactly one task. Comments live
// in a flat collection outside the board tree; the owning task keeps a
// denormalized id list.
type Comment struct {
	ID        int    `json:"id"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
	TaskID    int    `json:"taskId"`
}

// UserBoards is the aggregate persisted as one document: every board the
// user owns plus which one is currently displayed.
type UserBoards struct {
	ActiveBoardID string           `json:"activeBoardId" firestore:"activeBoardId"`
	Boards        map[string]Board `json:"boards" firestore:"boards"`
}

// UserProfile carries the identity fields written to the users collection on
// first sign-in.
type UserProfile struct {
	UserID      string `json:"userId" firestore:"-"`
	Email       string `json:"email" firestore:"email"`
	DisplayName string `json:"displayName" firestore:"displayName"`
	PhotoURL    string `json:"photoURL" firestore:"photoURL"`
	CreatedAt   string `json:"createdAt" firestore:"createdAt"`
}

// NewBoard returns an empty board with all counters at 1.
func NewBoard(name string) Board {
	return Board{
		ID:            uuid.NewString(),
		Name:          name,
		Columns:       []Column{},
		NextColumnID:  1,
		NextTaskID:    1,
		NextCommentID: 1,
	}
}

// NewUserBoards builds the default aggregate for a fresh install: a single
// empty board, already active.
func NewUserBoards() UserBoards {
	board := NewBoard(DefaultBoardName)
	return UserBoards{
		ActiveBoardID: board.ID,
		Boards:        map[string]Board{board.ID: board},
	}
}

// ActiveBoard returns the currently displayed board.
func (u UserBoards) ActiveBoard() (Board, bool) {
	b, ok := u.Boards[u.ActiveBoardID]
	return b, ok
}

// TaskCount reports the total number of tasks across all columns.
func (b Board) TaskCount() int {
	n := 0
	for _, col := range b.Columns {
		n += len(col.Tasks)
	}
	return n
}
