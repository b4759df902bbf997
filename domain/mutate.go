package domain

// Mutations never modify the receiver in place. Every operation returns a
// fresh aggregate with the touched board rebuilt, so callers can hold the
// previous snapshot while a write is in flight.

// TaskFields carries optional task fields for partial updates. A nil field
// is left untouched. ClearDueDate removes the due date regardless of the
// DueDate field.
type TaskFields struct {
	Title        *string
	DueDate      *string
	ClearDueDate bool
}

// ColumnFields carries optional column fields for partial updates.
type ColumnFields struct {
	Title *string
}

// CreateBoard inserts a new empty board and makes it active.
func (u UserBoards) CreateBoard(name string) (UserBoards, Board) {
	board := NewBoard(name)
	next := u.withBoard(board)
	next.ActiveBoardID = board.ID
	return next, board
}

// SwitchBoard changes the active board. Unknown ids leave the aggregate
// unchanged and report ErrBoardNotFound.
func (u UserBoards) SwitchBoard(boardID string) (UserBoards, error) {
	if _, ok := u.Boards[boardID]; !ok {
		return u, ErrBoardNotFound
	}
	next := u
	next.ActiveBoardID = boardID
	return next, nil
}

// AddColumn appends a column with id NextColumnID and bumps the counter.
func (u UserBoards) AddColumn(boardID, title string) (UserBoards, Column, error) {
	board, ok := u.Boards[boardID]
	if !ok {
		return u, Column{}, ErrBoardNotFound
	}
	col := Column{ID: board.NextColumnID, Title: title, Tasks: []Task{}}
	board.Columns = append(copyColumns(board.Columns), col)
	board.NextColumnID++
	return u.withBoard(board), col, nil
}

// AddTask appends a task to the named column with id NextTaskID and bumps
// the counter. The created timestamp is supplied by the caller so the apply
// step stays deterministic.
func (u UserBoards) AddTask(boardID string, columnID int, title string, createdAt int64) (UserBoards, Task, error) {
	board, ok := u.Boards[boardID]
	if !ok {
		return u, Task{}, ErrBoardNotFound
	}
	idx := indexOfColumn(board.Columns, columnID)
	if idx < 0 {
		return u, Task{}, ErrColumnNotFound
	}
	task := Task{
		ID:         board.NextTaskID,
		Title:      title,
		CommentIDs: []int{},
		Created:    createdAt,
	}
	cols := copyColumns(board.Columns)
	cols[idx].Tasks = append(copyTasks(cols[idx].Tasks), task)
	board.Columns = cols
	board.NextTaskID++
	return u.withBoard(board), task, nil
}

// UpdateTask merges fields onto the task and, when targetColumnID names a
// different column, moves the task there by appending it to the end of the
// target's task sequence. Columns are scanned in order and the first id
// match wins.
func (u UserBoards) UpdateTask(boardID string, taskID int, fields TaskFields, targetColumnID *int) (UserBoards, Task, error) {
	board, ok := u.Boards[boardID]
	if !ok {
		return u, Task{}, ErrBoardNotFound
	}
	srcIdx, taskIdx := locateTask(board.Columns, taskID)
	if srcIdx < 0 {
		return u, Task{}, ErrTaskNotFound
	}

	cols := copyColumns(board.Columns)
	task := cols[srcIdx].Tasks[taskIdx]
	task = mergeTask(task, fields)

	if targetColumnID == nil || *targetColumnID == cols[srcIdx].ID {
		tasks := copyTasks(cols[srcIdx].Tasks)
		tasks[taskIdx] = task
		cols[srcIdx].Tasks = tasks
		board.Columns = cols
		return u.withBoard(board), task, nil
	}

	dstIdx := indexOfColumn(cols, *targetColumnID)
	if dstIdx < 0 {
		return u, Task{}, ErrColumnNotFound
	}
	src := copyTasks(cols[srcIdx].Tasks)
	cols[srcIdx].Tasks = append(src[:taskIdx], src[taskIdx+1:]...)
	cols[dstIdx].Tasks = append(copyTasks(cols[dstIdx].Tasks), task)
	board.Columns = cols
	return u.withBoard(board), task, nil
}

// UpdateColumn merges fields onto the matching column.
func (u UserBoards) UpdateColumn(boardID string, columnID int, fields ColumnFields) (UserBoards, Column, error) {
	board, ok := u.Boards[boardID]
	if !ok {
		return u, Column{}, ErrBoardNotFound
	}
	idx := indexOfColumn(board.Columns, columnID)
	if idx < 0 {
		return u, Column{}, ErrColumnNotFound
	}
	cols := copyColumns(board.Columns)
	if fields.Title != nil {
		cols[idx].Title = *fields.Title
	}
	board.Columns = cols
	return u.withBoard(board), cols[idx], nil
}

// AttachComment allocates a comment id from the board's counter and records
// it on the owning task. The counter bump and the id append happen in the
// same snapshot so they persist together.
func (u UserBoards) AttachComment(boardID string, taskID int) (UserBoards, int, error) {
	board, ok := u.Boards[boardID]
	if !ok {
		return u, 0, ErrBoardNotFound
	}
	srcIdx, taskIdx := locateTask(board.Columns, taskID)
	if srcIdx < 0 {
		return u, 0, ErrTaskNotFound
	}
	id := board.NextCommentID
	cols := copyColumns(board.Columns)
	tasks := copyTasks(cols[srcIdx].Tasks)
	task := tasks[taskIdx]
	task.CommentIDs = append(append([]int{}, task.CommentIDs...), id)
	tasks[taskIdx] = task
	cols[srcIdx].Tasks = tasks
	board.Columns = cols
	board.NextCommentID++
	return u.withBoard(board), id, nil
}

// DetachComment strips the comment id from whichever task references it.
// The boolean reports whether any task changed; absent ids are a no-op so
// deletes stay idempotent.
func (u UserBoards) DetachComment(boardID string, commentID int) (UserBoards, bool, error) {
	board, ok := u.Boards[boardID]
	if !ok {
		return u, false, ErrBoardNotFound
	}
	cols := copyColumns(board.Columns)
	changed := false
	for ci := range cols {
		tasks := copyTasks(cols[ci].Tasks)
		for ti := range tasks {
			filtered := tasks[ti].CommentIDs[:0:0]
			for _, id := range tasks[ti].CommentIDs {
				if id == commentID {
					changed = true
					continue
				}
				filtered = append(filtered, id)
			}
			if filtered == nil {
				filtered = []int{}
			}
			tasks[ti].CommentIDs = filtered
		}
		cols[ci].Tasks = tasks
	}
	if !changed {
		return u, false, nil
	}
	board.Columns = cols
	return u.withBoard(board), true, nil
}

func mergeTask(task Task, fields TaskFields) Task {
	if fields.Title != nil {
		task.Title = *fields.Title
	}
	if fields.ClearDueDate {
		task.DueDate = nil
	} else if fields.DueDate != nil {
		due := *fields.DueDate
		task.DueDate = &due
	}
	return task
}

func (u UserBoards) withBoard(board Board) UserBoards {
	boards := make(map[string]Board, len(u.Boards)+1)
	for id, b := range u.Boards {
		boards[id] = b
	}
	boards[board.ID] = board
	return UserBoards{ActiveBoardID: u.ActiveBoardID, Boards: boards}
}

func indexOfColumn(cols []Column, id int) int {
	for i := range cols {
		if cols[i].ID == id {
			return i
		}
	}
	return -1
}

func locateTask(cols []Column, taskID int) (colIdx, taskIdx int) {
	for ci := range cols {
		for ti := range cols[ci].Tasks {
			if cols[ci].Tasks[ti].ID == taskID {
				return ci, ti
			}
		}
	}
	return -1, -1
}

func copyColumns(cols []Column) []Column {
	out := make([]Column, len(cols))
	copy(out, cols)
	return out
}

func copyTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	return out
}
