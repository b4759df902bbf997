package domain

import "testing"

func seedBoard() (UserBoards, string) {
	boards := NewUserBoards()
	boardID := boards.ActiveBoardID
	boards, _, _ = boards.AddColumn(boardID, "Todo")
	boards, _, _ = boards.AddColumn(boardID, "Doing")
	return boards, boardID
}

func TestAddColumnAllocatesSequentialIDs(t *testing.T) {
	boards, boardID := seedBoard()

	board := boards.Boards[boardID]
	if len(board.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(board.Columns))
	}
	if board.Columns[0].ID != 1 || board.Columns[1].ID != 2 {
		t.Fatalf("expected column ids 1,2, got %d,%d", board.Columns[0].ID, board.Columns[1].ID)
	}
	if board.NextColumnID != 3 {
		t.Fatalf("expected nextColumnId 3, got %d", board.NextColumnID)
	}
}

func TestAddColumnUnknownBoard(t *testing.T) {
	boards, _ := seedBoard()

	next, _, err := boards.AddColumn("missing", "Later")
	if err != ErrBoardNotFound {
		t.Fatalf("expected ErrBoardNotFound, got %v", err)
	}
	if len(next.Boards) != len(boards.Boards) {
		t.Fatalf("aggregate changed on failed add")
	}
}

func TestAddTaskAppendsToNamedColumn(t *testing.T) {
	boards, boardID := seedBoard()

	boards, task, err := boards.AddTask(boardID, 1, "Write spec", 1700000000000)
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	if task.ID != 1 {
		t.Fatalf("expected task id 1, got %d", task.ID)
	}
	if task.DueDate != nil {
		t.Fatalf("expected nil due date, got %v", *task.DueDate)
	}
	if len(task.CommentIDs) != 0 || task.CommentIDs == nil {
		t.Fatalf("expected empty comment id list, got %v", task.CommentIDs)
	}

	board := boards.Boards[boardID]
	todo := board.Columns[0]
	if len(todo.Tasks) != 1 || todo.Tasks[0].Title != "Write spec" {
		t.Fatalf("task not appended to Todo: %+v", todo.Tasks)
	}
	if len(board.Columns[1].Tasks) != 0 {
		t.Fatalf("task leaked into Doing column")
	}
	if board.NextTaskID != 2 {
		t.Fatalf("expected nextTaskId 2, got %d", board.NextTaskID)
	}
}

func TestAddTaskUnknownColumn(t *testing.T) {
	boards, boardID := seedBoard()

	_, _, err := boards.AddTask(boardID, 99, "Lost", 0)
	if err != ErrColumnNotFound {
		t.Fatalf("expected ErrColumnNotFound, got %v", err)
	}
}

func TestTaskIDsNeverCollide(t *testing.T) {
	boards, boardID := seedBoard()

	seen := map[int]bool{}
	for i := 0; i < 5; i++ {
		var task Task
		var err error
		boards, task, err = boards.AddTask(boardID, 1+(i%2), "t", int64(i))
		if err != nil {
			t.Fatalf("add task %d: %v", i, err)
		}
		if seen[task.ID] {
			t.Fatalf("task id %d allocated twice", task.ID)
		}
		seen[task.ID] = true
	}
	if boards.Boards[boardID].NextTaskID != 6 {
		t.Fatalf("expected nextTaskId 6, got %d", boards.Boards[boardID].NextTaskID)
	}
}

func TestUpdateTaskMergesFields(t *testing.T) {
	boards, boardID := seedBoard()
	boards, task, _ := boards.AddTask(boardID, 1, "Draft", 10)

	title := "Draft v2"
	due := "2026-09-01"
	boards, updated, err := boards.UpdateTask(boardID, task.ID, TaskFields{Title: &title, DueDate: &due}, nil)
	if err != nil {
		t.Fatalf("update task: %v", err)
	}
	if updated.Title != "Draft v2" {
		t.Fatalf("title not merged: %q", updated.Title)
	}
	if updated.DueDate == nil || *updated.DueDate != "2026-09-01" {
		t.Fatalf("due date not merged: %v", updated.DueDate)
	}
	if updated.Created != 10 {
		t.Fatalf("created clobbered: %d", updated.Created)
	}

	boards, cleared, err := boards.UpdateTask(boardID, task.ID, TaskFields{ClearDueDate: true}, nil)
	if err != nil {
		t.Fatalf("clear due date: %v", err)
	}
	if cleared.DueDate != nil {
		t.Fatalf("due date not cleared: %v", *cleared.DueDate)
	}
	if got := boards.Boards[boardID].Columns[0].Tasks[0]; got.DueDate != nil {
		t.Fatalf("stored task still has due date")
	}
}

func TestUpdateTaskMoveAppendsToTarget(t *testing.T) {
	boards, boardID := seedBoard()
	boards, t1, _ := boards.AddTask(boardID, 1, "first", 1)
	boards, _, _ = boards.AddTask(boardID, 1, "second", 2)
	boards, _, _ = boards.AddTask(boardID, 2, "existing", 3)

	before := boards.Boards[boardID].TaskCount()

	target := 2
	boards, _, err := boards.UpdateTask(boardID, t1.ID, TaskFields{}, &target)
	if err != nil {
		t.Fatalf("move task: %v", err)
	}

	board := boards.Boards[boardID]
	if board.TaskCount() != before {
		t.Fatalf("task count changed across move: %d != %d", board.TaskCount(), before)
	}
	todo, doing := board.Columns[0], board.Columns[1]
	if len(todo.Tasks) != 1 || todo.Tasks[0].Title != "second" {
		t.Fatalf("source column wrong after move: %+v", todo.Tasks)
	}
	if len(doing.Tasks) != 2 || doing.Tasks[1].ID != t1.ID {
		t.Fatalf("moved task not appended to target end: %+v", doing.Tasks)
	}
}

func TestUpdateTaskMoveToSameColumnKeepsPosition(t *testing.T) {
	boards, boardID := seedBoard()
	boards, t1, _ := boards.AddTask(boardID, 1, "first", 1)
	boards, _, _ = boards.AddTask(boardID, 1, "second", 2)

	target := 1
	boards, _, err := boards.UpdateTask(boardID, t1.ID, TaskFields{}, &target)
	if err != nil {
		t.Fatalf("move task: %v", err)
	}
	todo := boards.Boards[boardID].Columns[0]
	if todo.Tasks[0].ID != t1.ID {
		t.Fatalf("task reordered by same-column move: %+v", todo.Tasks)
	}
}

func TestUpdateTaskNotFound(t *testing.T) {
	boards, boardID := seedBoard()

	_, _, err := boards.UpdateTask(boardID, 42, TaskFields{}, nil)
	if err != ErrTaskNotFound {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestUpdateColumnTitle(t *testing.T) {
	boards, boardID := seedBoard()

	title := "Backlog"
	boards, col, err := boards.UpdateColumn(boardID, 1, ColumnFields{Title: &title})
	if err != nil {
		t.Fatalf("update column: %v", err)
	}
	if col.Title != "Backlog" {
		t.Fatalf("title not merged: %q", col.Title)
	}
	if boards.Boards[boardID].Columns[0].Title != "Backlog" {
		t.Fatalf("stored column not updated")
	}
}

func TestSwitchBoard(t *testing.T) {
	boards, _ := seedBoard()
	boards, second := boards.CreateBoard("Second")

	if boards.ActiveBoardID != second.ID {
		t.Fatalf("create board did not activate it")
	}

	_, err := boards.SwitchBoard("nope")
	if err != ErrBoardNotFound {
		t.Fatalf("expected ErrBoardNotFound, got %v", err)
	}

	first := ""
	for id := range boards.Boards {
		if id != second.ID {
			first = id
		}
	}
	boards, err = boards.SwitchBoard(first)
	if err != nil {
		t.Fatalf("switch board: %v", err)
	}
	if boards.ActiveBoardID != first {
		t.Fatalf("active board not switched")
	}
}

func TestCreateBoardCountersStartAtOne(t *testing.T) {
	boards := NewUserBoards()
	boards, board := boards.CreateBoard("Fresh")

	if board.NextColumnID != 1 || board.NextTaskID != 1 || board.NextCommentID != 1 {
		t.Fatalf("counters not initialized to 1: %+v", board)
	}
	if len(board.Columns) != 0 {
		t.Fatalf("new board has columns: %+v", board.Columns)
	}
	if _, ok := boards.Boards[board.ID]; !ok {
		t.Fatalf("board not inserted into aggregate")
	}
}

func TestAttachCommentBumpsCounterAndRecordsID(t *testing.T) {
	boards, boardID := seedBoard()
	boards, task, _ := boards.AddTask(boardID, 1, "with comments", 1)

	boards, id, err := boards.AttachComment(boardID, task.ID)
	if err != nil {
		t.Fatalf("attach comment: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected comment id 1, got %d", id)
	}
	board := boards.Boards[boardID]
	if board.NextCommentID != 2 {
		t.Fatalf("expected nextCommentId 2, got %d", board.NextCommentID)
	}
	got := board.Columns[0].Tasks[0].CommentIDs
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("comment id not recorded on task: %v", got)
	}
}

func TestAttachCommentUnknownTask(t *testing.T) {
	boards, boardID := seedBoard()

	_, _, err := boards.AttachComment(boardID, 7)
	if err != ErrTaskNotFound {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestDetachComment(t *testing.T) {
	boards, boardID := seedBoard()
	boards, task, _ := boards.AddTask(boardID, 1, "with comments", 1)
	boards, id, _ := boards.AttachComment(boardID, task.ID)

	boards, changed, err := boards.DetachComment(boardID, id)
	if err != nil {
		t.Fatalf("detach comment: %v", err)
	}
	if !changed {
		t.Fatalf("expected detach to report a change")
	}
	if got := boards.Boards[boardID].Columns[0].Tasks[0].CommentIDs; len(got) != 0 {
		t.Fatalf("comment id still on task: %v", got)
	}

	_, changed, err = boards.DetachComment(boardID, id)
	if err != nil {
		t.Fatalf("repeat detach: %v", err)
	}
	if changed {
		t.Fatalf("repeat detach reported a change")
	}
}

func TestMutationsDoNotAliasPreviousSnapshot(t *testing.T) {
	boards, boardID := seedBoard()
	boards, task, _ := boards.AddTask(boardID, 1, "original", 1)
	snapshot := boards

	title := "renamed"
	if _, _, err := boards.UpdateTask(boardID, task.ID, TaskFields{Title: &title}, nil); err != nil {
		t.Fatalf("update task: %v", err)
	}

	if got := snapshot.Boards[boardID].Columns[0].Tasks[0].Title; got != "original" {
		t.Fatalf("previous snapshot mutated: %q", got)
	}
}
