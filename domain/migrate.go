package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Early saved shapes predate comment support: boards had no nextCommentId,
// tasks had no commentIds, and created was stored as a date string. The
// legacy decoder below brings all of that forward in one pass. It only ever
// runs against locally persisted data; remote documents are written by
// current code and are assumed current-shape.

type legacyUserBoards struct {
	ActiveBoardID string                 `json:"activeBoardId"`
	Boards        map[string]legacyBoard `json:"boards"`
}

type legacyBoard struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Columns       []legacyColumn `json:"columns"`
	NextColumnID  int            `json:"nextColumnId"`
	NextTaskID    int            `json:"nextTaskId"`
	NextCommentID *int           `json:"nextCommentId"`
}

type legacyColumn struct {
	ID    int          `json:"id"`
	Title string       `json:"title"`
	Tasks []legacyTask `json:"tasks"`
}

type legacyTask struct {
	ID         int             `json:"id"`
	Title      string          `json:"title"`
	CommentIDs []int           `json:"commentIds"`
	Created    json.RawMessage `json:"created"`
	DueDate    *string         `json:"dueDate"`
}

// MigrateUserBoards decodes a locally persisted aggregate, backfilling
// fields absent in older saved shapes.
func MigrateUserBoards(data []byte) (UserBoards, error) {
	var raw legacyUserBoards
	if err := json.Unmarshal(data, &raw); err != nil {
		return UserBoards{}, fmt.Errorf("decode user boards: %w", err)
	}
	out := UserBoards{ActiveBoardID: raw.ActiveBoardID, Boards: make(map[string]Board, len(raw.Boards))}
	for id, lb := range raw.Boards {
		board := Board{
			ID:           lb.ID,
			Name:         lb.Name,
			Columns:      make([]Column, 0, len(lb.Columns)),
			NextColumnID: lb.NextColumnID,
			NextTaskID:   lb.NextTaskID,
		}
		if board.ID == "" {
			board.ID = id
		}
		// Saves written before comment support carry no counter, and some
		// carry a zero; both start allocation at 1.
		board.NextCommentID = 1
		if lb.NextCommentID != nil && *lb.NextCommentID >= 1 {
			board.NextCommentID = *lb.NextCommentID
		}
		for _, lc := range lb.Columns {
			col := Column{ID: lc.ID, Title: lc.Title, Tasks: make([]Task, 0, len(lc.Tasks))}
			for _, lt := range lc.Tasks {
				task := Task{
					ID:         lt.ID,
					Title:      lt.Title,
					CommentIDs: lt.CommentIDs,
					Created:    normalizeCreated(lt.Created),
					DueDate:    lt.DueDate,
				}
				if task.CommentIDs == nil {
					task.CommentIDs = []int{}
				}
				col.Tasks = append(col.Tasks, task)
			}
			board.Columns = append(board.Columns, col)
		}
		out.Boards[id] = board
	}
	return out, nil
}

// normalizeCreated accepts either epoch millis or a date string left behind
// by the pre-comment data model.
func normalizeCreated(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var millis int64
	if err := json.Unmarshal(raw, &millis); err == nil {
		return millis
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}
