package domain

import "errors"

// Lookup misses are reported as typed sentinels so callers can decide
// whether to swallow them or surface a 404.
var (
	ErrBoardNotFound   = errors.New("board not found")
	ErrColumnNotFound  = errors.New("column not found")
	ErrTaskNotFound    = errors.New("task not found")
	ErrCommentNotFound = errors.New("comment not found")
)
