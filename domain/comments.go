package domain

import "sort"

// CommentsForTask filters the flat collection down to one task's comments,
// ordered newest first. Ties keep insertion order.
func CommentsForTask(comments []Comment, taskID int) []Comment {
	out := []Comment{}
	for _, c := range comments {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out
}

// RemoveComment drops the comment with the given id from the collection.
// The boolean reports whether anything was removed.
func RemoveComment(comments []Comment, commentID int) ([]Comment, bool) {
	out := make([]Comment, 0, len(comments))
	removed := false
	for _, c := range comments {
		if c.ID == commentID {
			removed = true
			continue
		}
		out = append(out, c)
	}
	return out, removed
}
