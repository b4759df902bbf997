package domain

import "testing"

func TestCommentsForTaskNewestFirst(t *testing.T) {
	comments := []Comment{
		{ID: 1, TaskID: 5, Text: "oldest", CreatedAt: 100},
		{ID: 2, TaskID: 9, Text: "other task", CreatedAt: 250},
		{ID: 3, TaskID: 5, Text: "newest", CreatedAt: 300},
		{ID: 4, TaskID: 5, Text: "middle", CreatedAt: 200},
	}

	got := CommentsForTask(comments, 5)
	if len(got) != 3 {
		t.Fatalf("expected 3 comments, got %d", len(got))
	}
	wantOrder := []int64{300, 200, 100}
	for i, ts := range wantOrder {
		if got[i].CreatedAt != ts {
			t.Fatalf("position %d: got createdAt %d, want %d", i, got[i].CreatedAt, ts)
		}
	}
}

func TestCommentsForTaskStableOnTies(t *testing.T) {
	comments := []Comment{
		{ID: 1, TaskID: 1, CreatedAt: 100},
		{ID: 2, TaskID: 1, CreatedAt: 100},
	}
	got := CommentsForTask(comments, 1)
	if got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("tie order not stable: %+v", got)
	}
}

func TestCommentsForTaskEmpty(t *testing.T) {
	if got := CommentsForTask(nil, 3); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestRemoveComment(t *testing.T) {
	comments := []Comment{{ID: 1}, {ID: 2}, {ID: 3}}

	rest, removed := RemoveComment(comments, 2)
	if !removed {
		t.Fatalf("expected removal")
	}
	if len(rest) != 2 || rest[0].ID != 1 || rest[1].ID != 3 {
		t.Fatalf("unexpected remainder: %+v", rest)
	}

	rest, removed = RemoveComment(rest, 2)
	if removed {
		t.Fatalf("second removal reported a change")
	}
	if len(rest) != 2 {
		t.Fatalf("remainder changed on no-op: %+v", rest)
	}
}
