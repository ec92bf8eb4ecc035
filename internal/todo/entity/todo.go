package entity

import "time"

// Todo is a row of the `todos` table. UserID is the owner and is fixed at
// creation; every access is scoped by it.
type Todo struct {
	ID          int64     `db:"id" json:"id,string"`
	UserID      int64     `db:"user_id" json:"user_id"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description"`
	Deadline    time.Time `db:"deadline" json:"deadline"`
	Completed   bool      `db:"completed" json:"completed"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Patch is a partial update. It has no owner field, so ownership cannot
// change through it.
type Patch struct {
	Title       *string
	Description *string
	Deadline    *time.Time
	Completed   *bool
}

// Apply merges the present fields of p into t.
func (p Patch) Apply(t *Todo) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		d := *p.Description
		t.Description = &d
	}
	if p.Deadline != nil {
		t.Deadline = *p.Deadline
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
}
