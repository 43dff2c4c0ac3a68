package models

import (
	"strings"
	"time"
)

// RootCause is one "why" in a problem's 5-Why analysis. A nil ParentID marks
// a top-level why.
type RootCause struct {
	ID          int64     `json:"id"`
	ProblemID   int64     `json:"problem_id"`
	ParentID    *int64    `json:"parent_id"`
	Description string    `json:"description"`
	IsRootCause bool      `json:"is_root_cause"`
	ActionPlan  string    `json:"action_plan"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Resolved reports whether the node is a root cause with a corrective action.
func (rc *RootCause) Resolved() bool {
	return rc.IsRootCause && strings.TrimSpace(rc.ActionPlan) != ""
}

// TreeNode is a RootCause with its nested children, as returned by the tree endpoint.
type TreeNode struct {
	RootCause
	Children []*TreeNode `json:"children,omitempty"`
}
