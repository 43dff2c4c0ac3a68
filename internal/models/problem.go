package models

import "time"

// ProblemStatus is the lifecycle state of a problem.
type ProblemStatus string

const (
	ProblemStatusOpen   ProblemStatus = "OPEN"
	ProblemStatusClosed ProblemStatus = "CLOSED"
)

// Valid reports whether s is one of the known statuses.
func (s ProblemStatus) Valid() bool {
	return s == ProblemStatusOpen || s == ProblemStatusClosed
}

// DateLayout is the wire and storage format of Problem.Deadline.
const DateLayout = "2006-01-02"

// Problem is a tracked issue under the 8D method.
type Problem struct {
	ID                int64         `json:"id"`
	Title             string        `json:"title"`
	Description       string        `json:"description"`
	ResponsiblePerson string        `json:"responsible_person"`
	Team              string        `json:"team"`
	Deadline          string        `json:"deadline"` // YYYY-MM-DD, empty when unset
	Status            ProblemStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}
