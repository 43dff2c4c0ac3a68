package store

import (
	"context"
	"errors"

	"github.com/joescharf/eightd/internal/models"
)

// ErrNotFound is wrapped by every lookup or mutation that targets a missing row.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for eightd.
type Store interface {
	// Problems
	CreateProblem(ctx context.Context, p *models.Problem) error
	GetProblem(ctx context.Context, id int64) (*models.Problem, error)
	ListProblems(ctx context.Context) ([]*models.Problem, error)
	UpdateProblem(ctx context.Context, p *models.Problem) error
	DeleteProblem(ctx context.Context, id int64) error
	// SetProblemStatus writes status and reports whether the stored value changed.
	SetProblemStatus(ctx context.Context, id int64, status models.ProblemStatus) (bool, error)

	// Root causes
	CreateRootCause(ctx context.Context, rc *models.RootCause) error
	GetRootCause(ctx context.Context, id int64) (*models.RootCause, error)
	ListRootCauses(ctx context.Context, problemID int64) ([]*models.RootCause, error)
	UpdateRootCause(ctx context.Context, rc *models.RootCause) error
	// DeleteRootCause removes the node and its whole subtree atomically and
	// returns the removed rows.
	DeleteRootCause(ctx context.Context, id int64) ([]*models.RootCause, error)
	// RootCauseDepth returns how many nodes lie on the path from the top-level
	// why down to id, inclusive. A top-level why has depth 1.
	RootCauseDepth(ctx context.Context, id int64) (int, error)
	// HasResolvedRootCause reports whether any node of the problem other than
	// excludeID is a root cause with a non-blank action plan.
	HasResolvedRootCause(ctx context.Context, problemID, excludeID int64) (bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
