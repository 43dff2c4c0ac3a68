// Package rca is the problem and root-cause service: it validates requests,
// persists them through a store.Store and keeps each problem's status in line
// with its resolved root causes.
package rca

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/joescharf/eightd/internal/metrics"
	"github.com/joescharf/eightd/internal/models"
	"github.com/joescharf/eightd/internal/store"
	"github.com/joescharf/eightd/internal/tree"
)

// ProblemInput is the payload for creating a problem.
type ProblemInput struct {
	Title             string `json:"title" validate:"required,max=255"`
	Description       string `json:"description"`
	ResponsiblePerson string `json:"responsible_person" validate:"required,max=100"`
	Team              string `json:"team" validate:"max=100"`
	Deadline          string `json:"deadline" validate:"omitempty,datetime=2006-01-02"`
	Status            string `json:"status"`
}

func (in *ProblemInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.ResponsiblePerson = strings.TrimSpace(in.ResponsiblePerson)
	in.Team = strings.TrimSpace(in.Team)
	in.Deadline = strings.TrimSpace(in.Deadline)
	in.Status = strings.TrimSpace(in.Status)
}

// ProblemPatch updates a problem. Nil fields keep their stored value; a
// non-nil empty string clears an optional field.
type ProblemPatch struct {
	Title             *string `json:"title"`
	Description       *string `json:"description"`
	ResponsiblePerson *string `json:"responsible_person"`
	Team              *string `json:"team"`
	Deadline          *string `json:"deadline"`
	Status            *string `json:"status"`
}

// RootCauseInput is the payload for adding a why. A nil or non-positive
// ParentID makes it a top-level why.
type RootCauseInput struct {
	ProblemID   int64  `json:"problem_id" validate:"gt=0"`
	ParentID    *int64 `json:"parent_id"`
	Description string `json:"description" validate:"required"`
	IsRootCause bool   `json:"is_root_cause"`
	ActionPlan  string `json:"action_plan"`
}

func (in *RootCauseInput) normalize() {
	in.Description = strings.TrimSpace(in.Description)
	in.ActionPlan = strings.TrimSpace(in.ActionPlan)
	if in.ParentID != nil && *in.ParentID <= 0 {
		in.ParentID = nil
	}
}

// RootCausePatch updates a why. Nil fields keep their stored value.
type RootCausePatch struct {
	Description *string `json:"description"`
	IsRootCause *bool   `json:"is_root_cause"`
	ActionPlan  *string `json:"action_plan"`
}

// UpdateResult reports a root cause edit. StatusErr is set when the node was
// saved but the problem status could not be re-derived.
type UpdateResult struct {
	Node                 *models.RootCause
	ProblemStatusChanged bool
	StatusErr            error
}

// DeleteResult reports a root cause deletion.
type DeleteResult struct {
	Removed              []*models.RootCause
	ProblemStatusChanged bool
	StatusErr            error
}

// Service is the entry point for every problem and root cause operation.
type Service struct {
	store    store.Store
	logger   *slog.Logger
	metrics  *metrics.Metrics
	maxDepth int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records status transitions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithMaxDepth bounds how deep whys may nest. AddRootCause rejects nodes
// beyond it and RootCauseTree refuses to build deeper trees.
func WithMaxDepth(depth int) Option {
	return func(s *Service) { s.maxDepth = depth }
}

// depthLimit is the deepest a why may nest, counting a top-level why as 1.
func (s *Service) depthLimit() int {
	if s.maxDepth <= 0 {
		return tree.DefaultMaxDepth
	}
	return s.maxDepth
}

// NewService creates a Service backed by st.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:    st,
		logger:   slog.Default(),
		maxDepth: tree.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- Problems ---

// CreateProblem stores a new problem and returns its id. An unknown status is
// stored as OPEN.
func (s *Service) CreateProblem(ctx context.Context, in ProblemInput) (int64, error) {
	in.normalize()
	if err := validateInput(&in); err != nil {
		return 0, err
	}

	status := models.ProblemStatus(in.Status)
	if !status.Valid() {
		status = models.ProblemStatusOpen
	}

	p := &models.Problem{
		Title:             in.Title,
		Description:       in.Description,
		ResponsiblePerson: in.ResponsiblePerson,
		Team:              in.Team,
		Deadline:          in.Deadline,
		Status:            status,
	}
	if err := s.store.CreateProblem(ctx, p); err != nil {
		return 0, goerr.Wrap(err, "failed to create problem", goerr.V("title", p.Title))
	}
	return p.ID, nil
}

func (s *Service) GetProblem(ctx context.Context, id int64) (*models.Problem, error) {
	if id <= 0 {
		return nil, validationErr("Invalid ID")
	}
	p, err := s.store.GetProblem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundErr("Problem not found")
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get problem", goerr.V("problem_id", id))
	}
	return p, nil
}

// ListProblems returns every problem, newest first.
func (s *Service) ListProblems(ctx context.Context) ([]*models.Problem, error) {
	problems, err := s.store.ListProblems(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list problems")
	}
	if problems == nil {
		problems = []*models.Problem{}
	}
	return problems, nil
}

// UpdateProblem applies patch to the problem. Unlike CreateProblem, an
// unknown status is rejected.
func (s *Service) UpdateProblem(ctx context.Context, id int64, patch ProblemPatch) (*models.Problem, error) {
	if id <= 0 {
		return nil, validationErr("Invalid ID")
	}
	p, err := s.GetProblem(ctx, id)
	if err != nil {
		return nil, err
	}

	if v := trimPtr(patch.Title); v != nil {
		if *v == "" {
			return nil, validationErr("Title is required")
		}
		p.Title = *v
	}
	if v := trimPtr(patch.ResponsiblePerson); v != nil {
		if *v == "" {
			return nil, validationErr("Responsible person is required")
		}
		p.ResponsiblePerson = *v
	}
	if v := trimPtr(patch.Description); v != nil {
		p.Description = *v
	}
	if v := trimPtr(patch.Team); v != nil {
		p.Team = *v
	}
	if v := trimPtr(patch.Deadline); v != nil {
		if *v != "" && !validDate(*v) {
			return nil, validationErr("Deadline must be a date in YYYY-MM-DD format")
		}
		p.Deadline = *v
	}
	if v := trimPtr(patch.Status); v != nil && *v != "" {
		status := models.ProblemStatus(*v)
		if !status.Valid() {
			return nil, validationErr("Invalid status. Must be OPEN or CLOSED")
		}
		p.Status = status
	}

	if err := s.store.UpdateProblem(ctx, p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundErr("Problem not found")
		}
		return nil, goerr.Wrap(err, "failed to update problem", goerr.V("problem_id", id))
	}
	return p, nil
}

// DeleteProblem removes the problem and its whole root cause tree.
func (s *Service) DeleteProblem(ctx context.Context, id int64) error {
	if id <= 0 {
		return validationErr("Invalid ID")
	}
	err := s.store.DeleteProblem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return notFoundErr("Problem not found")
	}
	if err != nil {
		return goerr.Wrap(err, "failed to delete problem", goerr.V("problem_id", id))
	}
	return nil
}

// --- Root causes ---

// RootCauseTree returns the nested why forest of a problem. A problem without
// nodes, or one that does not exist, yields an empty forest.
func (s *Service) RootCauseTree(ctx context.Context, problemID int64) ([]*models.TreeNode, error) {
	if problemID <= 0 {
		return nil, validationErr("Invalid problem ID")
	}
	nodes, err := s.store.ListRootCauses(ctx, problemID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list root causes", goerr.V("problem_id", problemID))
	}

	if orphans := tree.Orphans(nodes); len(orphans) > 0 {
		orphanIDs := make([]int64, len(orphans))
		for i, o := range orphans {
			orphanIDs[i] = o.ID
		}
		s.logger.Warn("root causes unreachable from tree roots",
			"problem_id", problemID, "ids", orphanIDs)
	}

	forest, err := tree.Build(nodes, s.depthLimit())
	if errors.Is(err, tree.ErrTooDeep) {
		// Only reachable when tree.max_depth was lowered below existing data.
		s.logger.Warn("root cause tree deeper than configured limit",
			"problem_id", problemID, "max_depth", s.depthLimit(), "error", err)
		return nil, validationErr("Root cause tree exceeds maximum depth")
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build root cause tree", goerr.V("problem_id", problemID))
	}
	return forest, nil
}

func (s *Service) GetRootCause(ctx context.Context, id int64) (*models.RootCause, error) {
	if id <= 0 {
		return nil, validationErr("Invalid ID")
	}
	rc, err := s.store.GetRootCause(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundErr("Root cause not found")
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get root cause", goerr.V("root_cause_id", id))
	}
	return rc, nil
}

// AddRootCause stores a new why and returns its id. Adding never changes the
// problem status.
func (s *Service) AddRootCause(ctx context.Context, in RootCauseInput) (int64, error) {
	in.normalize()
	if err := validateInput(&in); err != nil {
		return 0, err
	}

	if _, err := s.GetProblem(ctx, in.ProblemID); err != nil {
		return 0, err
	}

	if in.ParentID != nil {
		parent, err := s.store.GetRootCause(ctx, *in.ParentID)
		if errors.Is(err, store.ErrNotFound) {
			return 0, notFoundErr("Parent root cause not found")
		}
		if err != nil {
			return 0, goerr.Wrap(err, "failed to get parent root cause", goerr.V("parent_id", *in.ParentID))
		}
		if parent.ProblemID != in.ProblemID {
			return 0, validationErr("Parent root cause belongs to a different problem")
		}

		depth, err := s.store.RootCauseDepth(ctx, parent.ID)
		if err != nil {
			return 0, goerr.Wrap(err, "failed to measure parent depth", goerr.V("parent_id", parent.ID))
		}
		if depth+1 > s.depthLimit() {
			return 0, validationErr("Root cause tree exceeds maximum depth")
		}
	}

	rc := &models.RootCause{
		ProblemID:   in.ProblemID,
		ParentID:    in.ParentID,
		Description: in.Description,
		IsRootCause: in.IsRootCause,
		ActionPlan:  in.ActionPlan,
	}
	if err := s.store.CreateRootCause(ctx, rc); err != nil {
		return 0, goerr.Wrap(err, "failed to create root cause", goerr.V("problem_id", in.ProblemID))
	}
	return rc.ID, nil
}

// UpdateRootCause applies patch to a why and then re-derives the owning
// problem's status. A failure of the status step does not undo the edit: it
// is logged and reported in UpdateResult.StatusErr.
func (s *Service) UpdateRootCause(ctx context.Context, id int64, patch RootCausePatch) (*UpdateResult, error) {
	rc, err := s.GetRootCause(ctx, id)
	if err != nil {
		return nil, err
	}

	if v := trimPtr(patch.Description); v != nil {
		if *v == "" {
			return nil, validationErr("Description is required")
		}
		rc.Description = *v
	}
	if patch.IsRootCause != nil {
		rc.IsRootCause = *patch.IsRootCause
	}
	if v := trimPtr(patch.ActionPlan); v != nil {
		rc.ActionPlan = *v
	}

	if err := s.store.UpdateRootCause(ctx, rc); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundErr("Root cause not found")
		}
		return nil, goerr.Wrap(err, "failed to update root cause", goerr.V("root_cause_id", id))
	}

	result := &UpdateResult{Node: rc}
	result.ProblemStatusChanged, result.StatusErr = s.deriveAfterUpdate(ctx, rc)
	if result.StatusErr != nil {
		s.metrics.RecordDerivationFailure()
		s.logger.Warn("root cause saved but problem status not derived",
			"root_cause_id", id, "problem_id", rc.ProblemID, "error", result.StatusErr)
	}
	return result, nil
}

// DeleteRootCause removes a why together with every why below it. When the
// removed rows held the problem's last resolved root cause, the problem is
// reopened.
func (s *Service) DeleteRootCause(ctx context.Context, id int64) (*DeleteResult, error) {
	if id <= 0 {
		return nil, validationErr("Invalid ID")
	}
	removed, err := s.store.DeleteRootCause(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundErr("Root cause not found")
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to delete root cause", goerr.V("root_cause_id", id))
	}

	result := &DeleteResult{Removed: removed}
	result.ProblemStatusChanged, result.StatusErr = s.deriveAfterDelete(ctx, removed[0].ProblemID, removed)
	if result.StatusErr != nil {
		s.metrics.RecordDerivationFailure()
		s.logger.Warn("root cause deleted but problem status not derived",
			"root_cause_id", id, "problem_id", removed[0].ProblemID, "error", result.StatusErr)
	}
	return result, nil
}
