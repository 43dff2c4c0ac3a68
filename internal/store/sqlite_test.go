package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/eightd/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func seedProblem(t *testing.T, s *SQLiteStore, title string) *models.Problem {
	t.Helper()
	p := &models.Problem{Title: title, ResponsiblePerson: "Ayşe"}
	require.NoError(t, s.CreateProblem(context.Background(), p))
	return p
}

func seedRootCause(t *testing.T, s *SQLiteStore, problemID int64, parentID *int64, desc string) *models.RootCause {
	t.Helper()
	rc := &models.RootCause{ProblemID: problemID, ParentID: parentID, Description: desc}
	require.NoError(t, s.CreateRootCause(context.Background(), rc))
	return rc
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

// --- Problem CRUD ---

func TestProblemCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &models.Problem{
		Title:             "Line down",
		Description:       "Packaging line 3 stopped",
		ResponsiblePerson: "Ayşe",
		Team:              "Maintenance",
		Deadline:          "2026-11-01",
	}
	require.NoError(t, s.CreateProblem(ctx, p))
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, models.ProblemStatusOpen, p.Status)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := s.GetProblem(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Line down", got.Title)
	assert.Equal(t, "Packaging line 3 stopped", got.Description)
	assert.Equal(t, "Maintenance", got.Team)
	assert.Equal(t, "2026-11-01", got.Deadline)
	assert.Equal(t, models.ProblemStatusOpen, got.Status)

	got.Team = ""
	got.Status = models.ProblemStatusClosed
	require.NoError(t, s.UpdateProblem(ctx, got))

	got2, err := s.GetProblem(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got2.Team)
	assert.Equal(t, models.ProblemStatusClosed, got2.Status)

	require.NoError(t, s.DeleteProblem(ctx, p.ID))
	_, err = s.GetProblem(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProblem_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetProblem(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.UpdateProblem(ctx, &models.Problem{ID: 42, Title: "x", ResponsiblePerson: "y", Status: models.ProblemStatusOpen})
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.DeleteProblem(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.SetProblemStatus(ctx, 42, models.ProblemStatusClosed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListProblems_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := seedProblem(t, s, "first")
	second := seedProblem(t, s, "second")
	third := seedProblem(t, s, "third")

	problems, err := s.ListProblems(ctx)
	require.NoError(t, err)
	require.Len(t, problems, 3)
	assert.Equal(t, third.ID, problems[0].ID)
	assert.Equal(t, second.ID, problems[1].ID)
	assert.Equal(t, first.ID, problems[2].ID)
}

func TestSetProblemStatus_ReportsChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProblem(t, s, "p")

	changed, err := s.SetProblemStatus(ctx, p.ID, models.ProblemStatusOpen)
	require.NoError(t, err)
	assert.False(t, changed, "already OPEN")

	changed, err = s.SetProblemStatus(ctx, p.ID, models.ProblemStatusClosed)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.SetProblemStatus(ctx, p.ID, models.ProblemStatusClosed)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestProblemStatus_CheckConstraint(t *testing.T) {
	s := newTestStore(t)
	p := &models.Problem{Title: "t", ResponsiblePerson: "r", Status: "PENDING"}
	assert.Error(t, s.CreateProblem(context.Background(), p))
}

// --- Root causes ---

func TestRootCauseCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProblem(t, s, "p")

	top := seedRootCause(t, s, p.ID, nil, "Machine stopped")
	child := seedRootCause(t, s, p.ID, &top.ID, "Sensor failed")

	got, err := s.GetRootCause(ctx, child.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, top.ID, *got.ParentID)
	assert.Equal(t, p.ID, got.ProblemID)
	assert.False(t, got.IsRootCause)
	assert.Empty(t, got.ActionPlan)

	got.IsRootCause = true
	got.ActionPlan = "Replace sensor"
	require.NoError(t, s.UpdateRootCause(ctx, got))

	got2, err := s.GetRootCause(ctx, child.ID)
	require.NoError(t, err)
	assert.True(t, got2.IsRootCause)
	assert.Equal(t, "Replace sensor", got2.ActionPlan)

	nodes, err := s.ListRootCauses(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, top.ID, nodes[0].ID)
	assert.Nil(t, nodes[0].ParentID)
	assert.Equal(t, child.ID, nodes[1].ID)
}

func TestRootCause_ForeignKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.CreateRootCause(ctx, &models.RootCause{ProblemID: 7, Description: "Machine stopped"})
	assert.Error(t, err, "problem 7 does not exist")

	p := seedProblem(t, s, "p")
	missing := int64(99)
	err = s.CreateRootCause(ctx, &models.RootCause{ProblemID: p.ID, ParentID: &missing, Description: "x"})
	assert.Error(t, err, "parent 99 does not exist")

	nodes, err := s.ListRootCauses(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestDeleteRootCause_RemovesWholeSubtree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProblem(t, s, "p")

	n := seedRootCause(t, s, p.ID, nil, "N")
	d1 := seedRootCause(t, s, p.ID, &n.ID, "D1")
	d2 := seedRootCause(t, s, p.ID, &d1.ID, "D2")
	d3 := seedRootCause(t, s, p.ID, &d2.ID, "D3")
	sibling := seedRootCause(t, s, p.ID, nil, "sibling")

	removed, err := s.DeleteRootCause(ctx, n.ID)
	require.NoError(t, err)
	ids := make([]int64, 0, len(removed))
	for _, rc := range removed {
		ids = append(ids, rc.ID)
	}
	assert.Equal(t, []int64{n.ID, d1.ID, d2.ID, d3.ID}, ids)

	nodes, err := s.ListRootCauses(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, sibling.ID, nodes[0].ID)
}

func TestDeleteRootCause_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.DeleteRootCause(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRootCauseDepth(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProblem(t, s, "p")

	n := seedRootCause(t, s, p.ID, nil, "N")
	d1 := seedRootCause(t, s, p.ID, &n.ID, "D1")
	d2 := seedRootCause(t, s, p.ID, &d1.ID, "D2")

	for want, id := range []int64{n.ID, d1.ID, d2.ID} {
		depth, err := s.RootCauseDepth(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want+1, depth, "node %d", id)
	}

	_, err := s.RootCauseDepth(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteProblem_CascadesRootCauses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProblem(t, s, "p")
	other := seedProblem(t, s, "other")

	top := seedRootCause(t, s, p.ID, nil, "top")
	seedRootCause(t, s, p.ID, &top.ID, "child")
	kept := seedRootCause(t, s, other.ID, nil, "other top")

	require.NoError(t, s.DeleteProblem(ctx, p.ID))

	nodes, err := s.ListRootCauses(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, nodes)

	_, err = s.GetRootCause(ctx, top.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetRootCause(ctx, kept.ID)
	assert.NoError(t, err)
}

func TestHasResolvedRootCause(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := seedProblem(t, s, "p")

	a := seedRootCause(t, s, p.ID, nil, "A")
	b := seedRootCause(t, s, p.ID, nil, "B")

	ok, err := s.HasResolvedRootCause(ctx, p.ID, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	a.IsRootCause = true
	a.ActionPlan = " \t\n"
	require.NoError(t, s.UpdateRootCause(ctx, a))

	ok, err = s.HasResolvedRootCause(ctx, p.ID, 0)
	require.NoError(t, err)
	assert.False(t, ok, "whitespace-only action plan does not resolve")

	a.ActionPlan = "Replace sensor"
	require.NoError(t, s.UpdateRootCause(ctx, a))

	ok, err = s.HasResolvedRootCause(ctx, p.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasResolvedRootCause(ctx, p.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, ok, "excluded node is ignored")
}
