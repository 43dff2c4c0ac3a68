package cmd

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/eightd/internal/models"
	"github.com/joescharf/eightd/internal/rca"
)

func int64Ptr(v int64) *int64 { return &v }

// seedLineDown creates problem #1 with the chain 1 -> 2 -> 3.
func seedLineDown(t *testing.T) {
	t.Helper()
	require.NoError(t, problemAddRun(rca.ProblemInput{Title: "Line down", ResponsiblePerson: "Ayşe"}))
	require.NoError(t, whyAddRun(rca.RootCauseInput{ProblemID: 1, Description: "Motor overheated"}))
	require.NoError(t, whyAddRun(rca.RootCauseInput{ProblemID: 1, ParentID: int64Ptr(1), Description: "Fan clogged"}))
	require.NoError(t, whyAddRun(rca.RootCauseInput{ProblemID: 1, ParentID: int64Ptr(2), Description: "No PM schedule"}))
}

func problemStatusOf(t *testing.T, id int64) models.ProblemStatus {
	t.Helper()
	svc, err := getService(nil, nil)
	require.NoError(t, err)
	p, err := svc.GetProblem(context.Background(), id)
	require.NoError(t, err)
	return p.Status
}

func TestWhyUpdate_ClosesAndReopens(t *testing.T) {
	testEnv(t)
	out := captureOut(t)
	seedLineDown(t)

	root := true
	plan := "Add fan cleaning to weekly PM"
	require.NoError(t, whyUpdateRun(3, rca.RootCausePatch{IsRootCause: &root, ActionPlan: &plan}))
	assert.Equal(t, models.ProblemStatusClosed, problemStatusOf(t, 1))
	assert.Contains(t, out.String(), "Problem #1 is now")

	empty := ""
	require.NoError(t, whyUpdateRun(3, rca.RootCausePatch{ActionPlan: &empty}))
	assert.Equal(t, models.ProblemStatusOpen, problemStatusOf(t, 1))
}

func TestWhyUpdate_NotFound(t *testing.T) {
	testEnv(t)
	seedLineDown(t)

	desc := "x"
	err := whyUpdateRun(99, rca.RootCausePatch{Description: &desc})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Root cause not found")
}

func TestWhyAdd_Errors(t *testing.T) {
	testEnv(t)
	seedLineDown(t)

	err := whyAddRun(rca.RootCauseInput{ProblemID: 7, Description: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Problem not found")

	err = whyAddRun(rca.RootCauseInput{ProblemID: 1, ParentID: int64Ptr(50), Description: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Parent root cause not found")
}

func TestWhyRemove_Subtree(t *testing.T) {
	testEnv(t)
	out := captureOut(t)
	seedLineDown(t)

	root := true
	plan := "Weekly PM"
	require.NoError(t, whyUpdateRun(3, rca.RootCausePatch{IsRootCause: &root, ActionPlan: &plan}))
	require.Equal(t, models.ProblemStatusClosed, problemStatusOf(t, 1))

	out.Reset()
	require.NoError(t, whyRemoveRun(2))
	assert.Contains(t, out.String(), "Removed 2 why(s)")
	assert.Equal(t, models.ProblemStatusOpen, problemStatusOf(t, 1))

	err := whyRemoveRun(2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Root cause not found")
}

func TestWhyTree(t *testing.T) {
	testEnv(t)
	out := captureOut(t)
	seedLineDown(t)

	out.Reset()
	require.NoError(t, whyTreeRun(1))
	assert.Contains(t, out.String(), "└─ Why #1 [1] Motor overheated")
	assert.Contains(t, out.String(), "      └─ Why #3 [3] No PM schedule")

	out.Reset()
	jsonOut = true
	require.NoError(t, whyTreeRun(1))
	var forest []*models.TreeNode
	require.NoError(t, json.Unmarshal(out.Bytes(), &forest))
	require.Len(t, forest, 1)
	require.Len(t, forest[0].Children, 1)
	assert.Equal(t, "No PM schedule", forest[0].Children[0].Children[0].Description)
}

func TestWhyContext(t *testing.T) {
	testEnv(t)
	seedLineDown(t)
	require.NoError(t, whyAddRun(rca.RootCauseInput{ProblemID: 1, ParentID: int64Ptr(1), Description: "Ambient too hot"}))

	svc, err := getService(nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	pc, err := whyContext(ctx, svc, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "Line down", pc.Title)
	assert.Empty(t, pc.Chain)
	assert.Equal(t, []string{"Motor overheated"}, pc.Siblings)

	pc, err = whyContext(ctx, svc, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Motor overheated"}, pc.Chain)
	assert.ElementsMatch(t, []string{"Fan clogged", "Ambient too hot"}, pc.Siblings)

	pc, err = whyContext(ctx, svc, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Motor overheated", "Fan clogged", "No PM schedule"}, pc.Chain)
	assert.Empty(t, pc.Siblings)

	_, err = whyContext(ctx, svc, 1, 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not part of problem #1")
}

func TestWhySuggest_NoAPIKey(t *testing.T) {
	testEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "")

	err := whySuggestRun(context.Background(), 1, 0, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no Anthropic API key")

	err = whyPlanRun(context.Background(), 1, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no Anthropic API key")
}
