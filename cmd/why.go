package cmd

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/joescharf/eightd/internal/llm"
	"github.com/joescharf/eightd/internal/models"
	"github.com/joescharf/eightd/internal/output"
	"github.com/joescharf/eightd/internal/rca"
)

var (
	whyParent      int64
	whyRootCause   bool
	whyActionPlan  string
	whyDescription string
	whyCount       int
	whyApply       bool
)

var whyCmd = &cobra.Command{
	Use:     "why",
	Aliases: []string{"w"},
	Short:   "Manage a problem's 5-Why tree",
	Long: `Add, update, and remove whys in a problem's 5-Why tree.

A why marked as the root cause with a non-empty action plan closes its
problem. Removing or unmarking the last such why reopens it.`,
}

var whyAddCmd = &cobra.Command{
	Use:   "add <problem-id> <description>",
	Short: "Add a why, top-level or under --parent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		problemID, err := parseID(args[0])
		if err != nil {
			return err
		}
		in := rca.RootCauseInput{
			ProblemID:   problemID,
			Description: args[1],
			IsRootCause: whyRootCause,
			ActionPlan:  whyActionPlan,
		}
		if whyParent > 0 {
			parent := whyParent
			in.ParentID = &parent
		}
		return whyAddRun(in)
	},
}

var whyUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a why; may close or reopen its problem",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		var patch rca.RootCausePatch
		if cmd.Flags().Changed("description") {
			patch.Description = &whyDescription
		}
		if cmd.Flags().Changed("root-cause") {
			patch.IsRootCause = &whyRootCause
		}
		if cmd.Flags().Changed("action-plan") {
			patch.ActionPlan = &whyActionPlan
		}
		return whyUpdateRun(id, patch)
	},
}

var whyRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a why and everything beneath it",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return whyRemoveRun(id)
	},
}

var whyTreeCmd = &cobra.Command{
	Use:   "tree <problem-id>",
	Short: "Print a problem's 5-Why tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		problemID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return whyTreeRun(problemID)
	},
}

var whySuggestCmd = &cobra.Command{
	Use:   "suggest <problem-id>",
	Short: "Suggest candidate answers for the next why (requires an Anthropic API key)",
	Long: `Ask the LLM for candidate answers to the next "why".

Without --parent the suggestions are top-level whys for the problem itself;
with --parent they answer "why?" for that why, using the chain above it as
context. Nothing is saved: add the answers you agree with via 'eightd why add'.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		problemID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return whySuggestRun(cmd.Context(), problemID, whyParent, whyCount)
	},
}

var whyPlanCmd = &cobra.Command{
	Use:   "plan <id>",
	Short: "Draft a corrective action plan for a root cause (requires an Anthropic API key)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return whyPlanRun(cmd.Context(), id, whyApply)
	},
}

func init() {
	whyAddCmd.Flags().Int64Var(&whyParent, "parent", 0, "Parent why ID (omit for a top-level why)")
	for _, c := range []*cobra.Command{whyAddCmd, whyUpdateCmd} {
		c.Flags().BoolVar(&whyRootCause, "root-cause", false, "Mark as the root cause")
		c.Flags().StringVar(&whyActionPlan, "action-plan", "", "Corrective action plan")
	}
	whyUpdateCmd.Flags().StringVarP(&whyDescription, "description", "d", "", "Why statement")

	whyTreeCmd.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")

	whySuggestCmd.Flags().Int64Var(&whyParent, "parent", 0, "Why to ask \"why?\" about (omit for top-level)")
	whySuggestCmd.Flags().IntVar(&whyCount, "count", 3, "Number of suggestions")

	whyPlanCmd.Flags().BoolVar(&whyApply, "apply", false, "Save the drafted plan and mark the why as root cause")

	whyCmd.AddCommand(whyAddCmd)
	whyCmd.AddCommand(whyUpdateCmd)
	whyCmd.AddCommand(whyRemoveCmd)
	whyCmd.AddCommand(whyTreeCmd)
	whyCmd.AddCommand(whySuggestCmd)
	whyCmd.AddCommand(whyPlanCmd)
	rootCmd.AddCommand(whyCmd)
}

func whyAddRun(in rca.RootCauseInput) error {
	svc, err := getService(nil, nil)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would add why to problem #%d: %s", in.ProblemID, in.Description)
		return nil
	}

	id, err := svc.AddRootCause(context.Background(), in)
	if err != nil {
		return fmt.Errorf("add why: %w", err)
	}
	ui.Success("Added why #%d to problem #%d", id, in.ProblemID)
	if in.IsRootCause && in.ActionPlan != "" {
		ui.Info("Problem status is only re-derived when a why is updated; run 'eightd why update %d --root-cause' to close it", id)
	}
	return nil
}

func whyUpdateRun(id int64, patch rca.RootCausePatch) error {
	svc, err := getService(nil, nil)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would update why #%d", id)
		return nil
	}

	res, err := svc.UpdateRootCause(context.Background(), id, patch)
	if err != nil {
		return fmt.Errorf("update why: %w", err)
	}
	ui.Success("Updated why #%d", id)
	reportStatusChange(svc, res.Node.ProblemID, res.ProblemStatusChanged, res.StatusErr)
	return nil
}

func whyRemoveRun(id int64) error {
	svc, err := getService(nil, nil)
	if err != nil {
		return err
	}
	ctx := context.Background()

	if dryRun {
		rc, err := svc.GetRootCause(ctx, id)
		if err != nil {
			return err
		}
		ui.DryRunMsg("Would remove why #%d and everything beneath it: %s", rc.ID, rc.Description)
		return nil
	}

	res, err := svc.DeleteRootCause(ctx, id)
	if err != nil {
		return fmt.Errorf("remove why: %w", err)
	}
	ui.Success("Removed %d why(s)", len(res.Removed))
	reportStatusChange(svc, res.Removed[0].ProblemID, res.ProblemStatusChanged, res.StatusErr)
	return nil
}

// reportStatusChange prints the derived problem status after a why edit.
func reportStatusChange(svc *rca.Service, problemID int64, changed bool, statusErr error) {
	if statusErr != nil {
		ui.Warning("Problem #%d status could not be updated: %v", problemID, statusErr)
		return
	}
	if !changed {
		return
	}
	p, err := svc.GetProblem(context.Background(), problemID)
	if err != nil {
		ui.Warning("Problem #%d status changed", problemID)
		return
	}
	ui.Info("Problem #%d is now %s", p.ID, output.StatusColor(p.Status))
}

func whyTreeRun(problemID int64) error {
	svc, err := getService(nil, nil)
	if err != nil {
		return err
	}

	forest, err := svc.RootCauseTree(context.Background(), problemID)
	if err != nil {
		return err
	}
	if jsonOut {
		return ui.JSON(forest)
	}
	ui.Tree(forest)
	return nil
}

// whyContext gathers the why chain ending at parentID and the answers already
// recorded beneath it.
func whyContext(ctx context.Context, svc *rca.Service, problemID, parentID int64) (llm.ProblemContext, error) {
	p, err := svc.GetProblem(ctx, problemID)
	if err != nil {
		return llm.ProblemContext{}, err
	}
	pc := llm.ProblemContext{Title: p.Title, Description: p.Description}

	forest, err := svc.RootCauseTree(ctx, problemID)
	if err != nil {
		return llm.ProblemContext{}, err
	}

	level := forest
	if parentID > 0 {
		path := findPath(forest, parentID)
		if path == nil {
			return llm.ProblemContext{}, fmt.Errorf("why #%d is not part of problem #%d", parentID, problemID)
		}
		for _, n := range path {
			pc.Chain = append(pc.Chain, n.Description)
		}
		level = path[len(path)-1].Children
	}
	for _, n := range level {
		pc.Siblings = append(pc.Siblings, n.Description)
	}
	return pc, nil
}

// findPath returns the nodes from a top-level why down to id, or nil.
func findPath(forest []*models.TreeNode, id int64) []*models.TreeNode {
	for _, n := range forest {
		if n.ID == id {
			return []*models.TreeNode{n}
		}
		if sub := findPath(n.Children, id); sub != nil {
			return slices.Insert(sub, 0, n)
		}
	}
	return nil
}

func whySuggestRun(ctx context.Context, problemID, parentID int64, count int) error {
	client := newLLMClient()
	if client == nil {
		return fmt.Errorf("no Anthropic API key configured (set ANTHROPIC_API_KEY)")
	}
	svc, err := getService(nil, nil)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	pc, err := whyContext(ctx, svc, problemID, parentID)
	if err != nil {
		return err
	}

	ui.VerboseLog("Asking for %d suggestion(s), chain depth %d", count, len(pc.Chain))
	suggestions, err := client.SuggestWhys(ctx, pc, count)
	if err != nil {
		return fmt.Errorf("suggest whys: %w", err)
	}
	if len(suggestions) == 0 {
		ui.Info("No suggestions returned")
		return nil
	}

	for i, s := range suggestions {
		marker := ""
		if s.LikelyRootCause {
			marker = " " + output.Green("(likely root cause)")
		}
		fmt.Fprintf(ui.Out, "%d. %s%s\n", i+1, output.Cyan(s.Why), marker)
		if s.Rationale != "" {
			fmt.Fprintf(ui.Out, "   %s\n", s.Rationale)
		}
	}
	return nil
}

func whyPlanRun(ctx context.Context, id int64, apply bool) error {
	client := newLLMClient()
	if client == nil {
		return fmt.Errorf("no Anthropic API key configured (set ANTHROPIC_API_KEY)")
	}
	svc, err := getService(nil, nil)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rc, err := svc.GetRootCause(ctx, id)
	if err != nil {
		return err
	}
	p, err := svc.GetProblem(ctx, rc.ProblemID)
	if err != nil {
		return err
	}

	plan, err := client.DraftActionPlan(ctx, p.Title, rc.Description)
	if err != nil {
		return fmt.Errorf("draft action plan: %w", err)
	}
	fmt.Fprintln(ui.Out, plan)

	if !apply {
		return nil
	}
	if dryRun {
		ui.DryRunMsg("Would save action plan on why #%d and mark it as root cause", id)
		return nil
	}

	isRoot := true
	res, err := svc.UpdateRootCause(ctx, id, rca.RootCausePatch{IsRootCause: &isRoot, ActionPlan: &plan})
	if err != nil {
		return fmt.Errorf("save action plan: %w", err)
	}
	ui.Success("Saved action plan on why #%d", id)
	reportStatusChange(svc, rc.ProblemID, res.ProblemStatusChanged, res.StatusErr)
	return nil
}
