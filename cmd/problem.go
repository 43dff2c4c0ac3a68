package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/eightd/internal/models"
	"github.com/joescharf/eightd/internal/output"
	"github.com/joescharf/eightd/internal/rca"
	"github.com/joescharf/eightd/internal/tree"
)

var (
	problemInput  rca.ProblemInput
	problemStatus string
	jsonOut       bool
)

var problemCmd = &cobra.Command{
	Use:     "problem",
	Aliases: []string{"p"},
	Short:   "Manage problems",
	Long:    "Add, list, show, update, and remove 8D problems.",
}

var problemAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a problem",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := problemInput
		in.Title = args[0]
		return problemAddRun(in)
	},
}

var problemListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List problems, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return problemListRun(models.ProblemStatus(problemStatus))
	},
}

var problemShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a problem and its 5-Why tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return problemShowRun(id)
	},
}

var problemUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields of a problem",
	Long: `Update fields of a problem. Only the flags you pass are changed;
pass an empty value (e.g. --team "") to clear an optional field.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return problemUpdateRun(id, problemPatchFromFlags(cmd))
	},
}

var problemRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a problem and its whole 5-Why tree",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return problemRemoveRun(id)
	},
}

func init() {
	for _, c := range []*cobra.Command{problemAddCmd, problemUpdateCmd} {
		c.Flags().StringVarP(&problemInput.ResponsiblePerson, "responsible", "r", "", "Responsible person")
		c.Flags().StringVarP(&problemInput.Description, "description", "d", "", "Description")
		c.Flags().StringVar(&problemInput.Team, "team", "", "Team")
		c.Flags().StringVar(&problemInput.Deadline, "deadline", "", "Deadline (YYYY-MM-DD)")
		c.Flags().StringVar(&problemInput.Status, "status", "", "Status: OPEN or CLOSED")
	}
	problemUpdateCmd.Flags().StringVar(&problemInput.Title, "title", "", "Title")

	problemListCmd.Flags().StringVar(&problemStatus, "status", "", "Filter by status: OPEN or CLOSED")
	for _, c := range []*cobra.Command{problemListCmd, problemShowCmd} {
		c.Flags().BoolVar(&jsonOut, "json", false, "Print JSON")
	}

	problemCmd.AddCommand(problemAddCmd)
	problemCmd.AddCommand(problemListCmd)
	problemCmd.AddCommand(problemShowCmd)
	problemCmd.AddCommand(problemUpdateCmd)
	problemCmd.AddCommand(problemRemoveCmd)
	rootCmd.AddCommand(problemCmd)
}

// parseID parses a positive integer id argument.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id: %q", s)
	}
	return id, nil
}

// problemPatchFromFlags includes only the flags set on the command line.
func problemPatchFromFlags(cmd *cobra.Command) rca.ProblemPatch {
	var patch rca.ProblemPatch
	set := func(name string, v string) *string {
		if cmd.Flags().Changed(name) {
			return &v
		}
		return nil
	}
	patch.Title = set("title", problemInput.Title)
	patch.Description = set("description", problemInput.Description)
	patch.ResponsiblePerson = set("responsible", problemInput.ResponsiblePerson)
	patch.Team = set("team", problemInput.Team)
	patch.Deadline = set("deadline", problemInput.Deadline)
	patch.Status = set("status", problemInput.Status)
	return patch
}

func problemAddRun(in rca.ProblemInput) error {
	svc, err := getService(nil, nil)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would add problem: %s (responsible: %s)", in.Title, in.ResponsiblePerson)
		return nil
	}

	id, err := svc.CreateProblem(context.Background(), in)
	if err != nil {
		return fmt.Errorf("add problem: %w", err)
	}
	ui.Success("Added problem #%d: %s", id, output.Cyan(in.Title))
	return nil
}

func problemListRun(status models.ProblemStatus) error {
	svc, err := getService(nil, nil)
	if err != nil {
		return err
	}

	problems, err := svc.ListProblems(context.Background())
	if err != nil {
		return err
	}
	if status != "" {
		filtered := problems[:0]
		for _, p := range problems {
			if p.Status == status {
				filtered = append(filtered, p)
			}
		}
		problems = filtered
	}

	if jsonOut {
		return ui.JSON(problems)
	}
	if len(problems) == 0 {
		ui.Info("No problems recorded. Use 'eightd problem add <title> -r <person>' to get started.")
		return nil
	}

	now := time.Now()
	table := ui.Table([]string{"ID", "Title", "Responsible", "Team", "Deadline", "Status", "Created"})
	for _, p := range problems {
		table.Append([]string{
			strconv.FormatInt(p.ID, 10),
			output.Cyan(p.Title),
			p.ResponsiblePerson,
			p.Team,
			output.DeadlineColor(p.Deadline, p.Status, now),
			output.StatusColor(p.Status),
			timeAgo(p.CreatedAt),
		})
	}
	return table.Render()
}

func problemShowRun(id int64) error {
	svc, err := getService(nil, nil)
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := svc.GetProblem(ctx, id)
	if err != nil {
		return err
	}
	forest, err := svc.RootCauseTree(ctx, id)
	if err != nil {
		return err
	}

	if jsonOut {
		return ui.JSON(map[string]any{"problem": p, "root_causes": forest})
	}

	fmt.Fprintf(ui.Out, "%s %s\n", output.Cyan(fmt.Sprintf("#%d", p.ID)), output.Cyan(p.Title))
	fmt.Fprintf(ui.Out, "  Status:      %s\n", output.StatusColor(p.Status))
	fmt.Fprintf(ui.Out, "  Responsible: %s\n", p.ResponsiblePerson)
	if p.Team != "" {
		fmt.Fprintf(ui.Out, "  Team:        %s\n", p.Team)
	}
	if p.Deadline != "" {
		fmt.Fprintf(ui.Out, "  Deadline:    %s\n", output.DeadlineColor(p.Deadline, p.Status, time.Now()))
	}
	if p.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:        %s\n", p.Description)
	}
	fmt.Fprintf(ui.Out, "  Created:     %s\n", timeAgo(p.CreatedAt))
	fmt.Fprintln(ui.Out)

	fmt.Fprintf(ui.Out, "5-Why analysis (%d):\n", tree.Count(forest))
	ui.Tree(forest)
	return nil
}

func problemUpdateRun(id int64, patch rca.ProblemPatch) error {
	svc, err := getService(nil, nil)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would update problem #%d", id)
		return nil
	}

	p, err := svc.UpdateProblem(context.Background(), id, patch)
	if err != nil {
		return fmt.Errorf("update problem: %w", err)
	}
	ui.Success("Updated problem #%d: %s [%s]", p.ID, output.Cyan(p.Title), output.StatusColor(p.Status))
	return nil
}

func problemRemoveRun(id int64) error {
	svc, err := getService(nil, nil)
	if err != nil {
		return err
	}
	ctx := context.Background()

	p, err := svc.GetProblem(ctx, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would remove problem #%d: %s", p.ID, p.Title)
		return nil
	}

	if err := svc.DeleteProblem(ctx, id); err != nil {
		return fmt.Errorf("remove problem: %w", err)
	}
	ui.Success("Removed problem #%d: %s", p.ID, output.Cyan(p.Title))
	return nil
}

// timeAgo returns a human-readable duration from a time.
func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
