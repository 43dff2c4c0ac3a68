package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/joescharf/eightd/internal/models"
)

// UI provides colored output and respects verbose/dry-run modes.
type UI struct {
	Verbose bool
	DryRun  bool
	Out     io.Writer
	ErrOut  io.Writer
}

// New creates a UI with default stdout/stderr writers.
func New() *UI {
	return &UI{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	warningPrefix = color.New(color.FgHiYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	verbosePrefix = color.New(color.FgHiBlue).Sprint("  →")
	cyan          = color.New(color.FgHiCyan).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
	faint         = color.New(color.Faint).SprintFunc()
)

// Cyan returns a cyan-colored string.
func Cyan(s string) string { return cyan(s) }

// Green returns a green-colored string.
func Green(s string) string { return green(s) }

// Yellow returns a yellow-colored string.
func Yellow(s string) string { return yellow(s) }

// Red returns a red-colored string.
func Red(s string) string { return red(s) }

// StatusColor colors a problem status: open problems need attention, closed
// ones are done.
func StatusColor(status models.ProblemStatus) string {
	switch status {
	case models.ProblemStatusOpen:
		return yellow(string(status))
	case models.ProblemStatusClosed:
		return green(string(status))
	default:
		return string(status)
	}
}

// DeadlineColor colors a YYYY-MM-DD deadline relative to now. Deadlines of
// closed problems are never highlighted.
func DeadlineColor(deadline string, status models.ProblemStatus, now time.Time) string {
	if deadline == "" {
		return "-"
	}
	d, err := time.Parse(models.DateLayout, deadline)
	if err != nil || status == models.ProblemStatusClosed {
		return deadline
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch {
	case d.Before(today):
		return red(deadline)
	case d.Sub(today) <= 7*24*time.Hour:
		return yellow(deadline)
	default:
		return deadline
	}
}

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) VerboseLog(format string, a ...any) {
	if u.Verbose {
		fmt.Fprintf(u.Out, "%s %s\n", verbosePrefix, fmt.Sprintf(format, a...))
	}
}

func (u *UI) DryRunMsg(format string, a ...any) {
	if u.DryRun {
		u.Warning("[DRY-RUN] "+format, a...)
	}
}

// JSON writes v as indented JSON.
func (u *UI) JSON(v any) error {
	enc := json.NewEncoder(u.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table creates a new tablewriter configured with consistent styling.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}

// Tree prints a why forest with box-drawing guides. Resolved root causes are
// highlighted and their action plan is shown beneath them.
func (u *UI) Tree(forest []*models.TreeNode) {
	if len(forest) == 0 {
		fmt.Fprintln(u.Out, faint("(no whys recorded)"))
		return
	}
	for i, n := range forest {
		u.treeNode(n, "", i == len(forest)-1, 1)
	}
}

func (u *UI) treeNode(n *models.TreeNode, prefix string, last bool, level int) {
	branch, pad := "├─ ", "│  "
	if last {
		branch, pad = "└─ ", "   "
	}

	label := fmt.Sprintf("Why #%d [%d] %s", level, n.ID, n.Description)
	switch {
	case n.Resolved():
		label = green(label + " ★ root cause")
	case n.IsRootCause:
		label = yellow(label + " (root cause, no action plan)")
	}
	fmt.Fprintf(u.Out, "%s%s%s\n", prefix, branch, label)

	if plan := strings.TrimSpace(n.ActionPlan); plan != "" {
		for _, line := range strings.Split(plan, "\n") {
			fmt.Fprintf(u.Out, "%s%s  %s\n", prefix, pad, cyan("↳ "+strings.TrimSpace(line)))
		}
	}
	for i, c := range n.Children {
		u.treeNode(c, prefix+pad, i == len(n.Children)-1, level+1)
	}
}
