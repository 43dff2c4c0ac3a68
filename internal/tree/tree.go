// Package tree rebuilds the nested 5-Why forest from the flat root_causes rows
// of one problem.
package tree

import (
	"errors"
	"fmt"
	"sort"

	"github.com/joescharf/eightd/internal/models"
)

// DefaultMaxDepth bounds how deep a why-chain may nest before Build gives up.
const DefaultMaxDepth = 64

// ErrTooDeep is returned when a chain nests deeper than the allowed depth.
var ErrTooDeep = errors.New("root cause tree exceeds maximum depth")

// Build turns the flat rows of one problem into a forest. Roots are the nodes
// without a parent; siblings are ordered by ascending id. Nodes whose parent
// is not in the input, and everything below them, are left out. A maxDepth of
// zero or less means DefaultMaxDepth.
func Build(nodes []*models.RootCause, maxDepth int) ([]*models.TreeNode, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	sorted := make([]*models.RootCause, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	children := make(map[int64][]*models.RootCause, len(sorted))
	var roots []*models.RootCause
	for _, n := range sorted {
		if n.ParentID == nil {
			roots = append(roots, n)
			continue
		}
		children[*n.ParentID] = append(children[*n.ParentID], n)
	}

	var attach func(n *models.RootCause, depth int) (*models.TreeNode, error)
	attach = func(n *models.RootCause, depth int) (*models.TreeNode, error) {
		if depth > maxDepth {
			return nil, fmt.Errorf("node %d at depth %d: %w", n.ID, depth, ErrTooDeep)
		}
		tn := &models.TreeNode{RootCause: *n}
		for _, c := range children[n.ID] {
			child, err := attach(c, depth+1)
			if err != nil {
				return nil, err
			}
			tn.Children = append(tn.Children, child)
		}
		return tn, nil
	}

	forest := make([]*models.TreeNode, 0, len(roots))
	for _, r := range roots {
		tn, err := attach(r, 1)
		if err != nil {
			return nil, err
		}
		forest = append(forest, tn)
	}
	return forest, nil
}

// Orphans returns the nodes Build would leave out: those whose parent chain
// does not end at a top-level node of the same input.
func Orphans(nodes []*models.RootCause) []*models.RootCause {
	byID := make(map[int64]*models.RootCause, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	reachable := make(map[int64]bool, len(nodes))
	var walk func(n *models.RootCause, seen map[int64]bool) bool
	walk = func(n *models.RootCause, seen map[int64]bool) bool {
		if v, ok := reachable[n.ID]; ok {
			return v
		}
		if n.ParentID == nil {
			reachable[n.ID] = true
			return true
		}
		if seen[n.ID] {
			reachable[n.ID] = false
			return false
		}
		seen[n.ID] = true
		parent, ok := byID[*n.ParentID]
		result := ok && walk(parent, seen)
		reachable[n.ID] = result
		return result
	}

	var orphans []*models.RootCause
	for _, n := range nodes {
		if !walk(n, map[int64]bool{}) {
			orphans = append(orphans, n)
		}
	}
	sort.SliceStable(orphans, func(i, j int) bool { return orphans[i].ID < orphans[j].ID })
	return orphans
}

// Count returns the number of nodes in the forest.
func Count(forest []*models.TreeNode) int {
	n := 0
	for _, t := range forest {
		n += 1 + Count(t.Children)
	}
	return n
}
