package rca

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/joescharf/eightd/internal/models"
)

// DeriveStatus applies the closing rule to a node that was just edited.
// A resolved node closes the problem. Otherwise the problem reopens unless
// another node of the same problem is still resolved, in which case set is
// false and the status is left alone.
func DeriveStatus(node *models.RootCause, otherResolved bool) (status models.ProblemStatus, set bool) {
	if node.Resolved() {
		return models.ProblemStatusClosed, true
	}
	if !otherResolved {
		return models.ProblemStatusOpen, true
	}
	return "", false
}

// deriveAfterUpdate re-evaluates and persists the owning problem's status
// after node has been saved.
func (s *Service) deriveAfterUpdate(ctx context.Context, node *models.RootCause) (bool, error) {
	otherResolved := false
	if !node.Resolved() {
		var err error
		otherResolved, err = s.store.HasResolvedRootCause(ctx, node.ProblemID, node.ID)
		if err != nil {
			return false, goerr.Wrap(err, "failed to check resolved root causes",
				goerr.V("problem_id", node.ProblemID))
		}
	}

	status, set := DeriveStatus(node, otherResolved)
	if !set {
		return false, nil
	}
	return s.applyStatus(ctx, node.ProblemID, status, "update")
}

// deriveAfterDelete reopens the problem when the removed rows held its last
// resolved root cause.
func (s *Service) deriveAfterDelete(ctx context.Context, problemID int64, removed []*models.RootCause) (bool, error) {
	hadResolved := false
	for _, rc := range removed {
		if rc.Resolved() {
			hadResolved = true
			break
		}
	}
	if !hadResolved {
		return false, nil
	}

	stillResolved, err := s.store.HasResolvedRootCause(ctx, problemID, 0)
	if err != nil {
		return false, goerr.Wrap(err, "failed to check resolved root causes",
			goerr.V("problem_id", problemID))
	}
	if stillResolved {
		return false, nil
	}
	return s.applyStatus(ctx, problemID, models.ProblemStatusOpen, "delete")
}

func (s *Service) applyStatus(ctx context.Context, problemID int64, status models.ProblemStatus, trigger string) (bool, error) {
	changed, err := s.store.SetProblemStatus(ctx, problemID, status)
	if err != nil {
		return false, goerr.Wrap(err, "failed to set problem status",
			goerr.V("problem_id", problemID), goerr.V("status", status))
	}
	if changed {
		s.metrics.RecordStatusTransition(string(status), trigger)
		s.logger.Info("problem status derived",
			"problem_id", problemID, "status", string(status), "trigger", trigger)
	}
	return changed, nil
}
