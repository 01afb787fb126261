package core

import (
	"context"
	"fmt"
	"herdbook/pkg/domain"
)

const statusTransitionRuleName = "status_transition"

// StatusTransitionRule blocks out-of-enum animal statuses and transitions the
// state machine does not permit. Any status may move to SLAUGHTERED because a
// logged slaughter is accepted whatever the animal's prior state.
func StatusTransitionRule() domain.Rule {
	return statusTransitionRule{}
}

type statusTransitionRule struct{}

var allowedTransitions = map[AnimalStatus]map[AnimalStatus]struct{}{
	domain.StatusActive: toSet(
		domain.StatusStolen,
		domain.StatusDead,
		domain.StatusSlaughtered,
		domain.StatusPendingTransfer,
	),
	domain.StatusPendingTransfer: toSet(domain.StatusSold, domain.StatusActive),
	domain.StatusStolen:          toSet(domain.StatusActive),
}

func (statusTransitionRule) Name() string { return statusTransitionRuleName }

func (statusTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		before, hasBefore, after, hasAfter := animalChange(change)
		if !hasAfter {
			continue
		}
		if !after.Status.Valid() {
			res.Violations = append(res.Violations, blockViolation(statusTransitionRuleName, EntityAnimal, after.ID,
				fmt.Sprintf("animal %s is set to invalid status %q", after.ID, after.Status)))
			continue
		}
		if !hasBefore {
			if after.Status != domain.StatusActive {
				res.Violations = append(res.Violations, blockViolation(statusTransitionRuleName, EntityAnimal, after.ID,
					fmt.Sprintf("animal %s must be registered ACTIVE, got %s", after.ID, after.Status)))
			}
			continue
		}
		if before.Status == after.Status || after.Status == domain.StatusSlaughtered {
			continue
		}
		if _, ok := allowedTransitions[before.Status][after.Status]; !ok {
			res.Violations = append(res.Violations, blockViolation(statusTransitionRuleName, EntityAnimal, after.ID,
				fmt.Sprintf("cannot move animal %s from %s to %s", after.ID, before.Status, after.Status)))
		}
	}
	return res, nil
}
