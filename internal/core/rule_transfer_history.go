package core

import (
	"context"
	"fmt"
	"herdbook/pkg/domain"
	"reflect"
)

const transferHistoryRuleName = "transfer_history_append_only"

// TransferHistoryAppendOnlyRule blocks edits that shrink or rewrite an animal's
// transfer history, and changes to its serial number.
func TransferHistoryAppendOnlyRule() domain.Rule {
	return transferHistoryRule{}
}

type transferHistoryRule struct{}

func (transferHistoryRule) Name() string { return transferHistoryRuleName }

func (transferHistoryRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity == EntityAnimal && change.Action == domain.ActionDelete {
			id := ""
			if before, ok := change.Before.(Animal); ok {
				id = before.ID
			}
			res.Violations = append(res.Violations, blockViolation(transferHistoryRuleName, EntityAnimal, id,
				fmt.Sprintf("animal %s cannot be deleted", id)))
			continue
		}
		before, hasBefore, after, hasAfter := animalChange(change)
		if !hasBefore || !hasAfter {
			continue
		}
		if before.SerialNumber != after.SerialNumber {
			res.Violations = append(res.Violations, blockViolation(transferHistoryRuleName, EntityAnimal, after.ID,
				fmt.Sprintf("serial number of animal %s cannot change from %s to %s", after.ID, before.SerialNumber, after.SerialNumber)))
		}
		if len(after.TransferHistory) < len(before.TransferHistory) {
			res.Violations = append(res.Violations, blockViolation(transferHistoryRuleName, EntityAnimal, after.ID,
				fmt.Sprintf("transfer history of animal %s shrank from %d to %d entries", after.ID, len(before.TransferHistory), len(after.TransferHistory))))
			continue
		}
		for i, prior := range before.TransferHistory {
			if !reflect.DeepEqual(prior, after.TransferHistory[i]) {
				res.Violations = append(res.Violations, blockViolation(transferHistoryRuleName, EntityAnimal, after.ID,
					fmt.Sprintf("transfer history entry %d of animal %s was rewritten", i, after.ID)))
				break
			}
		}
	}
	return res, nil
}
