package core

import (
	"context"
	"fmt"
	"herdbook/pkg/domain"
)

const ownerReferenceRuleName = "owner_reference"

// OwnerReferenceRule requires every created or updated animal to name an
// owner that resolves to a registered user.
func OwnerReferenceRule() domain.Rule {
	return ownerReferenceRule{}
}

type ownerReferenceRule struct{}

func (ownerReferenceRule) Name() string { return ownerReferenceRuleName }

func (ownerReferenceRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		_, _, after, hasAfter := animalChange(change)
		if !hasAfter {
			continue
		}
		if _, ok := view.FindUser(after.OwnerID); !ok {
			res.Violations = append(res.Violations, blockViolation(ownerReferenceRuleName, EntityAnimal, after.ID,
				fmt.Sprintf("animal %s owner %q is not a registered user", after.ID, after.OwnerID)))
		}
	}
	return res, nil
}
