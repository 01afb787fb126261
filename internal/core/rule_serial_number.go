package core

import (
	"context"
	"fmt"
	"herdbook/pkg/domain"
)

const serialNumberRuleName = "serial_number_unique"

// SerialNumberUniqueRule blocks any animal change that leaves two animals
// sharing a serial number.
func SerialNumberUniqueRule() domain.Rule {
	return serialNumberRule{}
}

type serialNumberRule struct{}

func (serialNumberRule) Name() string { return serialNumberRuleName }

func (serialNumberRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	var counts map[string]int
	for _, change := range changes {
		_, _, after, hasAfter := animalChange(change)
		if !hasAfter || after.SerialNumber == "" {
			continue
		}
		if counts == nil {
			counts = make(map[string]int)
			for _, a := range view.ListAnimals() {
				if a.SerialNumber != "" {
					counts[a.SerialNumber]++
				}
			}
		}
		if n := counts[after.SerialNumber]; n > 1 {
			res.Violations = append(res.Violations, blockViolation(serialNumberRuleName, EntityAnimal, after.ID,
				fmt.Sprintf("serial number %s of animal %s is shared by %d animals", after.SerialNumber, after.ID, n)))
		}
	}
	return res, nil
}
