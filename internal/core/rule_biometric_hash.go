package core

import (
	"context"
	"fmt"
	"herdbook/pkg/domain"
)

const biometricHashRuleName = "biometric_hash_unique"

// BiometricHashUniqueRule keeps non-empty biometric hashes unique across the
// registry and stops a hash from changing once assigned.
func BiometricHashUniqueRule() domain.Rule {
	return biometricHashRule{}
}

type biometricHashRule struct{}

func (biometricHashRule) Name() string { return biometricHashRuleName }

func (biometricHashRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	var owners map[string][]string
	for _, change := range changes {
		before, hasBefore, after, hasAfter := animalChange(change)
		if !hasAfter {
			continue
		}
		if hasBefore && before.BiometricHash != "" && before.BiometricHash != after.BiometricHash {
			res.Violations = append(res.Violations, blockViolation(biometricHashRuleName, EntityAnimal, after.ID,
				fmt.Sprintf("biometric hash of animal %s cannot be reassigned", after.ID)))
			continue
		}
		if after.BiometricHash == "" {
			continue
		}
		if owners == nil {
			owners = make(map[string][]string)
			for _, a := range view.ListAnimals() {
				if a.BiometricHash != "" {
					owners[a.BiometricHash] = append(owners[a.BiometricHash], a.ID)
				}
			}
		}
		if ids := owners[after.BiometricHash]; len(ids) > 1 {
			res.Violations = append(res.Violations, blockViolation(biometricHashRuleName, EntityAnimal, after.ID,
				fmt.Sprintf("biometric hash of animal %s is shared by %d animals", after.ID, len(ids))))
		}
	}
	return res, nil
}
