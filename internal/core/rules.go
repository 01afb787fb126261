package core

// NewDefaultRulesEngine builds a rules engine with the built-in registry invariants.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(StatusTransitionRule())
	engine.Register(BiometricHashUniqueRule())
	engine.Register(SerialNumberUniqueRule())
	engine.Register(TransferHistoryAppendOnlyRule())
	engine.Register(OwnerReferenceRule())
	engine.Register(ButcheryRecordImmutableRule())
	engine.Register(AlertResolutionRule())
	return engine
}

func toSet[T ~string](values ...T) map[T]struct{} {
	set := make(map[T]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func blockViolation(rule string, entity EntityType, id, message string) Violation {
	return Violation{
		Rule:     rule,
		Severity: SeverityBlock,
		Message:  message,
		Entity:   entity,
		EntityID: id,
	}
}

// animalChange extracts the before and after animal of a change, when present.
func animalChange(change Change) (before Animal, hasBefore bool, after Animal, hasAfter bool) {
	if change.Entity != EntityAnimal {
		return Animal{}, false, Animal{}, false
	}
	before, hasBefore = change.Before.(Animal)
	after, hasAfter = change.After.(Animal)
	return before, hasBefore, after, hasAfter
}
