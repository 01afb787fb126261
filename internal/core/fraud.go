package core

import (
	"fmt"
	"herdbook/pkg/domain"
)

// DetectRedZone flags a slaughter record whose reported meat sold exceeds the
// dead weight. It looks at the record alone; every violating submission yields
// its own alert. The returned alert has no id or timestamp yet.
func DetectRedZone(record ButcheryRecord) (Alert, bool) {
	if record.MeatSold <= record.DeadWeight {
		return Alert{}, false
	}
	return Alert{
		Type:     domain.AlertRedZone,
		AnimalID: record.AnimalID,
		Detail: fmt.Sprintf("Butchery %s reported %s kg sold from %s kg dead weight",
			record.ButcheryID, formatWeight(record.MeatSold), formatWeight(record.DeadWeight)),
		Scope: domain.ScopeAll,
	}, true
}

func formatWeight(w float64) string {
	return fmt.Sprintf("%g", w)
}
