package core

import (
	"context"
	"fmt"
	"herdbook/pkg/domain"
	"time"
)

func newStolenAlert(animal Animal, reporter User, at time.Time) Alert {
	location := reporter.County
	if reporter.Village != "" {
		location = fmt.Sprintf("%s, %s", reporter.Village, reporter.County)
	}
	return Alert{
		Type:      domain.AlertStolen,
		AnimalID:  animal.ID,
		Detail:    fmt.Sprintf("%s %s reported stolen by %s near %s", animal.Species, animal.SerialNumber, reporter.Name, location),
		Scope:     reporter.County,
		Timestamp: at,
	}
}

// resolveStolenAlerts flips every open STOLEN alert of the animal to resolved.
// Alerts for other animals and red-zone alerts are left alone.
func resolveStolenAlerts(tx Transaction, animalID string) ([]Alert, error) {
	var resolved []Alert
	for _, alert := range tx.Snapshot().ListAlerts() {
		if alert.Type != domain.AlertStolen || alert.AnimalID != animalID || alert.Resolved {
			continue
		}
		updated, err := tx.UpdateAlert(alert.ID, func(a *Alert) error {
			a.Resolved = true
			return nil
		})
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, updated)
	}
	return resolved, nil
}

// publish hands committed alerts to the broadcast sink. Failures are logged only.
func (s *Service) publish(ctx context.Context, alerts []Alert) {
	if len(alerts) == 0 {
		return
	}
	if err := s.publisher.PublishAlerts(ctx, alerts); err != nil {
		s.logger.Error("alert broadcast failed", "count", len(alerts), "error", err)
	}
}
