package core

import (
	"context"
	"fmt"
	"herdbook/pkg/domain"
)

const (
	butcheryRecordRuleName  = "butchery_record_immutable"
	alertResolutionRuleName = "alert_resolution"
)

// ButcheryRecordImmutableRule blocks any update or delete of a slaughter record.
func ButcheryRecordImmutableRule() domain.Rule {
	return butcheryRecordRule{}
}

type butcheryRecordRule struct{}

func (butcheryRecordRule) Name() string { return butcheryRecordRuleName }

func (butcheryRecordRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != EntityButcheryRecord || change.Action == domain.ActionCreate {
			continue
		}
		id := ""
		if before, ok := change.Before.(ButcheryRecord); ok {
			id = before.ID
		}
		res.Violations = append(res.Violations, blockViolation(butcheryRecordRuleName, EntityButcheryRecord, id,
			fmt.Sprintf("butchery record %s is append-only (%s rejected)", id, change.Action)))
	}
	return res, nil
}

// AlertResolutionRule keeps alert resolution one-way and blocks alert deletion.
func AlertResolutionRule() domain.Rule {
	return alertResolutionRule{}
}

type alertResolutionRule struct{}

func (alertResolutionRule) Name() string { return alertResolutionRuleName }

func (alertResolutionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != EntityAlert {
			continue
		}
		before, hasBefore := change.Before.(Alert)
		after, hasAfter := change.After.(Alert)
		switch {
		case change.Action == domain.ActionDelete && hasBefore:
			res.Violations = append(res.Violations, blockViolation(alertResolutionRuleName, EntityAlert, before.ID,
				fmt.Sprintf("alert %s cannot be deleted", before.ID)))
		case hasBefore && hasAfter && before.Resolved && !after.Resolved:
			res.Violations = append(res.Violations, blockViolation(alertResolutionRuleName, EntityAlert, after.ID,
				fmt.Sprintf("alert %s cannot be reopened once resolved", after.ID)))
		}
	}
	return res, nil
}
