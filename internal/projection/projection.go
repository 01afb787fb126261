// Package projection builds the read-only, role-specific dashboards over the
// registry. Each role sees only the records relevant to it.
package projection

import (
	"context"
	"fmt"
	"herdbook/internal/core"
	"herdbook/pkg/domain"
)

// Dashboard is the projection for one user. Exactly one of the role
// sections is populated, matching User.Role.
type Dashboard struct {
	User      core.User      `json:"user"`
	Role      core.Role      `json:"role"`
	Farmer    *FarmerView    `json:"farmer,omitempty"`
	Butchery  *ButcheryView  `json:"butchery,omitempty"`
	Authority *AuthorityView `json:"authority,omitempty"`
	Market    *MarketView    `json:"market,omitempty"`
}

// FarmerView lists a farmer's herd, pending sales and local alerts.
type FarmerView struct {
	Animals          []core.Animal          `json:"animals"`
	IncomingRequests []core.TransferRequest `json:"incoming_requests"`
	OutgoingRequests []core.TransferRequest `json:"outgoing_requests"`
	Alerts           []core.Alert           `json:"alerts"`
}

// ButcheryView summarises a butchery's stock and slaughter reconciliation.
type ButcheryView struct {
	Animals        []core.Animal         `json:"animals"`
	Records        []core.ButcheryRecord `json:"records"`
	RedZoneAlerts  int                   `json:"red_zone_alerts"`
	TotalLive      float64               `json:"total_live_weight"`
	TotalDead      float64               `json:"total_dead_weight"`
	TotalMeatSold  float64               `json:"total_meat_sold"`
	ActiveAnimals  int                   `json:"active_animals"`
	SlaughterCount int                   `json:"slaughter_count"`
}

// AuthorityView is the oversight dashboard of a county authority.
type AuthorityView struct {
	Alerts         []core.Alert              `json:"alerts"`
	StolenAnimals  []core.Animal             `json:"stolen_animals"`
	StatusCounts   map[core.AnimalStatus]int `json:"status_counts"`
	RedZoneAlerts  []core.Alert              `json:"red_zone_alerts"`
	OpenTheftCount int                       `json:"open_theft_count"`
}

// MarketView lists the sales a market agent may broker.
type MarketView struct {
	PendingRequests []core.TransferRequest `json:"pending_requests"`
	ActiveAnimals   int                    `json:"active_animals"`
}

// Source is the read side of the transition engine.
type Source interface {
	GetUser(id string) (core.User, bool)
	View(ctx context.Context, fn func(core.TransactionView) error) error
}

// ForUser resolves userID and builds its dashboard from one consistent view.
func ForUser(ctx context.Context, src Source, userID string) (Dashboard, error) {
	user, ok := src.GetUser(userID)
	if !ok {
		return Dashboard{}, domain.NotFoundError{Entity: core.EntityUser, ID: userID}
	}
	var (
		dash Dashboard
		err  error
	)
	if viewErr := src.View(ctx, func(view core.TransactionView) error {
		dash, err = Build(view, user)
		return nil
	}); viewErr != nil {
		return Dashboard{}, viewErr
	}
	return dash, err
}

// Build dispatches on the user's role.
func Build(view core.RuleView, user core.User) (Dashboard, error) {
	dash := Dashboard{User: user, Role: user.Role}
	switch user.Role {
	case domain.RoleFarmer:
		dash.Farmer = farmerView(view, user)
	case domain.RoleButchery:
		dash.Butchery = butcheryView(view, user)
	case domain.RoleAuthority:
		dash.Authority = authorityView(view, user)
	case domain.RoleMarketAgent:
		dash.Market = marketView(view)
	default:
		return Dashboard{}, fmt.Errorf("%w: %q", domain.ErrInvalidRole, user.Role)
	}
	return dash, nil
}

func ownedAnimals(view core.RuleView, ownerID string) []core.Animal {
	out := []core.Animal{}
	for _, a := range view.ListAnimals() {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	return out
}

func visibleAlerts(view core.RuleView, county string) []core.Alert {
	out := []core.Alert{}
	for _, a := range view.ListAlerts() {
		if a.VisibleIn(county) {
			out = append(out, a)
		}
	}
	return out
}

func farmerView(view core.RuleView, user core.User) *FarmerView {
	fv := &FarmerView{
		Animals:          ownedAnimals(view, user.ID),
		IncomingRequests: []core.TransferRequest{},
		OutgoingRequests: []core.TransferRequest{},
		Alerts:           visibleAlerts(view, user.County),
	}
	for _, req := range view.ListTransferRequests() {
		if req.Status != domain.TransferPending {
			continue
		}
		switch user.ID {
		case req.ToUserID:
			fv.IncomingRequests = append(fv.IncomingRequests, req)
		case req.FromUserID:
			fv.OutgoingRequests = append(fv.OutgoingRequests, req)
		}
	}
	return fv
}

func butcheryView(view core.RuleView, user core.User) *ButcheryView {
	bv := &ButcheryView{Animals: ownedAnimals(view, user.ID), Records: []core.ButcheryRecord{}}
	slaughtered := make(map[string]struct{})
	for _, rec := range view.ListButcheryRecords() {
		if rec.ButcheryID != user.ID {
			continue
		}
		bv.Records = append(bv.Records, rec)
		bv.TotalLive += rec.LiveWeight
		bv.TotalDead += rec.DeadWeight
		bv.TotalMeatSold += rec.MeatSold
		slaughtered[rec.AnimalID] = struct{}{}
	}
	bv.SlaughterCount = len(bv.Records)
	for _, a := range view.ListAlerts() {
		if a.Type != domain.AlertRedZone {
			continue
		}
		if _, mine := slaughtered[a.AnimalID]; mine {
			bv.RedZoneAlerts++
		}
	}
	for _, a := range bv.Animals {
		if a.Status == domain.StatusActive {
			bv.ActiveAnimals++
		}
	}
	return bv
}

func authorityView(view core.RuleView, user core.User) *AuthorityView {
	av := &AuthorityView{
		Alerts:        visibleAlerts(view, user.County),
		StolenAnimals: []core.Animal{},
		StatusCounts:  make(map[core.AnimalStatus]int, len(domain.AnimalStatuses())),
		RedZoneAlerts: []core.Alert{},
	}
	for _, status := range domain.AnimalStatuses() {
		av.StatusCounts[status] = 0
	}
	for _, a := range view.ListAnimals() {
		av.StatusCounts[a.Status]++
		if a.Status == domain.StatusStolen {
			av.StolenAnimals = append(av.StolenAnimals, a)
		}
	}
	for _, a := range view.ListAlerts() {
		if a.Type == domain.AlertRedZone {
			av.RedZoneAlerts = append(av.RedZoneAlerts, a)
		}
	}
	for _, a := range av.Alerts {
		if a.Type == domain.AlertStolen && !a.Resolved {
			av.OpenTheftCount++
		}
	}
	return av
}

func marketView(view core.RuleView) *MarketView {
	mv := &MarketView{PendingRequests: []core.TransferRequest{}}
	for _, req := range view.ListTransferRequests() {
		if req.Status == domain.TransferPending {
			mv.PendingRequests = append(mv.PendingRequests, req)
		}
	}
	for _, a := range view.ListAnimals() {
		if a.Status == domain.StatusActive {
			mv.ActiveAnimals++
		}
	}
	return mv
}

// OpenTheftReports counts unresolved STOLEN alerts visible in county. It
// feeds the risk analysis.
func OpenTheftReports(alerts []core.Alert, county string) int {
	n := 0
	for _, a := range alerts {
		if a.Type == domain.AlertStolen && !a.Resolved && a.VisibleIn(county) {
			n++
		}
	}
	return n
}
