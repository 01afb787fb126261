package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRoleAndStatusValidity(t *testing.T) {
	for _, r := range Roles() {
		if !r.Valid() {
			t.Fatalf("expected %s valid", r)
		}
	}
	if Role("SHEPHERD").Valid() {
		t.Fatalf("unexpected valid role")
	}
	if len(AnimalStatuses()) != 6 {
		t.Fatalf("expected six statuses, got %d", len(AnimalStatuses()))
	}
	if AnimalStatus("LOST").Valid() {
		t.Fatalf("unexpected valid status")
	}
}

func TestAnimalCloneIsDeep(t *testing.T) {
	w := 120.0
	a := Animal{Photos: []string{"p1"}, TransferHistory: []TransferRecord{{Weight: &w}}}
	cp := a.Clone()
	cp.Photos[0] = "changed"
	*cp.TransferHistory[0].Weight = 1
	if a.Photos[0] != "p1" || *a.TransferHistory[0].Weight != 120 {
		t.Fatalf("clone shares state with original")
	}

	resolved := time.Now()
	req := TransferRequest{ResolvedAt: &resolved}
	rc := req.Clone()
	*rc.ResolvedAt = time.Time{}
	if req.ResolvedAt.IsZero() {
		t.Fatalf("request clone shares resolution time")
	}
}

func TestAnimalCloneKeepsEmptySlices(t *testing.T) {
	a := Animal{Photos: []string{}, TransferHistory: []TransferRecord{}}
	cp := a.Clone()
	if cp.Photos == nil || cp.TransferHistory == nil {
		t.Fatalf("expected empty slices to survive clone, got %+v", cp)
	}
	data, err := json.Marshal(cp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"photos":[]`) || strings.Contains(string(data), `"photos":null`) {
		t.Fatalf("expected empty photo list in %s", data)
	}
	if (Animal{}).Clone().Photos != nil {
		t.Fatalf("expected nil photos to stay nil")
	}
}

func TestAnimalUnmarshalLegacyPhoto(t *testing.T) {
	var a Animal
	if err := json.Unmarshal([]byte(`{"id":"a1","photoUrl":"old.jpg"}`), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(a.Photos) != 1 || a.Photos[0] != "old.jpg" {
		t.Fatalf("expected legacy photo upgraded, got %v", a.Photos)
	}
	if err := json.Unmarshal([]byte(`{"photos":["n.jpg"],"photoUrl":"old.jpg"}`), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(a.Photos) != 1 || a.Photos[0] != "n.jpg" {
		t.Fatalf("expected current photos kept, got %v", a.Photos)
	}
}

func TestAlertVisibility(t *testing.T) {
	if !(Alert{Scope: ScopeAll}).VisibleIn("Kajiado") {
		t.Fatalf("ALL alerts are visible everywhere")
	}
	local := Alert{Scope: "Narok"}
	if !local.VisibleIn("Narok") || local.VisibleIn("Kajiado") {
		t.Fatalf("county alerts stay in their county")
	}
}

func TestErrorsUnwrapToSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{NotFoundError{Entity: EntityUser, ID: "u"}, ErrUnknownOwner},
		{NotFoundError{Entity: EntityAnimal, ID: "a"}, ErrUnknownAnimal},
		{NotFoundError{Entity: EntityTransferRequest, ID: "r"}, ErrUnknownTransferRequest},
		{TransitionError{AnimalID: "a", Event: "recover", From: StatusActive, Required: StatusStolen}, ErrInvalidStateTransition},
		{RequestStateError{RequestID: "r", Status: TransferAccepted}, ErrInvalidRequestState},
	}
	for _, tc := range cases {
		if !errors.Is(tc.err, tc.want) {
			t.Fatalf("%v does not unwrap to %v", tc.err, tc.want)
		}
	}
	if errors.Unwrap(NotFoundError{Entity: EntityAlert}) != nil {
		t.Fatalf("alerts have no sentinel")
	}
}
