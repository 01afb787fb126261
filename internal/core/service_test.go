package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"herdbook/pkg/domain"
)

type fixture struct {
	svc      *Service
	farmer   User
	buyer    User
	butchery User
	officer  User
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	ctx := context.Background()
	svc := NewInMemoryService(NewDefaultRulesEngine(), opts...)
	mk := func(name string, role Role, county string) User {
		u, _, err := svc.RegisterUser(ctx, User{Name: name, Role: role, County: county, Village: "Githunguri"})
		if err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
		return u
	}
	return fixture{
		svc:      svc,
		farmer:   mk("Wanjiru", domain.RoleFarmer, "Kiambu"),
		buyer:    mk("Kiprono", domain.RoleFarmer, "Nandi"),
		butchery: mk("Nyama Choma Ltd", domain.RoleButchery, "Nairobi"),
		officer:  mk("Inspector Auma", domain.RoleAuthority, "Kiambu"),
	}
}

func (f fixture) animal(t *testing.T, hash string) Animal {
	t.Helper()
	a, _, err := f.svc.RegisterAnimal(context.Background(), AnimalInput{
		OwnerID:       f.farmer.ID,
		Species:       "Cow",
		Description:   "Friesian heifer",
		Photos:        []string{"animals/x/0.jpg"},
		BiometricHash: hash,
	})
	if err != nil {
		t.Fatalf("register animal: %v", err)
	}
	return a
}

func TestRegisterUserAssignsRegistrationNumbers(t *testing.T) {
	f := newFixture(t)
	if f.farmer.RegistrationNumber != "FRM-000001" || f.buyer.RegistrationNumber != "FRM-000002" {
		t.Fatalf("unexpected farmer numbers %s %s", f.farmer.RegistrationNumber, f.buyer.RegistrationNumber)
	}
	if f.butchery.RegistrationNumber != "BUT-000001" || f.officer.RegistrationNumber != "AUT-000001" {
		t.Fatalf("unexpected numbers %s %s", f.butchery.RegistrationNumber, f.officer.RegistrationNumber)
	}
	if _, _, err := f.svc.RegisterUser(context.Background(), User{Name: "x", Role: "VET"}); !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("expected invalid role, got %v", err)
	}
}

func TestRegisterAnimal(t *testing.T) {
	f := newFixture(t)
	a := f.animal(t, "hash-1")
	if a.Status != domain.StatusActive || len(a.TransferHistory) != 0 {
		t.Fatalf("expected ACTIVE animal with empty history, got %+v", a)
	}
	if !strings.HasPrefix(a.SerialNumber, "COW-") || !strings.HasSuffix(a.SerialNumber, "-00001") {
		t.Fatalf("unexpected generated serial %s", a.SerialNumber)
	}

	ctx := context.Background()
	if _, _, err := f.svc.RegisterAnimal(ctx, AnimalInput{OwnerID: "nobody", Species: "Goat"}); !errors.Is(err, domain.ErrUnknownOwner) {
		t.Fatalf("expected unknown owner, got %v", err)
	}
	if _, _, err := f.svc.RegisterAnimal(ctx, AnimalInput{OwnerID: f.farmer.ID, Species: "Cow", BiometricHash: "hash-1"}); !errors.Is(err, domain.ErrDuplicateBiometricHash) {
		t.Fatalf("expected duplicate hash, got %v", err)
	}
	if _, _, err := f.svc.RegisterAnimal(ctx, AnimalInput{OwnerID: f.farmer.ID, Species: "Cow", SerialNumber: a.SerialNumber}); !errors.Is(err, domain.ErrDuplicateSerialNumber) {
		t.Fatalf("expected duplicate serial, got %v", err)
	}
	second := f.animal(t, "")
	third := f.animal(t, "")
	if second.BiometricHash != "" || third.SerialNumber == second.SerialNumber {
		t.Fatalf("animals without hashes must coexist with distinct serials")
	}
}

func TestReportStolenThenRecover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cow := f.animal(t, "")
	other := f.animal(t, "")

	stolen, err := f.svc.ReportStolen(ctx, cow.ID, f.farmer.ID)
	if err != nil {
		t.Fatalf("report stolen: %v", err)
	}
	if stolen.Animal.Status != domain.StatusStolen || len(stolen.Alerts) != 1 {
		t.Fatalf("expected STOLEN with one alert, got %+v", stolen)
	}
	alert := stolen.Alerts[0]
	if alert.Scope != "Kiambu" || alert.Resolved || alert.Type != domain.AlertStolen {
		t.Fatalf("unexpected alert %+v", alert)
	}
	if !strings.Contains(alert.Detail, cow.SerialNumber) || !strings.Contains(alert.Detail, "Wanjiru") {
		t.Fatalf("alert detail should name serial and reporter: %q", alert.Detail)
	}
	if _, err := f.svc.ReportStolen(ctx, other.ID, f.farmer.ID); err != nil {
		t.Fatalf("report other: %v", err)
	}

	recovered, err := f.svc.RecoverAnimal(ctx, cow.ID)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered.Animal.Status != domain.StatusActive || len(recovered.Alerts) != 1 {
		t.Fatalf("expected ACTIVE with one resolved alert, got %+v", recovered)
	}
	for _, a := range f.svc.ListAlerts(domain.ScopeAll) {
		switch a.AnimalID {
		case cow.ID:
			if !a.Resolved {
				t.Fatalf("expected alert for recovered animal resolved")
			}
		case other.ID:
			if a.Resolved {
				t.Fatalf("alert for other animal must stay unresolved")
			}
		}
	}
	if _, err := f.svc.RecoverAnimal(ctx, cow.ID); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("second recover must fail, got %v", err)
	}
}

func TestReportStolenPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cow := f.animal(t, "")
	if _, err := f.svc.ReportStolen(ctx, cow.ID, "ghost"); !errors.Is(err, domain.ErrUnknownOwner) {
		t.Fatalf("expected unknown reporter, got %v", err)
	}
	if _, err := f.svc.ReportStolen(ctx, "missing", f.farmer.ID); !errors.Is(err, domain.ErrUnknownAnimal) {
		t.Fatalf("expected unknown animal, got %v", err)
	}
	if _, err := f.svc.MarkDead(ctx, cow.ID); err != nil {
		t.Fatalf("mark dead: %v", err)
	}
	_, err := f.svc.ReportStolen(ctx, cow.ID, f.farmer.ID)
	var transition domain.TransitionError
	if !errors.As(err, &transition) || transition.From != domain.StatusDead {
		t.Fatalf("expected transition error from DEAD, got %v", err)
	}
	if len(f.svc.ListAlerts("")) != 0 {
		t.Fatalf("failed report must not emit alerts")
	}
}

func TestTerminalTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dead := f.animal(t, "")
	slaughtered := f.animal(t, "")
	if out, err := f.svc.MarkDead(ctx, dead.ID); err != nil || out.Animal.Status != domain.StatusDead {
		t.Fatalf("mark dead: %v %+v", err, out.Animal)
	}
	if out, err := f.svc.HomeSlaughter(ctx, slaughtered.ID); err != nil || out.Animal.Status != domain.StatusSlaughtered {
		t.Fatalf("home slaughter: %v %+v", err, out.Animal)
	}
	if len(f.svc.ListButcheryRecords()) != 0 {
		t.Fatalf("home slaughter must not produce a butchery record")
	}
	for name, op := range map[string]func(context.Context, string) (Outcome, error){
		"mark_dead":      f.svc.MarkDead,
		"home_slaughter": f.svc.HomeSlaughter,
	} {
		if _, err := op(ctx, dead.ID); !errors.Is(err, domain.ErrInvalidStateTransition) {
			t.Fatalf("%s on DEAD animal: expected invalid transition, got %v", name, err)
		}
	}
	if _, err := f.svc.InitiateTransfer(ctx, slaughtered.ID, f.farmer.ID, f.buyer.ID); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected slaughtered animal to be untransferable, got %v", err)
	}
}

func TestInitiateThenAcceptTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cow := f.animal(t, "")

	initiated, err := f.svc.InitiateTransfer(ctx, cow.ID, f.farmer.ID, f.buyer.ID)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if initiated.Animal.Status != domain.StatusPendingTransfer || initiated.Request == nil || initiated.Request.Status != domain.TransferPending {
		t.Fatalf("unexpected initiate outcome %+v", initiated)
	}
	if _, err := f.svc.MarkDead(ctx, cow.ID); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("pending animal must not be marked dead, got %v", err)
	}

	accepted, err := f.svc.AcceptTransfer(ctx, initiated.Request.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	a := accepted.Animal
	if a.OwnerID != f.buyer.ID || a.Status != domain.StatusSold {
		t.Fatalf("expected SOLD to buyer, got %+v", a)
	}
	if len(a.TransferHistory) != 1 {
		t.Fatalf("expected exactly one history record, got %d", len(a.TransferHistory))
	}
	rec := a.TransferHistory[0]
	if rec.Type != domain.TransferSale || rec.FromUserID != f.farmer.ID || rec.ToUserID != f.buyer.ID || rec.Weight != nil {
		t.Fatalf("unexpected sale record %+v", rec)
	}
	if accepted.Request.Status != domain.TransferAccepted || accepted.Request.ResolvedAt == nil {
		t.Fatalf("expected accepted request with resolution time, got %+v", accepted.Request)
	}

	_, err = f.svc.AcceptTransfer(ctx, initiated.Request.ID)
	var state domain.RequestStateError
	if !errors.As(err, &state) || !errors.Is(err, domain.ErrInvalidRequestState) {
		t.Fatalf("expected request state error, got %v", err)
	}
	if _, err := f.svc.RejectTransfer(ctx, initiated.Request.ID); !errors.Is(err, domain.ErrInvalidRequestState) {
		t.Fatalf("resolved request must not be rejected, got %v", err)
	}
	if _, err := f.svc.AcceptTransfer(ctx, "missing"); !errors.Is(err, domain.ErrUnknownTransferRequest) {
		t.Fatalf("expected unknown request, got %v", err)
	}
}

func TestInitiateThenRejectTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cow := f.animal(t, "")

	initiated, err := f.svc.InitiateTransfer(ctx, cow.ID, "", f.buyer.ID)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if initiated.Request.FromUserID != f.farmer.ID {
		t.Fatalf("expected sender to default to owner, got %s", initiated.Request.FromUserID)
	}
	rejected, err := f.svc.RejectTransfer(ctx, initiated.Request.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Animal.Status != domain.StatusActive || rejected.Animal.OwnerID != f.farmer.ID {
		t.Fatalf("expected ACTIVE with unchanged owner, got %+v", rejected.Animal)
	}
	if len(rejected.Animal.TransferHistory) != 0 {
		t.Fatalf("rejection must not append history")
	}
	if rejected.Request.Status != domain.TransferRejected {
		t.Fatalf("expected REJECTED request")
	}
	if _, err := f.svc.InitiateTransfer(ctx, cow.ID, f.farmer.ID, "ghost"); !errors.Is(err, domain.ErrUnknownOwner) {
		t.Fatalf("expected unknown destination, got %v", err)
	}
	if got, _ := f.svc.GetAnimal(cow.ID); got.Status != domain.StatusActive {
		t.Fatalf("failed initiate must not change status, got %s", got.Status)
	}
}

func TestTransferToButcheryKeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cow := f.animal(t, "")
	out, err := f.svc.TransferToButchery(ctx, cow.ID, f.farmer.ID, f.butchery.ID, 312.5)
	if err != nil {
		t.Fatalf("transfer to butchery: %v", err)
	}
	if out.Animal.OwnerID != f.butchery.ID || out.Animal.Status != domain.StatusActive {
		t.Fatalf("expected owner change only, got %+v", out.Animal)
	}
	rec := out.Animal.TransferHistory[0]
	if rec.Type != domain.TransferButcheryTransfer || rec.Weight == nil || *rec.Weight != 312.5 {
		t.Fatalf("unexpected butchery transfer record %+v", rec)
	}
	if _, err := f.svc.TransferToButchery(ctx, cow.ID, f.butchery.ID, "ghost", 1); !errors.Is(err, domain.ErrUnknownOwner) {
		t.Fatalf("expected unknown destination, got %v", err)
	}
}

func TestLogSlaughterFraudHeuristic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	over := f.animal(t, "")
	flagged, err := f.svc.LogSlaughter(ctx, ButcheryRecord{AnimalID: over.ID, ButcheryID: f.butchery.ID, LiveWeight: 180, DeadWeight: 100, MeatSold: 120})
	if err != nil {
		t.Fatalf("log slaughter: %v", err)
	}
	if len(flagged.Alerts) != 1 {
		t.Fatalf("expected exactly one red-zone alert, got %d", len(flagged.Alerts))
	}
	alert := flagged.Alerts[0]
	if alert.Type != domain.AlertRedZone || alert.Scope != domain.ScopeAll || alert.Resolved {
		t.Fatalf("unexpected red-zone alert %+v", alert)
	}
	for _, want := range []string{f.butchery.ID, "120", "100"} {
		if !strings.Contains(alert.Detail, want) {
			t.Fatalf("detail %q missing %q", alert.Detail, want)
		}
	}
	if flagged.Animal.Status != domain.StatusSlaughtered || flagged.Record == nil || flagged.Record.ID == "" {
		t.Fatalf("expected slaughtered animal and stored record, got %+v", flagged)
	}

	clean := f.animal(t, "")
	ok, err := f.svc.LogSlaughter(ctx, ButcheryRecord{AnimalID: clean.ID, ButcheryID: f.butchery.ID, LiveWeight: 180, DeadWeight: 100, MeatSold: 80})
	if err != nil {
		t.Fatalf("log slaughter: %v", err)
	}
	if len(ok.Alerts) != 0 {
		t.Fatalf("expected no alert for reconciled weights")
	}
	if got := len(f.svc.ListAlerts(domain.ScopeAll)); got != 1 {
		t.Fatalf("expected one alert overall, got %d", got)
	}
	if got := len(f.svc.ListButcheryRecords()); got != 2 {
		t.Fatalf("expected two records, got %d", got)
	}
}

func TestLogSlaughterIsPermissiveOnStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cow := f.animal(t, "")
	pending, err := f.svc.InitiateTransfer(ctx, cow.ID, f.farmer.ID, f.buyer.ID)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if _, err := f.svc.AcceptTransfer(ctx, pending.Request.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	out, err := f.svc.LogSlaughter(ctx, ButcheryRecord{AnimalID: cow.ID, ButcheryID: f.butchery.ID, DeadWeight: 90, MeatSold: 90})
	if err != nil {
		t.Fatalf("slaughter of SOLD animal should be accepted: %v", err)
	}
	if out.Animal.Status != domain.StatusSlaughtered {
		t.Fatalf("expected SLAUGHTERED, got %s", out.Animal.Status)
	}
	if _, err := f.svc.LogSlaughter(ctx, ButcheryRecord{AnimalID: "missing", ButcheryID: f.butchery.ID}); !errors.Is(err, domain.ErrUnknownAnimal) {
		t.Fatalf("expected unknown animal, got %v", err)
	}
	if _, err := f.svc.LogSlaughter(ctx, ButcheryRecord{AnimalID: cow.ID, ButcheryID: "ghost"}); !errors.Is(err, domain.ErrUnknownOwner) {
		t.Fatalf("expected unknown butchery, got %v", err)
	}
}

func TestListAlertsScopeFilterAndOrder(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(ClockFunc(func() time.Time { return fixed })))
	ctx := context.Background()
	first := f.animal(t, "")
	second := f.animal(t, "")
	if _, err := f.svc.ReportStolen(ctx, first.ID, f.farmer.ID); err != nil {
		t.Fatalf("report: %v", err)
	}
	if _, err := f.svc.ReportStolen(ctx, second.ID, f.buyer.ID); err != nil {
		t.Fatalf("report: %v", err)
	}
	all := f.svc.ListAlerts("")
	if len(all) != 2 || all[0].AnimalID != second.ID {
		t.Fatalf("expected most recent first regardless of equal timestamps, got %+v", all)
	}
	kiambu := f.svc.ListAlerts("Kiambu")
	if len(kiambu) != 1 || kiambu[0].AnimalID != first.ID {
		t.Fatalf("expected only Kiambu alert, got %+v", kiambu)
	}
	if !all[0].Timestamp.Equal(fixed) {
		t.Fatalf("expected clock timestamp, got %v", all[0].Timestamp)
	}
}

func TestStatusAlwaysWithinEnum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cow := f.animal(t, "")

	steps := []struct {
		name    string
		run     func() (Outcome, error)
		wantErr error
		want    AnimalStatus
	}{
		{"report stolen", func() (Outcome, error) { return f.svc.ReportStolen(ctx, cow.ID, f.farmer.ID) }, nil, domain.StatusStolen},
		{"mark dead while stolen", func() (Outcome, error) { return f.svc.MarkDead(ctx, cow.ID) }, domain.ErrInvalidStateTransition, domain.StatusStolen},
		{"recover", func() (Outcome, error) { return f.svc.RecoverAnimal(ctx, cow.ID) }, nil, domain.StatusActive},
		{"recover twice", func() (Outcome, error) { return f.svc.RecoverAnimal(ctx, cow.ID) }, domain.ErrInvalidStateTransition, domain.StatusActive},
		{"initiate transfer", func() (Outcome, error) { return f.svc.InitiateTransfer(ctx, cow.ID, f.farmer.ID, f.buyer.ID) }, nil, domain.StatusPendingTransfer},
		{"report stolen while pending", func() (Outcome, error) { return f.svc.ReportStolen(ctx, cow.ID, f.farmer.ID) }, domain.ErrInvalidStateTransition, domain.StatusPendingTransfer},
		{"reject transfer", func() (Outcome, error) {
			requests := f.svc.ListTransferRequests()
			return f.svc.RejectTransfer(ctx, requests[len(requests)-1].ID)
		}, nil, domain.StatusActive},
		{"home slaughter", func() (Outcome, error) { return f.svc.HomeSlaughter(ctx, cow.ID) }, nil, domain.StatusSlaughtered},
		{"mark dead after slaughter", func() (Outcome, error) { return f.svc.MarkDead(ctx, cow.ID) }, domain.ErrInvalidStateTransition, domain.StatusSlaughtered},
		{"initiate transfer after slaughter", func() (Outcome, error) { return f.svc.InitiateTransfer(ctx, cow.ID, f.farmer.ID, f.buyer.ID) }, domain.ErrInvalidStateTransition, domain.StatusSlaughtered},
	}
	for _, step := range steps {
		out, err := step.run()
		if step.wantErr == nil {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", step.name, err)
			}
			if out.Animal.Status != step.want {
				t.Fatalf("%s: expected outcome status %s, got %s", step.name, step.want, out.Animal.Status)
			}
		} else if !errors.Is(err, step.wantErr) {
			t.Fatalf("%s: expected %v, got %v", step.name, step.wantErr, err)
		}
		got, ok := f.svc.GetAnimal(cow.ID)
		if !ok || got.Status != step.want {
			t.Fatalf("%s: expected stored status %s, got %q", step.name, step.want, got.Status)
		}
		for _, a := range f.svc.ListAnimals() {
			if !a.Status.Valid() {
				t.Fatalf("%s: animal %s has out-of-enum status %q", step.name, a.ID, a.Status)
			}
		}
	}
}

type capturePublisher struct {
	batches [][]Alert
	err     error
}

func (c *capturePublisher) PublishAlerts(_ context.Context, alerts []Alert) error {
	c.batches = append(c.batches, alerts)
	return c.err
}

func TestAlertsPublishedAfterCommit(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	f := newFixture(t, WithAlertPublisher(pub))
	ctx := context.Background()
	cow := f.animal(t, "")
	if _, err := f.svc.ReportStolen(ctx, cow.ID, f.farmer.ID); err != nil {
		t.Fatalf("publish failure must not surface: %v", err)
	}
	if len(pub.batches) != 1 || len(pub.batches[0]) != 1 {
		t.Fatalf("expected one published batch, got %+v", pub.batches)
	}
	if _, err := f.svc.ReportStolen(ctx, cow.ID, f.farmer.ID); err == nil {
		t.Fatalf("expected second report to fail")
	}
	if len(pub.batches) != 1 {
		t.Fatalf("failed operations must not publish")
	}
}

func TestFindAnimalBySerialAndExport(t *testing.T) {
	f := newFixture(t)
	cow := f.animal(t, "h-9")
	found, ok := f.svc.FindAnimalBySerial(context.Background(), cow.SerialNumber)
	if !ok || found.ID != cow.ID {
		t.Fatalf("expected serial lookup to find %s", cow.ID)
	}
	snapshot, ok := f.svc.ExportSnapshot()
	if !ok || len(snapshot.Animals) != 1 || len(snapshot.Users) != 4 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	restored := NewInMemoryService(NewDefaultRulesEngine())
	if err := restored.ImportSnapshot(context.Background(), snapshot); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got, ok := restored.GetAnimal(cow.ID); !ok || got.BiometricHash != "h-9" {
		t.Fatalf("expected imported animal, got %+v", got)
	}
}

func TestImportSnapshotRejectsInvalidRecords(t *testing.T) {
	f := newFixture(t)
	cow := f.animal(t, "h-1")
	ctx := context.Background()
	good, _ := f.svc.ExportSnapshot()

	cases := []struct {
		name   string
		animal Animal
		rule   string
	}{
		{"status outside enum", Animal{ID: "x1", SerialNumber: "COW-X1", OwnerID: f.farmer.ID, Status: "LOST"}, statusTransitionRuleName},
		{"unknown owner", Animal{ID: "x2", SerialNumber: "COW-X2", OwnerID: "ghost", Status: domain.StatusActive}, ownerReferenceRuleName},
		{"shared biometric hash", Animal{ID: "x3", SerialNumber: "COW-X3", OwnerID: f.farmer.ID, Status: domain.StatusActive, BiometricHash: "h-1"}, biometricHashRuleName},
		{"shared serial number", Animal{ID: "x4", SerialNumber: cow.SerialNumber, OwnerID: f.farmer.ID, Status: domain.StatusSold}, serialNumberRuleName},
	}
	for _, tc := range cases {
		snapshot, _ := f.svc.ExportSnapshot()
		snapshot.Animals[tc.animal.ID] = tc.animal
		err := f.svc.ImportSnapshot(ctx, snapshot)
		expectBlocked(t, err, tc.rule)
		if _, ok := f.svc.GetAnimal(tc.animal.ID); ok {
			t.Fatalf("%s: rejected import must not change the registry", tc.name)
		}
		if len(f.svc.ListAnimals()) != len(good.Animals) {
			t.Fatalf("%s: expected registry untouched", tc.name)
		}
	}

	sold := Animal{ID: "x5", SerialNumber: "COW-X5", OwnerID: f.buyer.ID, Status: domain.StatusSold}
	good.Animals[sold.ID] = sold
	if err := f.svc.ImportSnapshot(ctx, good); err != nil {
		t.Fatalf("valid snapshot with a SOLD animal must import: %v", err)
	}
	if got, ok := f.svc.GetAnimal(sold.ID); !ok || got.Status != domain.StatusSold {
		t.Fatalf("expected SOLD animal imported, got %+v", got)
	}
}

func TestAnimalWithoutPhotosEncodesEmptyList(t *testing.T) {
	f := newFixture(t)
	goat, _, err := f.svc.RegisterAnimal(context.Background(), AnimalInput{OwnerID: f.farmer.ID, Species: "Goat"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	stored, ok := f.svc.GetAnimal(goat.ID)
	if !ok {
		t.Fatalf("expected stored goat")
	}
	snapshot, _ := f.svc.ExportSnapshot()
	for name, v := range map[string]any{"registered": goat, "stored": stored, "listed": f.svc.ListAnimals(), "snapshot": snapshot} {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("%s: marshal: %v", name, err)
		}
		if strings.Contains(string(data), `"photos":null`) || !strings.Contains(string(data), `"photos":[]`) {
			t.Fatalf("%s: expected empty photo list, got %s", name, data)
		}
	}
}

func TestNextSerialNumberMatchesRegistration(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(ClockFunc(func() time.Time { return fixed })))
	ctx := context.Background()
	preview := f.svc.NextSerialNumber(ctx, "goat")
	if preview != "GOA-2026-00001" {
		t.Fatalf("unexpected preview %s", preview)
	}
	goat, _, err := f.svc.RegisterAnimal(ctx, AnimalInput{OwnerID: f.farmer.ID, Species: "goat"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if goat.SerialNumber != preview {
		t.Fatalf("expected registration to use previewed serial, got %s", goat.SerialNumber)
	}
	if next := f.svc.NextSerialNumber(ctx, "goat"); next != "GOA-2026-00002" {
		t.Fatalf("unexpected next serial %s", next)
	}
}
