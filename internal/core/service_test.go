package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"chantiercore/internal/infra/persistence/memory"
	"chantiercore/pkg/domain"
)

var (
	alice = Actor{Email: "alice@example.com", FirstName: "Alice", LastName: "Martin", Role: domain.RoleMember}
	admin = Actor{Email: "chef@example.com", FirstName: "Chef", LastName: "Durand", Role: domain.RoleAdmin}
)

type siteFixture struct {
	store    *memory.Store
	svc      *Service
	chantier Chantier
	floor    Floor
	rooms    []Room
}

// newSiteFixture seeds one chantier with one floor and the named rooms,
// running on a clock frozen at 2026-05-12.
func newSiteFixture(t *testing.T, roomNames []string, opts ...Option) *siteFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore(NewDefaultRulesEngine())
	store.SetNowFunc(func() time.Time { return time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC) })
	svc := NewService(store, opts...)

	chantier, _, err := svc.CreateChantier(ctx, Chantier{Name: "Tour Horizon"})
	if err != nil {
		t.Fatalf("create chantier: %v", err)
	}
	floor, _, err := svc.CreateFloor(ctx, Floor{Name: "RDC", ChantierID: chantier.ID})
	if err != nil {
		t.Fatalf("create floor: %v", err)
	}
	f := &siteFixture{store: store, svc: svc, chantier: chantier, floor: floor}
	for _, name := range roomNames {
		room, _, err := svc.CreateRoom(ctx, Room{Name: name, FloorID: floor.ID})
		if err != nil {
			t.Fatalf("create room %s: %v", name, err)
		}
		f.rooms = append(f.rooms, room)
	}
	return f
}

// seedIntervention creates one intervention in the first room via manual
// selection.
func (f *siteFixture) seedIntervention(t *testing.T, lot, task string) Intervention {
	t.Helper()
	created, _, err := f.svc.CreateFromManualSelection(context.Background(), f.chantier.ID, f.floor.ID, []string{f.rooms[0].ID}, lot, task, alice)
	if err != nil {
		t.Fatalf("seed intervention: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 intervention, got %d", len(created))
	}
	return created[0]
}

func TestChangeStatusToInProgressOverwritesPerson(t *testing.T) {
	f := newSiteFixture(t, []string{"Cuisine"})
	ctx := context.Background()
	iv := f.seedIntervention(t, "Plomberie", "Pose évier")

	updated, _, err := f.svc.ChangeStatus(ctx, iv.ID, alice, StatusInProgress, "", nil)
	if err != nil {
		t.Fatalf("change status: %v", err)
	}
	if updated.Status != StatusInProgress {
		t.Fatalf("status not updated: %s", updated.Status)
	}
	if updated.Person != "Alice Martin" {
		t.Fatalf("person should be overwritten with actor name, got %q", updated.Person)
	}
	wantAction := "Création\nEn cours depuis le 2026-05-12 (par Alice Martin)"
	if updated.Action != wantAction {
		t.Fatalf("action log mismatch:\n got %q\nwant %q", updated.Action, wantAction)
	}

	history, err := f.svc.ListHistory(ctx, iv.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected exactly one history record, got %d", len(history))
	}
	rec := history[0]
	if rec.EventType != EventStatusChange || rec.OldStatus != StatusTodo || rec.NewStatus != StatusInProgress {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Persons != "" || rec.ActorName != "Alice Martin" || rec.ActorEmail != alice.Email {
		t.Fatalf("unexpected actor fields %+v", rec)
	}
	if rec.Note != "En cours depuis le 2026-05-12 (par Alice Martin)" {
		t.Fatalf("unexpected note %q", rec.Note)
	}
}

func TestChangeStatusWithSuppliedPersonsAndDate(t *testing.T) {
	f := newSiteFixture(t, []string{"Cuisine"})
	iv := f.seedIntervention(t, "Plomberie", "Pose évier")

	updated, _, err := f.svc.ChangeStatus(context.Background(), iv.ID, alice, StatusInProgress, " 2026-06-01 ", []string{" Bob ", "", "Chloé"})
	if err != nil {
		t.Fatalf("change status: %v", err)
	}
	if updated.Person != "Bob, Chloé" {
		t.Fatalf("person mismatch: %q", updated.Person)
	}
	if !strings.HasSuffix(updated.Action, "En cours depuis le 2026-06-01 (par Bob, Chloé)") {
		t.Fatalf("action log mismatch: %q", updated.Action)
	}
	history, _ := f.svc.ListHistory(context.Background(), iv.ID)
	if len(history) != 1 || history[0].Persons != "Bob, Chloé" || history[0].EventDate != "2026-06-01" {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestChangeStatusRejectsInvalidStatus(t *testing.T) {
	f := newSiteFixture(t, []string{"Cuisine"})
	ctx := context.Background()
	iv := f.seedIntervention(t, "Plomberie", "Pose évier")

	_, _, err := f.svc.ChangeStatus(ctx, iv.ID, alice, Status("done"), "", nil)
	var invalid InvalidStatusError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStatusError, got %v", err)
	}

	got, err := f.svc.GetIntervention(ctx, iv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusTodo || got.Action != iv.Action || got.Person != iv.Person {
		t.Fatalf("row must be unchanged after rejected change: %+v", got)
	}
	history, _ := f.svc.ListHistory(ctx, iv.ID)
	if len(history) != 0 {
		t.Fatalf("no history record expected, got %d", len(history))
	}
}

func TestChangeStatusUnknownIntervention(t *testing.T) {
	f := newSiteFixture(t, []string{"Cuisine"})
	_, _, err := f.svc.ChangeStatus(context.Background(), "missing", alice, StatusInProgress, "", nil)
	var notFound NotFoundError
	if !errors.As(err, &notFound) || notFound.Entity != EntityIntervention {
		t.Fatalf("expected intervention NotFoundError, got %v", err)
	}
}

func TestSequentialStatusChangesKeepAllLines(t *testing.T) {
	f := newSiteFixture(t, []string{"Cuisine"})
	ctx := context.Background()
	iv := f.seedIntervention(t, "Plomberie", "Pose évier")

	if _, _, err := f.svc.ChangeStatus(ctx, iv.ID, alice, StatusInProgress, "2026-06-01", nil); err != nil {
		t.Fatalf("first change: %v", err)
	}
	updated, _, err := f.svc.ChangeStatus(ctx, iv.ID, alice, StatusDone, "2026-06-15", nil)
	if err != nil {
		t.Fatalf("second change: %v", err)
	}

	lines := strings.Split(updated.Action, "\n")
	want := []string{
		"Création",
		"En cours depuis le 2026-06-01 (par Alice Martin)",
		"Terminé le 2026-06-15 (validé par Alice Martin)",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), updated.Action)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d mismatch: got %q want %q", i, lines[i], want[i])
		}
	}

	history, _ := f.svc.ListHistory(ctx, iv.ID)
	if len(history) != 2 {
		t.Fatalf("expected two history records, got %d", len(history))
	}
	if history[0].NewStatus != StatusInProgress || history[1].OldStatus != StatusInProgress || history[1].NewStatus != StatusDone {
		t.Fatalf("ledger out of order: %+v", history)
	}
}

func TestChangeStatusDoneByAdminWritesNoLine(t *testing.T) {
	f := newSiteFixture(t, []string{"Cuisine"})
	ctx := context.Background()
	iv := f.seedIntervention(t, "Plomberie", "Pose évier")

	updated, _, err := f.svc.ChangeStatus(ctx, iv.ID, admin, StatusDone, "", nil)
	if err != nil {
		t.Fatalf("change status: %v", err)
	}
	if updated.Status != StatusDone {
		t.Fatalf("status not updated: %s", updated.Status)
	}
	if updated.Action != "Création" {
		t.Fatalf("admin completion must not append a line: %q", updated.Action)
	}
	if updated.Person != iv.Person {
		t.Fatalf("person must be unchanged: %q", updated.Person)
	}
	history, _ := f.svc.ListHistory(ctx, iv.ID)
	if len(history) != 1 || history[0].Note != "" {
		t.Fatalf("record still expected, with empty note: %+v", history)
	}
}

func TestChangeStatusBackToTodoKeepsPerson(t *testing.T) {
	f := newSiteFixture(t, []string{"Cuisine"})
	ctx := context.Background()
	iv := f.seedIntervention(t, "Plomberie", "Pose évier")

	if _, _, err := f.svc.ChangeStatus(ctx, iv.ID, alice, StatusInProgress, "2026-06-01", nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	updated, _, err := f.svc.ChangeStatus(ctx, iv.ID, admin, StatusTodo, "2026-06-02", nil)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if updated.Status != StatusTodo {
		t.Fatalf("status not reset: %s", updated.Status)
	}
	if updated.Person != "Alice Martin" {
		t.Fatalf("reset must leave person untouched: %q", updated.Person)
	}
	if !strings.HasSuffix(updated.Action, "Réinitialisé le 2026-06-02 par Chef Durand") {
		t.Fatalf("missing reset line: %q", updated.Action)
	}
}

func TestConcurrentStatusChangesBothRecorded(t *testing.T) {
	f := newSiteFixture(t, []string{"Cuisine"})
	ctx := context.Background()
	iv := f.seedIntervention(t, "Plomberie", "Pose évier")

	bob := Actor{Email: "bob@example.com", FirstName: "Bob", LastName: "Roche", Role: domain.RoleMember}
	var wg sync.WaitGroup
	for _, actor := range []Actor{alice, bob} {
		wg.Add(1)
		go func(a Actor) {
			defer wg.Done()
			if _, _, err := f.svc.ChangeStatus(ctx, iv.ID, a, StatusInProgress, "", nil); err != nil {
				t.Errorf("change by %s: %v", a.Email, err)
			}
		}(actor)
	}
	wg.Wait()

	got, err := f.svc.GetIntervention(ctx, iv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if lines := strings.Split(got.Action, "\n"); len(lines) != 3 {
		t.Fatalf("both change lines must survive, got %q", got.Action)
	}
	history, _ := f.svc.ListHistory(ctx, iv.ID)
	if len(history) != 2 {
		t.Fatalf("expected two history records, got %d", len(history))
	}
}

func TestEditInterventionCorrection(t *testing.T) {
	f := newSiteFixture(t, []string{"Cuisine", "Salon"})
	ctx := context.Background()
	iv := f.seedIntervention(t, "Plomberie", "Pose évier")

	updated, _, err := f.svc.EditIntervention(ctx, iv.ID, alice, EditRequest{
		FloorID:       f.floor.ID,
		RoomID:        f.rooms[1].ID,
		Lot:           "Électricité",
		Task:          "Tableau électrique",
		Persons:       []string{"Bob"},
		EffectiveDate: "2026-07-01",
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if updated.Lot != "Électricité" || updated.Task != "Tableau électrique" || updated.RoomID != f.rooms[1].ID {
		t.Fatalf("fields not updated: %+v", updated)
	}
	if updated.Status != StatusTodo {
		t.Fatalf("edit must not touch status: %s", updated.Status)
	}
	if updated.Person != "Bob" {
		t.Fatalf("person not replaced: %q", updated.Person)
	}
	if !strings.HasSuffix(updated.Action, "Correction : Qui = Bob, Quand = 2026-07-01") {
		t.Fatalf("missing correction line: %q", updated.Action)
	}

	history, _ := f.svc.ListHistory(ctx, iv.ID)
	if len(history) != 1 {
		t.Fatalf("expected one record, got %d", len(history))
	}
	rec := history[0]
	if rec.EventType != EventEdit || rec.OldStatus != rec.NewStatus {
		t.Fatalf("unexpected edit record %+v", rec)
	}
	for _, segment := range []string{
		"Lot : « Plomberie » → « Électricité »",
		"Tâche : « Pose évier » → « Tableau électrique »",
		"Pièce : « Cuisine » → « Salon »",
		"Qui : «  » → « Bob »",
		"Quand = 2026-07-01",
	} {
		if !strings.Contains(rec.Note, segment) {
			t.Fatalf("note missing %q: %q", segment, rec.Note)
		}
	}
}

func TestEditWithoutVisibleChange(t *testing.T) {
	f := newSiteFixture(t, []string{"Cuisine"})
	ctx := context.Background()
	iv := f.seedIntervention(t, "Plomberie", "Pose évier")

	updated, _, err := f.svc.EditIntervention(ctx, iv.ID, alice, EditRequest{
		FloorID: iv.FloorID,
		RoomID:  iv.RoomID,
		Lot:     iv.Lot,
		Task:    iv.Task,
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if updated.Action != iv.Action {
		t.Fatalf("no correction line expected: %q", updated.Action)
	}
	if updated.Person != iv.Person {
		t.Fatalf("person must be unchanged: %q", updated.Person)
	}
	history, _ := f.svc.ListHistory(ctx, iv.ID)
	if len(history) != 1 || history[0].Note != noVisibleChangeNote {
		t.Fatalf("expected fixed no-change note, got %+v", history)
	}
}

func TestEditLotRenameNoteOnly(t *testing.T) {
	f := newSiteFixture(t, []string{"Cuisine"})
	ctx := context.Background()
	iv := f.seedIntervention(t, "Plomberie", "Pose évier")

	_, _, err := f.svc.EditIntervention(ctx, iv.ID, alice, EditRequest{
		FloorID: iv.FloorID,
		RoomID:  iv.RoomID,
		Lot:     "Électricité",
		Task:    iv.Task,
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	history, _ := f.svc.ListHistory(ctx, iv.ID)
	if len(history) != 1 {
		t.Fatalf("expected one record, got %d", len(history))
	}
	note := history[0].Note
	if note != "Lot : « Plomberie » → « Électricité »" {
		t.Fatalf("unexpected note %q", note)
	}
	if strings.Contains(note, "Qui") || strings.Contains(note, "Quand") {
		t.Fatalf("unsupplied fields must not appear in note: %q", note)
	}
}

func TestEditValidation(t *testing.T) {
	f := newSiteFixture(t, []string{"Cuisine"})
	iv := f.seedIntervention(t, "Plomberie", "Pose évier")

	var verr ValidationError
	_, _, err := f.svc.EditIntervention(context.Background(), iv.ID, alice, EditRequest{FloorID: iv.FloorID, RoomID: iv.RoomID, Task: "x"})
	if !errors.As(err, &verr) || verr.Field != "lot" {
		t.Fatalf("expected lot validation error, got %v", err)
	}
	_, _, err = f.svc.EditIntervention(context.Background(), iv.ID, alice, EditRequest{FloorID: iv.FloorID, RoomID: iv.RoomID, Lot: "x", Task: "  "})
	if !errors.As(err, &verr) || verr.Field != "task" {
		t.Fatalf("expected task validation error, got %v", err)
	}
}

func TestManualCreationSkipsForeignRooms(t *testing.T) {
	f := newSiteFixture(t, []string{"Cuisine", "Salon"})
	ctx := context.Background()

	created, _, err := f.svc.CreateFromManualSelection(ctx, f.chantier.ID, f.floor.ID, []string{f.rooms[0].ID, "bogus", f.rooms[1].ID}, "Peinture", "Murs", alice)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 interventions, got %d", len(created))
	}
	for _, iv := range created {
		if iv.Status != StatusTodo || iv.Action != "Création" {
			t.Fatalf("unexpected intervention %+v", iv)
		}
		if iv.OldFloorName != "RDC" {
			t.Fatalf("floor name not snapshotted: %+v", iv)
		}
	}
}

func TestManualCreationValidation(t *testing.T) {
	f := newSiteFixture(t, []string{"Cuisine"})
	ctx := context.Background()

	var verr ValidationError
	if _, _, err := f.svc.CreateFromManualSelection(ctx, f.chantier.ID, "", []string{"r"}, "Lot", "Task", alice); !errors.As(err, &verr) {
		t.Fatalf("expected floor validation error, got %v", err)
	}
	if _, _, err := f.svc.CreateFromManualSelection(ctx, f.chantier.ID, f.floor.ID, nil, "Lot", "Task", alice); !errors.As(err, &verr) || verr.Field != "room_ids" {
		t.Fatalf("expected room_ids validation error, got %v", err)
	}

	var notFound NotFoundError
	if _, _, err := f.svc.CreateFromManualSelection(ctx, f.chantier.ID, "missing", []string{"r"}, "Lot", "Task", alice); !errors.As(err, &notFound) {
		t.Fatalf("expected floor NotFoundError, got %v", err)
	}

	other, _, err := f.svc.CreateChantier(ctx, Chantier{Name: "Autre site"})
	if err != nil {
		t.Fatalf("create other chantier: %v", err)
	}
	var scope InvalidScopeError
	if _, _, err := f.svc.CreateFromManualSelection(ctx, other.ID, f.floor.ID, []string{f.rooms[0].ID}, "Lot", "Task", alice); !errors.As(err, &scope) {
		t.Fatalf("expected InvalidScopeError, got %v", err)
	}
}

func TestCatalogCreationExpandsProduct(t *testing.T) {
	f := newSiteFixture(t, []string{"Cuisine", "Salon"})
	ctx := context.Background()

	for _, entry := range []CatalogEntry{
		{ChantierID: f.chantier.ID, Lot: "Plomberie", Task: "Pose évier"},
		{ChantierID: f.chantier.ID, Lot: "Plomberie", Task: "Raccordement"},
		{Lot: "Électricité", Task: "Tableau"},
	} {
		if _, _, err := f.svc.CreateCatalogEntry(ctx, entry); err != nil {
			t.Fatalf("create catalog entry: %v", err)
		}
	}

	count, _, err := f.svc.CreateFromCatalogSelection(ctx, f.chantier.ID, f.floor.ID, nil, true, []string{"Plomberie", "Électricité"}, alice)
	if err != nil {
		t.Fatalf("catalog creation: %v", err)
	}
	if count != 6 {
		t.Fatalf("expected 2 rooms x 3 tasks = 6, got %d", count)
	}

	list, err := f.svc.ListInterventions(ctx, InterventionFilter{ChantierID: f.chantier.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 6 {
		t.Fatalf("expected 6 interventions, got %d", len(list))
	}
	for _, iv := range list {
		if iv.Action != "Création (catalogue)" || iv.Status != StatusTodo {
			t.Fatalf("unexpected intervention %+v", iv)
		}
	}
}

func TestCatalogCreationSingleRoomTwoTasks(t *testing.T) {
	f := newSiteFixture(t, []string{"Bureau"})
	ctx := context.Background()

	for _, task := range []string{"Pose évier", "Raccordement"} {
		if _, _, err := f.svc.CreateCatalogEntry(ctx, CatalogEntry{ChantierID: f.chantier.ID, Lot: "Plomberie", Task: task}); err != nil {
			t.Fatalf("create catalog entry: %v", err)
		}
	}
	count, _, err := f.svc.CreateFromCatalogSelection(ctx, f.chantier.ID, f.floor.ID, []string{f.rooms[0].ID}, false, []string{"Plomberie"}, alice)
	if err != nil {
		t.Fatalf("catalog creation: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected exactly 2 interventions, got %d", count)
	}
}

func TestCatalogCreationUnknownLotContributesZero(t *testing.T) {
	f := newSiteFixture(t, []string{"Bureau"})
	ctx := context.Background()

	if _, _, err := f.svc.CreateCatalogEntry(ctx, CatalogEntry{ChantierID: f.chantier.ID, Lot: "Plomberie", Task: "Pose évier"}); err != nil {
		t.Fatalf("create catalog entry: %v", err)
	}
	count, _, err := f.svc.CreateFromCatalogSelection(ctx, f.chantier.ID, f.floor.ID, nil, true, []string{"Plomberie", "Maçonnerie"}, alice)
	if err != nil {
		t.Fatalf("catalog creation: %v", err)
	}
	if count != 1 {
		t.Fatalf("unknown lot must contribute zero tasks, got %d", count)
	}
}

func TestCatalogCreationRequiresResolvedRooms(t *testing.T) {
	f := newSiteFixture(t, nil)
	ctx := context.Background()
	if _, _, err := f.svc.CreateCatalogEntry(ctx, CatalogEntry{ChantierID: f.chantier.ID, Lot: "Plomberie", Task: "Pose évier"}); err != nil {
		t.Fatalf("create catalog entry: %v", err)
	}
	var verr ValidationError
	if _, _, err := f.svc.CreateFromCatalogSelection(ctx, f.chantier.ID, f.floor.ID, nil, true, []string{"Plomberie"}, alice); !errors.As(err, &verr) {
		t.Fatalf("expected validation error with no rooms, got %v", err)
	}
}

func TestGetInterventionAndHistoryNotFound(t *testing.T) {
	f := newSiteFixture(t, []string{"Cuisine"})
	ctx := context.Background()
	var notFound NotFoundError
	if _, err := f.svc.GetIntervention(ctx, "missing"); !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if _, err := f.svc.ListHistory(ctx, "missing"); !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestListChantiersNewestFirst(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	base := time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)
	step := 0
	store.SetNowFunc(func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	})
	svc := NewService(store)
	ctx := context.Background()

	if _, _, err := svc.CreateChantier(ctx, Chantier{Name: "Premier"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.CreateChantier(ctx, Chantier{Name: "Second"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	list, err := svc.ListChantiers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Second" {
		t.Fatalf("expected newest first: %+v", list)
	}
}
