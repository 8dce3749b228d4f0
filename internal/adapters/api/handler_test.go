package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chantiercore/internal/core"
	"chantiercore/internal/infra/persistence/memory"
	"chantiercore/pkg/domain"
)

var testActors = []domain.Actor{
	{Email: "alice@example.com", FirstName: "Alice", LastName: "Martin", Role: domain.RoleMember},
	{Email: "chef@example.com", FirstName: "Chef", LastName: "Durand", Role: domain.RoleAdmin},
}

type apiFixture struct {
	svc      *core.Service
	server   *httptest.Server
	chantier domain.Chantier
	floor    domain.Floor
	rooms    []domain.Room
}

func newAPIFixture(t *testing.T, roomNames ...string) *apiFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore(core.NewDefaultRulesEngine())
	store.SetNowFunc(func() time.Time { return time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC) })
	svc := core.NewService(store)

	chantier, _, err := svc.CreateChantier(ctx, domain.Chantier{Name: "Tour Horizon", Nom: "Horizon"})
	if err != nil {
		t.Fatalf("create chantier: %v", err)
	}
	floor, _, err := svc.CreateFloor(ctx, domain.Floor{Name: "RDC", ChantierID: chantier.ID})
	if err != nil {
		t.Fatalf("create floor: %v", err)
	}
	f := &apiFixture{svc: svc, chantier: chantier, floor: floor}
	for _, name := range roomNames {
		room, _, err := svc.CreateRoom(ctx, domain.Room{Name: name, FloorID: floor.ID})
		if err != nil {
			t.Fatalf("create room: %v", err)
		}
		f.rooms = append(f.rooms, room)
	}

	handler := NewHandler(svc, NewStaticIdentityProvider(testActors))
	f.server = httptest.NewServer(handler.Router())
	t.Cleanup(f.server.Close)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, email string, body any) *http.Response {
	t.Helper()
	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		payload = bytes.NewBuffer(raw)
	} else {
		payload = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, f.server.URL+path, payload)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if email != "" {
		req.Header.Set("X-User-Email", email)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestListChantiersPrefersNom(t *testing.T) {
	f := newAPIFixture(t, "Cuisine")
	resp := f.do(t, http.MethodGet, "/api/v1/chantiers", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	list := decode[[]chantierResponse](t, resp)
	if len(list) != 1 || list[0].DisplayName != "Horizon" {
		t.Fatalf("unexpected response %+v", list)
	}
}

func TestManualCreationAndStatusFlow(t *testing.T) {
	f := newAPIFixture(t, "Cuisine")

	resp := f.do(t, http.MethodPost, "/api/v1/chantiers/"+f.chantier.ID+"/interventions", "alice@example.com", createManualRequest{
		FloorID: f.floor.ID,
		RoomIDs: []string{f.rooms[0].ID},
		Lot:     "Plomberie",
		Task:    "Pose évier",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d", resp.StatusCode)
	}
	created := decode[[]domain.Intervention](t, resp)
	if len(created) != 1 || created[0].Action != "Création" {
		t.Fatalf("unexpected creation %+v", created)
	}

	resp = f.do(t, http.MethodPost, "/api/v1/interventions/"+created[0].ID+"/status", "alice@example.com", changeStatusRequest{Status: "en cours"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change status %d", resp.StatusCode)
	}
	updated := decode[domain.Intervention](t, resp)
	if updated.Status != domain.StatusInProgress || updated.Person != "Alice Martin" {
		t.Fatalf("unexpected update %+v", updated)
	}
	if !strings.HasSuffix(updated.Action, "En cours depuis le 2026-05-12 (par Alice Martin)") {
		t.Fatalf("action log mismatch: %q", updated.Action)
	}

	resp = f.do(t, http.MethodGet, "/api/v1/interventions/"+created[0].ID+"/history", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status %d", resp.StatusCode)
	}
	history := decode[[]domain.HistoryRecord](t, resp)
	if len(history) != 1 || history[0].EventType != domain.EventStatusChange {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestListInterventionsWithFilters(t *testing.T) {
	f := newAPIFixture(t, "Cuisine", "Salon")
	ctx := context.Background()
	if _, _, err := f.svc.CreateFromManualSelection(ctx, f.chantier.ID, f.floor.ID, []string{f.rooms[0].ID, f.rooms[1].ID}, "Plomberie", "Pose évier", testActors[0]); err != nil {
		t.Fatalf("seed: %v", err)
	}

	resp := f.do(t, http.MethodGet, "/api/v1/chantiers/"+f.chantier.ID+"/interventions?room="+f.rooms[1].ID+"&lot=Plomberie&status=a+faire", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	list := decode[[]domain.Intervention](t, resp)
	if len(list) != 1 || list[0].RoomID != f.rooms[1].ID {
		t.Fatalf("unexpected filtered list %+v", list)
	}

	resp = f.do(t, http.MethodGet, "/api/v1/chantiers/"+f.chantier.ID+"/interventions?status=bogus", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid status filter must 400, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestErrorMapping(t *testing.T) {
	f := newAPIFixture(t, "Cuisine")

	resp := f.do(t, http.MethodGet, "/api/v1/interventions/missing", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing intervention must 404, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/api/v1/interventions/missing/status", "alice@example.com", changeStatusRequest{Status: "done"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid status must 400, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/api/v1/interventions/missing/status", "nobody@example.com", changeStatusRequest{Status: "en cours"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown identity must 401, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/api/v1/chantiers/"+f.chantier.ID+"/interventions", "alice@example.com", createManualRequest{FloorID: f.floor.ID, RoomIDs: []string{f.rooms[0].ID}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing lot must 400, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestCatalogCreationRoute(t *testing.T) {
	f := newAPIFixture(t, "Cuisine", "Salon")
	ctx := context.Background()
	for _, task := range []string{"Pose évier", "Raccordement"} {
		if _, _, err := f.svc.CreateCatalogEntry(ctx, domain.CatalogEntry{ChantierID: f.chantier.ID, Lot: "Plomberie", Task: task}); err != nil {
			t.Fatalf("seed catalog: %v", err)
		}
	}

	resp := f.do(t, http.MethodPost, "/api/v1/chantiers/"+f.chantier.ID+"/interventions/catalog", "alice@example.com", createCatalogRequest{
		FloorID:  f.floor.ID,
		AllRooms: true,
		Lots:     []string{"Plomberie"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d", resp.StatusCode)
	}
	out := decode[createCatalogResponse](t, resp)
	if out.Created != 4 {
		t.Fatalf("expected 2 rooms x 2 tasks = 4, got %d", out.Created)
	}
}

func TestImportRoute(t *testing.T) {
	f := newAPIFixture(t, "Cuisine")

	resp := f.do(t, http.MethodPost, "/api/v1/chantiers/"+f.chantier.ID+"/import", "alice@example.com", importRequest{Rows: []core.TaskRow{
		{FloorName: "RDC", RoomName: "Cuisine", Lot: "Plomberie", Task: "Pose évier"},
		{FloorName: "Étage 9", RoomName: "Bureau", Lot: "Peinture", Task: "Murs"},
	}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	out := decode[importResponse](t, resp)
	if out.Created != 1 || len(out.Skipped) != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !strings.HasPrefix(out.Summary, "Import terminé : 1 tâches créées (statut: a faire).") {
		t.Fatalf("unexpected summary %q", out.Summary)
	}
}

func TestHeaderIdentityProvider(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if _, err := (HeaderIdentityProvider{}).Resolve(req); err == nil {
		t.Fatalf("expected error without email header")
	}
	req.Header.Set("X-User-Email", "alice@example.com")
	req.Header.Set("X-User-First-Name", "Alice")
	req.Header.Set("X-User-Role", "ADMIN")
	actor, err := (HeaderIdentityProvider{}).Resolve(req)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !actor.IsAdmin() || actor.DisplayName() != "Alice" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}
