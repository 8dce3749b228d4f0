package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"chantiercore/pkg/domain"
)

func TestStorePersistsAndReloadsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	var chantier domain.Chantier
	var iv domain.Intervention
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		chantier, err = tx.CreateChantier(domain.Chantier{Name: "Residence Nord"})
		if err != nil {
			return err
		}
		floor, err := tx.CreateFloor(domain.Floor{Name: "RDC", ChantierID: chantier.ID})
		if err != nil {
			return err
		}
		room, err := tx.CreateRoom(domain.Room{Name: "Hall", FloorID: floor.ID})
		if err != nil {
			return err
		}
		iv, err = tx.CreateIntervention(domain.Intervention{
			FloorID: floor.ID,
			RoomID:  room.ID,
			Lot:     "Peinture",
			Task:    "Sous-couche",
			Action:  "Création",
		})
		if err != nil {
			return err
		}
		_, err = tx.AppendHistory(domain.HistoryRecord{InterventionID: iv.ID, EventType: domain.EventStatusChange, NewStatus: domain.StatusTodo})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	err = reopened.View(context.Background(), func(view domain.TransactionView) error {
		c, ok := view.FindChantier(chantier.ID)
		if !ok || c.Name != "Residence Nord" {
			t.Fatalf("chantier not restored: %v %v", c, ok)
		}
		got, ok := view.FindIntervention(iv.ID)
		if !ok {
			t.Fatalf("intervention not restored")
		}
		if got.Status != domain.StatusTodo || got.Action != "Création" {
			t.Fatalf("restored intervention mismatch: %+v", got)
		}
		if records := view.ListHistory(iv.ID); len(records) != 1 {
			t.Fatalf("expected 1 history record, got %d", len(records))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestStoreDoesNotPersistFailedTransactions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = store.Close() }()

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateFloor(domain.Floor{Name: "Orphelin", ChantierID: "missing"})
		return err
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count state rows: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no snapshot rows after failed transaction, got %d", count)
	}
}
