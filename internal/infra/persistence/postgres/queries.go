package postgres

import (
	"database/sql"
	"time"

	"chantiercore/pkg/domain"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntervention(row rowScanner) (domain.Intervention, error) {
	var iv domain.Intervention
	var status string
	var createdAt, updatedAt time.Time
	err := row.Scan(&iv.ID, &iv.FloorID, &iv.RoomID, &iv.OldFloorName, &iv.OldRoomName,
		&iv.Lot, &iv.Task, &status, &iv.Person, &iv.Action, &iv.UserID, &createdAt, &updatedAt)
	if err != nil {
		return domain.Intervention{}, err
	}
	iv.Status = domain.Status(status)
	iv.CreatedAt = createdAt
	iv.UpdatedAt = updatedAt
	return iv, nil
}

func scanHistoryRecord(row rowScanner) (domain.HistoryRecord, error) {
	var rec domain.HistoryRecord
	var eventType, oldStatus, newStatus string
	err := row.Scan(&rec.ID, &rec.InterventionID, &eventType, &oldStatus, &newStatus,
		&rec.Persons, &rec.EventDate, &rec.ActorEmail, &rec.ActorName, &rec.Note, &rec.CreatedAt)
	if err != nil {
		return domain.HistoryRecord{}, err
	}
	rec.EventType = domain.EventType(eventType)
	rec.OldStatus = domain.Status(oldStatus)
	rec.NewStatus = domain.Status(newStatus)
	return rec, nil
}

// ListChantiers returns all chantiers, newest first.
func (t *pgTransaction) ListChantiers() []domain.Chantier {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT id, name, nom, created_at, updated_at FROM chantiers ORDER BY created_at DESC, id DESC`)
	if err != nil {
		t.fail("list chantiers", err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Chantier
	for rows.Next() {
		var c domain.Chantier
		if err := rows.Scan(&c.ID, &c.Name, &c.Nom, &c.CreatedAt, &c.UpdatedAt); err != nil {
			t.fail("scan chantier", err)
			return nil
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		t.fail("iterate chantiers", err)
		return nil
	}
	return out
}

// ListInterventions returns interventions matching the filter, ordered by
// floor name, room name, creation time, then id. The WHERE clause is built
// from the filter's typed constraints; no SQL fragments come from callers.
func (t *pgTransaction) ListInterventions(filter domain.InterventionFilter) []domain.Intervention {
	where, args := buildInterventionPredicates(filter)
	query := `SELECT i.id, i.floor_id, i.room_id, i.old_floor_name, i.old_room_name,
			i.lot, i.task, i.status, i.person, i.action, i.user_id, i.created_at, i.updated_at
		FROM interventions i
		LEFT JOIN floors f ON f.id = i.floor_id
		LEFT JOIN rooms r ON r.id = i.room_id` +
		where +
		` ORDER BY f.name, r.name, i.created_at, i.id`

	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		t.fail("list interventions", err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Intervention
	for rows.Next() {
		iv, err := scanIntervention(rows)
		if err != nil {
			t.fail("scan intervention", err)
			return nil
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		t.fail("iterate interventions", err)
		return nil
	}
	return out
}

// ListHistory returns the ledger records for an intervention, oldest first.
func (t *pgTransaction) ListHistory(interventionID string) []domain.HistoryRecord {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT id, intervention_id, event_type, old_status, new_status, persons, event_date, actor_email, actor_name, note, created_at
		 FROM history_records WHERE intervention_id = $1 ORDER BY created_at, id`, interventionID)
	if err != nil {
		t.fail("list history", err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	var out []domain.HistoryRecord
	for rows.Next() {
		rec, err := scanHistoryRecord(rows)
		if err != nil {
			t.fail("scan history record", err)
			return nil
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		t.fail("iterate history", err)
		return nil
	}
	return out
}

// FindChantier retrieves a chantier by id.
func (t *pgTransaction) FindChantier(id string) (domain.Chantier, bool) {
	var c domain.Chantier
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT id, name, nom, created_at, updated_at FROM chantiers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Nom, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Chantier{}, false
	}
	if err != nil {
		t.fail("find chantier", err)
		return domain.Chantier{}, false
	}
	return c, true
}

// FindFloor retrieves a floor by id.
func (t *pgTransaction) FindFloor(id string) (domain.Floor, bool) {
	var f domain.Floor
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT id, name, chantier_id, created_at, updated_at FROM floors WHERE id = $1`, id).
		Scan(&f.ID, &f.Name, &f.ChantierID, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Floor{}, false
	}
	if err != nil {
		t.fail("find floor", err)
		return domain.Floor{}, false
	}
	return f, true
}

// FindRoom retrieves a room by id.
func (t *pgTransaction) FindRoom(id string) (domain.Room, bool) {
	var r domain.Room
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT id, name, floor_id, created_at, updated_at FROM rooms WHERE id = $1`, id).
		Scan(&r.ID, &r.Name, &r.FloorID, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Room{}, false
	}
	if err != nil {
		t.fail("find room", err)
		return domain.Room{}, false
	}
	return r, true
}

// FindIntervention retrieves an intervention by id without locking it.
func (t *pgTransaction) FindIntervention(id string) (domain.Intervention, bool) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT `+interventionColumns+` FROM interventions WHERE id = $1`, id)
	iv, err := scanIntervention(row)
	if err == sql.ErrNoRows {
		return domain.Intervention{}, false
	}
	if err != nil {
		t.fail("find intervention", err)
		return domain.Intervention{}, false
	}
	return iv, true
}

// FindFloorByName resolves a floor by chantier and display name.
func (t *pgTransaction) FindFloorByName(chantierID, name string) (domain.Floor, bool) {
	var f domain.Floor
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT id, name, chantier_id, created_at, updated_at FROM floors WHERE chantier_id = $1 AND name = $2`,
		chantierID, name).
		Scan(&f.ID, &f.Name, &f.ChantierID, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Floor{}, false
	}
	if err != nil {
		t.fail("find floor by name", err)
		return domain.Floor{}, false
	}
	return f, true
}

// FindRoomByName resolves a room by floor and display name.
func (t *pgTransaction) FindRoomByName(floorID, name string) (domain.Room, bool) {
	var r domain.Room
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT id, name, floor_id, created_at, updated_at FROM rooms WHERE floor_id = $1 AND name = $2`,
		floorID, name).
		Scan(&r.ID, &r.Name, &r.FloorID, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Room{}, false
	}
	if err != nil {
		t.fail("find room by name", err)
		return domain.Room{}, false
	}
	return r, true
}

// ListRoomsByFloor returns the rooms under a floor ordered by name.
func (t *pgTransaction) ListRoomsByFloor(floorID string) []domain.Room {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT id, name, floor_id, created_at, updated_at FROM rooms WHERE floor_id = $1 ORDER BY name, id`, floorID)
	if err != nil {
		t.fail("list rooms", err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Room
	for rows.Next() {
		var r domain.Room
		if err := rows.Scan(&r.ID, &r.Name, &r.FloorID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			t.fail("scan room", err)
			return nil
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		t.fail("iterate rooms", err)
		return nil
	}
	return out
}

// ListCatalogTasks resolves the task list for a lot from the site-scoped
// catalog plus global entries.
func (t *pgTransaction) ListCatalogTasks(chantierID, lot string) []string {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT task FROM catalog_entries WHERE (chantier_id = $1 OR chantier_id = '') AND lot = $2 ORDER BY task`,
		chantierID, lot)
	if err != nil {
		t.fail("list catalog tasks", err)
		return nil
	}
	defer func() { _ = rows.Close() }()

	out := make([]string, 0)
	for rows.Next() {
		var task string
		if err := rows.Scan(&task); err != nil {
			t.fail("scan catalog task", err)
			return nil
		}
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		t.fail("iterate catalog tasks", err)
		return nil
	}
	return out
}
