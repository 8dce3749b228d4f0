package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// TaskRow is one parsed spreadsheet row. The producing side (cell reading,
// form input) is out of scope; the import logic consumes rows identically
// regardless of origin.
type TaskRow struct {
	FloorName string `json:"floor_name"`
	RoomName  string `json:"room_name"`
	Lot       string `json:"lot"`
	Task      string `json:"task"`
}

// RowSource yields task rows in order. Next returns false when exhausted.
type RowSource interface {
	Next() (TaskRow, bool)
}

type sliceRowSource struct {
	rows []TaskRow
	pos  int
}

func (s *sliceRowSource) Next() (TaskRow, bool) {
	if s.pos >= len(s.rows) {
		return TaskRow{}, false
	}
	row := s.rows[s.pos]
	s.pos++
	return row, true
}

// RowsFromSlice adapts an in-memory row slice to a RowSource.
func RowsFromSlice(rows []TaskRow) RowSource {
	return &sliceRowSource{rows: rows}
}

// ImportResult summarizes a row import: how many interventions were created
// and which lines were skipped, in row order.
type ImportResult struct {
	Created int       `json:"created"`
	Skipped []string  `json:"skipped"`
	Rows    []TaskRow `json:"rows"`
	BlobKey string    `json:"blob_key,omitempty"`
}

// Summary renders the user-facing import outcome message. At most ten skip
// messages are included.
func (r ImportResult) Summary() string {
	msg := fmt.Sprintf("Import terminé : %d tâches créées (statut: a faire).", r.Created)
	if len(r.Skipped) > 0 {
		shown := r.Skipped
		if len(shown) > 10 {
			shown = shown[:10]
		}
		msg += " Certaines lignes ont été ignorées : " + strings.Join(shown, " ")
	}
	return msg
}

// ImportArchiver persists the consumed batch after a successful import.
type ImportArchiver interface {
	ArchiveImport(ctx context.Context, chantierID string, payload []byte) (string, error)
}

// WithImportArchiver injects the archive sink written after each successful
// row import. Without it, import batches are not archived.
func WithImportArchiver(archiver ImportArchiver) Option {
	return func(s *Service) {
		if archiver != nil {
			s.archiver = archiver
		}
	}
}

// ImportRows consumes the row source and creates one intervention per row
// that resolves to an existing floor and room within the chantier, all in a
// single transaction. Rows with an empty task are skipped silently (header
// residue); rows with a blank lot inherit the last non-empty lot seen, the
// currentLot scan state. Unresolvable rows produce a skip message and do not
// abort the batch. After commit the batch is archived when an archiver is
// configured; archive failures are logged and do not undo the import.
func (s *Service) ImportRows(ctx context.Context, chantierID string, actor Actor, source RowSource) (ImportResult, Result, error) {
	var rows []TaskRow
	currentLot := ""
	for {
		row, ok := source.Next()
		if !ok {
			break
		}
		row.FloorName = strings.TrimSpace(row.FloorName)
		row.RoomName = strings.TrimSpace(row.RoomName)
		row.Lot = strings.TrimSpace(row.Lot)
		row.Task = strings.TrimSpace(row.Task)
		if row.Task == "" {
			continue
		}
		if row.Lot == "" {
			row.Lot = currentLot
		} else {
			currentLot = row.Lot
		}
		rows = append(rows, row)
	}

	outcome := ImportResult{Rows: rows, Skipped: []string{}}
	res, err := s.run(ctx, "import_rows", func(tx Transaction) error {
		outcome.Created = 0
		outcome.Skipped = outcome.Skipped[:0]
		for _, row := range rows {
			floor, ok := tx.FindFloorByName(chantierID, row.FloorName)
			if !ok {
				outcome.Skipped = append(outcome.Skipped, fmt.Sprintf("Ligne avec étage %q, pièce %q ignorée (étage introuvable).", row.FloorName, row.RoomName))
				continue
			}
			room, ok := tx.FindRoomByName(floor.ID, row.RoomName)
			if !ok {
				outcome.Skipped = append(outcome.Skipped, fmt.Sprintf("Ligne avec étage %q, pièce %q ignorée (pièce introuvable).", row.FloorName, row.RoomName))
				continue
			}
			if _, err := tx.CreateIntervention(Intervention{
				FloorID:      floor.ID,
				RoomID:       room.ID,
				OldFloorName: floor.Name,
				OldRoomName:  room.Name,
				Lot:          row.Lot,
				Task:         row.Task,
				Status:       StatusTodo,
				Action:       creationAction,
				UserID:       actor.Email,
			}); err != nil {
				return err
			}
			outcome.Created++
		}
		return nil
	}, func() string { return chantierID })
	if err != nil {
		return ImportResult{}, res, err
	}

	if s.archiver != nil {
		payload, marshalErr := json.Marshal(struct {
			ChantierID string       `json:"chantier_id"`
			Actor      string       `json:"actor"`
			Result     ImportResult `json:"result"`
		}{ChantierID: chantierID, Actor: actor.Email, Result: outcome})
		if marshalErr != nil {
			s.logger.Warn("import archive marshal failed", "chantier_id", chantierID, "error", marshalErr)
			return outcome, res, nil
		}
		key, archiveErr := s.archiver.ArchiveImport(ctx, chantierID, payload)
		if archiveErr != nil {
			s.logger.Warn("import archive failed", "chantier_id", chantierID, "error", archiveErr)
			return outcome, res, nil
		}
		outcome.BlobKey = key
	}
	return outcome, res, nil
}
