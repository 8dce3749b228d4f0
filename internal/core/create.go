package core

import (
	"context"
	"strings"
)

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// CreateFromManualSelection inserts one intervention per valid room under the
// given floor, all with status "a faire" and action "Création". Room ids that
// do not resolve or belong to another floor are silently skipped; the
// insertion of the remaining rooms is atomic.
func (s *Service) CreateFromManualSelection(ctx context.Context, chantierID, floorID string, roomIDs []string, lot, task string, actor Actor) ([]Intervention, Result, error) {
	lot = strings.TrimSpace(lot)
	task = strings.TrimSpace(task)
	if strings.TrimSpace(floorID) == "" {
		return nil, Result{}, ValidationError{Field: "floor_id", Reason: "required"}
	}
	if lot == "" {
		return nil, Result{}, ValidationError{Field: "lot", Reason: "required"}
	}
	if task == "" {
		return nil, Result{}, ValidationError{Field: "task", Reason: "required"}
	}
	ids := trimNonEmpty(roomIDs)
	if len(ids) == 0 {
		return nil, Result{}, ValidationError{Field: "room_ids", Reason: "at least one room required"}
	}

	var created []Intervention
	res, err := s.run(ctx, "create_manual", func(tx Transaction) error {
		floor, ok := tx.FindFloor(floorID)
		if !ok {
			return NotFoundError{Entity: EntityFloor, ID: floorID}
		}
		if floor.ChantierID != chantierID {
			return InvalidScopeError{Entity: EntityFloor, ID: floorID, ParentID: chantierID}
		}
		for _, roomID := range ids {
			room, ok := tx.FindRoom(roomID)
			if !ok || room.FloorID != floorID {
				continue
			}
			iv, err := tx.CreateIntervention(Intervention{
				FloorID:      floor.ID,
				RoomID:       room.ID,
				OldFloorName: floor.Name,
				OldRoomName:  room.Name,
				Lot:          lot,
				Task:         task,
				Status:       StatusTodo,
				Action:       creationAction,
				UserID:       actor.Email,
			})
			if err != nil {
				return err
			}
			created = append(created, iv)
		}
		return nil
	}, func() string { return floorID })
	if err != nil {
		return nil, res, err
	}
	return created, res, nil
}

// CreateFromCatalogSelection expands the cartesian product of the selected
// rooms and the catalog tasks of the selected lots into new interventions,
// all with status "a faire" and action "Création (catalogue)". When allRooms
// is set the selection covers every room under the floor at call time. Lots
// absent from the site catalog contribute zero tasks. Returns the number of
// interventions created; the whole expansion is one transaction.
func (s *Service) CreateFromCatalogSelection(ctx context.Context, chantierID, floorID string, roomIDs []string, allRooms bool, lots []string, actor Actor) (int, Result, error) {
	if strings.TrimSpace(floorID) == "" {
		return 0, Result{}, ValidationError{Field: "floor_id", Reason: "required"}
	}
	selectedLots := trimNonEmpty(lots)
	if len(selectedLots) == 0 {
		return 0, Result{}, ValidationError{Field: "lots", Reason: "at least one lot required"}
	}

	count := 0
	res, err := s.run(ctx, "create_from_catalog", func(tx Transaction) error {
		floor, ok := tx.FindFloor(floorID)
		if !ok {
			return NotFoundError{Entity: EntityFloor, ID: floorID}
		}
		if floor.ChantierID != chantierID {
			return InvalidScopeError{Entity: EntityFloor, ID: floorID, ParentID: chantierID}
		}

		var rooms []Room
		if allRooms {
			rooms = tx.ListRoomsByFloor(floorID)
		} else {
			for _, roomID := range trimNonEmpty(roomIDs) {
				room, ok := tx.FindRoom(roomID)
				if !ok || room.FloorID != floorID {
					continue
				}
				rooms = append(rooms, room)
			}
		}
		if len(rooms) == 0 {
			return ValidationError{Field: "room_ids", Reason: "no rooms resolved"}
		}

		for _, room := range rooms {
			for _, lot := range selectedLots {
				for _, task := range tx.ListCatalogTasks(chantierID, lot) {
					if _, err := tx.CreateIntervention(Intervention{
						FloorID:      floor.ID,
						RoomID:       room.ID,
						OldFloorName: floor.Name,
						OldRoomName:  room.Name,
						Lot:          lot,
						Task:         task,
						Status:       StatusTodo,
						Action:       creationCatalogAction,
						UserID:       actor.Email,
					}); err != nil {
						return err
					}
					count++
				}
			}
		}
		return nil
	}, func() string { return floorID })
	if err != nil {
		return 0, res, err
	}
	return count, res, nil
}
