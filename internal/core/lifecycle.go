package core

import (
	"context"
	"strings"
)

// ChangeStatus moves an intervention to newStatus on behalf of actor,
// appending the matching action-log line and exactly one history record. The
// target row is held under the store's exclusive lock for the whole
// transaction, serializing concurrent changes to the same intervention.
//
// The person field policy depends on the target status: "a faire" and
// "terminé" leave it unchanged, "en cours" overwrites it with the joined
// supplied persons or the actor's display name when none were supplied. The
// "terminé" line is only written for non-admin actors, preserving the
// historical behavior.
func (s *Service) ChangeStatus(ctx context.Context, interventionID string, actor Actor, newStatus Status, date string, persons []string) (Intervention, Result, error) {
	if !newStatus.Valid() {
		return Intervention{}, Result{}, InvalidStatusError{Status: newStatus}
	}

	normalized := normalizePersons(persons)
	suppliedPersons := joinPersons(normalized)
	actorName := actor.DisplayName()
	eventDate := effectiveDate(date, s.nowFn)

	var updated Intervention
	res, err := s.run(ctx, "change_status", func(tx Transaction) error {
		var oldStatus Status
		var line string

		var err error
		updated, err = tx.UpdateIntervention(interventionID, func(iv *Intervention) error {
			oldStatus = iv.Status
			switch newStatus {
			case StatusTodo:
				line = resetLine(eventDate, actorName)
			case StatusInProgress:
				personsText := suppliedPersons
				if personsText == "" {
					personsText = actorName
				}
				iv.Person = personsText
				line = inProgressLine(eventDate, personsText)
			case StatusDone:
				if !actor.IsAdmin() {
					line = doneLine(eventDate, actorName)
				}
			}
			iv.Status = newStatus
			iv.AppendAction(line)
			return nil
		})
		if err != nil {
			return err
		}

		_, err = tx.AppendHistory(HistoryRecord{
			InterventionID: interventionID,
			EventType:      EventStatusChange,
			OldStatus:      oldStatus,
			NewStatus:      newStatus,
			Persons:        suppliedPersons,
			EventDate:      eventDate,
			ActorEmail:     actor.Email,
			ActorName:      actorName,
			Note:           line,
		})
		return err
	}, func() string { return interventionID })
	return updated, res, err
}

// EditRequest carries the replacement fields for EditIntervention. Persons
// and EffectiveDate are optional; Lot and Task are required.
type EditRequest struct {
	FloorID       string
	RoomID        string
	Lot           string
	Task          string
	Persons       []string
	EffectiveDate string
}

// EditIntervention corrects the scope, classification, person, and date of
// an intervention without touching its status. The correction line appended
// to the action log is built only from the fields actually supplied; the
// history note summarizes the visible differences.
func (s *Service) EditIntervention(ctx context.Context, interventionID string, actor Actor, edit EditRequest) (Intervention, Result, error) {
	lot := strings.TrimSpace(edit.Lot)
	task := strings.TrimSpace(edit.Task)
	if lot == "" {
		return Intervention{}, Result{}, ValidationError{Field: "lot", Reason: "required"}
	}
	if task == "" {
		return Intervention{}, Result{}, ValidationError{Field: "task", Reason: "required"}
	}

	normalized := normalizePersons(edit.Persons)
	personsSupplied := len(normalized) > 0
	dateSupplied := strings.TrimSpace(edit.EffectiveDate) != ""
	eventDate := effectiveDate(edit.EffectiveDate, s.nowFn)
	actorName := actor.DisplayName()

	var updated Intervention
	res, err := s.run(ctx, "edit_intervention", func(tx Transaction) error {
		floorName := func(id string) string {
			if f, ok := tx.FindFloor(id); ok {
				return f.Name
			}
			return id
		}
		roomName := func(id string) string {
			if r, ok := tx.FindRoom(id); ok {
				return r.Name
			}
			return id
		}

		var diff editDiff
		var err error
		updated, err = tx.UpdateIntervention(interventionID, func(iv *Intervention) error {
			newPerson := iv.Person
			if personsSupplied {
				newPerson = joinPersons(normalized)
			}
			diff = editDiff{
				OldLot: iv.Lot, NewLot: lot,
				OldTask: iv.Task, NewTask: task,
				OldFloorID: iv.FloorID, NewFloorID: edit.FloorID,
				OldFloorName: floorName(iv.FloorID), NewFloorName: floorName(edit.FloorID),
				OldRoomID: iv.RoomID, NewRoomID: edit.RoomID,
				OldRoomName: roomName(iv.RoomID), NewRoomName: roomName(edit.RoomID),
				OldPerson: iv.Person, NewPerson: newPerson,
				DateSupplied: dateSupplied,
				Date:         eventDate,
			}

			iv.FloorID = edit.FloorID
			iv.RoomID = edit.RoomID
			iv.Lot = lot
			iv.Task = task
			iv.Person = newPerson
			iv.AppendAction(correctionLine(personsSupplied, newPerson, dateSupplied, eventDate))
			return nil
		})
		if err != nil {
			return err
		}

		_, err = tx.AppendHistory(HistoryRecord{
			InterventionID: interventionID,
			EventType:      EventEdit,
			OldStatus:      updated.Status,
			NewStatus:      updated.Status,
			Persons:        updated.Person,
			EventDate:      eventDate,
			ActorEmail:     actor.Email,
			ActorName:      actorName,
			Note:           diff.note(),
		})
		return err
	}, func() string { return interventionID })
	return updated, res, err
}
