package core

import (
	"fmt"
	"strings"
	"time"
)

// Action-log lines written on creation.
const (
	creationAction        = "Création"
	creationCatalogAction = "Création (catalogue)"
)

const noVisibleChangeNote = "Aucun changement visible"

// normalizePersons trims the supplied names and discards empties, preserving
// order.
func normalizePersons(persons []string) []string {
	out := make([]string, 0, len(persons))
	for _, p := range persons {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinPersons(persons []string) string {
	return strings.Join(persons, ", ")
}

// effectiveDate returns the trimmed supplied date, or the current UTC date in
// YYYY-MM-DD when absent.
func effectiveDate(supplied string, now func() time.Time) string {
	if trimmed := strings.TrimSpace(supplied); trimmed != "" {
		return trimmed
	}
	return now().UTC().Format("2006-01-02")
}

func resetLine(date, actorName string) string {
	return fmt.Sprintf("Réinitialisé le %s par %s", date, actorName)
}

func inProgressLine(date, personsText string) string {
	return fmt.Sprintf("En cours depuis le %s (par %s)", date, personsText)
}

func doneLine(date, actorName string) string {
	return fmt.Sprintf("Terminé le %s (validé par %s)", date, actorName)
}

// correctionLine composes the action-log line for an edit, built only from
// the fields actually supplied. Returns empty when neither persons nor a date
// were supplied, in which case nothing is appended.
func correctionLine(personsSupplied bool, personsText string, dateSupplied bool, date string) string {
	var parts []string
	if personsSupplied {
		parts = append(parts, fmt.Sprintf("Qui = %s", personsText))
	}
	if dateSupplied {
		parts = append(parts, fmt.Sprintf("Quand = %s", date))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Correction : " + strings.Join(parts, ", ")
}

// editDiff captures the before/after values compared when composing the edit
// audit note. Floor and room are compared by id but rendered by name.
type editDiff struct {
	OldLot, NewLot             string
	OldTask, NewTask           string
	OldFloorID, NewFloorID     string
	OldFloorName, NewFloorName string
	OldRoomID, NewRoomID       string
	OldRoomName, NewRoomName   string
	OldPerson, NewPerson       string
	DateSupplied               bool
	Date                       string
}

func quoted(old, new string) string {
	return fmt.Sprintf("« %s » → « %s »", old, new)
}

// note renders the human-readable change summary stored on the history
// record, or a fixed no-change note when nothing differs.
func (d editDiff) note() string {
	var segments []string
	if d.OldLot != d.NewLot {
		segments = append(segments, "Lot : "+quoted(d.OldLot, d.NewLot))
	}
	if d.OldTask != d.NewTask {
		segments = append(segments, "Tâche : "+quoted(d.OldTask, d.NewTask))
	}
	if d.OldFloorID != d.NewFloorID {
		segments = append(segments, "Étage : "+quoted(d.OldFloorName, d.NewFloorName))
	}
	if d.OldRoomID != d.NewRoomID {
		segments = append(segments, "Pièce : "+quoted(d.OldRoomName, d.NewRoomName))
	}
	if d.OldPerson != d.NewPerson {
		segments = append(segments, "Qui : "+quoted(d.OldPerson, d.NewPerson))
	}
	if d.DateSupplied {
		segments = append(segments, "Quand = "+d.Date)
	}
	if len(segments) == 0 {
		return noVisibleChangeNote
	}
	return strings.Join(segments, " ; ")
}
