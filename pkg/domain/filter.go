package domain

// FilterField names an intervention attribute that can be constrained.
type FilterField string

// Fields supported by InterventionFilter.
const (
	FilterChantier FilterField = "chantier"
	FilterFloor    FilterField = "floor"
	FilterRoom     FilterField = "room"
	FilterLot      FilterField = "lot"
	FilterStatus   FilterField = "status"
)

// FilterConstraint is one equality predicate. Stores combine constraints
// with AND.
type FilterConstraint struct {
	Field FilterField
	Value string
}

// InterventionFilter selects interventions by optional equality predicates.
// A zero-valued field means "no constraint", never "match empty".
type InterventionFilter struct {
	ChantierID string
	FloorID    string
	RoomID     string
	Lot        string
	Status     Status
}

// Constraints expands the filter into its non-empty predicates, in a fixed
// order so generated SQL stays deterministic.
func (f InterventionFilter) Constraints() []FilterConstraint {
	var out []FilterConstraint
	if f.ChantierID != "" {
		out = append(out, FilterConstraint{Field: FilterChantier, Value: f.ChantierID})
	}
	if f.FloorID != "" {
		out = append(out, FilterConstraint{Field: FilterFloor, Value: f.FloorID})
	}
	if f.RoomID != "" {
		out = append(out, FilterConstraint{Field: FilterRoom, Value: f.RoomID})
	}
	if f.Lot != "" {
		out = append(out, FilterConstraint{Field: FilterLot, Value: f.Lot})
	}
	if f.Status != "" {
		out = append(out, FilterConstraint{Field: FilterStatus, Value: string(f.Status)})
	}
	return out
}
