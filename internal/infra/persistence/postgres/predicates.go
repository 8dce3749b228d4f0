package postgres

import (
	"fmt"
	"strings"

	"chantiercore/pkg/domain"
)

// filterColumns maps filter fields to the columns of the intervention list
// query. The chantier constraint goes through the floors join since
// interventions do not carry the chantier id directly.
var filterColumns = map[domain.FilterField]string{
	domain.FilterChantier: "f.chantier_id",
	domain.FilterFloor:    "i.floor_id",
	domain.FilterRoom:     "i.room_id",
	domain.FilterLot:      "i.lot",
	domain.FilterStatus:   "i.status",
}

// buildInterventionPredicates renders the filter's constraints as a
// parameterized WHERE clause. An empty filter yields an empty clause; the
// values only ever travel as query arguments.
func buildInterventionPredicates(filter domain.InterventionFilter) (string, []any) {
	constraints := filter.Constraints()
	if len(constraints) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(constraints))
	args := make([]any, 0, len(constraints))
	for _, c := range constraints {
		column, ok := filterColumns[c.Field]
		if !ok {
			continue
		}
		args = append(args, c.Value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
