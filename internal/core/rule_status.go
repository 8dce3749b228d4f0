package core

import (
	"context"
	"fmt"
	"strings"

	"chantiercore/pkg/domain"
)

// NewStatusIntegrityRule blocks commits that would leave an intervention in
// a state outside the fixed lifecycle set, or that would truncate or rewrite
// the append-only action log. It backstops the service-level validation for
// writers that reach the store directly.
func NewStatusIntegrityRule() domain.Rule {
	return statusIntegrityRule{}
}

type statusIntegrityRule struct{}

func (statusIntegrityRule) Name() string { return "status_integrity" }

func decodeIntervention(payload any) (Intervention, bool) {
	switch v := payload.(type) {
	case Intervention:
		return v, true
	case *Intervention:
		if v != nil {
			return *v, true
		}
	}
	return Intervention{}, false
}

func (statusIntegrityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	res := Result{}
	for _, change := range changes {
		if change.Entity != EntityIntervention {
			continue
		}

		after, ok := decodeIntervention(change.After)
		if !ok {
			continue
		}
		if !after.Status.Valid() {
			res.Violations = append(res.Violations, Violation{
				Rule:     "status_integrity",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("intervention %s is set to invalid status %q", after.ID, after.Status),
				Entity:   EntityIntervention,
				EntityID: after.ID,
			})
			continue
		}

		if change.Action != ActionUpdate {
			continue
		}
		before, ok := decodeIntervention(change.Before)
		if !ok {
			continue
		}
		if before.Action != "" && !strings.HasPrefix(after.Action, before.Action) {
			res.Violations = append(res.Violations, Violation{
				Rule:     "status_integrity",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("intervention %s action log would lose existing lines", after.ID),
				Entity:   EntityIntervention,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}
