package services

import (
	"github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/models"
)

// SafetyGate decides whether a classified statement may run.
type SafetyGate struct{}

// NewSafetyGate creates a gate.
func NewSafetyGate() *SafetyGate {
	return &SafetyGate{}
}

// Authorize returns nil for statements allowed to run, or a *errors.RejectionError.
// UNKNOWN is rejected even when allowDestructive is set.
func (g *SafetyGate) Authorize(verdict models.StatementVerdict, allowDestructive bool) error {
	switch verdict.Category {
	case models.CategoryRead:
		return nil
	case models.CategoryDestructive, models.CategorySchemaMutation:
		if allowDestructive {
			return nil
		}
		return errors.NewRejection(errors.ReasonBlockedDestructive, verdict.Category.String())
	default:
		return errors.NewRejection(errors.ReasonAmbiguousStatement, verdict.Category.String())
	}
}
