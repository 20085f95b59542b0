package corpus

import (
	"fmt"
	"strings"

	"caserag/internal/domain"
)

// Validate checks a single case. index is only used to name the offending
// field in the error.
func Validate(c domain.Case, index int) error {
	field := func(name string) string { return fmt.Sprintf("cases[%d].%s", index, name) }

	if strings.TrimSpace(c.Procedure.Name) == "" {
		return domain.NewValidationError(field("procedure.name"), "is required")
	}
	if c.Patient.Age < 0 {
		return domain.NewValidationError(field("patient.age"), "must not be negative, got %v", c.Patient.Age)
	}
	switch c.Patient.AgeUnit {
	case "", domain.AgeDays, domain.AgeMonths, domain.AgeYears:
	default:
		return domain.NewValidationError(field("patient.ageUnit"), "unknown unit %q", c.Patient.AgeUnit)
	}
	if c.Patient.ASAClass < 1 || c.Patient.ASAClass > 6 {
		return domain.NewValidationError(field("patient.asaClass"), "must be between 1 and 6, got %d", c.Patient.ASAClass)
	}
	switch c.Anesthetic.Technique {
	case domain.TechniqueGeneral, domain.TechniqueRegional, domain.TechniqueMAC, domain.TechniqueCombined:
	case "":
		return domain.NewValidationError(field("anesthetic.technique"), "is required")
	default:
		return domain.NewValidationError(field("anesthetic.technique"), "unknown technique %q", c.Anesthetic.Technique)
	}
	switch c.Procedure.Urgency {
	case "", domain.UrgencyElective, domain.UrgencyUrgent, domain.UrgencyEmergent:
	default:
		return domain.NewValidationError(field("procedure.urgency"), "unknown urgency %q", c.Procedure.Urgency)
	}
	if q := c.Outcome.QualityScore; q < 0 || q > 10 {
		return domain.NewValidationError(field("outcome.qualityScore"), "must be between 0 and 10, got %v", q)
	}
	for i, comp := range c.Complications {
		if strings.TrimSpace(comp.Event) == "" {
			return domain.NewValidationError(field(fmt.Sprintf("complications[%d].event", i)), "is required")
		}
	}
	return nil
}
