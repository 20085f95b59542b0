package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AgeUnit is the unit a patient's age is recorded in.
type AgeUnit string

const (
	AgeDays   AgeUnit = "days"
	AgeMonths AgeUnit = "months"
	AgeYears  AgeUnit = "years"
)

// ParseAgeUnit accepts the canonical spellings case-insensitively. An empty
// unit means years.
func ParseAgeUnit(s string) (AgeUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "years", "year", "y":
		return AgeYears, nil
	case "months", "month", "mo":
		return AgeMonths, nil
	case "days", "day", "d":
		return AgeDays, nil
	default:
		return "", fmt.Errorf("unknown age unit %q", s)
	}
}

func (u *AgeUnit) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseAgeUnit(raw)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Technique is the anesthetic technique used for a case.
type Technique string

const (
	TechniqueGeneral  Technique = "general"
	TechniqueRegional Technique = "regional"
	TechniqueMAC      Technique = "MAC"
	TechniqueCombined Technique = "combined"
)

func ParseTechnique(s string) (Technique, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "general", "ga":
		return TechniqueGeneral, nil
	case "regional":
		return TechniqueRegional, nil
	case "mac", "monitored anesthesia care", "sedation":
		return TechniqueMAC, nil
	case "combined", "combined general/regional":
		return TechniqueCombined, nil
	default:
		return "", fmt.Errorf("unknown anesthetic technique %q", s)
	}
}

func (t *Technique) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTechnique(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Urgency classifies how soon a procedure had to happen.
type Urgency string

const (
	UrgencyElective Urgency = "elective"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyEmergent Urgency = "emergent"
)

func ParseUrgency(s string) (Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "elective":
		return UrgencyElective, nil
	case "urgent":
		return UrgencyUrgent, nil
	case "emergent", "emergency":
		return UrgencyEmergent, nil
	default:
		return "", fmt.Errorf("unknown urgency %q", s)
	}
}

func (u *Urgency) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseUrgency(raw)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Patient holds the demographics and history of a case.
type Patient struct {
	Age           float64  `json:"age"`
	AgeUnit       AgeUnit  `json:"ageUnit,omitempty"`
	Weight        float64  `json:"weight,omitempty"`
	Sex           string   `json:"sex,omitempty"`
	ASAClass      int      `json:"asaClass"`
	Comorbidities []string `json:"comorbidities,omitempty"`
	Allergies     []string `json:"allergies,omitempty"`
	Medications   []string `json:"medications,omitempty"`
}

// AgeYears returns the patient's age normalized to years.
func (p Patient) AgeYears() float64 {
	switch p.AgeUnit {
	case AgeDays:
		return p.Age / 365.25
	case AgeMonths:
		return p.Age / 12
	default:
		return p.Age
	}
}

// AgeDisplay renders the age the way it was recorded, e.g. "6 months".
func (p Patient) AgeDisplay() string {
	unit := p.AgeUnit
	if unit == "" {
		unit = AgeYears
	}
	return strconv.FormatFloat(p.Age, 'f', -1, 64) + " " + string(unit)
}

type Procedure struct {
	Name            string  `json:"name"`
	Specialty       string  `json:"specialty,omitempty"`
	Urgency         Urgency `json:"urgency,omitempty"`
	DurationMinutes float64 `json:"duration,omitempty"`
	BloodLossML     float64 `json:"bloodLoss,omitempty"`
}

type DrugDose struct {
	Drug string  `json:"drug"`
	Dose float64 `json:"dose,omitempty"`
	Unit string  `json:"unit,omitempty"`
}

type Anesthetic struct {
	Technique         Technique  `json:"technique"`
	RegionalBlockType string     `json:"regionalBlockType,omitempty"`
	InductionDrugs    []DrugDose `json:"inductionDrugs,omitempty"`
}

// Complication is one adverse event during a case.
type Complication struct {
	Event      string `json:"event"`
	Timing     string `json:"timing,omitempty"`
	Management string `json:"management,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
}

type Outcome struct {
	CriticalIncident bool    `json:"criticalIncident"`
	ICUDays          float64 `json:"icuDays,omitempty"`
	HospitalDays     float64 `json:"hospitalDays,omitempty"`
	QualityScore     float64 `json:"qualityScore,omitempty"`
}

// Case is one anonymized clinical encounter. A Case is never modified after
// the corpus holding it has been built.
type Case struct {
	ID             string         `json:"id"`
	Date           string         `json:"date,omitempty"`
	Title          string         `json:"title,omitempty"`
	Patient        Patient        `json:"patient"`
	Procedure      Procedure      `json:"procedure"`
	Anesthetic     Anesthetic     `json:"anesthetic"`
	Complications  []Complication `json:"complications,omitempty"`
	ClinicalPearls []string       `json:"clinicalPearls,omitempty"`
	KeyTakeaways   []string       `json:"keyTakeaways,omitempty"`
	Outcome        Outcome        `json:"outcome"`
}

// DisplayTitle is the explicit title, or the procedure name.
func (c Case) DisplayTitle() string {
	if t := strings.TrimSpace(c.Title); t != "" {
		return t
	}
	return c.Procedure.Name
}

// ComplicationEvents lists the complication events in recorded order.
func (c Case) ComplicationEvents() []string {
	out := make([]string, 0, len(c.Complications))
	for _, comp := range c.Complications {
		if comp.Timing != "" {
			out = append(out, comp.Event+" ("+comp.Timing+")")
			continue
		}
		out = append(out, comp.Event)
	}
	return out
}
