package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTechniqueUnmarshalIsCaseInsensitive(t *testing.T) {
	var a Anesthetic
	require.NoError(t, json.Unmarshal([]byte(`{"technique":"Regional","regionalBlockType":"spinal"}`), &a))
	assert.Equal(t, TechniqueRegional, a.Technique)

	require.NoError(t, json.Unmarshal([]byte(`{"technique":"mac"}`), &a))
	assert.Equal(t, TechniqueMAC, a.Technique)

	err := json.Unmarshal([]byte(`{"technique":"hypnosis"}`), &a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hypnosis")
}

func TestAgeUnitDefaultsToYears(t *testing.T) {
	var p Patient
	require.NoError(t, json.Unmarshal([]byte(`{"age":40,"ageUnit":"","asaClass":2}`), &p))
	assert.Equal(t, AgeYears, p.AgeUnit)

	_, err := ParseAgeUnit("fortnights")
	require.Error(t, err)
}

func TestAgeYearsNormalizesUnit(t *testing.T) {
	assert.InDelta(t, 0.5, Patient{Age: 6, AgeUnit: AgeMonths}.AgeYears(), 1e-9)
	assert.InDelta(t, 1.0, Patient{Age: 365.25, AgeUnit: AgeDays}.AgeYears(), 1e-9)
	assert.Equal(t, 70.0, Patient{Age: 70}.AgeYears())
}

func TestAgeDisplay(t *testing.T) {
	assert.Equal(t, "6 months", Patient{Age: 6, AgeUnit: AgeMonths}.AgeDisplay())
	assert.Equal(t, "58 years", Patient{Age: 58}.AgeDisplay())
	assert.Equal(t, "2.5 years", Patient{Age: 2.5, AgeUnit: AgeYears}.AgeDisplay())
}

func TestUrgencyAcceptsEmergencyAlias(t *testing.T) {
	u, err := ParseUrgency("Emergency")
	require.NoError(t, err)
	assert.Equal(t, UrgencyEmergent, u)

	u, err = ParseUrgency("")
	require.NoError(t, err)
	assert.Equal(t, Urgency(""), u)
}

func TestCaseDisplayHelpers(t *testing.T) {
	c := Case{
		Procedure: Procedure{Name: "Knee arthroscopy"},
		Complications: []Complication{
			{Event: "Hypotension", Timing: "induction"},
			{Event: "PONV"},
		},
	}
	assert.Equal(t, "Knee arthroscopy", c.DisplayTitle())
	c.Title = "  Spinal in OSA  "
	assert.Equal(t, "Spinal in OSA", c.DisplayTitle())
	assert.Equal(t, []string{"Hypotension (induction)", "PONV"}, c.ComplicationEvents())
	assert.Empty(t, Case{}.ComplicationEvents())
}

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := NewValidationError("query", "must not be empty")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "validation failed: query: must not be empty", err.Error())

	var ve *ValidationError
	require.True(t, errors.As(error(err), &ve))
	assert.Equal(t, "query", ve.Field)
}

func TestDimensionErrorWrapsSentinel(t *testing.T) {
	err := DimensionError(384, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "expected=384 got=3")
}
