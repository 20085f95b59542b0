package corpus

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caserag/internal/domain"
)

const sampleCorpus = `[
  {
    "date": "2024-03-01",
    "title": "Spinal anesthesia in severe OSA",
    "patient": {"age": 58, "ageUnit": "years", "asaClass": 3, "comorbidities": ["OSA", "obesity"]},
    "procedure": {"name": "Total knee arthroplasty", "urgency": "elective"},
    "anesthetic": {"technique": "regional", "regionalBlockType": "spinal",
                   "inductionDrugs": [{"drug": "midazolam", "dose": 2, "unit": "mg"}]},
    "complications": [{"event": "Respiratory arrest", "timing": "PACU", "management": "Bag-mask ventilation", "outcome": "Recovered"}],
    "clinicalPearls": ["Avoid intrathecal opioids in OSA."],
    "keyTakeaways": ["Monitor continuously after neuraxial opioids."],
    "outcome": {"criticalIncident": true, "icuDays": 1, "hospitalDays": 4, "qualityScore": 6}
  },
  {
    "patient": {"age": 6, "ageUnit": "months", "asaClass": 1},
    "procedure": {"name": "Pyloromyotomy"},
    "anesthetic": {"technique": "GENERAL"},
    "outcome": {"criticalIncident": false}
  }
]`

func TestDecodeDerivesIDsAndKeepsOrder(t *testing.T) {
	c, err := Decode([]byte(sampleCorpus))
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	first := c.At(0)
	assert.Equal(t, "2024-03-01-total-knee-arthroplasty", first.ID)
	assert.Equal(t, domain.TechniqueRegional, first.Anesthetic.Technique)
	assert.Equal(t, "case-1", c.At(1).ID)
	assert.Equal(t, domain.TechniqueGeneral, c.At(1).Anesthetic.Technique)

	_, i, ok := c.Lookup("case-1")
	require.True(t, ok)
	assert.Equal(t, 1, i)
	_, _, ok = c.Lookup("missing")
	assert.False(t, ok)
}

func TestTextIsLowercasedJSON(t *testing.T) {
	c, err := Decode([]byte(sampleCorpus))
	require.NoError(t, err)
	text := c.Text(0)
	assert.Equal(t, strings.ToLower(text), text)
	assert.Contains(t, text, "osa")
	assert.Contains(t, text, "respiratory arrest")
	assert.Contains(t, text, `"criticalincident":true`)
}

func TestDecodeRejectsNonArray(t *testing.T) {
	tests := []struct {
		name  string
		input string
		shape string
	}{
		{"object", `{"cases": []}`, "object"},
		{"string", `"cases"`, "string"},
		{"number", `42`, "number"},
		{"null", `null`, "null"},
		{"empty", `   `, "empty input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Contains(t, err.Error(), tt.shape)
		})
	}
}

func TestDecodeRejectsNonObjectElement(t *testing.T) {
	_, err := Decode([]byte(`[1]`))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "cases[0]")
}

func TestDecodeEmptyArray(t *testing.T) {
	c, err := Decode([]byte(`[]`))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestNewRejectsInvalidCases(t *testing.T) {
	valid := func() domain.Case {
		return domain.Case{
			Patient:    domain.Patient{Age: 40, ASAClass: 2},
			Procedure:  domain.Procedure{Name: "Appendectomy"},
			Anesthetic: domain.Anesthetic{Technique: domain.TechniqueGeneral},
		}
	}
	tests := []struct {
		name   string
		mutate func(*domain.Case)
		field  string
	}{
		{"missing procedure", func(c *domain.Case) { c.Procedure.Name = " " }, "procedure.name"},
		{"negative age", func(c *domain.Case) { c.Patient.Age = -1 }, "patient.age"},
		{"asa out of range", func(c *domain.Case) { c.Patient.ASAClass = 7 }, "patient.asaClass"},
		{"asa missing", func(c *domain.Case) { c.Patient.ASAClass = 0 }, "patient.asaClass"},
		{"technique missing", func(c *domain.Case) { c.Anesthetic.Technique = "" }, "anesthetic.technique"},
		{"quality out of range", func(c *domain.Case) { c.Outcome.QualityScore = 11 }, "outcome.qualityScore"},
		{"empty complication", func(c *domain.Case) { c.Complications = []domain.Complication{{Timing: "PACU"}} }, "complications[0].event"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			_, err := New([]domain.Case{valid(), c})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Contains(t, err.Error(), "cases[1]."+tt.field)
		})
	}
}

func TestNewIDCollisions(t *testing.T) {
	base := domain.Case{
		Date:       "2024-01-01",
		Patient:    domain.Patient{Age: 30, ASAClass: 1},
		Procedure:  domain.Procedure{Name: "Cesarean section"},
		Anesthetic: domain.Anesthetic{Technique: domain.TechniqueRegional},
	}
	c, err := New([]domain.Case{base, base})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01-cesarean-section", c.At(0).ID)
	assert.Equal(t, "2024-01-01-cesarean-section-1", c.At(1).ID)

	explicit := base
	explicit.ID = "dup"
	_, err = New([]domain.Case{explicit, explicit})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate id "dup"`)
}

func TestCorpusIsIsolatedFromCallerSlices(t *testing.T) {
	in := []domain.Case{{
		Patient:        domain.Patient{Age: 30, ASAClass: 1},
		Procedure:      domain.Procedure{Name: "Hernia repair"},
		Anesthetic:     domain.Anesthetic{Technique: domain.TechniqueGeneral},
		ClinicalPearls: []string{"original"},
	}}
	c, err := New(in)
	require.NoError(t, err)

	in[0].ClinicalPearls[0] = "mutated"
	assert.Equal(t, "original", c.At(0).ClinicalPearls[0])

	out := c.At(0)
	out.ClinicalPearls[0] = "mutated again"
	assert.Equal(t, "original", c.At(0).ClinicalPearls[0])
}

func TestWithLeavesOriginalUntouched(t *testing.T) {
	c, err := Decode([]byte(sampleCorpus))
	require.NoError(t, err)
	extra := domain.Case{
		ID:         "imported",
		Patient:    domain.Patient{Age: 80, ASAClass: 3},
		Procedure:  domain.Procedure{Name: "Hip fracture fixation"},
		Anesthetic: domain.Anesthetic{Technique: domain.TechniqueRegional},
	}
	bigger, err := c.With(extra)
	require.NoError(t, err)
	assert.Equal(t, 3, bigger.Len())
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, "imported", bigger.At(2).ID)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleCorpus), 0o644))
	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestBundledSampleCorpusLoads(t *testing.T) {
	c, err := LoadFile(filepath.Join("..", "..", "data", "cases.json"))
	require.NoError(t, err)
	assert.Equal(t, 5, c.Len())
	assert.Equal(t, "case-4", c.At(4).ID)
	assert.InDelta(t, 0.5, c.At(4).Patient.AgeYears(), 1e-12)
}
