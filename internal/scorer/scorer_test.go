package scorer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caserag/internal/corpus"
	"caserag/internal/domain"
)

func baseCase(procedure string) domain.Case {
	return domain.Case{
		Patient:    domain.Patient{Age: 40, AgeUnit: domain.AgeYears, ASAClass: 2},
		Procedure:  domain.Procedure{Name: procedure},
		Anesthetic: domain.Anesthetic{Technique: domain.TechniqueGeneral},
	}
}

func buildCorpus(t *testing.T, cases ...domain.Case) *corpus.Corpus {
	t.Helper()
	c, err := corpus.New(cases)
	require.NoError(t, err)
	return c
}

func scoreOf(t *testing.T, query string, c domain.Case) int {
	t.Helper()
	cs := buildCorpus(t, c)
	return Score(query, cs.At(0), cs.Text(0))
}

func osaSpinalCase() domain.Case {
	c := baseCase("Total knee arthroplasty")
	c.Patient.Comorbidities = []string{"OSA", "obesity"}
	c.Anesthetic.Technique = domain.TechniqueRegional
	c.Outcome.CriticalIncident = true
	return c
}

func TestOSAOnSpinalStacksWithCriticalIncident(t *testing.T) {
	assert.Equal(t, 45, scoreOf(t, "sleep apnea patient for spinal", osaSpinalCase()))

	withBlock := osaSpinalCase()
	withBlock.Anesthetic.RegionalBlockType = "spinal"
	assert.Equal(t, 50, scoreOf(t, "OSA patient for spinal", withBlock))

	general := osaSpinalCase()
	general.Anesthetic.Technique = domain.TechniqueGeneral
	assert.Equal(t, 25, scoreOf(t, "osa patient for spinal", general))
}

func TestCriticalIncidentAlwaysScores(t *testing.T) {
	c := baseCase("Appendectomy")
	c.Outcome.CriticalIncident = true
	assert.Equal(t, CriticalIncidentBonus, scoreOf(t, "unrelated words", c))
	assert.Zero(t, scoreOf(t, "unrelated words", baseCase("Appendectomy")))
}

func TestDrugMentions(t *testing.T) {
	c := baseCase("Appendectomy")
	c.Anesthetic.InductionDrugs = []domain.DrugDose{{Drug: "Propofol"}, {Drug: "Fentanyl"}, {Drug: "Midazolam"}}
	assert.Equal(t, 2*DrugBonus, scoreOf(t, "propofol and fentanyl dosing", c))
	assert.Zero(t, scoreOf(t, "rocuronium", c))
}

func TestProcedureMatch(t *testing.T) {
	c := baseCase("Total Knee Arthroplasty")
	assert.Equal(t, ProcedureBonus, scoreOf(t, "complications of total knee arthroplasty", c))
	assert.Zero(t, scoreOf(t, "knee", c))
}

func TestAgeRules(t *testing.T) {
	infant := baseCase("Pyloromyotomy")
	infant.Patient.Age, infant.Patient.AgeUnit = 6, domain.AgeMonths
	assert.Equal(t, PediatricBonus, scoreOf(t, "pediatric airway", infant))

	adult := baseCase("Appendectomy")
	adult.Patient.Age = 20
	assert.Zero(t, scoreOf(t, "pediatric airway", adult))
	assert.Zero(t, scoreOf(t, "elderly airway", adult))

	old := baseCase("Hip fracture repair")
	old.Patient.Age = 80
	assert.Equal(t, ElderlyBonus, scoreOf(t, "elderly hip fracture", old))

	sixtyFive := baseCase("Appendectomy")
	sixtyFive.Patient.Age = 65
	assert.Zero(t, scoreOf(t, "elderly", sixtyFive))
}

func TestCardiacArrestAndNeuraxial(t *testing.T) {
	c := baseCase("Cesarean delivery")
	c.Anesthetic.Technique = domain.TechniqueRegional
	c.Anesthetic.RegionalBlockType = "Combined spinal-epidural"
	c.Complications = []domain.Complication{{Event: "High block"}, {Event: "Cardiac arrest"}}

	assert.Equal(t, CardiacArrestBonus, scoreOf(t, "code blue", c))
	assert.Equal(t, NeuraxialBonus, scoreOf(t, "epidural hypotension", c))
	assert.Equal(t, CardiacArrestBonus+NeuraxialBonus, scoreOf(t, "arrest after spinal", c))
}

func TestExplainListsSignalsInOrder(t *testing.T) {
	c := osaSpinalCase()
	c.Anesthetic.RegionalBlockType = "spinal"
	c.Anesthetic.InductionDrugs = []domain.DrugDose{{Drug: "midazolam"}}
	cs := buildCorpus(t, c)

	signals := Explain("OSA spinal midazolam", cs.At(0), cs.Text(0))
	names := make([]string, len(signals))
	for i, s := range signals {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"critical incident", "osa", "osa + spinal", "neuraxial", "drug: midazolam"}, names)
}

func TestRankFiltersSortsAndKeepsCorpusOrderOnTies(t *testing.T) {
	critical := func(name string) domain.Case {
		c := baseCase(name)
		c.Outcome.CriticalIncident = true
		return c
	}
	cs := buildCorpus(t,
		baseCase("Appendectomy"),
		critical("Laparotomy"),
		critical("Thyroidectomy"),
		osaSpinalCase(),
	)

	matches, err := Rank(context.Background(), "osa spinal", cs, 5)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "Total knee arthroplasty", matches[0].Case.Procedure.Name)
	assert.Equal(t, 3, matches[0].Ordinal)
	assert.Equal(t, "Laparotomy", matches[1].Case.Procedure.Name)
	assert.Equal(t, "Thyroidectomy", matches[2].Case.Procedure.Name)
	assert.Equal(t, 10, matches[2].Score)
	assert.NotEmpty(t, matches[2].Signals)
}

func TestRankDefaultLimit(t *testing.T) {
	cases := make([]domain.Case, 0, 5)
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		c := baseCase(name)
		c.Outcome.CriticalIncident = true
		cases = append(cases, c)
	}
	matches, err := Rank(context.Background(), "anything", buildCorpus(t, cases...), 0)
	require.NoError(t, err)
	assert.Len(t, matches, DefaultLimit)
}

func TestRankNoMatchesIsEmpty(t *testing.T) {
	matches, err := Rank(context.Background(), "nothing", buildCorpus(t, baseCase("Appendectomy")), 3)
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestRankHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Rank(ctx, "osa", buildCorpus(t, osaSpinalCase()), 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, 90.0, MaxScore)
	assert.InDelta(t, 0.5, Normalize(45), 1e-12)
	assert.Equal(t, 1.0, Normalize(500))
	assert.Equal(t, 0.0, Normalize(-3))
}
