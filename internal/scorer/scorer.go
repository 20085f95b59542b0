// Package scorer ranks cases against a raw query with fixed, hand-tuned
// clinical heuristics. It needs no index and no embedder.
package scorer

import (
	"context"
	"sort"
	"strings"

	"caserag/internal/corpus"
	"caserag/internal/domain"
)

// DefaultLimit is the number of cases Rank returns when limit <= 0.
const DefaultLimit = 3

// Rule weights.
const (
	CriticalIncidentBonus = 10
	OSABonus              = 15
	OSASpinalBonus        = 20
	CardiacArrestBonus    = 15
	NeuraxialBonus        = 5
	DrugBonus             = 3
	ProcedureBonus        = 4
	PediatricBonus        = 3
	ElderlyBonus          = 3
)

// Drugs are the agents the drug rule looks for.
var Drugs = []string{"propofol", "midazolam", "fentanyl", "rocuronium", "sevoflurane"}

// MaxScore is the highest score a single case can reach.
var MaxScore = float64(CriticalIncidentBonus + OSABonus + OSASpinalBonus + CardiacArrestBonus +
	NeuraxialBonus + DrugBonus*len(Drugs) + ProcedureBonus + PediatricBonus + ElderlyBonus)

// Signal is one rule that fired for a case.
type Signal struct {
	Name  string
	Delta int
}

// Match is a scored case.
type Match struct {
	Case    domain.Case
	Ordinal int
	Score   int
	Signals []Signal
}

// Score returns the additive relevance of c for query. text is the lowercased
// serialized case.
func Score(query string, c domain.Case, text string) int {
	total := 0
	for _, s := range Explain(query, c, text) {
		total += s.Delta
	}
	return total
}

// Explain lists the rules that fire for c, in evaluation order.
func Explain(query string, c domain.Case, text string) []Signal {
	q := strings.ToLower(query)
	text = strings.ToLower(text)
	var out []Signal
	add := func(name string, delta int) {
		out = append(out, Signal{Name: name, Delta: delta})
	}

	if c.Outcome.CriticalIncident {
		add("critical incident", CriticalIncidentBonus)
	}

	queryOSA := containsAny(q, "osa", "sleep apnea", "obstructive sleep")
	if queryOSA && strings.Contains(text, "osa") {
		add("osa", OSABonus)
		if strings.Contains(q, "spinal") && strings.Contains(strings.ToLower(string(c.Anesthetic.Technique)), "regional") {
			add("osa + spinal", OSASpinalBonus)
		}
	}

	if containsAny(q, "arrest", "code") {
		for _, comp := range c.Complications {
			if strings.Contains(strings.ToLower(comp.Event), "arrest") {
				add("cardiac arrest", CardiacArrestBonus)
				break
			}
		}
	}

	if containsAny(q, "spinal", "epidural") && strings.Contains(strings.ToLower(c.Anesthetic.RegionalBlockType), "spinal") {
		add("neuraxial", NeuraxialBonus)
	}

	for _, drug := range Drugs {
		if strings.Contains(q, drug) && strings.Contains(text, drug) {
			add("drug: "+drug, DrugBonus)
		}
	}

	if name := strings.ToLower(strings.TrimSpace(c.Procedure.Name)); name != "" && strings.Contains(q, name) {
		add("procedure", ProcedureBonus)
	}

	age := c.Patient.AgeYears()
	if strings.Contains(q, "pediatric") && age < 18 {
		add("pediatric", PediatricBonus)
	}
	if strings.Contains(q, "elderly") && age > 65 {
		add("elderly", ElderlyBonus)
	}
	return out
}

// Rank scores every case in cs, drops those scoring zero or less, and returns
// the best limit matches. Ties keep corpus order.
func Rank(ctx context.Context, query string, cs *corpus.Corpus, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	matches := make([]Match, 0)
	for i := 0; i < cs.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := cs.At(i)
		signals := Explain(query, c, cs.Text(i))
		score := 0
		for _, s := range signals {
			score += s.Delta
		}
		if score <= 0 {
			continue
		}
		matches = append(matches, Match{Case: c, Ordinal: i, Score: score, Signals: signals})
	}
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Score > matches[b].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Normalize maps a raw score onto [0,1].
func Normalize(score int) float64 {
	n := float64(score) / MaxScore
	if n > 1 {
		return 1
	}
	if n < 0 {
		return 0
	}
	return n
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
