// Package corpus loads and validates the clinical case collection that
// retrieval runs against.
package corpus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"caserag/internal/domain"
)

// Corpus is an ordered, read-only set of cases. Order is the tie-breaker for
// every ranking, so it is preserved exactly as ingested.
type Corpus struct {
	cases []domain.Case
	texts []string
	byID  map[string]int
}

// New validates cases, derives missing ids and builds a corpus.
func New(cases []domain.Case) (*Corpus, error) {
	c := &Corpus{
		cases: make([]domain.Case, 0, len(cases)),
		texts: make([]string, 0, len(cases)),
		byID:  make(map[string]int, len(cases)),
	}
	for i := range cases {
		cs := cloneCase(cases[i])
		if err := Validate(cs, i); err != nil {
			return nil, err
		}
		explicit := strings.TrimSpace(cs.ID) != ""
		if !explicit {
			cs.ID = deriveID(cs, i)
		}
		if _, dup := c.byID[cs.ID]; dup {
			if explicit {
				return nil, domain.NewValidationError(fmt.Sprintf("cases[%d].id", i), "duplicate id %q", cs.ID)
			}
			cs.ID = cs.ID + "-" + strconv.Itoa(i)
		}
		text, err := serialize(cs)
		if err != nil {
			return nil, fmt.Errorf("serialize case %s: %w", cs.ID, err)
		}
		c.byID[cs.ID] = len(c.cases)
		c.cases = append(c.cases, cs)
		c.texts = append(c.texts, text)
	}
	return c, nil
}

// Decode parses a JSON array of cases. Anything other than an array is
// rejected with a validation error naming the shape that was received.
func Decode(data []byte) (*Corpus, error) {
	trimmed := bytes.TrimSpace(data)
	if shape := jsonShape(trimmed); shape != "array" {
		return nil, domain.NewValidationError("corpus", "expected a JSON array of cases, got %s", shape)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, domain.NewValidationError("corpus", "malformed JSON array: %v", err)
	}
	cases := make([]domain.Case, len(raw))
	for i, item := range raw {
		if shape := jsonShape(bytes.TrimSpace(item)); shape != "object" {
			return nil, domain.NewValidationError(fmt.Sprintf("cases[%d]", i), "expected an object, got %s", shape)
		}
		if err := json.Unmarshal(item, &cases[i]); err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("cases[%d]", i), "%v", err)
		}
	}
	return New(cases)
}

// LoadFile reads and decodes a corpus file.
func LoadFile(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", path, err)
	}
	return Decode(data)
}

// With returns a new corpus holding c's cases followed by extra. c itself is
// left untouched, so anything still reading it keeps a consistent view.
func (c *Corpus) With(extra ...domain.Case) (*Corpus, error) {
	all := make([]domain.Case, 0, c.Len()+len(extra))
	all = append(all, c.Cases()...)
	all = append(all, extra...)
	return New(all)
}

func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.cases)
}

// At returns a copy of the i-th case.
func (c *Corpus) At(i int) domain.Case { return cloneCase(c.cases[i]) }

// Cases returns copies of all cases in corpus order.
func (c *Corpus) Cases() []domain.Case {
	if c == nil {
		return nil
	}
	out := make([]domain.Case, len(c.cases))
	for i := range c.cases {
		out[i] = cloneCase(c.cases[i])
	}
	return out
}

// Text is the lowercased JSON serialization of the i-th case, the haystack
// for keyword matching.
func (c *Corpus) Text(i int) string { return c.texts[i] }

// Lookup finds a case by id.
func (c *Corpus) Lookup(id string) (domain.Case, int, bool) {
	if c == nil {
		return domain.Case{}, -1, false
	}
	i, ok := c.byID[id]
	if !ok {
		return domain.Case{}, -1, false
	}
	return cloneCase(c.cases[i]), i, true
}

func serialize(cs domain.Case) (string, error) {
	data, err := json.Marshal(cs)
	if err != nil {
		return "", err
	}
	return strings.ToLower(string(data)), nil
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func deriveID(cs domain.Case, index int) string {
	date := strings.TrimSpace(cs.Date)
	if date == "" {
		return "case-" + strconv.Itoa(index)
	}
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(cs.Procedure.Name), "-"), "-")
	return slugRe.ReplaceAllString(strings.ToLower(date), "-") + "-" + slug
}

func jsonShape(b []byte) string {
	if len(b) == 0 {
		return "empty input"
	}
	switch b[0] {
	case '[':
		return "array"
	case '{':
		return "object"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number or invalid JSON"
	}
}

func cloneCase(c domain.Case) domain.Case {
	out := c
	out.Patient.Comorbidities = cloneStrings(c.Patient.Comorbidities)
	out.Patient.Allergies = cloneStrings(c.Patient.Allergies)
	out.Patient.Medications = cloneStrings(c.Patient.Medications)
	if c.Anesthetic.InductionDrugs != nil {
		out.Anesthetic.InductionDrugs = append([]domain.DrugDose(nil), c.Anesthetic.InductionDrugs...)
	}
	if c.Complications != nil {
		out.Complications = append([]domain.Complication(nil), c.Complications...)
	}
	out.ClinicalPearls = cloneStrings(c.ClinicalPearls)
	out.KeyTakeaways = cloneStrings(c.KeyTakeaways)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
