// Package vocab is the offline embedder used when no embedding service is
// configured. It counts a fixed list of anesthesia terms and pads the rest of
// the vector with one seeded noise pattern shared by every text, so texts
// without domain terms still have a small common similarity. Recall is far
// below a semantic model; it exists so retrieval keeps working without
// network access or an API key.
package vocab

import (
	"context"
	"math/rand/v2"
	"strings"

	"caserag/internal/embedding"
)

const (
	DefaultDimension = 384
	DefaultSeed      = 0x5eed_ca5e

	termWeight = 0.1
	noiseScale = 0.01
)

// Terms is the ordered domain vocabulary. A term's position is its slot in
// the vector, so the order must never change for an existing index.
var Terms = []string{
	"intubation", "extubation", "airway", "difficult airway", "laryngoscopy",
	"aspiration", "laryngospasm", "bronchospasm", "hypoxia", "desaturation",
	"hypotension", "hypertension", "bradycardia", "tachycardia", "arrhythmia",
	"cardiac arrest", "arrest", "cpr", "anaphylaxis", "malignant hyperthermia",
	"hemorrhage", "transfusion", "blood loss", "sepsis", "shock",
	"spinal", "epidural", "neuraxial", "regional", "nerve block",
	"general", "sedation", "mac", "induction", "emergence",
	"propofol", "ketamine", "etomidate", "midazolam", "fentanyl",
	"remifentanil", "morphine", "rocuronium", "succinylcholine", "sugammadex",
	"neostigmine", "sevoflurane", "desflurane", "isoflurane", "dexmedetomidine",
	"phenylephrine", "ephedrine", "epinephrine", "vasopressor", "local anesthetic",
	"osa", "sleep apnea", "obesity", "diabetes", "copd",
	"asthma", "coronary", "heart failure", "renal", "pregnancy",
	"cesarean", "pediatric", "elderly", "trauma", "emergency",
	"icu", "pacu", "ventilation", "opioid", "nausea",
}

// Embedder is a pure function of the input text, the vocabulary and the seed.
type Embedder struct {
	dim   int
	terms []string
	noise []float64
}

func NewEmbedder(dimension int, seed uint64) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	if seed == 0 {
		seed = DefaultSeed
	}
	terms := Terms
	if len(terms) > dimension {
		terms = terms[:dimension]
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	noise := make([]float64, dimension-len(terms))
	for i := range noise {
		noise[i] = (rng.Float64() - 0.5) * noiseScale
	}
	return &Embedder{dim: dimension, terms: terms, noise: noise}
}

var _ embedding.Embedder = (*Embedder)(nil)

func (e *Embedder) Name() string { return "vocab" }

// Prepare is a no-op; the vocabulary is fixed.
func (e *Embedder) Prepare(corpus []string) error { return nil }

func (e *Embedder) Dimension() int { return e.dim }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(text), nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	return embedding.EmbedEach(ctx, e, texts)
}

func (e *Embedder) vector(text string) []float64 {
	lower := strings.ToLower(text)
	vec := make([]float64, e.dim)
	for i, term := range e.terms {
		if n := strings.Count(lower, term); n > 0 {
			vec[i] = termWeight * float64(n)
		}
	}
	copy(vec[len(e.terms):], e.noise)
	return vec
}
