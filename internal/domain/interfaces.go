package domain

// Metadata is the bag stored next to each vector. It carries enough of a
// case to render a summary without going back to the corpus.
type Metadata struct {
	Title         string   `json:"title"`
	Procedure     string   `json:"procedure,omitempty"`
	Technique     string   `json:"technique,omitempty"`
	AgeDisplay    string   `json:"ageDisplay,omitempty"`
	ASAClass      int      `json:"asaClass,omitempty"`
	Complications []string `json:"complications,omitempty"`
	Pearls        []string `json:"pearls,omitempty"`
	Takeaways     []string `json:"takeaways,omitempty"`
	Summary       string   `json:"summary,omitempty"`
	Ordinal       int      `json:"ordinal"`
}

// IndexEntry is one vector stored in an index.
type IndexEntry struct {
	ID       string
	Vector   []float64
	Metadata Metadata
}

// ScoredResult is a nearest-neighbour hit.
type ScoredResult struct {
	ID       string
	Metadata Metadata
	Score    float64
}

// RetrievalPath names the strategy that produced a ranked case.
type RetrievalPath string

const (
	PathVector  RetrievalPath = "vector"
	PathKeyword RetrievalPath = "keyword"
)

// RankedCase is the case summary handed to prompt building.
type RankedCase struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	PatientAge     string        `json:"patientAge"`
	ASAClass       int           `json:"asaClass"`
	Technique      string        `json:"technique"`
	Complications  []string      `json:"complications"`
	ClinicalPearls []string      `json:"clinicalPearls"`
	KeyTakeaways   []string      `json:"keyTakeaways"`
	Score          float64       `json:"score"`
	RawScore       float64       `json:"rawScore"`
	Path           RetrievalPath `json:"path"`
}
