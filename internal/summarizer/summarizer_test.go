package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caserag/internal/domain"
)

func TestSentences(t *testing.T) {
	assert.Nil(t, Sentences("   "))
	assert.Equal(t, []string{"No punctuation here"}, Sentences("No punctuation here"))
	assert.Equal(t,
		[]string{"First one.", "Second one!", "Third?", "trailing part"},
		Sentences("First one. Second one!  Third? trailing part"))
}

func TestSummarizeKeepsOriginalOrder(t *testing.T) {
	s := NewFrequencySummarizer()
	text := "Bradycardia followed the spinal. The weather was mild. Spinal bradycardia responded to atropine. Spinal level reached T4 with bradycardia."
	got, err := s.Summarize(text, 2)
	require.NoError(t, err)
	assert.NotContains(t, got, "weather")
	assert.Len(t, Sentences(got), 2)

	first := "Spinal bradycardia responded to atropine."
	second := "Spinal level reached T4 with bradycardia."
	assert.Contains(t, got, first)
	assert.Contains(t, got, second)
	assert.Less(t, strings.Index(got, first), strings.Index(got, second))
}

func TestSummarizeBudget(t *testing.T) {
	s := NewFrequencySummarizer()
	got, err := s.Summarize("", 2)
	require.NoError(t, err)
	assert.Empty(t, got)

	text := "One fact. Two facts. Three facts. Four facts."
	got, err = s.Summarize(text, 0)
	require.NoError(t, err)
	assert.Len(t, Sentences(got), DefaultMaxSentences)

	got, err = s.Summarize(text, 10)
	require.NoError(t, err)
	assert.Equal(t, text, got)
}

func TestSummarizeIsDeterministic(t *testing.T) {
	s := NewFrequencySummarizer()
	text := "Alpha beta. Beta alpha. Gamma delta. Delta gamma."
	a, err := s.Summarize(text, 2)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		b, err := s.Summarize(text, 2)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
	assert.Equal(t, "Alpha beta. Beta alpha.", a)
}

func TestCaseNarrative(t *testing.T) {
	c := domain.Case{
		Complications: []domain.Complication{
			{Event: "Hypotension", Timing: "induction", Management: "phenylephrine", Outcome: "Resolved"},
			{Event: "Shivering"},
		},
		ClinicalPearls: []string{"Preload before spinal", "  "},
		KeyTakeaways:   []string{"Have pressors drawn up!"},
	}
	assert.Equal(t,
		"Hypotension during induction. Managed with phenylephrine. Outcome: Resolved. Shivering. Preload before spinal. Have pressors drawn up!",
		CaseNarrative(c))
	assert.Empty(t, CaseNarrative(domain.Case{}))
}
