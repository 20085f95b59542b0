// Package summarizer condenses case narratives into the short summaries kept
// in index metadata.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// DefaultMaxSentences is used when Summarize is called with a non-positive
// sentence budget.
const DefaultMaxSentences = 3

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`)

// FrequencySummarizer is an extractive summarizer: sentences whose content
// words recur across the narrative rank highest.
type FrequencySummarizer struct {
	stopwords map[string]struct{}
}

func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{stopwords: clinicalStopwords()}
}

type rankedSentence struct {
	pos   int
	score float64
}

// Summarize returns the maxSentences highest ranked sentences of text in
// their original order.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	sentences := Sentences(text)
	if len(sentences) == 0 {
		return "", nil
	}
	words := make([][]string, len(sentences))
	for i, sent := range sentences {
		words[i] = wordRe.FindAllString(strings.ToLower(sent), -1)
	}
	weights := s.termWeights(words)

	ranked := make([]rankedSentence, len(sentences))
	for i, ws := range words {
		ranked[i] = rankedSentence{pos: i, score: sentenceScore(ws, weights)}
	}
	// Stable so equal scores keep sentence order and output is reproducible.
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if maxSentences < len(ranked) {
		ranked = ranked[:maxSentences]
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].pos < ranked[j].pos })

	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = sentences[r.pos]
	}
	return strings.Join(out, " "), nil
}

// termWeights counts content words and scales them so the most frequent one
// weighs 1.
func (s *FrequencySummarizer) termWeights(words [][]string) map[string]float64 {
	weights := map[string]float64{}
	top := 0.0
	for _, ws := range words {
		for _, w := range ws {
			if _, stop := s.stopwords[w]; stop {
				continue
			}
			weights[w]++
			top = math.Max(top, weights[w])
		}
	}
	if top > 0 {
		for w := range weights {
			weights[w] /= top
		}
	}
	return weights
}

// sentenceScore damps long sentences by the square root of their length.
func sentenceScore(words []string, weights map[string]float64) float64 {
	if len(words) == 0 {
		return 0
	}
	total := 0.0
	for _, w := range words {
		total += weights[w]
	}
	return total / math.Sqrt(float64(len(words)))
}

func clinicalStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"patient", "pt", "case",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
