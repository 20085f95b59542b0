package summarizer

import (
	"regexp"
	"strings"

	"caserag/internal/domain"
)

var sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// Sentences splits text on terminal punctuation. A trailing fragment without
// punctuation is kept as its own sentence.
func Sentences(text string) []string {
	var out []string
	rest := text
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[loc[0]:loc[1]]); s != "" {
			out = append(out, s)
		}
		rest = text[loc[1]:]
	}
	if len(out) == 0 {
		rest = text
	}
	if tail := strings.TrimSpace(rest); tail != "" {
		out = append(out, tail)
	}
	return out
}

// CaseNarrative renders the free-text parts of a case as prose: complication
// management and outcome, then pearls and takeaways.
func CaseNarrative(c domain.Case) string {
	var parts []string
	add := func(s string) {
		if s = sentence(s); s != "" {
			parts = append(parts, s)
		}
	}
	for _, comp := range c.Complications {
		line := comp.Event
		if comp.Timing != "" {
			line += " during " + comp.Timing
		}
		add(line)
		if comp.Management != "" {
			add("Managed with " + comp.Management)
		}
		if comp.Outcome != "" {
			add("Outcome: " + comp.Outcome)
		}
	}
	for _, p := range c.ClinicalPearls {
		add(p)
	}
	for _, t := range c.KeyTakeaways {
		add(t)
	}
	return strings.Join(parts, " ")
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}
