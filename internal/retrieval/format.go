package retrieval

import (
	"fmt"
	"math"
	"strings"

	"caserag/internal/domain"
)

// FormatCasesForPrompt renders cases as the grounding block of a prompt. The
// output depends only on its input, so identical retrievals produce
// identical prompts. No cases gives the empty string.
func FormatCasesForPrompt(cases []domain.RankedCase) string {
	if len(cases) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("RELEVANT CLINICAL CASES:\n")
	for i, c := range cases {
		b.WriteString("\n")
		fmt.Fprintf(&b, "Case %d: %s (Relevance: %d%%)\n", i+1, c.Title, percent(c.Score))
		fmt.Fprintf(&b, "- Patient: %s, ASA %d\n", c.PatientAge, c.ASAClass)
		fmt.Fprintf(&b, "- Technique: %s\n", c.Technique)
		fmt.Fprintf(&b, "- Complications: %s\n", joinOr(c.Complications, "None"))
		if len(c.ClinicalPearls) > 0 {
			fmt.Fprintf(&b, "- Clinical Pearls: %s\n", strings.Join(c.ClinicalPearls, "; "))
		}
		if len(c.KeyTakeaways) > 0 {
			fmt.Fprintf(&b, "- Key Takeaways: %s\n", strings.Join(c.KeyTakeaways, "; "))
		}
	}
	return b.String()
}

func percent(score float64) int {
	return int(math.Round(clamp01(score) * 100))
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, "; ")
}
