package ladder

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lernloop/guidance/internal/domain"
)

// Explanation markers that disqualify rung-1 micro-hints.
var (
	causalConnectives = []string{
		"because", "therefore", "due to", "as a result", "so that",
		"which means", "consequently",
	}
	enumerationPattern = regexp.MustCompile(`(?m)(^\s*\d+[.)]\s|^\s*[-*]\s|\bstep\s+\d+\b|\bfirst(ly)?,|\bsecond(ly)?,)`)
	citationPattern    = regexp.MustCompile(`\[source:[^\]]+\]|\bref:\S+`)
)

// Section markers required in a rung-3 reflective note.
var reflectiveSections = []string{
	"Concepts:", "Sources:", "Summary:", "Common mistakes:", "Example:",
}

// ValidateContentForRung checks content against the rung's contract and
// returns the list of violations; an empty list means valid. This is
// advisory only, the caller decides what to do with a violating draft.
func (m *Machine) ValidateContentForRung(content string, rung domain.Rung) []string {
	var violations []string

	if limit := rung.ContentLimit(); limit > 0 && len(content) > limit {
		violations = append(violations,
			fmt.Sprintf("content length %d exceeds rung %d cap of %d", len(content), rung, limit))
	}

	switch rung {
	case domain.RungMicroHint:
		lower := strings.ToLower(content)
		for _, marker := range causalConnectives {
			if strings.Contains(lower, marker) {
				violations = append(violations,
					fmt.Sprintf("micro-hint contains causal connective %q", marker))
			}
		}
		if enumerationPattern.MatchString(content) {
			violations = append(violations, "micro-hint contains step enumeration")
		}
		if hasLongMultiSentenceRun(content) {
			violations = append(violations, "micro-hint contains a multi-sentence run over 100 chars")
		}
	case domain.RungExplain:
		if len(content) > 200 && !citationPattern.MatchString(content) {
			violations = append(violations, "explanation over 200 chars must cite a source")
		}
	case domain.RungReflective:
		for _, section := range reflectiveSections {
			if !strings.Contains(content, section) {
				violations = append(violations,
					fmt.Sprintf("reflective note missing %q section", section))
			}
		}
	}

	return violations
}

// hasLongMultiSentenceRun reports whether any run of consecutive
// sentences exceeds 100 chars. Line breaks end a run, and a lone long
// sentence is governed by the rung length cap instead.
func hasLongMultiSentenceRun(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if len(line) <= 100 {
			continue
		}
		sentences := 0
		for _, s := range strings.FieldsFunc(line, func(r rune) bool {
			return r == '.' || r == '!' || r == '?'
		}) {
			if strings.TrimSpace(s) != "" {
				sentences++
			}
		}
		if sentences > 1 {
			return true
		}
	}
	return false
}
