package content

import (
	"fmt"
	"strings"

	"github.com/lernloop/guidance/internal/domain"
)

// RenderTemplate produces deterministic guidance text for a rung from
// the retrieval bundle alone. This is the fallback path when no
// provider is configured or the provider call fails; output always
// satisfies the rung's content contract.
func RenderTemplate(rung domain.Rung, problem domain.Problem, bundle *domain.RetrievalBundle) string {
	switch rung {
	case domain.RungMicroHint:
		return renderMicroHint(bundle)
	case domain.RungExplain:
		return renderExplanation(problem, bundle)
	case domain.RungReflective:
		return renderReflectiveNote(problem, bundle)
	default:
		return ""
	}
}

// renderMicroHint keeps under 150 chars with no causal connectives and
// no enumeration.
func renderMicroHint(bundle *domain.RetrievalBundle) string {
	target := "the part of your approach you changed most recently"
	if bundle != nil && bundle.Anchor != nil {
		target = bundle.Anchor.FeedbackTarget
	}
	hint := fmt.Sprintf("Take another look at %s.", target)
	if len(hint) > 150 {
		hint = hint[:147] + "..."
	}
	return hint
}

func renderExplanation(problem domain.Problem, bundle *domain.RetrievalBundle) string {
	var b strings.Builder
	if bundle != nil && bundle.Anchor != nil {
		fmt.Fprintf(&b, "This looks like a %s issue. Focus on %s. The goal here: %s. [source:%s]",
			bundle.Anchor.ErrorSubtype,
			bundle.Anchor.FeedbackTarget,
			bundle.Anchor.IntendedLearningOutcome,
			bundle.Anchor.RowID)
	} else {
		fmt.Fprintf(&b, "Walk through %s one step at a time and compare each step with what you expected to happen.", problem.Title)
	}
	if bundle != nil && len(bundle.PdfPassages) > 0 {
		p := bundle.PdfPassages[0]
		fmt.Fprintf(&b, " Related reading: %s [source:%s]", firstSentence(p.Text, 200), p.SourceID)
	}
	out := b.String()
	if len(out) > 800 {
		out = out[:800]
	}
	return out
}

func renderReflectiveNote(problem domain.Problem, bundle *domain.RetrievalBundle) string {
	var b strings.Builder

	b.WriteString("Concepts: ")
	if bundle != nil && len(bundle.ConceptCandidates) > 0 {
		b.WriteString(strings.Join(bundle.ConceptCandidates, ", "))
	} else {
		b.WriteString(problem.Title)
	}
	b.WriteString("\n")

	b.WriteString("Sources: ")
	if bundle != nil && len(bundle.RetrievedSourceIDs) > 0 {
		b.WriteString(strings.Join(bundle.RetrievedSourceIDs, ", "))
	} else {
		b.WriteString("none on file")
	}
	b.WriteString("\n")

	b.WriteString("Summary: ")
	if bundle != nil && bundle.Anchor != nil {
		fmt.Fprintf(&b, "The recurring difficulty centers on %s. %s.",
			bundle.Anchor.FeedbackTarget, bundle.Anchor.IntendedLearningOutcome)
	} else {
		fmt.Fprintf(&b, "Review your attempts at %s and write down where each one diverged from your expectation.", problem.Title)
	}
	b.WriteString("\n")

	b.WriteString("Common mistakes: assuming the failing case matches the first case you tested; fixing symptoms without re-running earlier cases.\n")

	b.WriteString("Example: ")
	if bundle != nil && len(bundle.PdfPassages) > 0 {
		b.WriteString(firstSentence(bundle.PdfPassages[0].Text, 300))
	} else {
		b.WriteString("reduce the problem to the smallest input that still fails and trace it by hand.")
	}

	out := b.String()
	if len(out) > 2000 {
		out = out[:2000]
	}
	return out
}

// firstSentence trims text at the first sentence end, capped at max
// bytes.
func firstSentence(text string, max int) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, ".!?"); i > 0 && i < max {
		return text[:i+1]
	}
	if len(text) > max {
		return text[:max]
	}
	return text
}
