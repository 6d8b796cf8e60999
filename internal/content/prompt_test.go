package content

import (
	"strings"
	"testing"

	"github.com/lernloop/guidance/internal/domain"
)

func TestBuildPrompt_IncludesBundleMaterial(t *testing.T) {
	bundle := &domain.RetrievalBundle{
		LastErrorSubtypeID: "off-by-one",
		Anchor: &domain.AnchorRow{
			RowID:                   "ref-001",
			ErrorSubtype:            "off-by-one",
			FeedbackTarget:          "the loop bound",
			IntendedLearningOutcome: "reason about the final index",
		},
		PdfPassages: []domain.ScoredPassage{
			{PassageID: "p1", SourceID: "src-1", Title: "Loop bounds", Text: "the final index matters"},
		},
		HintHistory: []domain.HintRecord{{}},
	}
	problem := domain.Problem{ID: "p1", Title: "Sum the even numbers", ConceptNames: []string{"loops"}}

	prompt := buildPrompt(domain.RungExplain, problem, bundle)

	for _, want := range []string{
		"Problem: Sum the even numbers",
		"Concepts: loops",
		"Latest error class: off-by-one",
		"Reference row ref-001",
		"Passage [source:src-1] Loop bounds: the final index matters",
		"already saw 1 hint(s)",
		"Write the explanation guidance now.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildPrompt_NilBundle(t *testing.T) {
	prompt := buildPrompt(domain.RungMicroHint, domain.Problem{Title: "Reverse a list"}, nil)
	if !strings.Contains(prompt, "Problem: Reverse a list") {
		t.Errorf("prompt missing problem line:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Write the micro-hint guidance now.") {
		t.Errorf("prompt missing closing instruction:\n%s", prompt)
	}
}
