package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lernloop/guidance/internal/domain"
	"github.com/lernloop/guidance/internal/ladder"
)

// DefaultGenerateTimeout bounds a single provider call. Guidance is
// delivered inline with the learner waiting, so the budget is tight.
const DefaultGenerateTimeout = 8 * time.Second

// Generator produces guidance text for an escalation. When a provider
// is configured its output is validated against the rung's content
// contract; on any failure the deterministic template is used instead.
type Generator struct {
	provider Provider
	timeout  time.Duration
	logger   *slog.Logger
	machine  *ladder.Machine
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithProvider sets the generation provider. Nil means template-only.
func WithProvider(p Provider) GeneratorOption {
	return func(g *Generator) { g.provider = p }
}

// WithTimeout overrides the provider call budget.
func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator creates a Generator. Without options it is a pure
// template renderer.
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		timeout: DefaultGenerateTimeout,
		logger:  slog.Default(),
		machine: ladder.NewMachine(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns guidance text for the rung. Provider failures,
// timeouts, and contract violations are logged and absorbed; the
// template fallback always yields usable text.
func (g *Generator) Generate(ctx context.Context, rung domain.Rung, problem domain.Problem, bundle *domain.RetrievalBundle) string {
	fallback := RenderTemplate(rung, problem, bundle)
	if g.provider == nil {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.provider.Generate(ctx, &Request{
		Prompt:      buildPrompt(rung, problem, bundle),
		System:      systemPrompt(rung),
		MaxTokens:   maxTokensForRung(rung),
		Temperature: 0.3,
	})
	if err != nil {
		g.logger.Warn("guidance generation failed, using template",
			"provider", g.provider.Name(),
			"rung", rung.String(),
			"problem_id", problem.ID,
			"error", err)
		return fallback
	}

	text := strings.TrimSpace(resp.Content)
	if violations := g.machine.ValidateContentForRung(text, rung); len(violations) > 0 {
		g.logger.Warn("generated guidance violated rung contract, using template",
			"provider", g.provider.Name(),
			"rung", rung.String(),
			"problem_id", problem.ID,
			"violations", strings.Join(violations, "; "))
		return fallback
	}
	return text
}

func systemPrompt(rung domain.Rung) string {
	switch rung {
	case domain.RungMicroHint:
		return "You are a tutor giving the smallest possible nudge. Reply with one short sentence under 150 characters. Point at where to look. Never explain why, never list steps."
	case domain.RungExplain:
		return "You are a tutor explaining a targeted concept. Ground every claim in the provided reference material and cite it inline as [source:ID]. Stay under 800 characters."
	case domain.RungReflective:
		return "You are a tutor writing a reflective study note. Use exactly these section headers, each on its own line: Concepts:, Sources:, Summary:, Common mistakes:, Example:. Stay under 2000 characters."
	default:
		return ""
	}
}

func buildPrompt(rung domain.Rung, problem domain.Problem, bundle *domain.RetrievalBundle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Problem: %s\n", problem.Title)
	if len(problem.ConceptNames) > 0 {
		fmt.Fprintf(&b, "Concepts: %s\n", strings.Join(problem.ConceptNames, ", "))
	}
	if bundle != nil {
		if bundle.LastErrorSubtypeID != "" {
			fmt.Fprintf(&b, "Latest error class: %s\n", bundle.LastErrorSubtypeID)
		}
		if bundle.Anchor != nil {
			fmt.Fprintf(&b, "Reference row %s: focus on %s; goal: %s\n",
				bundle.Anchor.RowID, bundle.Anchor.FeedbackTarget, bundle.Anchor.IntendedLearningOutcome)
		}
		for _, p := range bundle.PdfPassages {
			fmt.Fprintf(&b, "Passage [source:%s] %s: %s\n", p.SourceID, p.Title, p.Text)
		}
		if len(bundle.HintHistory) > 0 {
			fmt.Fprintf(&b, "The learner already saw %d hint(s) on this problem; do not repeat them.\n", len(bundle.HintHistory))
		}
	}
	fmt.Fprintf(&b, "Write the %s guidance now.", rung.String())
	return b.String()
}

func maxTokensForRung(rung domain.Rung) int {
	switch rung {
	case domain.RungMicroHint:
		return 60
	case domain.RungExplain:
		return 300
	default:
		return 700
	}
}
