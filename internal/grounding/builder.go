// Package grounding builds the deterministic retrieval bundle that
// backs rung-2/3 guidance: a canonical anchor row plus keyword-scored
// reference passages.
package grounding

import (
	"log/slog"
	"sort"

	"github.com/lernloop/guidance/internal/corpus"
	"github.com/lernloop/guidance/internal/domain"
)

// DefaultTopK is the default passage count per bundle.
const DefaultTopK = 3

// maxSourceIDs caps the combined retrieved source list.
const maxSourceIDs = 10

// Builder assembles retrieval bundles. Stateless apart from the corpus
// table and the copy-on-write passage index, both safe for concurrent
// readers.
type Builder struct {
	table *corpus.Table
	index *PassageIndex
}

// NewBuilder creates a bundle builder. The index may be nil when no
// passages have been ingested yet.
func NewBuilder(table *corpus.Table, index *PassageIndex) *Builder {
	return &Builder{table: table, index: index}
}

// Anchor picks the deterministic reference row for a subtype and seed.
func (b *Builder) Anchor(subtype, seed string) (*domain.AnchorRow, bool) {
	return DeterministicAnchor(b.table, subtype, seed)
}

// Build assembles the retrieval bundle for a help request. The bundle
// is a pure function of its inputs and is rebuilt on every call. A
// failure while scoring passages degrades to an anchor-only bundle;
// escalation is never blocked by grounding.
func (b *Builder) Build(learnerID string, problem domain.Problem, interactions []domain.Interaction, lastErrorSubtypeID string, topK int) *domain.RetrievalBundle {
	if topK <= 0 {
		topK = DefaultTopK
	}

	bundle := &domain.RetrievalBundle{
		LearnerID:         learnerID,
		ProblemID:         problem.ID,
		ConceptCandidates: conceptCandidates(problem),
	}

	if lastErrorSubtypeID == "" {
		lastErrorSubtypeID = latestErrorSubtype(problem.ID, interactions)
	}
	bundle.LastErrorSubtypeID = lastErrorSubtypeID
	bundle.HintHistory = hintHistory(problem.ID, interactions, 3)

	seed := learnerID + "|" + problem.ID
	if anchor, ok := DeterministicAnchor(b.table, lastErrorSubtypeID, seed); ok {
		bundle.Anchor = anchor
	}

	bundle.PdfPassages = b.scorePassages(lastErrorSubtypeID, problem, topK)
	bundle.RetrievedSourceIDs = collectSourceIDs(bundle)
	return bundle
}

// scorePassages runs the keyword search, recovering from any panic in
// the scoring path so a malformed problem degrades instead of failing.
func (b *Builder) scorePassages(subtype string, problem domain.Problem, topK int) (passages []domain.ScoredPassage) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("passage scoring failed, degrading to anchor-only bundle",
				"problem_id", problem.ID, "panic", r)
			passages = nil
		}
	}()

	if b.index == nil {
		return nil
	}
	parts := append([]string{subtype, problem.Title}, problem.ConceptNames...)
	return b.index.Search(keywordSet(parts...), topK)
}

// latestErrorSubtype derives the most recent error subtype from history.
func latestErrorSubtype(problemID string, interactions []domain.Interaction) string {
	var last *domain.Interaction
	for i := range interactions {
		it := &interactions[i]
		if it.ProblemID != problemID || it.Kind != domain.KindError || it.ErrorSubtype == "" {
			continue
		}
		if last == nil || it.OccurredAt.After(last.OccurredAt) {
			last = it
		}
	}
	if last == nil {
		return ""
	}
	return last.ErrorSubtype
}

// hintHistory returns the last n hint-view events for the problem,
// oldest first, carrying their resolved source ids.
func hintHistory(problemID string, interactions []domain.Interaction, n int) []domain.HintRecord {
	var views []domain.Interaction
	for _, it := range interactions {
		if it.ProblemID == problemID && it.Kind == domain.KindHintView {
			views = append(views, it)
		}
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].OccurredAt.Before(views[j].OccurredAt)
	})
	if len(views) > n {
		views = views[len(views)-n:]
	}
	records := make([]domain.HintRecord, 0, len(views))
	for _, v := range views {
		records = append(records, domain.HintRecord{
			ViewedAt:  v.OccurredAt,
			SourceIDs: v.SourceIDs,
			Detail:    v.Detail,
		})
	}
	return records
}

func conceptCandidates(problem domain.Problem) []string {
	if len(problem.ConceptIDs) > 0 {
		return problem.ConceptIDs
	}
	return problem.ConceptNames
}

// collectSourceIDs merges anchor, hint, and passage sources, deduped in
// first-seen order and capped.
func collectSourceIDs(bundle *domain.RetrievalBundle) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id == "" || seen[id] || len(out) >= maxSourceIDs {
			return
		}
		seen[id] = true
		out = append(out, id)
	}

	if bundle.Anchor != nil {
		add(bundle.Anchor.RowID)
	}
	for _, h := range bundle.HintHistory {
		for _, id := range h.SourceIDs {
			add(id)
		}
	}
	for _, p := range bundle.PdfPassages {
		add(p.SourceID)
	}
	return out
}
