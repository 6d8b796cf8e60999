package grounding

import (
	"math"
	"sync/atomic"

	"github.com/lernloop/guidance/internal/domain"
)

// indexedPassage precomputes the token set of a passage.
type indexedPassage struct {
	passage    domain.Passage
	tokens     map[string]bool
	tokenCount int
}

// indexSnapshot is an immutable view of the passage index. Rebuilds
// swap the whole snapshot so concurrent readers never observe a
// partially written index.
type indexSnapshot struct {
	version  int
	passages []indexedPassage
}

// PassageIndex is a copy-on-write keyword index over reference
// passages. Safe for unlimited concurrent readers.
type PassageIndex struct {
	snap atomic.Pointer[indexSnapshot]
}

// NewPassageIndex creates an empty index.
func NewPassageIndex() *PassageIndex {
	return &PassageIndex{}
}

// Replace atomically installs a new index built from the document.
func (idx *PassageIndex) Replace(doc *domain.PdfIndexDoc) {
	if doc == nil {
		idx.snap.Store(nil)
		return
	}
	snap := &indexSnapshot{
		version:  doc.Version,
		passages: make([]indexedPassage, 0, len(doc.Passages)),
	}
	for _, p := range doc.Passages {
		toks := tokenize(p.Text)
		set := make(map[string]bool, len(toks))
		for _, t := range toks {
			set[t] = true
		}
		snap.passages = append(snap.passages, indexedPassage{
			passage:    p,
			tokens:     set,
			tokenCount: len(toks),
		})
	}
	idx.snap.Store(snap)
}

// Loaded reports whether an index snapshot is installed.
func (idx *PassageIndex) Loaded() bool {
	return idx.snap.Load() != nil
}

// Version returns the installed snapshot version, 0 when empty.
func (idx *PassageIndex) Version() int {
	snap := idx.snap.Load()
	if snap == nil {
		return 0
	}
	return snap.version
}

// Search scores every passage as matchCount / sqrt(passageTokenCount)
// against the keyword set and returns the top-K, ties broken by
// original index order. An unloaded index returns nil, not an error.
func (idx *PassageIndex) Search(keywords map[string]bool, topK int) []domain.ScoredPassage {
	snap := idx.snap.Load()
	if snap == nil || len(keywords) == 0 {
		return nil
	}

	type scored struct {
		pos   int
		score float64
	}
	var hits []scored
	for i, ip := range snap.passages {
		if ip.tokenCount == 0 {
			continue
		}
		matches := 0
		for kw := range keywords {
			if ip.tokens[kw] {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		hits = append(hits, scored{
			pos:   i,
			score: float64(matches) / math.Sqrt(float64(ip.tokenCount)),
		})
	}

	// Stable selection: higher score first, earlier index wins ties.
	// Insertion sort keeps the tie-break exact for small hit lists.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0; j-- {
			if hits[j].score > hits[j-1].score {
				hits[j], hits[j-1] = hits[j-1], hits[j]
			} else {
				break
			}
		}
	}

	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	out := make([]domain.ScoredPassage, 0, len(hits))
	for _, h := range hits {
		p := snap.passages[h.pos].passage
		out = append(out, domain.ScoredPassage{
			PassageID: p.ID,
			SourceID:  p.SourceID,
			Title:     p.Title,
			Text:      p.Text,
			Score:     h.score,
		})
	}
	return out
}
