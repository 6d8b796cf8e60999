// Package store defines the persistence contract the engine depends
// on. Implementations live under internal/storage (SQLite) and
// internal/repository (Postgres); the in-memory store here backs tests
// and single-process embedding.
package store

import (
	"context"

	"github.com/lernloop/guidance/internal/domain"
)

// Store is the abstract persistence surface. Reads that find nothing
// return nil values, not errors; errors are reserved for I/O failure.
type Store interface {
	// InteractionsByLearner returns the learner's interaction history,
	// oldest first.
	InteractionsByLearner(ctx context.Context, learnerID string) ([]domain.Interaction, error)

	// SaveInteraction appends one interaction event.
	SaveInteraction(ctx context.Context, it domain.Interaction) error

	// Textbook returns a textbook by id, nil when absent.
	Textbook(ctx context.Context, id string) (*domain.Textbook, error)

	// SaveTextbookUnit upserts a unit inside a textbook, creating the
	// textbook if needed.
	SaveTextbookUnit(ctx context.Context, textbookID, title string, unit domain.TextbookUnit) error

	// PdfIndex returns the current passage index document, nil when no
	// index has been ingested.
	PdfIndex(ctx context.Context) (*domain.PdfIndexDoc, error)

	// SavePdfIndex replaces the passage index document wholesale.
	SavePdfIndex(ctx context.Context, doc *domain.PdfIndexDoc) error

	// Profile returns the learner's persisted summary, nil when absent.
	Profile(ctx context.Context, learnerID string) (*domain.LearnerProfile, error)

	// SaveProfile upserts the learner summary.
	SaveProfile(ctx context.Context, p *domain.LearnerProfile) error
}

// BanditStore persists serialized per-learner bandit state.
type BanditStore interface {
	// BanditSnapshot returns the serialized bandit for a learner, nil
	// when none has been saved.
	BanditSnapshot(ctx context.Context, learnerID string) ([]byte, error)

	// SaveBanditSnapshot upserts the serialized bandit for a learner.
	SaveBanditSnapshot(ctx context.Context, learnerID string, data []byte) error

	// DeleteBanditSnapshot removes a learner's saved bandit.
	DeleteBanditSnapshot(ctx context.Context, learnerID string) error
}
