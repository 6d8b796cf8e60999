package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lernloop/guidance/internal/domain"
)

// GuidanceStore implements the engine's persistence contract backed by
// SQLite.
type GuidanceStore struct {
	db *DB
}

// NewGuidanceStore creates a new SQLite-backed store.
func NewGuidanceStore(db *DB) *GuidanceStore {
	return &GuidanceStore{db: db}
}

// SaveInteraction appends one interaction event.
func (s *GuidanceStore) SaveInteraction(ctx context.Context, it domain.Interaction) error {
	sourceIDs, err := json.Marshal(it.SourceIDs)
	if err != nil {
		return fmt.Errorf("marshal source_ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, learner_id, problem_id, kind,
			error_subtype, source_ids, success, detail, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID.String(), it.LearnerID, it.ProblemID, string(it.Kind),
		it.ErrorSubtype, string(sourceIDs), it.Success, it.Detail, it.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// InteractionsByLearner returns the learner's history, oldest first.
func (s *GuidanceStore) InteractionsByLearner(ctx context.Context, learnerID string) ([]domain.Interaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, learner_id, problem_id, kind, error_subtype,
			source_ids, success, detail, occurred_at
		FROM interactions
		WHERE learner_id = ?
		ORDER BY occurred_at ASC`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Interaction
	for rows.Next() {
		var it domain.Interaction
		var id, kind, sourceIDsJSON string
		if err := rows.Scan(&id, &it.LearnerID, &it.ProblemID, &kind,
			&it.ErrorSubtype, &sourceIDsJSON, &it.Success, &it.Detail, &it.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse interaction id: %w", err)
		}
		it.ID = parsed
		it.Kind = domain.InteractionKind(kind)
		if err := json.Unmarshal([]byte(sourceIDsJSON), &it.SourceIDs); err != nil {
			return nil, fmt.Errorf("unmarshal source_ids: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Textbook retrieves a textbook with its units, nil when absent.
func (s *GuidanceStore) Textbook(ctx context.Context, id string) (*domain.Textbook, error) {
	var tb domain.Textbook
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title FROM textbooks WHERE id = ?", id).Scan(&tb.ID, &tb.Title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query textbook: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, summary, concept_ids
		FROM textbook_units
		WHERE textbook_id = ?
		ORDER BY position ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query textbook units: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u domain.TextbookUnit
		var conceptIDsJSON string
		if err := rows.Scan(&u.ID, &u.Title, &u.Summary, &conceptIDsJSON); err != nil {
			return nil, fmt.Errorf("scan textbook unit: %w", err)
		}
		if err := json.Unmarshal([]byte(conceptIDsJSON), &u.ConceptIDs); err != nil {
			return nil, fmt.Errorf("unmarshal concept_ids: %w", err)
		}
		tb.Units = append(tb.Units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &tb, nil
}

// SaveTextbookUnit upserts one unit, creating the textbook if needed.
func (s *GuidanceStore) SaveTextbookUnit(ctx context.Context, textbookID, title string, unit domain.TextbookUnit) error {
	conceptIDs, err := json.Marshal(unit.ConceptIDs)
	if err != nil {
		return fmt.Errorf("marshal concept_ids: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO textbooks (id, title) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET title=excluded.title`,
		textbookID, title); err != nil {
		return fmt.Errorf("upsert textbook: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO textbook_units (id, textbook_id, title, summary, concept_ids)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(textbook_id, id) DO UPDATE SET
			title=excluded.title,
			summary=excluded.summary,
			concept_ids=excluded.concept_ids`,
		unit.ID, textbookID, unit.Title, unit.Summary, string(conceptIDs)); err != nil {
		return fmt.Errorf("upsert textbook unit: %w", err)
	}

	return tx.Commit()
}

// PdfIndex returns the single passage index document, nil when absent.
func (s *GuidanceStore) PdfIndex(ctx context.Context) (*domain.PdfIndexDoc, error) {
	var doc domain.PdfIndexDoc
	var passagesJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT version, passages, updated_at FROM pdf_index WHERE id = 1").
		Scan(&doc.Version, &passagesJSON, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query pdf index: %w", err)
	}
	if err := json.Unmarshal([]byte(passagesJSON), &doc.Passages); err != nil {
		return nil, fmt.Errorf("unmarshal passages: %w", err)
	}
	return &doc, nil
}

// SavePdfIndex replaces the passage index document wholesale.
func (s *GuidanceStore) SavePdfIndex(ctx context.Context, doc *domain.PdfIndexDoc) error {
	if doc == nil {
		_, err := s.db.ExecContext(ctx, "DELETE FROM pdf_index WHERE id = 1")
		if err != nil {
			return fmt.Errorf("delete pdf index: %w", err)
		}
		return nil
	}
	passages, err := json.Marshal(doc.Passages)
	if err != nil {
		return fmt.Errorf("marshal passages: %w", err)
	}
	updatedAt := doc.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pdf_index (id, version, passages, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version=excluded.version,
			passages=excluded.passages,
			updated_at=excluded.updated_at`,
		doc.Version, string(passages), updatedAt)
	if err != nil {
		return fmt.Errorf("upsert pdf index: %w", err)
	}
	return nil
}

// Profile returns the learner's summary, nil when absent.
func (s *GuidanceStore) Profile(ctx context.Context, learnerID string) (*domain.LearnerProfile, error) {
	var p domain.LearnerProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT learner_id, total_problems, total_help, median_solve_ms,
			baseline_errors, updated_at
		FROM learner_profiles WHERE learner_id = ?`, learnerID).
		Scan(&p.LearnerID, &p.TotalProblems, &p.TotalHelp,
			&p.MedianSolveMs, &p.BaselineErrors, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query learner profile: %w", err)
	}
	return &p, nil
}

// SaveProfile upserts the learner summary.
func (s *GuidanceStore) SaveProfile(ctx context.Context, p *domain.LearnerProfile) error {
	if p == nil {
		return domain.ErrInvalidInput
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learner_profiles (learner_id, total_problems, total_help,
			median_solve_ms, baseline_errors, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(learner_id) DO UPDATE SET
			total_problems=excluded.total_problems,
			total_help=excluded.total_help,
			median_solve_ms=excluded.median_solve_ms,
			baseline_errors=excluded.baseline_errors,
			updated_at=excluded.updated_at`,
		p.LearnerID, p.TotalProblems, p.TotalHelp, p.MedianSolveMs,
		p.BaselineErrors, now)
	if err != nil {
		return fmt.Errorf("upsert learner profile: %w", err)
	}
	p.UpdatedAt = now
	return nil
}

// BanditSnapshot returns the serialized bandit state, nil when absent.
func (s *GuidanceStore) BanditSnapshot(ctx context.Context, learnerID string) ([]byte, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM bandit_snapshots WHERE learner_id = ?", learnerID).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query bandit snapshot: %w", err)
	}
	return []byte(state), nil
}

// SaveBanditSnapshot upserts the serialized bandit state.
func (s *GuidanceStore) SaveBanditSnapshot(ctx context.Context, learnerID string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bandit_snapshots (learner_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(learner_id) DO UPDATE SET
			state=excluded.state,
			updated_at=excluded.updated_at`,
		learnerID, string(data), time.Now())
	if err != nil {
		return fmt.Errorf("upsert bandit snapshot: %w", err)
	}
	return nil
}

// DeleteBanditSnapshot removes a learner's saved bandit state.
func (s *GuidanceStore) DeleteBanditSnapshot(ctx context.Context, learnerID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM bandit_snapshots WHERE learner_id = ?", learnerID)
	if err != nil {
		return fmt.Errorf("delete bandit snapshot: %w", err)
	}
	return nil
}
