// Package repository is the PostgreSQL persistence layer for hosted
// deployments. The SQLite layer under internal/storage covers the
// single-process case; this package serves the shared server where
// many learners' histories live in one database.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lernloop/guidance/internal/domain"
)

// PostgresStore implements the engine's persistence contract using
// pgxpool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// SaveInteraction appends one interaction event.
func (r *PostgresStore) SaveInteraction(ctx context.Context, it domain.Interaction) error {
	sourceIDs, err := json.Marshal(it.SourceIDs)
	if err != nil {
		return fmt.Errorf("marshal source_ids: %w", err)
	}
	query := `
		INSERT INTO interactions (id, learner_id, problem_id, kind,
			error_subtype, source_ids, success, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		it.ID, it.LearnerID, it.ProblemID, string(it.Kind),
		it.ErrorSubtype, sourceIDs, it.Success, it.Detail, it.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// InteractionsByLearner returns the learner's history, oldest first.
func (r *PostgresStore) InteractionsByLearner(ctx context.Context, learnerID string) ([]domain.Interaction, error) {
	query := `
		SELECT id, learner_id, problem_id, kind, error_subtype,
			source_ids, success, detail, occurred_at
		FROM interactions
		WHERE learner_id = $1
		ORDER BY occurred_at ASC
	`
	rows, err := r.pool.Query(ctx, query, learnerID)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Interaction
	for rows.Next() {
		var it domain.Interaction
		var kind string
		var sourceIDs []byte
		if err := rows.Scan(&it.ID, &it.LearnerID, &it.ProblemID, &kind,
			&it.ErrorSubtype, &sourceIDs, &it.Success, &it.Detail, &it.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		it.Kind = domain.InteractionKind(kind)
		if len(sourceIDs) > 0 {
			if err := json.Unmarshal(sourceIDs, &it.SourceIDs); err != nil {
				return nil, fmt.Errorf("unmarshal source_ids: %w", err)
			}
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Textbook retrieves a textbook with its units, nil when absent.
func (r *PostgresStore) Textbook(ctx context.Context, id string) (*domain.Textbook, error) {
	tb := &domain.Textbook{}
	err := r.pool.QueryRow(ctx,
		"SELECT id, title FROM textbooks WHERE id = $1", id).Scan(&tb.ID, &tb.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query textbook: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, title, summary, concept_ids
		FROM textbook_units
		WHERE textbook_id = $1
		ORDER BY position ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query textbook units: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u domain.TextbookUnit
		var conceptIDs []byte
		if err := rows.Scan(&u.ID, &u.Title, &u.Summary, &conceptIDs); err != nil {
			return nil, fmt.Errorf("scan textbook unit: %w", err)
		}
		if len(conceptIDs) > 0 {
			if err := json.Unmarshal(conceptIDs, &u.ConceptIDs); err != nil {
				return nil, fmt.Errorf("unmarshal concept_ids: %w", err)
			}
		}
		tb.Units = append(tb.Units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tb, nil
}

// SaveTextbookUnit upserts one unit, creating the textbook if needed.
func (r *PostgresStore) SaveTextbookUnit(ctx context.Context, textbookID, title string, unit domain.TextbookUnit) error {
	conceptIDs, err := json.Marshal(unit.ConceptIDs)
	if err != nil {
		return fmt.Errorf("marshal concept_ids: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO textbooks (id, title) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title`,
		textbookID, title); err != nil {
		return fmt.Errorf("upsert textbook: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO textbook_units (id, textbook_id, title, summary, concept_ids)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (textbook_id, id) DO UPDATE SET
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			concept_ids = EXCLUDED.concept_ids`,
		unit.ID, textbookID, unit.Title, unit.Summary, conceptIDs); err != nil {
		return fmt.Errorf("upsert textbook unit: %w", err)
	}

	return tx.Commit(ctx)
}

// PdfIndex returns the single passage index document, nil when absent.
func (r *PostgresStore) PdfIndex(ctx context.Context) (*domain.PdfIndexDoc, error) {
	doc := &domain.PdfIndexDoc{}
	var passages []byte
	err := r.pool.QueryRow(ctx,
		"SELECT version, passages, updated_at FROM pdf_index WHERE id = 1").
		Scan(&doc.Version, &passages, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query pdf index: %w", err)
	}
	if err := json.Unmarshal(passages, &doc.Passages); err != nil {
		return nil, fmt.Errorf("unmarshal passages: %w", err)
	}
	return doc, nil
}

// SavePdfIndex replaces the passage index document wholesale.
func (r *PostgresStore) SavePdfIndex(ctx context.Context, doc *domain.PdfIndexDoc) error {
	if doc == nil {
		_, err := r.pool.Exec(ctx, "DELETE FROM pdf_index WHERE id = 1")
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
	_, err = r.pool.Exec(ctx, `
		INSERT INTO pdf_index (id, version, passages, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			passages = EXCLUDED.passages,
			updated_at = EXCLUDED.updated_at`,
		doc.Version, passages, updatedAt)
	if err != nil {
		return fmt.Errorf("upsert pdf index: %w", err)
	}
	return nil
}

// Profile returns the learner's summary, nil when absent.
func (r *PostgresStore) Profile(ctx context.Context, learnerID string) (*domain.LearnerProfile, error) {
	p := &domain.LearnerProfile{}
	err := r.pool.QueryRow(ctx, `
		SELECT learner_id, total_problems, total_help, median_solve_ms,
			baseline_errors, updated_at
		FROM learner_profiles WHERE learner_id = $1`, learnerID).
		Scan(&p.LearnerID, &p.TotalProblems, &p.TotalHelp,
			&p.MedianSolveMs, &p.BaselineErrors, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query learner profile: %w", err)
	}
	return p, nil
}

// SaveProfile upserts the learner summary.
func (r *PostgresStore) SaveProfile(ctx context.Context, p *domain.LearnerProfile) error {
	if p == nil {
		return domain.ErrInvalidInput
	}
	now := time.Now()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO learner_profiles (learner_id, total_problems, total_help,
			median_solve_ms, baseline_errors, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (learner_id) DO UPDATE SET
			total_problems = EXCLUDED.total_problems,
			total_help = EXCLUDED.total_help,
			median_solve_ms = EXCLUDED.median_solve_ms,
			baseline_errors = EXCLUDED.baseline_errors,
			updated_at = EXCLUDED.updated_at`,
		p.LearnerID, p.TotalProblems, p.TotalHelp, p.MedianSolveMs,
		p.BaselineErrors, now)
	if err != nil {
		return fmt.Errorf("upsert learner profile: %w", err)
	}
	p.UpdatedAt = now
	return nil
}

// BanditSnapshot returns the serialized bandit state, nil when absent.
func (r *PostgresStore) BanditSnapshot(ctx context.Context, learnerID string) ([]byte, error) {
	var state []byte
	err := r.pool.QueryRow(ctx,
		"SELECT state FROM bandit_snapshots WHERE learner_id = $1", learnerID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query bandit snapshot: %w", err)
	}
	return state, nil
}

// SaveBanditSnapshot upserts the serialized bandit state.
func (r *PostgresStore) SaveBanditSnapshot(ctx context.Context, learnerID string, data []byte) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bandit_snapshots (learner_id, state, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (learner_id) DO UPDATE SET
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at`,
		learnerID, data, time.Now())
	if err != nil {
		return fmt.Errorf("upsert bandit snapshot: %w", err)
	}
	return nil
}

// DeleteBanditSnapshot removes a learner's saved bandit state.
func (r *PostgresStore) DeleteBanditSnapshot(ctx context.Context, learnerID string) error {
	_, err := r.pool.Exec(ctx,
		"DELETE FROM bandit_snapshots WHERE learner_id = $1", learnerID)
	if err != nil {
		return fmt.Errorf("delete bandit snapshot: %w", err)
	}
	return nil
}
