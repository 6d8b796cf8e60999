package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Analytics runs read-only reporting queries over the hosted database.
// It uses database/sql with the pq driver instead of the pgx pool so
// reporting can point at a read replica with its own credentials.
type Analytics struct {
	db *sql.DB
}

// OpenAnalytics connects to the reporting database.
func OpenAnalytics(databaseURL string) (*Analytics, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open analytics db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping analytics db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(time.Minute)
	return &Analytics{db: db}, nil
}

// Close releases the reporting connection pool.
func (a *Analytics) Close() error {
	return a.db.Close()
}

// EscalationCount is escalations per trigger over a window.
type EscalationCount struct {
	Trigger string
	Count   int
}

// EscalationsByTrigger aggregates escalation events per trigger since
// the cutoff.
func (a *Analytics) EscalationsByTrigger(ctx context.Context, since time.Time) ([]EscalationCount, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT payload->>'trigger' AS trigger, COUNT(*)
		FROM events
		WHERE event_type = 'guidance.escalated' AND created_at >= $1
		GROUP BY 1
		ORDER BY 2 DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("query escalations by trigger: %w", err)
	}
	defer rows.Close()

	var out []EscalationCount
	for rows.Next() {
		var c EscalationCount
		if err := rows.Scan(&c.Trigger, &c.Count); err != nil {
			return nil, fmt.Errorf("scan escalation count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ArmRewardSummary is the observed reward aggregate for one arm.
type ArmRewardSummary struct {
	ArmID      string
	Updates    int
	MeanReward float64
}

// RewardsByArm aggregates bandit updates per arm for a set of learners.
// An empty learner list aggregates across everyone.
func (a *Analytics) RewardsByArm(ctx context.Context, learnerIDs []string, since time.Time) ([]ArmRewardSummary, error) {
	query := `
		SELECT payload->>'arm_id' AS arm_id,
			COUNT(*),
			AVG((payload->>'reward')::float8)
		FROM events
		WHERE event_type = 'guidance.bandit_updated'
			AND created_at >= $1
			AND (cardinality($2::text[]) = 0 OR learner_id = ANY($2))
		GROUP BY 1
		ORDER BY 1`
	rows, err := a.db.QueryContext(ctx, query, since, pq.Array(learnerIDs))
	if err != nil {
		return nil, fmt.Errorf("query rewards by arm: %w", err)
	}
	defer rows.Close()

	var out []ArmRewardSummary
	for rows.Next() {
		var s ArmRewardSummary
		if err := rows.Scan(&s.ArmID, &s.Updates, &s.MeanReward); err != nil {
			return nil, fmt.Errorf("scan arm reward summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// StuckLearners returns learners whose help requests outnumber their
// solves in the window, newest-activity first.
func (a *Analytics) StuckLearners(ctx context.Context, since time.Time, limit int) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT learner_id
		FROM interactions
		WHERE occurred_at >= $1
		GROUP BY learner_id
		HAVING COUNT(*) FILTER (WHERE kind = 'help_request') >
			COUNT(*) FILTER (WHERE kind = 'execution' AND success)
		ORDER BY MAX(occurred_at) DESC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query stuck learners: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan learner id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
