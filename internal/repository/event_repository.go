package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sqlc-dev/pqtype"

	"github.com/lernloop/guidance/internal/domain"
)

// EventRepository persists engine events for the hosted deployment's
// audit and analytics pipelines. Payloads are stored as JSON alongside
// a typed evidence column so analysts can filter on trigger evidence
// without unpacking the full event.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new event repository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Save persists one engine event.
func (r *EventRepository) Save(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	evidence := pqtype.NullRawMessage{}
	if e, ok := event.(domain.EscalatedEvent); ok && e.Evidence != "" {
		raw, err := json.Marshal(map[string]string{
			"trigger":  string(e.Trigger),
			"evidence": e.Evidence,
		})
		if err != nil {
			return fmt.Errorf("marshal evidence: %w", err)
		}
		evidence = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	query := `
		INSERT INTO events (id, event_type, learner_id, payload, evidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		event.EventID(), event.EventType(), eventLearnerID(event),
		payload, evidence, event.OccurredAt(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// SaveAll persists multiple events.
func (r *EventRepository) SaveAll(ctx context.Context, events []domain.Event) error {
	for _, event := range events {
		if err := r.Save(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// StoredEvent is an event row loaded back from the database.
type StoredEvent struct {
	ID        uuid.UUID
	EventType string
	LearnerID string
	Payload   json.RawMessage
	Evidence  json.RawMessage
	CreatedAt time.Time
}

// ListByLearner retrieves events for a learner, newest first.
func (r *EventRepository) ListByLearner(ctx context.Context, learnerID string, limit, offset int) ([]StoredEvent, error) {
	query := `
		SELECT id, event_type, learner_id, payload, evidence, created_at
		FROM events
		WHERE learner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, learnerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var evidence pqtype.NullRawMessage
		if err := rows.Scan(&e.ID, &e.EventType, &e.LearnerID, &e.Payload, &evidence, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if evidence.Valid {
			e.Evidence = evidence.RawMessage
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListByType retrieves events of one type, newest first.
func (r *EventRepository) ListByType(ctx context.Context, eventType string, limit, offset int) ([]StoredEvent, error) {
	query := `
		SELECT id, event_type, learner_id, payload, evidence, created_at
		FROM events
		WHERE event_type = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, eventType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var evidence pqtype.NullRawMessage
		if err := rows.Scan(&e.ID, &e.EventType, &e.LearnerID, &e.Payload, &evidence, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if evidence.Valid {
			e.Evidence = evidence.RawMessage
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// eventLearnerID extracts the learner id from known event types.
func eventLearnerID(event domain.Event) string {
	switch e := event.(type) {
	case domain.EscalatedEvent:
		return e.LearnerID
	case domain.BanditUpdatedEvent:
		return e.LearnerID
	default:
		return ""
	}
}
