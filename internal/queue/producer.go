package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lernloop/guidance/internal/domain"
)

// Producer publishes guidance telemetry to the queues
type Producer struct {
	conn *Connection
}

// NewProducer creates a new queue producer
func NewProducer(conn *Connection) *Producer {
	return &Producer{conn: conn}
}

// PublishEscalation publishes one ladder transition
func (p *Producer) PublishEscalation(ctx context.Context, msg *EscalationMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	if err := p.conn.PublishJSON(ctx, EscalationQueueName, msg); err != nil {
		return fmt.Errorf("failed to publish escalation: %w", err)
	}

	slog.Info("published escalation",
		"message_id", msg.ID,
		"learner_id", msg.LearnerID,
		"problem_id", msg.ProblemID,
		"to_rung", msg.ToRung,
		"trigger", msg.Trigger,
	)

	return nil
}

// PublishOutcome publishes an episode outcome for remote bandit updates
func (p *Producer) PublishOutcome(ctx context.Context, msg *OutcomeMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	if err := p.conn.PublishJSON(ctx, RewardQueueName, msg); err != nil {
		return fmt.Errorf("failed to publish outcome: %w", err)
	}

	slog.Info("published outcome",
		"message_id", msg.ID,
		"learner_id", msg.LearnerID,
		"problem_id", msg.ProblemID,
		"arm_id", msg.ArmID,
	)

	return nil
}

// EscalationFromEvent builds a wire message from a recorded transition
func EscalationFromEvent(learnerID, problemID string, esc domain.Escalation, sourceIDs []string) *EscalationMessage {
	return &EscalationMessage{
		ID:        uuid.New(),
		LearnerID: learnerID,
		ProblemID: problemID,
		FromRung:  esc.FromRung,
		ToRung:    esc.ToRung,
		Trigger:   esc.Trigger,
		Evidence:  esc.Evidence,
		SourceIDs: sourceIDs,
		CreatedAt: time.Now(),
	}
}
