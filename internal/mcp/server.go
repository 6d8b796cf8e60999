// Package mcp exposes the guidance engine to editors and agents over
// the Model Context Protocol. The engine itself owns no network
// surface; this is the in-process tool adapter.
package mcp

import (
	"context"
	"fmt"
	"time"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/lernloop/guidance/internal/domain"
	"github.com/lernloop/guidance/internal/engine"
)

// Server wraps the MCP server with guidance functionality
type Server struct {
	mcpServer *server.Server
	engine    *engine.Engine
}

// Config contains configuration for the MCP server
type Config struct {
	Engine *engine.Engine
}

// NewServer creates a new MCP server over the guidance engine
func NewServer(cfg Config) *Server {
	s := &Server{
		engine: cfg.Engine,
	}

	s.mcpServer = server.New(server.Info{
		Name:    "guidance",
		Version: "0.1.0",
	}, server.WithInstructions(`
Guidance is an adaptive policy engine for learner support.
It escalates help through a three-rung ladder, grounded in reference material.

Available tools:
- guide_attempt: Record a learner attempt, error, or execution; may
  return proactive guidance when an escalation trigger fires
- guide_help: Request help; escalates one rung when a trigger allows
- guide_conclude: Close an episode and report its outcome
- guide_status: Inspect the current ladder state

Rungs:
- 1: Micro-hint (short nudge, no explanation)
- 2: Explanation (targeted, cited)
- 3: Reflective note (concepts, sources, summary, mistakes, example)
`))

	s.registerTools()

	return s
}

// registerTools registers all guidance MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("guide_attempt").
		Description("Record a learner interaction: attempt, error, execution, or help dismissal. Returns proactive guidance when an escalation trigger fires.").
		Handler(s.handleAttempt)

	s.mcpServer.Tool("guide_help").
		Description("Request help for a problem. Escalates one rung when a trigger condition allows.").
		Handler(s.handleHelp)

	s.mcpServer.Tool("guide_conclude").
		Description("Close a guidance episode with its outcome signals.").
		Handler(s.handleConclude)

	s.mcpServer.Tool("guide_status").
		Description("Get the current ladder state for a learner and problem.").
		Handler(s.handleStatus)
}

// Input/Output types for tools

type AttemptInput struct {
	LearnerID    string   `json:"learner_id" jsonschema:"description=Stable learner identity"`
	ProblemID    string   `json:"problem_id" jsonschema:"description=Problem being worked on"`
	ProblemTitle string   `json:"problem_title,omitempty" jsonschema:"description=Human-readable problem title"`
	Concepts     []string `json:"concepts,omitempty" jsonschema:"description=Concept names the problem exercises"`
	Kind         string   `json:"kind" jsonschema:"description=Interaction kind,enum=attempt,enum=error,enum=execution,enum=help_dismissed"`
	ErrorSubtype string   `json:"error_subtype,omitempty" jsonschema:"description=Error subtype for kind=error"`
	Success      bool     `json:"success,omitempty" jsonschema:"description=Whether an execution succeeded"`
	Detail       string   `json:"detail,omitempty" jsonschema:"description=Free-form detail"`
}

type AttemptOutput struct {
	Recorded bool   `json:"recorded"`
	Message  string `json:"message"`

	// Proactive guidance, set when recording the interaction tripped an
	// escalation trigger.
	Escalated bool     `json:"escalated,omitempty"`
	Rung      int      `json:"rung,omitempty"`
	RungName  string   `json:"rung_name,omitempty"`
	Content   string   `json:"content,omitempty"`
	Trigger   string   `json:"trigger,omitempty"`
	SourceIDs []string `json:"source_ids,omitempty"`
}

type HelpInput struct {
	LearnerID    string   `json:"learner_id" jsonschema:"description=Stable learner identity"`
	ProblemID    string   `json:"problem_id" jsonschema:"description=Problem being worked on"`
	ProblemTitle string   `json:"problem_title,omitempty" jsonschema:"description=Human-readable problem title"`
	Concepts     []string `json:"concepts,omitempty" jsonschema:"description=Concept names the problem exercises"`
}

type HelpOutput struct {
	Escalated bool     `json:"escalated"`
	Rung      int      `json:"rung"`
	RungName  string   `json:"rung_name"`
	Content   string   `json:"content,omitempty"`
	Trigger   string   `json:"trigger,omitempty"`
	Reason    string   `json:"reason"`
	SourceIDs []string `json:"source_ids,omitempty"`
}

type ConcludeInput struct {
	LearnerID        string  `json:"learner_id" jsonschema:"description=Stable learner identity"`
	ProblemID        string  `json:"problem_id" jsonschema:"description=Problem being concluded"`
	Solved           bool    `json:"solved" jsonschema:"description=Whether the learner solved the problem"`
	UsedExplanation  bool    `json:"used_explanation,omitempty" jsonschema:"description=Whether rung 2+ guidance was viewed"`
	ErrorCount       int     `json:"error_count,omitempty" jsonschema:"description=Errors during the episode"`
	BaselineErrors   int     `json:"baseline_errors,omitempty" jsonschema:"description=Learner's typical error count"`
	DelayedRetention float64 `json:"delayed_retention,omitempty" jsonschema:"description=Retention score in [-1,1]"`
	ElapsedSeconds   int     `json:"elapsed_seconds,omitempty" jsonschema:"description=Episode duration in seconds"`
	MedianSeconds    int     `json:"median_seconds,omitempty" jsonschema:"description=Learner's median solve time in seconds"`
}

type ConcludeOutput struct {
	Message string `json:"message"`
}

type StatusInput struct {
	LearnerID string `json:"learner_id" jsonschema:"description=Stable learner identity"`
	ProblemID string `json:"problem_id" jsonschema:"description=Problem to inspect"`
}

type StatusOutput struct {
	Active      bool   `json:"active"`
	Rung        int    `json:"rung,omitempty"`
	RungName    string `json:"rung_name,omitempty"`
	Attempts    int    `json:"attempts,omitempty"`
	Escalations int    `json:"escalations,omitempty"`
	Grounded    bool   `json:"grounded,omitempty"`
	ArmID       string `json:"arm_id,omitempty"`
}

// Tool handlers

func (s *Server) handleAttempt(ctx context.Context, input AttemptInput) (AttemptOutput, error) {
	kind := domain.InteractionKind(input.Kind)
	switch kind {
	case domain.KindAttempt, domain.KindError, domain.KindExecution, domain.KindHelpDismissed:
	default:
		return AttemptOutput{}, fmt.Errorf("unsupported interaction kind %q", input.Kind)
	}

	it := domain.NewInteraction(input.LearnerID, input.ProblemID, kind)
	it.ErrorSubtype = input.ErrorSubtype
	it.Success = input.Success
	it.Detail = input.Detail

	problem := domain.Problem{
		ID:           input.ProblemID,
		Title:        input.ProblemTitle,
		ConceptNames: input.Concepts,
	}
	guidance, err := s.engine.RecordAttempt(ctx, input.LearnerID, problem, it)
	if err != nil {
		return AttemptOutput{}, fmt.Errorf("failed to record interaction: %w", err)
	}

	out := AttemptOutput{
		Recorded: true,
		Message:  fmt.Sprintf("Recorded %s for problem %s", kind, input.ProblemID),
	}
	if guidance != nil && guidance.Escalated {
		out.Escalated = true
		out.Rung = int(guidance.Rung)
		out.RungName = guidance.Rung.String()
		out.Content = guidance.Content
		out.Trigger = string(guidance.Decision.Trigger)
		if guidance.Bundle != nil {
			out.SourceIDs = guidance.Bundle.RetrievedSourceIDs
		}
		out.Message = fmt.Sprintf("Recorded %s for problem %s; guidance escalated to %s",
			kind, input.ProblemID, guidance.Rung.String())
	}
	return out, nil
}

func (s *Server) handleHelp(ctx context.Context, input HelpInput) (HelpOutput, error) {
	problem := domain.Problem{
		ID:           input.ProblemID,
		Title:        input.ProblemTitle,
		ConceptNames: input.Concepts,
	}

	guidance, err := s.engine.RequestHelp(ctx, input.LearnerID, problem)
	if err != nil {
		return HelpOutput{}, fmt.Errorf("help request failed: %w", err)
	}

	out := HelpOutput{
		Escalated: guidance.Escalated,
		Rung:      int(guidance.Rung),
		RungName:  guidance.Rung.String(),
		Content:   guidance.Content,
		Reason:    guidance.Decision.Reason,
	}
	if guidance.Escalated {
		out.Trigger = string(guidance.Decision.Trigger)
	}
	if guidance.Bundle != nil {
		out.SourceIDs = guidance.Bundle.RetrievedSourceIDs
	}
	return out, nil
}

func (s *Server) handleConclude(ctx context.Context, input ConcludeInput) (ConcludeOutput, error) {
	signals := domain.OutcomeSignals{
		Solved:           input.Solved,
		UsedExplanation:  input.UsedExplanation,
		ErrorCount:       input.ErrorCount,
		BaselineErrors:   input.BaselineErrors,
		DelayedRetention: input.DelayedRetention,
		Elapsed:          time.Duration(input.ElapsedSeconds) * time.Second,
		MedianElapsed:    time.Duration(input.MedianSeconds) * time.Second,
	}

	if err := s.engine.ConcludeEpisode(ctx, input.LearnerID, input.ProblemID, signals); err != nil {
		return ConcludeOutput{}, fmt.Errorf("failed to conclude episode: %w", err)
	}

	return ConcludeOutput{
		Message: fmt.Sprintf("Episode for problem %s concluded", input.ProblemID),
	}, nil
}

func (s *Server) handleStatus(ctx context.Context, input StatusInput) (StatusOutput, error) {
	state := s.engine.StateFor(input.LearnerID, input.ProblemID)
	if state == nil {
		return StatusOutput{Active: false}, nil
	}

	return StatusOutput{
		Active:      true,
		Rung:        int(state.CurrentRung),
		RungName:    state.CurrentRung.String(),
		Attempts:    state.TotalAttempts(),
		Escalations: len(state.EscalationHistory),
		Grounded:    state.GroundedInSources,
		ArmID:       state.ProfileArmID,
	}, nil
}

// ServeStdio starts the MCP server on stdio (for editor integration)
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
