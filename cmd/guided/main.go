// guided is the guidance daemon: it wires the persistent store, the
// reference corpus, and the policy engine together and serves the MCP
// tool surface on stdio.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lernloop/guidance/internal/bandit"
	"github.com/lernloop/guidance/internal/config"
	"github.com/lernloop/guidance/internal/content"
	"github.com/lernloop/guidance/internal/corpus"
	"github.com/lernloop/guidance/internal/domain"
	"github.com/lernloop/guidance/internal/engine"
	"github.com/lernloop/guidance/internal/grounding"
	"github.com/lernloop/guidance/internal/ladder"
	"github.com/lernloop/guidance/internal/mcp"
	"github.com/lernloop/guidance/internal/queue"
	"github.com/lernloop/guidance/internal/repository"
	"github.com/lernloop/guidance/internal/storage/sqlite"
	"github.com/lernloop/guidance/internal/store"
)

// persistence is the combined store surface the daemon needs.
type persistence interface {
	store.Store
	store.BanditStore
}

func main() {
	if err := run(); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	setupLogging(cfg.Debug)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Backend selection: hosted Postgres when DATABASE_URL is set, the
	// embedded SQLite store otherwise.
	var st persistence
	var eventsRepo *repository.EventRepository
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		st = repository.NewPostgresStore(pool)
		eventsRepo = repository.NewEventRepository(pool)
		slog.Info("using hosted postgres store")
	} else {
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrate store: %w", err)
		}
		st = sqlite.NewGuidanceStore(db)
		slog.Info("using embedded sqlite store", "path", cfg.SQLitePath)
	}

	table, err := loadCorpus(cfg.CorpusPath)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}
	slog.Info("corpus loaded", "rows", table.Size())

	index := grounding.NewPassageIndex()
	if doc, err := st.PdfIndex(ctx); err != nil {
		slog.Warn("failed to load passage index", "error", err)
	} else if doc != nil {
		index.Replace(doc)
		slog.Info("passage index loaded", "version", doc.Version, "passages", len(doc.Passages))
	}

	events := domain.NewEventDispatcher()
	manager := bandit.NewManager(domain.DefaultProfiles(),
		bandit.WithEventDispatcher(events),
		bandit.WithSnapshotLoader(func(learnerID string) ([]byte, error) {
			return st.BanditSnapshot(ctx, learnerID)
		}),
	)

	// Persist bandit posteriors as they move
	events.Subscribe("guidance.bandit_updated", func(event domain.Event) {
		e, ok := event.(domain.BanditUpdatedEvent)
		if !ok {
			return
		}
		data, err := manager.Snapshot(e.LearnerID)
		if err != nil || data == nil {
			return
		}
		if err := st.SaveBanditSnapshot(ctx, e.LearnerID, data); err != nil {
			slog.Warn("failed to persist bandit snapshot", "learner_id", e.LearnerID, "error", err)
		}
	})

	// Hosted deployments keep an event audit trail for analytics.
	if eventsRepo != nil {
		persist := func(event domain.Event) {
			if err := eventsRepo.Save(ctx, event); err != nil {
				slog.Warn("failed to persist event", "type", event.EventType(), "error", err)
			}
		}
		events.Subscribe("guidance.escalated", persist)
		events.Subscribe("guidance.bandit_updated", persist)

		if analytics, err := repository.OpenAnalytics(cfg.AnalyticsURL); err != nil {
			slog.Warn("reporting database unavailable", "error", err)
		} else {
			defer analytics.Close()
			if counts, err := analytics.EscalationsByTrigger(ctx, time.Now().Add(-24*time.Hour)); err == nil {
				for _, c := range counts {
					slog.Info("escalations last 24h", "trigger", c.Trigger, "count", c.Count)
				}
			}
		}
	}

	machine := ladder.NewMachine(
		ladder.WithAligner(table),
		ladder.WithStuckAfter(cfg.TimeStuckWindow),
	)
	builder := grounding.NewBuilder(table, index)

	opts := []engine.Option{
		engine.WithStore(st),
		engine.WithEventDispatcher(events),
		engine.WithTopK(cfg.RetrievalTopK),
	}

	if gen := buildGenerator(cfg); gen != nil {
		opts = append(opts, engine.WithGenerator(gen))
	}

	if cfg.RabbitMQURL != "" {
		conn, err := queue.NewConnection(cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("connect telemetry queue: %w", err)
		}
		defer conn.Close()
		opts = append(opts, engine.WithProducer(queue.NewProducer(conn)))
	}

	eng := engine.New(manager, machine, builder, opts...)

	server := mcp.NewServer(mcp.Config{Engine: eng})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	slog.Info("guidance daemon ready")
	if err := server.ServeStdio(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve: %w", err)
	}

	slog.Info("daemon stopped")
	return nil
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func loadCorpus(path string) (*corpus.Table, error) {
	if path == "" {
		return corpus.DefaultTable(), nil
	}
	return corpus.Load(path)
}

func buildGenerator(cfg *config.Config) *content.Generator {
	if cfg.Provider != "ollama" {
		return nil
	}
	provider := content.NewResilientProvider(
		content.NewOllamaProvider(content.OllamaConfig{
			BaseURL: cfg.OllamaURL,
			Model:   cfg.ProviderModel,
		}),
		content.DefaultResilientConfig(),
	)
	return content.NewGenerator(
		content.WithProvider(provider),
		content.WithTimeout(cfg.GenerateTimeout),
	)
}
