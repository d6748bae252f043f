package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/predictalab/quorum/internal/config"
	"github.com/predictalab/quorum/internal/judgment"
	"github.com/predictalab/quorum/internal/learning"
	"github.com/predictalab/quorum/internal/motivation"
	"github.com/predictalab/quorum/internal/persistence"
	"github.com/predictalab/quorum/internal/persistence/cache"
	"github.com/predictalab/quorum/internal/persistence/postgres"
	"github.com/predictalab/quorum/internal/review"
	"github.com/predictalab/quorum/internal/snapshot"
	"github.com/predictalab/quorum/internal/strategy"
	"github.com/predictalab/quorum/internal/telemetry"
)

// app is the wired object graph shared by serve and the one-shot sweeps.
type app struct {
	cfg     *config.Config
	db      *sqlx.DB
	repos   *persistence.Repository
	health  persistence.Health
	metrics *telemetry.Metrics

	resolver   *strategy.Resolver
	learnings  *learning.Store
	queue      *learning.Queue
	reviews    *review.Service
	portfolios *motivation.Service
	snapshots  *snapshot.Service
	detector   *snapshot.Detector
	analyzer   *judgment.Analyzer
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	db, err := postgres.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	repos := postgres.NewRepository(db)

	if cfg.Redis.Addr != "" {
		client := cache.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := cache.Ping(ctx, client); err != nil {
			db.Close()
			return nil, fmt.Errorf("redis unavailable: %w", err)
		}
		repos.Snapshots = cache.NewSnapshotCache(repos.Snapshots, client, cfg.Redis.TTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("snapshot cache enabled")
	}

	profiles, err := snapshot.LoadMoveProfiles(cfg.Moves.ProfilesPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		db:      db,
		repos:   repos,
		health:  postgres.NewHealth(db),
		metrics: telemetry.New(),
	}

	a.resolver = strategy.NewResolver(repos.Universes, repos.Strategies)
	a.learnings = learning.NewStore(repos.Learnings, repos.Targets, repos.Universes)
	a.queue = learning.NewQueue(repos.LearningQueue, repos.Targets, repos.Universes, a.learnings)
	a.reviews = review.NewService(repos.Signals, repos.Reviews, repos.Predictors, repos.Targets, a.resolver, a.queue)
	a.portfolios = motivation.NewService(repos.Portfolios, repos.Perspectives)
	a.snapshots = snapshot.NewService(repos.Snapshots, repos.Targets, repos.Universes)
	a.detector = snapshot.NewDetector(repos.Snapshots, repos.Targets, repos.Universes, profiles)

	if cfg.Judgment.Endpoint != "" {
		client := judgment.NewHTTPClient(judgment.ClientConfig{
			Endpoint:       cfg.Judgment.Endpoint,
			AuthToken:      cfg.Judgment.AuthToken,
			Model:          cfg.Judgment.Model,
			RequestTimeout: cfg.Judgment.RequestTimeout,
		})
		guarded := judgment.NewGuardedGenerator(client, cfg.Judgment.RequestsPerSecond, cfg.Judgment.Burst)
		a.analyzer = judgment.NewAnalyzer(guarded, repos.Predictors, a.queue)
	} else {
		log.Info().Msg("judgment endpoint not configured, missed-move analysis disabled")
	}

	return a, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("closing database pool")
	}
}

func (a *app) retentionDays() int {
	return int(a.cfg.Scheduler.SnapshotRetention.Hours() / 24)
}
