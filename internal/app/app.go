// Package app wires every domain component into a runnable process: the
// Redis-backed KV substrate, the LM provider registry, and the Decision
// Pipeline, then serves them over HTTP (mode "serve") or runs the
// cache-generation sweep loop (mode "worker"). The host platform itself
// (content lookups, moderation actions, settings) is consumed only through
// pkg/platform.Host/SettingsReader; building that adapter is out of this
// module's scope, so Run wires internal/devhost's logging stand-in.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cdmackie/automod-core/internal/config"
	"github.com/cdmackie/automod-core/internal/devhost"
	"github.com/cdmackie/automod-core/internal/httpserver"
	"github.com/cdmackie/automod-core/internal/kv"
	"github.com/cdmackie/automod-core/internal/platform"
	"github.com/cdmackie/automod-core/internal/telemetry"
	"github.com/cdmackie/automod-core/pkg/audit"
	"github.com/cdmackie/automod-core/pkg/classifier"
	"github.com/cdmackie/automod-core/pkg/coalescer"
	"github.com/cdmackie/automod-core/pkg/costledger"
	"github.com/cdmackie/automod-core/pkg/executor"
	"github.com/cdmackie/automod-core/pkg/heuristics"
	"github.com/cdmackie/automod-core/pkg/llm"
	"github.com/cdmackie/automod-core/pkg/pipeline"
	"github.com/cdmackie/automod-core/pkg/profile"
	"github.com/cdmackie/automod-core/pkg/rules"
	"github.com/cdmackie/automod-core/pkg/settings"
	"github.com/cdmackie/automod-core/pkg/trust"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownGrace = 10 * time.Second

// Run builds the process's dependency graph from cfg and runs it until ctx
// is canceled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	store := kv.NewStore(rdb)

	metrics := telemetry.NewMetrics()
	metricsReg := telemetry.NewMetricsRegistry(
		metrics.PipelineDecisionsTotal,
		metrics.PipelineDuration,
		metrics.Layer1MatchesTotal,
		metrics.Layer2FlagsTotal,
		metrics.RuleEvaluationsTotal,
		metrics.LLMCallsTotal,
		metrics.LLMCoalescedTotal,
		metrics.CostBudgetExceededTotal,
		metrics.CommunityTrustBypass,
		metrics.KVCacheHitTotal,
	)

	host := devhost.New(logger)
	settingsReader := settings.NewReader(devhost.NewFileSettingsReader(cfg.SettingsConfigPath))

	registry := llm.NewRegistry()
	registerProviders(registry, cfg)

	auditWriter := audit.NewWriter(store, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	pl := pipeline.New(pipeline.Deps{
		Host:        host,
		Settings:    settingsReader,
		Profiles:    profile.NewFetcher(host, store),
		Scorer:      trust.NewScorer(store),
		Community:   trust.NewTracker(store),
		Heuristics:  heuristics.NewEngine(),
		Classifier:  classifier.NewClient(cfg.ClassifierAPIURL, rdb),
		Rules:       rules.NewEngine(logger),
		LLM:         llm.NewBatcher(store, coalescer.New(store, logger), costledger.New(store), registry, logger),
		Coalescer:   coalescer.New(store, logger),
		Executor:    executor.New(host, logger),
		Audit:       auditWriter,
		Metrics:     metrics,
		Logger:      logger,
		CodeVersion: cfg.CodeVersion,
		AppUserID:   cfg.AppUserID,
	})

	switch cfg.Mode {
	case "serve":
		return runServe(ctx, cfg, logger, store, metricsReg, pl)
	case "worker":
		return runWorker(ctx, cfg, logger, store, settingsReader)
	default:
		return fmt.Errorf("unknown mode %q: want \"serve\" or \"worker\"", cfg.Mode)
	}
}

func registerProviders(registry *llm.Registry, cfg *config.Config) {
	if cfg.ClaudeAPIKey != "" {
		registry.Register(llm.NewBreakerProvider(llm.NewClaudeProvider(cfg.ClaudeAPIKey)))
	}
	if cfg.OpenAIAPIKey != "" {
		registry.Register(llm.NewBreakerProvider(llm.NewCompatibleProvider("openai", "", cfg.OpenAIAPIKey)))
	}
	if cfg.CompatibleName != "" {
		registry.Register(llm.NewBreakerProvider(
			llm.NewCompatibleProvider(cfg.CompatibleName, cfg.CompatibleBaseURL, cfg.CompatibleAPIKey)))
	}
}

// runServe serves the /events webhook ingestion routes until ctx is
// canceled, then drains in-flight requests for shutdownGrace before
// returning.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, store *kv.Store,
	metricsReg *prometheus.Registry, pl *pipeline.Pipeline) error {

	srv := httpserver.NewServer(cfg, logger, store, metricsReg, pl)
	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// runWorker sweeps each managed subreddit for a cacheVersion bump and, when
// one is found, proactively clears the superseded generation's tracked
// per-user cache entries rather than leaving them to expire on their own
// TTL. The audit writer's background flush loop and the KV substrate's
// per-key TTLs need no help otherwise, so this is the only scheduled job.
// It blocks until canceled so a worker deployment stays up without serving
// HTTP.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, store *kv.Store, settingsReader *settings.Reader) error {
	if len(cfg.ManagedSubreddits) == 0 {
		logger.Info("worker started, no managed subreddits configured, idling")
		<-ctx.Done()
		logger.Info("worker stopping")
		return nil
	}

	logger.Info("worker started", "managed_subreddits", len(cfg.ManagedSubreddits), "sweep_interval", cfg.WorkerSweepInterval)
	ticker := time.NewTicker(cfg.WorkerSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopping")
			return nil
		case <-ticker.C:
			for _, subreddit := range cfg.ManagedSubreddits {
				sweepCacheVersion(ctx, cfg, logger, store, settingsReader, subreddit)
			}
		}
	}
}

// cacheVersionSeenKey is a fixed, version-independent key (deliberately
// bypassing the Key Builder's v{codeVersion}:{settingsVersion}: prefix) so
// the last-observed cacheVersion survives the very version bump it detects.
func cacheVersionSeenKey(subreddit string) string {
	return "worker:cache-version-seen:" + subreddit
}

// sweepCacheVersion detects a community's cacheVersion changing since the
// last sweep and, when it has, evicts the prior generation's tracked
// per-user cache entries: the Key Builder's versioned namespacing already
// makes the new generation start clean, but without this the old
// generation's keys would otherwise just sit until their TTL expires.
func sweepCacheVersion(ctx context.Context, cfg *config.Config, logger *slog.Logger, store *kv.Store, settingsReader *settings.Reader, subreddit string) {
	community, err := settingsReader.Read(ctx, subreddit)
	if err != nil {
		logger.Warn("worker: reading community settings failed", "subreddit", subreddit, "error", err)
		return
	}

	currentVersion := community.SettingsVersion()
	seenVersion, err := store.Get(ctx, cacheVersionSeenKey(subreddit))
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		logger.Warn("worker: reading last-seen cache version failed", "subreddit", subreddit, "error", err)
		return
	}

	if seenVersion != "" && seenVersion != currentVersion {
		staleKB := kv.NewKeyBuilder(cfg.CodeVersion, seenVersion)
		if err := store.ClearSubredditCache(ctx, staleKB, subreddit, true, "profile", "history", "trustscore"); err != nil {
			logger.Warn("worker: clearing superseded cache generation failed",
				"subreddit", subreddit, "from_version", seenVersion, "error", err)
		} else {
			logger.Info("worker: cleared superseded cache generation",
				"subreddit", subreddit, "from_version", seenVersion, "to_version", currentVersion)
		}
	}

	if _, err := store.Set(ctx, cacheVersionSeenKey(subreddit), currentVersion, kv.SetOptions{}); err != nil {
		logger.Warn("worker: recording cache version failed", "subreddit", subreddit, "error", err)
	}
}
