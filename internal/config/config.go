// Package config loads process-level configuration from environment
// variables. Per-community settings (rules, budgets, provider keys) are
// not process config — they come from the host platform's settings reader
// and are modeled in pkg/settings.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all process-level configuration, loaded from environment
// variables.
type Config struct {
	// Mode selects the runtime mode: "serve" or "worker".
	Mode string `env:"MODERATOR_MODE" envDefault:"serve"`

	// Server
	Host string `env:"MODERATOR_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"MODERATOR_PORT" envDefault:"8080"`

	// Redis is the backing store for the KV substrate, coalescer, rate
	// limiter, and cost ledger.
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	MetricsPath string `env:"METRICS_PATH" envDefault:"/metrics"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// CodeVersion is embedded in every KV key (spec.md §3 Key Builder
	// invariant) so a code rollout can invalidate caches atomically.
	CodeVersion string `env:"MODERATOR_CODE_VERSION" envDefault:"1"`

	// EventDeadlineSeconds bounds the whole decision pipeline per event.
	EventDeadlineSeconds int `env:"MODERATOR_EVENT_DEADLINE_SECONDS" envDefault:"20"`

	// DryRun is parsed from MODERATOR_DRY_RUN, but nothing in the process
	// reads it: dry-run mode comes only from each community's dryRunMode
	// setting.
	DryRun bool `env:"MODERATOR_DRY_RUN" envDefault:"false"`

	// AppUserID is the moderation app's own platform user ID, so the
	// eligibility gate can recognize and skip its own content (e.g. a
	// comment it posted that the host later replays as an event).
	AppUserID string `env:"MODERATOR_APP_USER_ID"`

	// SettingsConfigPath points the local dev host's SettingsReader at a
	// JSON file holding per-subreddit settings, keyed by subreddit name.
	// Real deployments inject a platform.SettingsReader backed by the host
	// platform itself; this is only a stand-in for running the server
	// without one.
	SettingsConfigPath string `env:"MODERATOR_SETTINGS_CONFIG_PATH"`

	// ClassifierAPIURL points Layer 2 at a moderation-classification
	// endpoint; empty defaults to OpenAI's free moderation endpoint.
	ClassifierAPIURL string `env:"CLASSIFIER_API_URL"`

	// LLM provider credentials, registered into pkg/llm.Registry at
	// startup. A provider with an empty key is skipped.
	ClaudeAPIKey      string `env:"CLAUDE_API_KEY"`
	OpenAIAPIKey      string `env:"OPENAI_API_KEY"`
	CompatibleName    string `env:"COMPATIBLE_LLM_NAME"`
	CompatibleBaseURL string `env:"COMPATIBLE_LLM_BASE_URL"`
	CompatibleAPIKey  string `env:"COMPATIBLE_LLM_API_KEY"`

	// ManagedSubreddits lists the communities worker mode sweeps for
	// superseded cache generations after a settings rewrite bumps a
	// community's cacheVersion. Empty means the worker has nothing to
	// sweep and just idles.
	ManagedSubreddits []string `env:"MODERATOR_MANAGED_SUBREDDITS" envSeparator:","`

	// WorkerSweepInterval controls how often worker mode checks managed
	// subreddits for a cacheVersion bump.
	WorkerSweepInterval time.Duration `env:"MODERATOR_WORKER_SWEEP_INTERVAL" envDefault:"5m"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
