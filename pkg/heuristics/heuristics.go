// Package heuristics implements Layer 1: cheap, deterministic,
// sub-millisecond predicates over account facts and the current item. No
// I/O; every decision is a pure function of its inputs.
package heuristics

import (
	"github.com/cdmackie/automod-core/pkg/content"
	"github.com/cdmackie/automod-core/pkg/profile"
	"github.com/cdmackie/automod-core/pkg/settings"
)

// Result is the outcome of evaluating Layer 1 against one item.
type Result struct {
	Matched bool
	Action  string
	Message string
}

// Engine evaluates the community's built-in heuristic rule.
type Engine struct{}

// NewEngine returns a stateless heuristics Engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate runs the configured built-in rule against p and item. The rule is
// a conjunction of account age, total karma, external links, and email
// verification clauses; any unmet clause fails the user and the rule fires.
func (e *Engine) Evaluate(cfg settings.Layer1, p profile.UserProfile, item content.Item) Result {
	if !cfg.Enabled {
		return Result{}
	}

	failed := p.AccountAgeDays < cfg.AccountAgeDays ||
		p.TotalKarma < cfg.KarmaThreshold ||
		(cfg.RequireEmailVerified && !p.EmailVerified) ||
		(cfg.BlockExternalLinks && item.HasExternalLinks())

	if !failed {
		return Result{}
	}

	return Result{
		Matched: true,
		Action:  cfg.Action,
		Message: cfg.Message,
	}
}
