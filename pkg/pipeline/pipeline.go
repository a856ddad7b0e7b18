package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	autoerrors "github.com/cdmackie/automod-core/internal/errors"
	"github.com/cdmackie/automod-core/internal/kv"
	"github.com/cdmackie/automod-core/internal/telemetry"
	"github.com/cdmackie/automod-core/pkg/audit"
	"github.com/cdmackie/automod-core/pkg/classifier"
	"github.com/cdmackie/automod-core/pkg/coalescer"
	"github.com/cdmackie/automod-core/pkg/content"
	"github.com/cdmackie/automod-core/pkg/executor"
	"github.com/cdmackie/automod-core/pkg/heuristics"
	"github.com/cdmackie/automod-core/pkg/llm"
	"github.com/cdmackie/automod-core/pkg/platform"
	"github.com/cdmackie/automod-core/pkg/profile"
	"github.com/cdmackie/automod-core/pkg/rules"
	"github.com/cdmackie/automod-core/pkg/settings"
	"github.com/cdmackie/automod-core/pkg/trust"
)

const globalRulesSubreddit = "global"

// Pipeline is the Decision Pipeline orchestrator: the single place an
// inbound event becomes a host action, a trust update, and an audit entry.
type Pipeline struct {
	host        platform.Host
	settings    *settings.Reader
	profiles    *profile.Fetcher
	scorer      *trust.Scorer
	community   *trust.Tracker
	heuristics  *heuristics.Engine
	classifier  *classifier.Client
	rules       *rules.Engine
	llmBatcher  *llm.Batcher
	coalescer   *coalescer.Coalescer
	executor    *executor.Executor
	audit       *audit.Writer
	metrics     *telemetry.Metrics
	logger      *slog.Logger
	codeVersion string
	appUserID   string
}

// Deps bundles every collaborator New assembles the Pipeline from.
type Deps struct {
	Host        platform.Host
	Settings    *settings.Reader
	Profiles    *profile.Fetcher
	Scorer      *trust.Scorer
	Community   *trust.Tracker
	Heuristics  *heuristics.Engine
	Classifier  *classifier.Client
	Rules       *rules.Engine
	LLM         *llm.Batcher
	Coalescer   *coalescer.Coalescer
	Executor    *executor.Executor
	Audit       *audit.Writer
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger
	CodeVersion string
	AppUserID   string
}

// New assembles a Pipeline from its dependencies.
func New(d Deps) *Pipeline {
	return &Pipeline{
		host:        d.Host,
		settings:    d.Settings,
		profiles:    d.Profiles,
		scorer:      d.Scorer,
		community:   d.Community,
		heuristics:  d.Heuristics,
		classifier:  d.Classifier,
		rules:       d.Rules,
		llmBatcher:  d.LLM,
		coalescer:   d.Coalescer,
		executor:    d.Executor,
		audit:       d.Audit,
		metrics:     d.Metrics,
		logger:      d.Logger,
		codeVersion: d.CodeVersion,
		appUserID:   d.AppUserID,
	}
}

// outcome is the internal result one of the short-circuit steps produces.
type outcome struct {
	action     string
	reason     string
	message    string
	ruleID     string
	layer      string
	confidence int
}

// HandleEvent runs the full 7-step short-circuit pipeline for ev. ctx should
// carry the event's 20s deadline; every blocking step honors it.
func (p *Pipeline) HandleEvent(ctx context.Context, ev Event) error {
	start := time.Now()

	community, err := p.settings.Read(ctx, ev.Subreddit)
	if err != nil {
		p.logger.Warn("settings read failed, using defaults", "subreddit", ev.Subreddit, "error", err)
	}
	kb := kv.NewKeyBuilder(p.codeVersion, community.SettingsVersion())

	item := content.New(contentKind(ev.Kind), ev.Title, ev.Body, ev.Subreddit, "", false)

	// Step 1: eligibility gate. Exempt events return immediately, with no
	// audit entry and no trust update.
	if p.isEligibilityExempt(ctx, ev, community) {
		p.metrics.PipelineDecisionsTotal.WithLabelValues("eligibility_exempt").Inc()
		return nil
	}

	// Step 2: profile + history, fetched concurrently.
	userProfile, history, err := p.fetchProfileAndHistory(ctx, kb, ev, community)
	if err != nil {
		out := outcome{action: executor.ActionFlag, reason: "profile fetch failed", layer: "profile"}
		p.finish(ctx, kb, ev, item, out, community, start)
		return nil
	}

	// Step 3: trust score (metadata only).
	trustScore := p.trustScore(ctx, kb, ev, userProfile)

	evalIn := rules.EvalInput{
		Profile:   userProfile,
		Current:   item,
		History:   history,
		Subreddit: ev.Subreddit,
	}

	// Step 4: Layer 1 heuristics.
	if h := p.heuristics.Evaluate(community.Layer1, userProfile, item); h.Matched {
		p.metrics.Layer1MatchesTotal.Inc()
		out := outcome{action: h.Action, reason: "heuristic rule matched", message: h.Message, layer: "heuristic"}
		p.finish(ctx, kb, ev, item, out, community, start)
		return nil
	}

	// Step 5: community-trust bypass gate.
	trustKind := communityTrustKind(ev.Kind)
	trustStatus := p.community.GetTrust(ctx, kb, ev.AuthorID, ev.Subreddit, trustKind,
		community.Trust.MinSubmissions, community.Trust.MinApprovalRate)
	if trustStatus.IsTrusted {
		p.metrics.CommunityTrustBypass.Inc()
		out := outcome{action: executor.ActionApprove, reason: trustStatus.Reason, layer: "community_trust"}
		p.finish(ctx, kb, ev, item, out, community, start)
		return nil
	}

	// Step 6: Layer 2 safety classifier.
	if community.Layer2.Enabled {
		if result, ok := p.classifier.Classify(ctx, community.Layer2, ev.Title+"\n"+ev.Body); ok {
			if action, flagged := result.Action(community.Layer2); flagged {
				p.metrics.Layer2FlagsTotal.WithLabelValues(flaggedCategory(result)).Inc()
				out := outcome{action: action, reason: "safety classifier flagged content", message: community.Layer2.Message, layer: "classifier"}
				p.finish(ctx, kb, ev, item, out, community, start)
				return nil
			}
		}
	}

	// Step 7: Layer 3 rule engine, optionally backed by the LM batcher.
	out := p.evaluateLayer3(ctx, kb, ev, community, evalIn, trustScore)
	p.finish(ctx, kb, ev, item, out, community, start)
	return nil
}

func flaggedCategory(r classifier.Result) string {
	for cat, flagged := range r.Categories {
		if flagged {
			return string(cat)
		}
	}
	return "unknown"
}

func (p *Pipeline) evaluateLayer3(ctx context.Context, kb *kv.KeyBuilder, ev Event, community settings.Community, evalIn rules.EvalInput, trustScore int) outcome {
	if !community.Layer3.Enabled {
		p.metrics.RuleEvaluationsTotal.WithLabelValues("disabled").Inc()
		return outcome{action: executor.ActionApprove, reason: "No rules matched", confidence: 100, layer: "rule_engine"}
	}

	ruleSet, err := p.loadRuleSet(ctx, ev.Subreddit, community)
	if err != nil {
		p.logger.Warn("rule set invalid, falling back to defaults", "subreddit", ev.Subreddit, "error", err)
		p.metrics.RuleEvaluationsTotal.WithLabelValues("invalid_ruleset").Inc()
		return outcome{action: executor.ActionApprove, reason: "No rules matched", confidence: 100, layer: "rule_engine"}
	}

	kind := ruleContentType(ev.Kind)
	questions := ruleSet.AllQuestions()

	aiAvailable := false
	if len(questions) > 0 {
		llmQuestions := make([]llm.Question, 0, len(questions))
		for _, q := range questions {
			llmQuestions = append(llmQuestions, llm.Question{ID: q.ID, Text: q.Text, Context: q.Context})
		}

		ec := llm.EvalContext{
			UserID:         ev.AuthorID,
			Subreddit:      ev.Subreddit,
			ContentKind:    string(kind),
			CurrentText:    ev.Title + "\n" + ev.Body,
			ProfileSummary: fmt.Sprintf("age=%d karma=%d verified=%t", evalIn.Profile.AccountAgeDays, evalIn.Profile.TotalKarma, evalIn.Profile.EmailVerified),
		}
		opts := llm.BatchOptions{
			PrimaryProvider:  community.Layer3.PrimaryProvider,
			FallbackProvider: community.Layer3.FallbackProvider,
			Model:            community.Layer3.CompatibleModel,
			DailyBudgetUSD:   community.Budget.DailyLimitUSD,
			MonthlyBudgetUSD: community.Budget.MonthlyLimitUSD,
			AnswerCacheTTL:   community.Layer3.AnswerCacheTTL(trustScore),
		}

		if result, ok := p.llmBatcher.Batch(ctx, kb, llmQuestions, ec, opts); ok {
			evalIn.AI = result
			aiAvailable = true
			p.metrics.LLMCallsTotal.WithLabelValues(result.Provider, "success").Inc()
		} else {
			p.metrics.CostBudgetExceededTotal.Inc()
		}
	}

	match, matched, err := p.rules.Evaluate(ruleSet, kind, evalIn, aiAvailable)
	if err != nil {
		p.logger.Error("rule evaluation error", "subreddit", ev.Subreddit, "error", autoerrors.New(autoerrors.KindCatastrophicRuleError, err))
		p.metrics.RuleEvaluationsTotal.WithLabelValues("error").Inc()
		return outcome{action: executor.ActionFlag, reason: "Rule evaluation error - requires manual review", layer: "rule_engine", confidence: 0}
	}
	if !matched {
		p.metrics.RuleEvaluationsTotal.WithLabelValues("no_match").Inc()
		return outcome{action: executor.ActionApprove, reason: "No rules matched", confidence: 100, layer: "rule_engine"}
	}
	p.metrics.RuleEvaluationsTotal.WithLabelValues("matched").Inc()

	confidence := 100
	primaryQuestionID := ""
	if match.Rule.Condition.Leaf != nil && match.Rule.Condition.Leaf.Operator == rules.OperatorAI {
		primaryQuestionID = match.Rule.Condition.Leaf.QuestionID
		if answer, ok := evalIn.AI.Lookup(primaryQuestionID); ok {
			confidence = answer.Confidence
		} else {
			confidence = 50
		}
	}

	reason := rules.Substitute(match.Rule.Message, evalIn, primaryQuestionID)

	return outcome{
		action:     match.Rule.Action,
		reason:     reason,
		message:    match.Rule.Message,
		ruleID:     match.Rule.ID,
		layer:      "rule_engine",
		confidence: confidence,
	}
}

func (p *Pipeline) loadRuleSet(ctx context.Context, subreddit string, community settings.Community) (rules.RuleSet, error) {
	local, err := rules.ParseRuleSet(community.Layer3.RulesJSON)
	if err != nil {
		return rules.RuleSet{}, err
	}

	if subreddit == globalRulesSubreddit {
		return local, nil
	}

	globalCommunity, err := p.settings.Read(ctx, globalRulesSubreddit)
	if err != nil {
		return local, nil
	}
	global, err := rules.ParseRuleSet(globalCommunity.Layer3.RulesJSON)
	if err != nil {
		return local, nil
	}

	return rules.RuleSet{Rules: append(append([]rules.Rule{}, local.Rules...), global.Rules...)}, nil
}

// finish is the single funnel every non-eligibility-gate exit path uses,
// making the "exactly one audit entry per event" invariant mechanically true.
func (p *Pipeline) finish(ctx context.Context, kb *kv.KeyBuilder, ev Event, item content.Item, out outcome, community settings.Community, start time.Time) {
	decision := executor.Decision{
		Action:     out.action,
		Reason:     out.reason,
		Message:    out.message,
		RuleID:     out.ruleID,
		Layer:      out.layer,
		Confidence: out.confidence,
	}

	result := p.executor.Execute(ctx, decision, ev.ItemID, item, community.DryRun)
	if !result.Success {
		p.logger.Warn("action execution failed", "item", ev.ItemID, "action", out.action, "error", result.Error)
	}

	p.updateTrust(ctx, kb, ev, out.action, community)

	p.audit.Log(audit.Entry{
		Timestamp:   time.Now().UTC(),
		Subreddit:   ev.Subreddit,
		ItemID:      ev.ItemID,
		UserID:      ev.AuthorID,
		ContentKind: string(ev.Kind),
		Layer:       out.layer,
		Action:      result.Decision.Action,
		Reason:      result.Decision.Reason,
		RuleID:      result.Decision.RuleID,
		DryRun:      community.DryRun.Enabled,
	})

	p.metrics.PipelineDecisionsTotal.WithLabelValues(result.Decision.Action).Inc()
	p.metrics.PipelineDuration.WithLabelValues(string(ev.Kind)).Observe(time.Since(start).Seconds())
}

func (p *Pipeline) updateTrust(ctx context.Context, kb *kv.KeyBuilder, ev Event, action string, community settings.Community) {
	kind := communityTrustKind(ev.Kind)
	trustAction := trust.Action(action)
	if trustAction != trust.ActionApprove && trustAction != trust.ActionFlag && trustAction != trust.ActionRemove {
		return
	}

	if err := p.community.UpdateTrust(ctx, kb, ev.AuthorID, ev.Subreddit, trustAction, kind); err != nil {
		p.logger.Warn("community trust update failed", "user", ev.AuthorID, "error", err)
	}

	if trustAction == trust.ActionApprove {
		if err := p.community.TrackApproved(ctx, kb, ev.ItemID, ev.AuthorID, ev.Subreddit, kind); err != nil {
			p.logger.Warn("tracking approved content failed", "item", ev.ItemID, "error", err)
		}
		return
	}

	if err := p.scorer.Invalidate(ctx, kb, ev.AuthorID); err != nil {
		p.logger.Warn("trust score invalidation failed", "user", ev.AuthorID, "error", err)
	}
	if err := p.profiles.Invalidate(ctx, kb, ev.AuthorID); err != nil {
		p.logger.Warn("profile cache invalidation failed", "user", ev.AuthorID, "error", err)
	}
}

func (p *Pipeline) isEligibilityExempt(ctx context.Context, ev Event, community settings.Community) bool {
	if p.appUserID != "" && ev.AuthorID == p.appUserID {
		return true
	}
	for _, allowed := range community.Whitelist {
		if allowed == ev.AuthorID || allowed == ev.AuthorName {
			return true
		}
	}
	if isMod, err := p.host.IsModerator(ctx, ev.Subreddit, ev.AuthorID); err == nil && isMod {
		return true
	}
	if approved, err := p.host.IsApprovedUser(ctx, ev.Subreddit, ev.AuthorID); err == nil && approved {
		return true
	}
	return false
}

func (p *Pipeline) fetchProfileAndHistory(ctx context.Context, kb *kv.KeyBuilder, ev Event, community settings.Community) (profile.UserProfile, profile.PostHistory, error) {
	var (
		wg          sync.WaitGroup
		userProfile profile.UserProfile
		history     profile.PostHistory
		profileErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		userProfile, profileErr = p.profiles.Profile(ctx, kb, ev.Subreddit, ev.AuthorID)
	}()
	go func() {
		defer wg.Done()
		history, _ = p.profiles.History(ctx, kb, ev.Subreddit, ev.AuthorID, ev.AuthorName, community.HistoryAnalysis.TargetSubreddits, community.HistoryAnalysis.DatingSubreddits)
	}()
	wg.Wait()

	if profileErr != nil {
		return profile.UserProfile{}, profile.PostHistory{}, profileErr
	}
	return userProfile, history, nil
}

func (p *Pipeline) trustScore(ctx context.Context, kb *kv.KeyBuilder, ev Event, userProfile profile.UserProfile) int {
	if cached, ok := p.scorer.Cached(ctx, kb, userProfile.UserID); ok {
		return cached
	}
	approvedCount := p.community.ApprovedCount(ctx, kb, ev.AuthorID, ev.Subreddit, communityTrustKind(ev.Kind))
	score := trust.Score(userProfile, approvedCount)
	p.scorer.Cache(ctx, kb, ev.Subreddit, userProfile.UserID, score)
	return score
}

func contentKind(k Kind) content.Kind {
	if k == KindCommentSubmit {
		return content.KindComment
	}
	return content.KindPost
}

func communityTrustKind(k Kind) trust.Kind {
	if k == KindCommentSubmit {
		return trust.KindComment
	}
	return trust.KindPost
}

func ruleContentType(k Kind) rules.ContentType {
	if k == KindCommentSubmit {
		return rules.ContentTypeComment
	}
	return rules.ContentTypePost
}
