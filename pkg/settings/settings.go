// Package settings parses and validates the per-community configuration
// surface the host's settings reader exposes into a typed Community.
package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cdmackie/automod-core/pkg/platform"
)

// Layer1 configures the heuristic rules layer.
type Layer1 struct {
	Enabled              bool
	AccountAgeDays       int    `validate:"gte=0"`
	KarmaThreshold       int    `validate:"gte=0"`
	RequireEmailVerified bool
	BlockExternalLinks   bool
	Action               string `validate:"omitempty,oneof=APPROVE FLAG REMOVE COMMENT"`
	Message              string
}

// Layer2 configures the safety classifier layer.
type Layer2 struct {
	Enabled               bool
	APIKey                string
	CategoriesToCheck     []string
	Threshold             float64 `validate:"gte=0,lte=1"`
	Action                string  `validate:"omitempty,oneof=APPROVE FLAG REMOVE COMMENT"`
	Message               string
	AlwaysRemoveMinorSexual bool
}

// Layer3 configures the rule engine and LM providers.
type Layer3 struct {
	Enabled          bool
	RulesJSON        string
	PrimaryProvider  string `validate:"omitempty,oneof=claude openai compatible"`
	FallbackProvider string `validate:"omitempty,oneof=claude openai compatible"`
	ProviderKeys     map[string]string
	CompatibleBaseURL string
	CompatibleModel   string
}

// AnswerCacheTTL linearly interpolates the LM answer-cache TTL from 10
// minutes at trust score 0 to 7 days at trust score 100: lower-trust users
// get fresher re-evaluation, higher-trust users reuse cached answers longer.
func (l Layer3) AnswerCacheTTL(trustScore int) time.Duration {
	if trustScore < 0 {
		trustScore = 0
	}
	if trustScore > 100 {
		trustScore = 100
	}
	const (
		minTTL = 10 * time.Minute
		maxTTL = 7 * 24 * time.Hour
	)
	frac := float64(trustScore) / 100.0
	return minTTL + time.Duration(frac*float64(maxTTL-minTTL))
}

// Budget configures the cost ledger's spend limits.
type Budget struct {
	DailyLimitUSD   float64 `validate:"gte=0"`
	MonthlyLimitUSD float64 `validate:"gte=0"`
	AlertsEnabled   bool
}

// Notifications configures threshold-crossing/digest delivery, whose
// actual delivery is an external collaborator's responsibility.
type Notifications struct {
	Recipient                  string
	RecipientUsernames         []string
	DailyDigestEnabled         bool
	DailyDigestTime            string
	RealtimeNotificationsEnabled bool
}

// Trust configures the community-trust bypass gate.
type Trust struct {
	MinSubmissions  int     `validate:"gte=1"`
	MinApprovalRate float64 `validate:"gte=0,lte=100"`
}

// HistoryAnalysis names the subreddit lists the profile fetcher's history
// metrics are computed against.
type HistoryAnalysis struct {
	TargetSubreddits []string
	DatingSubreddits []string
}

// DryRun configures the global dry-run override.
type DryRun struct {
	Enabled    bool
	LogDetails bool
}

// Community is the fully parsed, validated per-community configuration.
type Community struct {
	Subreddit       string
	CacheVersion    int
	Layer1          Layer1
	Layer2          Layer2
	Layer3          Layer3
	Budget          Budget
	Notifications   Notifications
	Trust           Trust
	HistoryAnalysis HistoryAnalysis
	DryRun          DryRun
	Whitelist       []string
}

// SettingsVersion is the string embedded by the Key Builder so a settings
// rewrite invalidates cached scopes atomically.
func (c Community) SettingsVersion() string {
	return fmt.Sprintf("%d", c.CacheVersion)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Reader reads and parses a community's settings on demand. Callers should
// read once per event and reuse the result, since SettingsVersion must stay
// consistent across a single event's KV keys.
type Reader struct {
	raw platform.SettingsReader
}

// NewReader wraps the host's raw settings reader.
func NewReader(raw platform.SettingsReader) *Reader {
	return &Reader{raw: raw}
}

// Read fetches and validates the settings for subreddit, applying defaults
// for anything the host's raw map omits. On error it returns the defaults
// alongside the error.
func (r *Reader) Read(ctx context.Context, subreddit string) (Community, error) {
	raw, err := r.raw.Read(ctx, subreddit)
	if err != nil {
		return defaults(subreddit), fmt.Errorf("reading settings for %s: %w", subreddit, err)
	}

	c := defaults(subreddit)
	applyRaw(&c, raw)

	if err := validate.Struct(c.Layer1); err != nil {
		return defaults(subreddit), fmt.Errorf("invalid layer1 settings: %w", err)
	}
	if err := validate.Struct(c.Layer2); err != nil {
		return defaults(subreddit), fmt.Errorf("invalid layer2 settings: %w", err)
	}
	if err := validate.Struct(c.Layer3); err != nil {
		return defaults(subreddit), fmt.Errorf("invalid layer3 settings: %w", err)
	}
	if err := validate.Struct(c.Budget); err != nil {
		return defaults(subreddit), fmt.Errorf("invalid budget settings: %w", err)
	}
	if err := validate.Struct(c.Trust); err != nil {
		return defaults(subreddit), fmt.Errorf("invalid trust settings: %w", err)
	}

	return c, nil
}

func defaults(subreddit string) Community {
	return Community{
		Subreddit:    subreddit,
		CacheVersion: 1,
		Layer1: Layer1{
			Enabled:        true,
			AccountAgeDays: 3,
			KarmaThreshold: 10,
			Action:         "FLAG",
			Message:        "Account does not meet minimum requirements.",
		},
		Layer2: Layer2{
			Enabled:                 true,
			CategoriesToCheck:       []string{"hate", "harassment", "violence", "sexual/minors"},
			Threshold:               0.8,
			Action:                  "FLAG",
			Message:                "Content flagged by automated safety review.",
			AlwaysRemoveMinorSexual: true,
		},
		Layer3: Layer3{
			Enabled:          false,
			PrimaryProvider:  "claude",
			FallbackProvider: "",
			ProviderKeys:     map[string]string{},
		},
		Budget: Budget{
			DailyLimitUSD:   5,
			MonthlyLimitUSD: 100,
			AlertsEnabled:   true,
		},
		Trust: Trust{
			MinSubmissions:  3,
			MinApprovalRate: 70,
		},
		DryRun: DryRun{},
	}
}

// applyRaw overlays the host's raw string-keyed map onto the community
// defaults, matching the configuration surface's field names.
func applyRaw(c *Community, raw map[string]any) {
	if v, ok := raw["enableBuiltInRules"].(bool); ok {
		c.Layer1.Enabled = v
	}
	if v, ok := asInt(raw["builtInAccountAgeDays"]); ok {
		c.Layer1.AccountAgeDays = v
	}
	if v, ok := asInt(raw["builtInKarmaThreshold"]); ok {
		c.Layer1.KarmaThreshold = v
	}
	if v, ok := raw["builtInAction"].(string); ok {
		c.Layer1.Action = v
	}
	if v, ok := raw["builtInMessage"].(string); ok {
		c.Layer1.Message = v
	}
	if v, ok := raw["builtInRequireEmailVerified"].(bool); ok {
		c.Layer1.RequireEmailVerified = v
	}
	if v, ok := raw["builtInBlockExternalLinks"].(bool); ok {
		c.Layer1.BlockExternalLinks = v
	}

	if v, ok := raw["enableOpenAIMod"].(bool); ok {
		c.Layer2.Enabled = v
	}
	if v, ok := raw["openaiModApiKey"].(string); ok {
		c.Layer2.APIKey = v
	}
	if v, ok := asStringSlice(raw["openaiModCategories"]); ok {
		c.Layer2.CategoriesToCheck = v
	}
	if v, ok := asFloat(raw["openaiModThreshold"]); ok {
		c.Layer2.Threshold = v
	}
	if v, ok := raw["openaiModAction"].(string); ok {
		c.Layer2.Action = v
	}
	if v, ok := raw["openaiModMessage"].(string); ok {
		c.Layer2.Message = v
	}

	if v, ok := raw["enableCustomAIRules"].(bool); ok {
		c.Layer3.Enabled = v
	}
	if v, ok := raw["rulesJson"].(string); ok {
		c.Layer3.RulesJSON = v
	}
	if v, ok := raw["primaryProvider"].(string); ok {
		c.Layer3.PrimaryProvider = v
	}
	if v, ok := raw["fallbackProvider"].(string); ok {
		c.Layer3.FallbackProvider = v
	}
	if v, ok := raw["baseURL"].(string); ok {
		c.Layer3.CompatibleBaseURL = v
	}
	if v, ok := raw["model"].(string); ok {
		c.Layer3.CompatibleModel = v
	}

	if v, ok := asFloat(raw["dailyBudgetLimit"]); ok {
		c.Budget.DailyLimitUSD = v
	}
	if v, ok := asFloat(raw["monthlyBudgetLimit"]); ok {
		c.Budget.MonthlyLimitUSD = v
	}
	if v, ok := raw["budgetAlertsEnabled"].(bool); ok {
		c.Budget.AlertsEnabled = v
	}

	if v, ok := raw["notificationRecipient"].(string); ok {
		c.Notifications.Recipient = v
	}
	if v, ok := asStringSlice(raw["notificationRecipientUsernames"]); ok {
		c.Notifications.RecipientUsernames = v
	}
	if v, ok := raw["dailyDigestEnabled"].(bool); ok {
		c.Notifications.DailyDigestEnabled = v
	}
	if v, ok := raw["dailyDigestTime"].(string); ok {
		c.Notifications.DailyDigestTime = v
	}
	if v, ok := raw["realtimeNotificationsEnabled"].(bool); ok {
		c.Notifications.RealtimeNotificationsEnabled = v
	}

	if v, ok := raw["dryRunMode"].(bool); ok {
		c.DryRun.Enabled = v
	}
	if v, ok := raw["dryRunLogDetails"].(bool); ok {
		c.DryRun.LogDetails = v
	}

	if v, ok := asInt(raw["cacheVersion"]); ok {
		c.CacheVersion = v
	}

	if v, ok := asStringSlice(raw["whitelist"]); ok {
		c.Whitelist = v
	}
	if v, ok := asStringSlice(raw["targetSubreddits"]); ok {
		c.HistoryAnalysis.TargetSubreddits = v
	}
	if v, ok := asStringSlice(raw["datingSubreddits"]); ok {
		c.HistoryAnalysis.DatingSubreddits = v
	}
	if v, ok := asInt(raw["minSubmissions"]); ok {
		c.Trust.MinSubmissions = v
	}
	if v, ok := asFloat(raw["minApprovalRate"]); ok {
		c.Trust.MinApprovalRate = v
	}
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

func asStringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}
