package heuristics

import (
	"testing"

	"github.com/cdmackie/automod-core/pkg/content"
	"github.com/cdmackie/automod-core/pkg/profile"
	"github.com/cdmackie/automod-core/pkg/settings"
)

func TestEvaluateDisabledLayerNeverMatches(t *testing.T) {
	e := NewEngine()
	cfg := settings.Layer1{Enabled: false, AccountAgeDays: 30, KarmaThreshold: 100}
	p := profile.UserProfile{AccountAgeDays: 0, TotalKarma: 0}
	item := content.Item{}

	got := e.Evaluate(cfg, p, item)
	if got.Matched {
		t.Errorf("Evaluate() with Enabled=false matched = true, want false")
	}
}

func TestEvaluatePassesWhenEveryClauseSatisfied(t *testing.T) {
	e := NewEngine()
	cfg := settings.Layer1{
		Enabled:              true,
		AccountAgeDays:       30,
		KarmaThreshold:       100,
		RequireEmailVerified: true,
		BlockExternalLinks:   true,
		Action:               "FLAG",
	}
	p := profile.UserProfile{AccountAgeDays: 365, TotalKarma: 5000, EmailVerified: true}
	item := content.Item{} // no URLs

	got := e.Evaluate(cfg, p, item)
	if got.Matched {
		t.Errorf("Evaluate() with every clause satisfied matched = true, want false")
	}
}

func TestEvaluateFiresOnAccountAgeBelowThreshold(t *testing.T) {
	e := NewEngine()
	cfg := settings.Layer1{Enabled: true, AccountAgeDays: 30, Action: "REMOVE", Message: "account too new"}
	p := profile.UserProfile{AccountAgeDays: 1, TotalKarma: 1000}
	item := content.Item{}

	got := e.Evaluate(cfg, p, item)
	if !got.Matched {
		t.Fatal("Evaluate() matched = false, want true: account age below threshold")
	}
	if got.Action != "REMOVE" || got.Message != "account too new" {
		t.Errorf("Evaluate() = %+v, want Action=REMOVE Message=account too new", got)
	}
}

func TestEvaluateFiresOnKarmaBelowThreshold(t *testing.T) {
	e := NewEngine()
	cfg := settings.Layer1{Enabled: true, KarmaThreshold: 100, Action: "FLAG"}
	p := profile.UserProfile{AccountAgeDays: 365, TotalKarma: 5}
	item := content.Item{}

	got := e.Evaluate(cfg, p, item)
	if !got.Matched {
		t.Fatal("Evaluate() matched = false, want true: karma below threshold")
	}
}

func TestEvaluateFiresOnUnverifiedEmail(t *testing.T) {
	e := NewEngine()
	cfg := settings.Layer1{Enabled: true, RequireEmailVerified: true, Action: "FLAG"}
	p := profile.UserProfile{AccountAgeDays: 365, TotalKarma: 5000, EmailVerified: false}
	item := content.Item{}

	got := e.Evaluate(cfg, p, item)
	if !got.Matched {
		t.Fatal("Evaluate() matched = false, want true: email not verified")
	}
}

func TestEvaluateFiresOnExternalLinks(t *testing.T) {
	e := NewEngine()
	cfg := settings.Layer1{Enabled: true, BlockExternalLinks: true, Action: "REMOVE"}
	p := profile.UserProfile{AccountAgeDays: 365, TotalKarma: 5000, EmailVerified: true}
	item := content.New(content.KindPost, "", "check this out http://spam.example/x", "golang", "", false)

	got := e.Evaluate(cfg, p, item)
	if !got.Matched {
		t.Fatal("Evaluate() matched = false, want true: item has an external link")
	}
}
