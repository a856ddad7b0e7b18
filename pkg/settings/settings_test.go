package settings

import (
	"context"
	"testing"
	"time"
)

type fakeRawReader struct {
	data map[string]any
	err  error
}

func (f fakeRawReader) Read(ctx context.Context, subreddit string) (map[string]any, error) {
	return f.data, f.err
}

func TestReadAppliesDefaultsWhenRawEmpty(t *testing.T) {
	r := NewReader(fakeRawReader{data: map[string]any{}})
	c, err := r.Read(context.Background(), "golang")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if c.Layer1.AccountAgeDays != 3 || c.Layer1.KarmaThreshold != 10 {
		t.Errorf("Layer1 = %+v, want defaults (3, 10)", c.Layer1)
	}
	if c.Trust.MinSubmissions != 3 || c.Trust.MinApprovalRate != 70 {
		t.Errorf("Trust = %+v, want defaults (3, 70)", c.Trust)
	}
	if c.Subreddit != "golang" {
		t.Errorf("Subreddit = %q, want golang", c.Subreddit)
	}
}

func TestReadOverlaysRawOverDefaults(t *testing.T) {
	raw := map[string]any{
		"builtInAccountAgeDays": float64(30),
		"builtInAction":         "REMOVE",
		"openaiModThreshold":    float64(0.5),
	}
	r := NewReader(fakeRawReader{data: raw})
	c, err := r.Read(context.Background(), "golang")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if c.Layer1.AccountAgeDays != 30 {
		t.Errorf("Layer1.AccountAgeDays = %d, want 30 (overlay)", c.Layer1.AccountAgeDays)
	}
	if c.Layer1.Action != "REMOVE" {
		t.Errorf("Layer1.Action = %q, want REMOVE (overlay)", c.Layer1.Action)
	}
	if c.Layer2.Threshold != 0.5 {
		t.Errorf("Layer2.Threshold = %v, want 0.5 (overlay)", c.Layer2.Threshold)
	}
	// Untouched fields keep their defaults.
	if c.Layer1.KarmaThreshold != 10 {
		t.Errorf("Layer1.KarmaThreshold = %d, want unchanged default 10", c.Layer1.KarmaThreshold)
	}
}

func TestReadRejectsInvalidAction(t *testing.T) {
	raw := map[string]any{"builtInAction": "DESTROY_EVERYTHING"}
	r := NewReader(fakeRawReader{data: raw})
	if _, err := r.Read(context.Background(), "golang"); err == nil {
		t.Error("Read() error = nil, want validation error for unrecognized action")
	}
}

func TestReadRejectsThresholdOutOfRange(t *testing.T) {
	raw := map[string]any{"openaiModThreshold": float64(1.5)}
	r := NewReader(fakeRawReader{data: raw})
	if _, err := r.Read(context.Background(), "golang"); err == nil {
		t.Error("Read() error = nil, want validation error for threshold > 1")
	}
}

func TestReadPropagatesRawReaderError(t *testing.T) {
	wantErr := context.DeadlineExceeded
	r := NewReader(fakeRawReader{err: wantErr})
	if _, err := r.Read(context.Background(), "golang"); err == nil {
		t.Error("Read() error = nil, want propagated raw reader error")
	}
}

func TestAnswerCacheTTLInterpolatesByTrustScore(t *testing.T) {
	l3 := Layer3{}
	if got := l3.AnswerCacheTTL(0); got != 10*time.Minute {
		t.Errorf("AnswerCacheTTL(0) = %v, want 10m", got)
	}
	if got := l3.AnswerCacheTTL(100); got != 7*24*time.Hour {
		t.Errorf("AnswerCacheTTL(100) = %v, want 7d", got)
	}
	if got := l3.AnswerCacheTTL(-5); got != l3.AnswerCacheTTL(0) {
		t.Errorf("AnswerCacheTTL(-5) = %v, want clamped to AnswerCacheTTL(0)", got)
	}
	if got := l3.AnswerCacheTTL(150); got != l3.AnswerCacheTTL(100) {
		t.Errorf("AnswerCacheTTL(150) = %v, want clamped to AnswerCacheTTL(100)", got)
	}
}
