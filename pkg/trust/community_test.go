package trust

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cdmackie/automod-core/internal/kv"
	"github.com/redis/go-redis/v9"
)

func newTestTracker(t *testing.T) (*Tracker, *kv.KeyBuilder) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewTracker(kv.NewStore(rdb)), kv.NewKeyBuilder("1", "1")
}

func TestGetTrustUntrustedWithNoHistory(t *testing.T) {
	tr, kb := newTestTracker(t)
	status := tr.GetTrust(context.Background(), kb, "alice", "golang", KindPost, 3, 70)
	if status.IsTrusted {
		t.Errorf("IsTrusted = true, want false for a user with no submissions")
	}
	if status.Submissions != 0 {
		t.Errorf("Submissions = %d, want 0", status.Submissions)
	}
}

func TestGetTrustAfterEnoughApprovals(t *testing.T) {
	tr, kb := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := tr.UpdateTrust(ctx, kb, "alice", "golang", ActionApprove, KindPost); err != nil {
			t.Fatalf("UpdateTrust() error = %v", err)
		}
	}

	status := tr.GetTrust(ctx, kb, "alice", "golang", KindPost, 3, 70)
	if !status.IsTrusted {
		t.Errorf("IsTrusted = false, want true after 5 approvals with minSubmissions=3 minApprovalRate=70")
	}
	if status.ApprovalRate != 100 {
		t.Errorf("ApprovalRate = %v, want 100", status.ApprovalRate)
	}
	if status.Submissions != 5 {
		t.Errorf("Submissions = %d, want 5", status.Submissions)
	}
}

func TestGetTrustBelowMinSubmissions(t *testing.T) {
	tr, kb := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := tr.UpdateTrust(ctx, kb, "alice", "golang", ActionApprove, KindPost); err != nil {
			t.Fatalf("UpdateTrust() error = %v", err)
		}
	}

	status := tr.GetTrust(ctx, kb, "alice", "golang", KindPost, 3, 70)
	if status.IsTrusted {
		t.Errorf("IsTrusted = true, want false: only 2 submissions, minSubmissions=3")
	}
}

func TestGetTrustBelowMinApprovalRate(t *testing.T) {
	tr, kb := newTestTracker(t)
	ctx := context.Background()

	// 2 approved out of 4 submitted = 50%, below the 70% threshold.
	for i := 0; i < 2; i++ {
		if err := tr.UpdateTrust(ctx, kb, "alice", "golang", ActionApprove, KindPost); err != nil {
			t.Fatalf("UpdateTrust() error = %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if err := tr.UpdateTrust(ctx, kb, "alice", "golang", ActionRemove, KindPost); err != nil {
			t.Fatalf("UpdateTrust() error = %v", err)
		}
	}

	status := tr.GetTrust(ctx, kb, "alice", "golang", KindPost, 3, 70)
	if status.IsTrusted {
		t.Errorf("IsTrusted = true, want false: approval rate 50%% below threshold 70%%")
	}
	if status.ApprovalRate != 50 {
		t.Errorf("ApprovalRate = %v, want 50", status.ApprovalRate)
	}
}

func TestGetTrustKeepsPostAndCommentTrustIndependent(t *testing.T) {
	tr, kb := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := tr.UpdateTrust(ctx, kb, "alice", "golang", ActionApprove, KindComment); err != nil {
			t.Fatalf("UpdateTrust() error = %v", err)
		}
	}

	postStatus := tr.GetTrust(ctx, kb, "alice", "golang", KindPost, 3, 70)
	if postStatus.IsTrusted {
		t.Errorf("post IsTrusted = true, want false: comment approvals must not uplift post trust")
	}

	commentStatus := tr.GetTrust(ctx, kb, "alice", "golang", KindComment, 3, 70)
	if !commentStatus.IsTrusted {
		t.Errorf("comment IsTrusted = false, want true")
	}
}

func TestTrackApprovedAndRetroactiveRemoval(t *testing.T) {
	tr, kb := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := tr.UpdateTrust(ctx, kb, "alice", "golang", ActionApprove, KindPost); err != nil {
			t.Fatalf("UpdateTrust() error = %v", err)
		}
	}
	if err := tr.TrackApproved(ctx, kb, "t3_abc123", "alice", "golang", KindPost); err != nil {
		t.Fatalf("TrackApproved() error = %v", err)
	}

	if err := tr.RetroactiveRemoval(ctx, kb, "t3_abc123"); err != nil {
		t.Fatalf("RetroactiveRemoval() error = %v", err)
	}

	status := tr.GetTrust(ctx, kb, "alice", "golang", KindPost, 3, 70)
	if status.ApprovalRate != 80 {
		t.Errorf("ApprovalRate after retroactive removal = %v, want 80 (4 approved, 1 removed of 5)", status.ApprovalRate)
	}

	// A second call with the same contentID is a no-op: the record was
	// already deleted by the first removal.
	if err := tr.RetroactiveRemoval(ctx, kb, "t3_abc123"); err != nil {
		t.Fatalf("second RetroactiveRemoval() error = %v, want nil no-op", err)
	}
	status = tr.GetTrust(ctx, kb, "alice", "golang", KindPost, 3, 70)
	if status.ApprovalRate != 80 {
		t.Errorf("ApprovalRate after no-op removal = %v, want unchanged 80", status.ApprovalRate)
	}
}

func TestRetroactiveRemovalUnknownContentIsNoop(t *testing.T) {
	tr, kb := newTestTracker(t)
	if err := tr.RetroactiveRemoval(context.Background(), kb, "t3_never-approved"); err != nil {
		t.Errorf("RetroactiveRemoval() for unknown content error = %v, want nil", err)
	}
}

func TestMonthsInactiveZeroForZeroTime(t *testing.T) {
	if got := monthsInactive(time.Time{}); got != 0 {
		t.Errorf("monthsInactive(zero time) = %d, want 0", got)
	}
}
