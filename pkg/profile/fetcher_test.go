package profile

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cdmackie/automod-core/internal/kv"
	"github.com/cdmackie/automod-core/pkg/platform"
)

type fakeHost struct {
	user    platform.UserInfo
	history []platform.ContentItem
}

func (f *fakeHost) GetPostByID(ctx context.Context, id string) (platform.ContentItem, error) {
	return platform.ContentItem{}, nil
}
func (f *fakeHost) GetCommentByID(ctx context.Context, id string) (platform.ContentItem, error) {
	return platform.ContentItem{}, nil
}
func (f *fakeHost) GetUserByID(ctx context.Context, id string) (platform.UserInfo, error) {
	return f.user, nil
}
func (f *fakeHost) GetCommentsAndPostsByUser(ctx context.Context, username string, limit int) ([]platform.ContentItem, error) {
	return f.history, nil
}
func (f *fakeHost) IsModerator(ctx context.Context, subreddit, userID string) (bool, error) {
	return false, nil
}
func (f *fakeHost) IsApprovedUser(ctx context.Context, subreddit, userID string) (bool, error) {
	return false, nil
}
func (f *fakeHost) Report(ctx context.Context, targetID string, opts platform.ReportOptions) error {
	return nil
}
func (f *fakeHost) Remove(ctx context.Context, id string, isSpam bool) error { return nil }
func (f *fakeHost) SubmitComment(ctx context.Context, targetID, text string) error { return nil }
func (f *fakeHost) AddModNote(ctx context.Context, note platform.ModNote) error { return nil }
func (f *fakeHost) AddModLog(ctx context.Context, entry platform.ModLogEntry) error { return nil }

func newTestFetcher(t *testing.T, host *fakeHost) (*Fetcher, *kv.Store, *kv.KeyBuilder) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := kv.NewStore(rdb)
	return NewFetcher(host, store), store, kv.NewKeyBuilder("1", "1")
}

func TestProfileFetchesAndCachesOnMiss(t *testing.T) {
	host := &fakeHost{user: platform.UserInfo{ID: "u1", Username: "alice", CreatedAt: time.Now().Add(-100 * 24 * time.Hour).UnixMilli()}}
	f, _, kb := newTestFetcher(t, host)

	p, err := f.Profile(context.Background(), kb, "golang", "u1")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.Username != "alice" {
		t.Errorf("Username = %q, want alice", p.Username)
	}
}

func TestProfileTracksUserForSubredditBulkInvalidation(t *testing.T) {
	host := &fakeHost{user: platform.UserInfo{ID: "u1", Username: "alice"}}
	f, store, kb := newTestFetcher(t, host)
	ctx := context.Background()

	if _, err := f.Profile(ctx, kb, "golang", "u1"); err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if _, err := store.Get(ctx, kb.User("u1", "profile")); err != nil {
		t.Fatalf("expected profile cache entry before bulk clear: %v", err)
	}

	if err := store.ClearSubredditCache(ctx, kb, "golang", false, "profile"); err != nil {
		t.Fatalf("ClearSubredditCache() error = %v", err)
	}

	if _, err := store.Get(ctx, kb.User("u1", "profile")); err != kv.ErrNotFound {
		t.Errorf("Get() after ClearSubredditCache = %v, want ErrNotFound: Profile() must track the user under the subreddit for bulk invalidation to find it", err)
	}
}

func TestProfileCacheInvalidateClearsBothEntries(t *testing.T) {
	host := &fakeHost{user: platform.UserInfo{ID: "u1", Username: "alice"}}
	f, store, kb := newTestFetcher(t, host)
	ctx := context.Background()

	if _, err := f.Profile(ctx, kb, "golang", "u1"); err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if _, err := store.Get(ctx, kb.User("u1", "profile")); err != nil {
		t.Fatalf("expected profile cache entry to exist before invalidation: %v", err)
	}
	if _, err := f.History(ctx, kb, "golang", "u1", "alice", nil, nil); err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if _, err := store.Get(ctx, kb.User("u1", "history")); err != nil {
		t.Fatalf("expected history cache entry to exist before invalidation: %v", err)
	}

	if err := f.Invalidate(ctx, kb, "u1"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	if _, err := store.Get(ctx, kb.User("u1", "profile")); err != kv.ErrNotFound {
		t.Errorf("Get() after Invalidate = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(ctx, kb.User("u1", "history")); err != kv.ErrNotFound {
		t.Errorf("Get(history) after Invalidate = %v, want ErrNotFound", err)
	}
}

func TestHistoryComputesCrossPostingMetrics(t *testing.T) {
	host := &fakeHost{history: []platform.ContentItem{
		{ID: "p1", Kind: "post", Subreddit: "dating", Score: 10, CreatedAt: 1000},
		{ID: "p2", Kind: "post", Subreddit: "golang", Score: 20, CreatedAt: 2000},
	}}
	f, _, kb := newTestFetcher(t, host)

	h, err := f.History(context.Background(), kb, "golang", "u1", "alice", []string{"golang"}, []string{"dating"})
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if h.Metrics.PostsInTargetSubs != 1 || h.Metrics.PostsInDatingSubs != 1 {
		t.Errorf("Metrics = %+v, want 1 target and 1 dating post", h.Metrics)
	}
}
