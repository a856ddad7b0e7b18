package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cdmackie/automod-core/pkg/settings"
)

func newTestClient(t *testing.T, apiURL string) *Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewClient(apiURL, rdb)
}

func TestClassifyFlagsAboveThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(apiResponse{Results: []struct {
			Flagged        bool               `json:"flagged"`
			Categories     map[string]bool    `json:"categories"`
			CategoryScores map[string]float64 `json:"category_scores"`
		}{{
			CategoryScores: map[string]float64{"hate": 0.9, "violence": 0.1},
		}}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	cfg := settings.Layer2{Threshold: 0.8, CategoriesToCheck: []string{"hate", "violence"}}

	result, ok := c.Classify(context.Background(), cfg, "some text")
	if !ok {
		t.Fatal("Classify() ok = false, want true")
	}
	if !result.Flagged {
		t.Error("Flagged = false, want true (hate score 0.9 >= threshold 0.8)")
	}
	if !result.Categories[CategoryHate] {
		t.Error("Categories[hate] = false, want true")
	}
	if result.Categories[CategoryViolence] {
		t.Error("Categories[violence] = true, want false (below threshold)")
	}
}

func TestClassifyAlwaysFlagsSexualMinors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(apiResponse{Results: []struct {
			Flagged        bool               `json:"flagged"`
			Categories     map[string]bool    `json:"categories"`
			CategoryScores map[string]float64 `json:"category_scores"`
		}{{
			CategoryScores: map[string]float64{"sexual/minors": 0.01},
		}}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	cfg := settings.Layer2{Threshold: 0.8, CategoriesToCheck: []string{"hate"}}

	result, ok := c.Classify(context.Background(), cfg, "some text")
	if !ok {
		t.Fatal("Classify() ok = false, want true")
	}
	if !result.Categories[CategorySexualMinors] {
		t.Error("Categories[sexual/minors] = false, want true regardless of score or checked-category list")
	}
	if !result.Flagged {
		t.Error("Flagged = false, want true")
	}
}

func TestClassifyReturnsNotOKOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, ok := c.Classify(context.Background(), settings.Layer2{}, "some text")
	if ok {
		t.Error("Classify() ok = true, want false on 500 response")
	}
}

func TestClassifyReturnsNotOKOnMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, ok := c.Classify(context.Background(), settings.Layer2{}, "some text")
	if ok {
		t.Error("Classify() ok = true, want false on malformed body")
	}
}

func TestActionPrefersAlwaysRemoveMinorSexual(t *testing.T) {
	r := Result{Categories: map[Category]bool{CategorySexualMinors: true}, Flagged: true}
	cfg := settings.Layer2{AlwaysRemoveMinorSexual: true, Action: "FLAG"}

	action, overridden := r.Action(cfg)
	if action != "REMOVE" || !overridden {
		t.Errorf("Action() = (%q, %v), want (REMOVE, true)", action, overridden)
	}
}

func TestActionReturnsConfiguredActionWhenFlagged(t *testing.T) {
	r := Result{Categories: map[Category]bool{CategoryHate: true}, Flagged: true}
	cfg := settings.Layer2{Action: "FLAG"}

	action, overridden := r.Action(cfg)
	if action != "FLAG" || !overridden {
		t.Errorf("Action() = (%q, %v), want (FLAG, true)", action, overridden)
	}
}

func TestActionReturnsNothingWhenNotFlagged(t *testing.T) {
	r := Result{}
	_, overridden := r.Action(settings.Layer2{Action: "FLAG"})
	if overridden {
		t.Error("Action() overridden = true, want false when nothing flagged")
	}
}
