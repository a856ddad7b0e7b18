package trust

import (
	"testing"

	"github.com/cdmackie/automod-core/pkg/profile"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name          string
		profile       profile.UserProfile
		approvedCount int
		want          int
	}{
		{
			name:          "brand new unverified account",
			profile:       profile.UserProfile{AccountAgeDays: 1, TotalKarma: 0, EmailVerified: false},
			approvedCount: 0,
			want:          0,
		},
		{
			name:          "established verified account with approvals",
			profile:       profile.UserProfile{AccountAgeDays: 400, TotalKarma: 6000, EmailVerified: true},
			approvedCount: 10,
			want:          100, // 40 + 30 + 15 + 15, clamped at 100
		},
		{
			name:          "one month old, modest karma",
			profile:       profile.UserProfile{AccountAgeDays: 30, TotalKarma: 150, EmailVerified: false},
			approvedCount: 1,
			want:          35, // 20 + 10 + 0 + 5
		},
		{
			name:          "never negative",
			profile:       profile.UserProfile{AccountAgeDays: 0, TotalKarma: 0, EmailVerified: false},
			approvedCount: 0,
			want:          0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.profile, tt.approvedCount)
			if got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsTrusted(t *testing.T) {
	tests := []struct {
		score int
		want  bool
	}{
		{69, false},
		{70, true},
		{100, true},
		{0, false},
	}

	for _, tt := range tests {
		if got := IsTrusted(tt.score); got != tt.want {
			t.Errorf("IsTrusted(%d) = %v, want %v", tt.score, got, tt.want)
		}
	}
}
