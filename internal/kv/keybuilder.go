package kv

import "strings"

// KeyBuilder emits every KV key in the required
// v{codeVersion}:{settingsVersion}:{user|global}:{...parts} shape, so a
// code rollout or a settings rewrite invalidates the affected scope
// atomically, without any delete pass over existing keys.
type KeyBuilder struct {
	codeVersion     string
	settingsVersion string
}

// NewKeyBuilder returns a builder for the given code and settings versions.
// settingsVersion is read once per event from the settings reader, so a
// single event sees a consistent key namespace even if settings change
// mid-flight.
func NewKeyBuilder(codeVersion, settingsVersion string) *KeyBuilder {
	return &KeyBuilder{codeVersion: codeVersion, settingsVersion: settingsVersion}
}

func (b *KeyBuilder) prefix() string {
	return "v" + b.codeVersion + ":" + b.settingsVersion + ":"
}

// User builds a key scoped to a single user.
func (b *KeyBuilder) User(userID string, parts ...string) string {
	return b.prefix() + "user:" + userID + ":" + strings.Join(parts, ":")
}

// Global builds a key not scoped to any single user.
func (b *KeyBuilder) Global(parts ...string) string {
	return b.prefix() + "global:" + strings.Join(parts, ":")
}

// trackedUsersKey is the set of userIDs that have a tracked cache entry
// under the given subreddit, used to bulk-invalidate without a KV scan.
func (b *KeyBuilder) trackedUsersKey(subreddit string) string {
	return b.Global("tracked-users", subreddit)
}

// trackedCostUsersKey is the set of userIDs with tracked cost-ledger
// entries under the given subreddit.
func (b *KeyBuilder) trackedCostUsersKey(subreddit string) string {
	return b.Global("tracked-cost-users", subreddit)
}
