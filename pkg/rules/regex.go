package rules

import (
	"fmt"
	"regexp"
	"strings"
)

const maxPatternLen = 200
const regexCacheCapacity = 100

// pathologicalPatterns denylists the classic catastrophic-backtracking
// shapes. Go's RE2 engine can't actually backtrack, but rule sets are
// authored against the same pattern library as other moderation tooling,
// so the denylist is kept as a defense-in-depth authoring guard rather
// than a backtracking-performance concern.
var pathologicalPatterns = []string{
	`(.*)+`,
	`(.+)+`,
	`(\d+)+`,
	`(\w+)+`,
	`(\s*)+`,
}

// regexCache compiles patterns from configured rules at most once each, up
// to regexCacheCapacity entries, evicting least-recently-used.
type regexCache struct {
	cache *lruCache
}

func newRegexCache() *regexCache {
	return &regexCache{cache: newLRUCache(regexCacheCapacity)}
}

func (c *regexCache) Compile(pattern string) (*regexp.Regexp, error) {
	if err := validatePattern(pattern); err != nil {
		return nil, err
	}

	if cached, ok := c.cache.Get(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern: %w", err)
	}

	c.cache.Put(pattern, re)
	return re, nil
}

func validatePattern(pattern string) error {
	if len(pattern) > maxPatternLen {
		return fmt.Errorf("pattern exceeds max length of %d characters", maxPatternLen)
	}
	for _, bad := range pathologicalPatterns {
		if strings.Contains(pattern, bad) {
			return fmt.Errorf("pattern contains disallowed construct %q", bad)
		}
	}
	return nil
}
