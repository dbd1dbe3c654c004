// Package topic implements dot-segmented topic pattern matching for the
// broadcast layer. A pattern segment is either a literal or the wildcard
// "*"; a trailing "*" additionally matches zero or more remaining segments.
package topic

import (
	"errors"
	"fmt"
	"strings"
)

// Wildcard is the single-segment wildcard.
const Wildcard = "*"

// ErrMalformedPattern is returned by Validate for patterns with empty
// segments (leading/trailing dots, "a..b", or the empty string).
var ErrMalformedPattern = errors.New("topic: malformed pattern")

// Match reports whether pattern matches the concrete topic.
//
//   - "user.login" matches only "user.login"
//   - "user.*" matches "user.login" and (trailing wildcard) "user.a.b"
//   - "*.created" matches "todo.created" but not "todo.updated"
//   - "*" matches every non-empty topic
//   - "" matches only ""
//
// Matching is case-sensitive and "*" cannot be escaped.
func Match(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	if pattern == "" || topic == "" {
		return false
	}

	ps := strings.Split(pattern, ".")
	ts := strings.Split(topic, ".")

	for i, seg := range ps {
		last := i == len(ps)-1
		if seg == Wildcard && last {
			// Trailing wildcard consumes the rest, including nothing.
			return true
		}
		if i >= len(ts) {
			return false
		}
		if seg != Wildcard && seg != ts[i] {
			return false
		}
	}
	return len(ps) == len(ts)
}

// MatchAny reports whether any of the patterns matches topic.
func MatchAny(patterns []string, topic string) bool {
	for _, p := range patterns {
		if Match(p, topic) {
			return true
		}
	}
	return false
}

// Validate rejects patterns that would corrupt matching. It is called at
// subscribe time; Match itself is total and never errors.
func Validate(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty pattern", ErrMalformedPattern)
	}
	for _, seg := range strings.Split(pattern, ".") {
		if seg == "" {
			return fmt.Errorf("%w: empty segment in %q", ErrMalformedPattern, pattern)
		}
	}
	return nil
}
