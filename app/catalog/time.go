package catalog

import (
	"encoding/json"
	"strconv"
	"time"
)

// NowUTC returns the current instant formatted the way all ledger and
// creation timestamps are stored.
func NowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// FromEpoch converts an epoch-seconds value of whatever numeric shape the
// decoder produced into an RFC 3339 UTC instant. Missing or malformed input
// yields the empty string.
func FromEpoch(value any) string {
	var seconds int64
	switch v := value.(type) {
	case nil:
		return ""
	case float64:
		seconds = int64(v)
	case int64:
		seconds = v
	case int:
		seconds = int64(v)
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return ""
		}
		seconds = parsed
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return ""
		}
		seconds = parsed
	default:
		return ""
	}
	if seconds <= 0 {
		return ""
	}
	return time.Unix(seconds, 0).UTC().Format(time.RFC3339)
}

// ParseTime parses a stored instant. The second return reports whether the
// value was present and well formed; callers treat false as "unknown" and
// decide permissively.
func ParseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// LaterOf returns whichever of two instants is later, preferring a parseable
// value over an unparseable one.
func LaterOf(left, right string) string {
	leftTime, leftOK := ParseTime(left)
	rightTime, rightOK := ParseTime(right)
	if leftOK && rightOK {
		if !leftTime.Before(rightTime) {
			return left
		}
		return right
	}
	if left != "" {
		return left
	}
	return right
}
