package pipeline

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/modhaven/creations-bot/app/catalog"
)

// StudioAccount is the first-party studio display name. Studio content gets
// the zero-price bypass and its own ignore-before cutoff.
const StudioAccount = "bethesdagamestudios"

// Policy carries the content-only eligibility cutoffs. It holds no run
// state; IsNewCreation is a pure function of (creation, policy).
type Policy struct {
	// HardStops maps a product code to the earliest instant a creation may
	// have been first published and still count as new.
	HardStops map[string]string
	// StudioIgnoreBefore suppresses studio-authored creations first
	// published before this instant.
	StudioIgnoreBefore string
}

// HardStop returns the configured hard stop for a product, or "" for
// products without one.
func (p Policy) HardStop(product string) string {
	return p.HardStops[product]
}

// IsNewCreation reports whether a creation counts as a postable new
// creation, independent of any persisted history. Rules short-circuit in
// order; timestamp checks pass permissively when either instant is
// unparseable.
func IsNewCreation(c catalog.Creation, policy Policy) bool {
	author := c.AuthorDisplayName
	if author == "" {
		author = "Unknown"
	}

	if !passesHardStop(c, policy) {
		slog.Debug("Skip creation: before hard stop", "id", c.ID, "author", author)
		return false
	}
	if !passesStudioIgnore(c, policy) {
		slog.Debug("Skip creation: studio ignore cutoff", "id", c.ID, "author", author)
		return false
	}
	if !c.AuthorVerified {
		slog.Debug("Skip creation: author not verified", "id", c.ID, "author", author)
		return false
	}
	if len(c.Prices) == 0 {
		if !isStudioAuthor(c) {
			slog.Debug("Skip creation: missing prices", "id", c.ID, "author", author)
			return false
		}
		slog.Debug("Allow creation: studio zero price", "id", c.ID, "author", author)
		return true
	}
	if !hasPaidPrice(c.Prices) {
		if !isStudioAuthor(c) {
			slog.Debug("Skip creation: no paid price", "id", c.ID, "author", author)
			return false
		}
		slog.Debug("Allow creation: studio zero price", "id", c.ID, "author", author)
		return true
	}
	return true
}

func isStudioAuthor(c catalog.Creation) bool {
	return strings.EqualFold(c.AuthorDisplayName, StudioAccount)
}

// hasPaidPrice reports whether any price entry carries a positive numeric
// amount. Non-numeric or missing amounts are skipped, not fatal.
func hasPaidPrice(prices []map[string]any) bool {
	for _, price := range prices {
		amount, ok := priceAmount(price["amount"])
		if ok && amount > 0 {
			return true
		}
	}
	return false
}

func priceAmount(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func passesHardStop(c catalog.Creation, policy Policy) bool {
	stop := policy.HardStop(c.Product)
	if stop == "" {
		return true
	}
	cutoff, cutoffOK := catalog.ParseTime(stop)
	published, publishedOK := bestPublishInstant(c)
	if !cutoffOK || !publishedOK {
		return true
	}
	return !published.Before(cutoff)
}

func passesStudioIgnore(c catalog.Creation, policy Policy) bool {
	if !isStudioAuthor(c) {
		return true
	}
	cutoff, cutoffOK := catalog.ParseTime(policy.StudioIgnoreBefore)
	published, publishedOK := bestPublishInstant(c)
	if !cutoffOK || !publishedOK {
		return true
	}
	return !published.Before(cutoff)
}
