package pipeline

import (
	"time"

	"github.com/modhaven/creations-bot/app/catalog"
	"github.com/modhaven/creations-bot/app/database"
)

// Action is the classified outcome for one incoming creation.
type Action string

const (
	ActionNone   Action = ""
	ActionNew    Action = "new"
	ActionUpdate Action = "update"
)

// Flags enables or disables each action kind for a run.
type Flags struct {
	PostNew     bool
	PostUpdates bool
}

// Classify decides what, if anything, an incoming creation calls for, given
// its persisted record (nil when never seen). Deterministic for fixed
// inputs: no clock, no I/O.
func Classify(existing *database.Record, c catalog.Creation, hash string, flags Flags, policy Policy) Action {
	if existing == nil {
		if flags.PostNew && IsNewCreation(c, policy) {
			return ActionNew
		}
		return ActionNone
	}

	if flags.PostUpdates && updateDue(existing, c, hash) {
		return ActionUpdate
	}

	return ActionNone
}

// updateDue compares the creation's best-known publish instant against the
// record's last update-post instant (falling back to the last new-post
// instant). When both parse, strictly newer wins; when only the creation's
// side parses, the update is due; when neither parses, the content hash
// decides.
func updateDue(existing *database.Record, c catalog.Creation, hash string) bool {
	changed := existing.LastKnownHash == "" || existing.LastKnownHash != hash

	updatedAt, updatedOK := firstParseable(c.PublishedAt, c.UpdatedAt)
	lastPosted, lastPostedOK := firstParseable(
		existing.LastUpdatePostedAt, existing.LastPostedAt)

	if updatedOK && lastPostedOK {
		return updatedAt.After(lastPosted)
	}
	if updatedOK {
		return true
	}
	return changed
}

// bestPublishInstant is the instant eligibility and cutoff decisions key
// off: first-published when known, else published.
func bestPublishInstant(c catalog.Creation) (time.Time, bool) {
	return firstParseable(c.FirstPublishedAt, c.PublishedAt)
}

func firstParseable(values ...string) (time.Time, bool) {
	for _, value := range values {
		if t, ok := catalog.ParseTime(value); ok {
			return t, true
		}
	}
	return time.Time{}, false
}
