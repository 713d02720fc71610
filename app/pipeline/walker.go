package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modhaven/creations-bot/app/catalog"
	"github.com/modhaven/creations-bot/app/database"
)

// Fetcher is the paged catalog source the walker drives. Pages come back
// newest-first by the configured sort field.
type Fetcher interface {
	FetchPage(ctx context.Context, page catalog.PageRequest) ([]catalog.Creation, error)
}

// Walker drives the paginated catalog walk: fetch pages in order, classify
// and upsert every item, track the running high-water mark, and stop at the
// effective cutoff.
type Walker struct {
	client Fetcher
	store  database.Ledger
	policy Policy

	page catalog.PageRequest
	// SyntheticCutoff overrides the persisted high-water mark when set;
	// dry runs never read the persisted mark at all.
	syntheticCutoff string
}

func NewWalker(client Fetcher, store database.Ledger, policy Policy,
	page catalog.PageRequest, syntheticCutoff string) *Walker {
	if page.Page < 1 {
		page.Page = 1
	}
	return &Walker{
		client:          client,
		store:           store,
		policy:          policy,
		page:            page,
		syntheticCutoff: syntheticCutoff,
	}
}

// SyncOptions controls one walk.
type SyncOptions struct {
	Flags        Flags
	DryRun       bool
	EmitEligible bool
	// Handler receives each qualifying (action, creation) pair as it is
	// found. When nil, pairs are collected and returned instead. A handler
	// error aborts the walk.
	Handler func(Action, catalog.Creation) error
}

// ActionItem is one qualifying classification from a walk.
type ActionItem struct {
	Action   Action
	Creation catalog.Creation
}

// Sync walks pages until a page is empty or an item falls at or before the
// effective cutoff. The stop decision is per-item: the rest of the
// triggering page is still processed, but no further pages are fetched.
// Every well-formed item seen is upserted, acted on or not. Returns the
// collected actions (empty when a handler was given) and the total number
// of items seen.
func (w *Walker) Sync(ctx context.Context, opts SyncOptions) ([]ActionItem, int, error) {
	cutoff, err := w.resolveCutoff(opts.DryRun)
	if err != nil {
		return nil, 0, err
	}
	effectiveCutoff := catalog.LaterOf(cutoff, w.policy.HardStop(w.page.Product))
	slog.Info("Effective first-published cutoff",
		"product", w.page.Product, "cutoff", orNone(effectiveCutoff))

	page := w.page
	totalSeen := 0
	maxFirstPtime := ""
	now := catalog.NowUTC()
	var actions []ActionItem

	for {
		creations, err := w.client.FetchPage(ctx, page)
		if err != nil {
			return nil, totalSeen, fmt.Errorf("failed to fetch page %d: %w", page.Page, err)
		}
		slog.Info("Fetched creations", "count", len(creations), "page", page.Page)
		totalSeen += len(creations)

		stop := false
		pageOldestFirstPtime := ""

		for _, c := range creations {
			if c.ID == "" {
				slog.Warn("Skipping creation with missing content id")
				continue
			}
			if effectiveCutoff != "" && atOrBeforeCutoff(c, effectiveCutoff) {
				slog.Info("Stopping at creation past cutoff",
					"id", c.ID,
					"first_published", firstOrPublished(c),
					"cutoff", effectiveCutoff)
				stop = true
			}

			hash := catalog.ComputeHash(c)
			existing, err := w.store.GetRecord(c.ID)
			if err != nil {
				return nil, totalSeen, err
			}
			action := Classify(existing, c, hash, opts.Flags, w.policy)
			eligible := IsNewCreation(c, w.policy)
			slog.Debug("Classified creation",
				"id", c.ID, "action", string(action), "eligible", eligible)

			if err := w.store.UpsertCreation(c, now, hash); err != nil {
				return nil, totalSeen, err
			}

			switch {
			case action != ActionNone:
				actions, err = w.emit(opts, actions, action, c)
			case opts.EmitEligible && eligible:
				actions, err = w.emit(opts, actions, ActionNew, c)
			}
			if err != nil {
				return actions, totalSeen, err
			}

			if c.FirstPublishedAt != "" {
				if maxFirstPtime == "" || c.FirstPublishedAt > maxFirstPtime {
					maxFirstPtime = c.FirstPublishedAt
				}
				if pageOldestFirstPtime == "" || c.FirstPublishedAt < pageOldestFirstPtime {
					pageOldestFirstPtime = c.FirstPublishedAt
				}
			}
		}

		if pageOldestFirstPtime != "" {
			slog.Info("Page oldest first-published instant",
				"page", page.Page, "first_published", pageOldestFirstPtime)
		}

		if stop || len(creations) == 0 {
			break
		}
		page.Page++
	}

	if maxFirstPtime != "" && !opts.DryRun {
		key := metaKeyFirstPtime(w.page.Product)
		if err := w.store.SetMeta(key, maxFirstPtime); err != nil {
			return actions, totalSeen, err
		}
		slog.Info("Updated high-water mark", "key", key, "value", maxFirstPtime)
	}

	return actions, totalSeen, nil
}

func (w *Walker) emit(opts SyncOptions, actions []ActionItem, action Action, c catalog.Creation) ([]ActionItem, error) {
	if opts.Handler != nil {
		return actions, opts.Handler(action, c)
	}
	return append(actions, ActionItem{Action: action, Creation: c}), nil
}

func (w *Walker) resolveCutoff(dryRun bool) (string, error) {
	if w.syntheticCutoff != "" || dryRun {
		return w.syntheticCutoff, nil
	}
	return w.store.GetMeta(metaKeyFirstPtime(w.page.Product))
}

// atOrBeforeCutoff reports whether a creation's first-published instant
// (falling back to published) sits at or before the cutoff. Unparseable
// instants never trigger the stop condition.
func atOrBeforeCutoff(c catalog.Creation, cutoff string) bool {
	published, publishedOK := bestPublishInstant(c)
	cutoffTime, cutoffOK := catalog.ParseTime(cutoff)
	if !publishedOK || !cutoffOK {
		return false
	}
	return !published.After(cutoffTime)
}

func metaKeyFirstPtime(product string) string {
	return "last_seen_first_ptime:" + product
}

func firstOrPublished(c catalog.Creation) string {
	if c.FirstPublishedAt != "" {
		return c.FirstPublishedAt
	}
	return c.PublishedAt
}

func orNone(value string) string {
	if value == "" {
		return "none"
	}
	return value
}
