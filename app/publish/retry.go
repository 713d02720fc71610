package publish

import (
	"context"
	"log/slog"

	"github.com/modhaven/creations-bot/app/catalog"
	"github.com/modhaven/creations-bot/app/format"
)

// RetryFailed re-attempts deliveries whose latest attempt for a target
// failed, plus webhook deliveries never attempted for a creation already
// posted elsewhere. Each retry appends a fresh attempt row; prior rows are
// never rewritten.
func (o *Orchestrator) RetryFailed(ctx context.Context) error {
	if err := o.retryReddit(ctx); err != nil {
		return err
	}
	return o.retryWebhook(ctx)
}

func (o *Orchestrator) retryReddit(ctx context.Context) error {
	if o.reddit == nil {
		return nil
	}

	pending, err := o.store.FailedDeliveries(TargetReddit)
	if err != nil {
		return err
	}
	slog.Info("Retrying failed reddit deliveries", "count", len(pending))

	for _, p := range pending {
		c, err := o.store.GetCreation(p.CreationID)
		if err != nil {
			return err
		}
		if c == nil {
			slog.Warn("Creation missing from ledger, skipping retry", "id", p.CreationID)
			continue
		}

		title := format.BuildTitle(*c, p.PostType, false)
		if o.dryRun {
			slog.Info("DRY RUN retry", "target", TargetReddit, "title", title)
			continue
		}

		now := catalog.NowUTC()
		imagePaths := o.collectImages(ctx, *c)
		if err := o.deliverReddit(ctx, *c, p.PostType, title, imagePaths, now); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) retryWebhook(ctx context.Context) error {
	if o.webhook == nil {
		return nil
	}

	pending, err := o.store.FailedDeliveries(TargetWebhook)
	if err != nil {
		return err
	}
	missing, err := o.store.MissingWebhookDeliveries()
	if err != nil {
		return err
	}
	pending = append(pending, missing...)
	slog.Info("Retrying webhook deliveries", "count", len(pending))

	for _, p := range pending {
		c, err := o.store.GetCreation(p.CreationID)
		if err != nil {
			return err
		}
		if c == nil {
			slog.Warn("Creation missing from ledger, skipping retry", "id", p.CreationID)
			continue
		}

		if o.dryRun {
			slog.Info("DRY RUN retry", "target", TargetWebhook, "title", c.Title)
			continue
		}

		if err := o.deliverWebhook(ctx, *c, p.PostType, c.Title, catalog.NowUTC()); err != nil {
			return err
		}
	}
	return nil
}
