package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/modhaven/creations-bot/app/catalog"
	"github.com/modhaven/creations-bot/app/database"
	"github.com/modhaven/creations-bot/app/format"
	"github.com/modhaven/creations-bot/app/pipeline"
)

const (
	TargetReddit  = "reddit"
	TargetWebhook = "webhook"
)

// Orchestrator turns classified actions into delivery attempts. Targets are
// tried independently: a failure on one is recorded and never blocks the
// other. Every attempt, success or failure, lands in the ledger.
type Orchestrator struct {
	store   database.Ledger
	reddit  Submitter
	webhook *WebhookClient
	images  *ImageFetcher

	postTemplate    string
	webhookTemplate string
	wikiTemplate    string
	flairIDs        map[string]string
	imageWorkDir    string

	dryRun          bool
	manualOutputDir string
	maxPosts        int

	posted  int
	dryRuns int
}

type Options struct {
	Store   database.Ledger
	Reddit  Submitter
	Webhook *WebhookClient
	Images  *ImageFetcher

	PostTemplate    string
	WebhookTemplate string
	WikiTemplate    string
	// FlairIDs maps a product code to the flair applied to its posts.
	FlairIDs     map[string]string
	ImageWorkDir string

	DryRun          bool
	ManualOutputDir string
	// MaxPosts caps new-post deliveries per run; negative means unlimited.
	MaxPosts int
}

func NewOrchestrator(opts Options) *Orchestrator {
	return &Orchestrator{
		store:           opts.Store,
		reddit:          opts.Reddit,
		webhook:         opts.Webhook,
		images:          opts.Images,
		postTemplate:    opts.PostTemplate,
		webhookTemplate: opts.WebhookTemplate,
		wikiTemplate:    opts.WikiTemplate,
		flairIDs:        opts.FlairIDs,
		imageWorkDir:    opts.ImageWorkDir,
		dryRun:          opts.DryRun,
		manualOutputDir: opts.ManualOutputDir,
		maxPosts:        opts.MaxPosts,
	}
}

// Posted returns the number of deliveries (or manual bundles) this run.
func (o *Orchestrator) Posted() int { return o.posted }

// DryRunCount returns the number of posts previewed under dry run.
func (o *Orchestrator) DryRunCount() int { return o.dryRuns }

// Handle processes one classified action. Update actions are logged only:
// update delivery is deliberately disabled while only new posts are sent to
// remote targets. Delivery failures are recorded and absorbed; a ledger
// write failure is returned and aborts the run.
func (o *Orchestrator) Handle(ctx context.Context, action pipeline.Action, c catalog.Creation) error {
	if o.maxPosts >= 0 && o.posted >= o.maxPosts {
		return nil
	}
	if action == pipeline.ActionUpdate {
		slog.Info("Update classified, delivery disabled", "id", c.ID, "title", c.Title)
		return nil
	}

	title := format.BuildTitle(c, string(action), false)

	if o.dryRun {
		body, err := format.RenderBody(c, string(action), o.postTemplate)
		if err != nil {
			slog.Error("Dry-run render failed", "id", c.ID, "error", err)
			return nil
		}
		slog.Info("DRY RUN "+strings.ToUpper(string(action)), "title", title)
		slog.Debug(body)
		o.dryRuns++
		return nil
	}

	if o.manualOutputDir != "" {
		if err := o.writeManualBundle(ctx, c, string(action), title); err != nil {
			return fmt.Errorf("manual bundle for %s: %w", c.ID, err)
		}
		o.posted++
		return nil
	}

	o.posted++
	now := catalog.NowUTC()
	imagePaths := o.collectImages(ctx, c)

	if err := o.deliverReddit(ctx, c, string(action), title, imagePaths, now); err != nil {
		return err
	}
	return o.deliverWebhook(ctx, c, string(action), title, now)
}

func (o *Orchestrator) deliverReddit(ctx context.Context, c catalog.Creation,
	action, title string, imagePaths []string, now string) error {
	if o.reddit == nil {
		return nil
	}

	body, err := format.RenderBody(c, action, o.postTemplate)
	if err == nil {
		var id, postURL string
		id, postURL, err = o.reddit.Submit(ctx, Post{
			Title:      title,
			Body:       body,
			FlairID:    o.flairIDs[c.Product],
			ImagePaths: imagePaths,
		})
		if err == nil {
			if err := o.record(database.Attempt{
				CreationID: c.ID, PostID: id, PostType: action,
				Target: TargetReddit, Success: true, PostedAt: now,
				Title: title, URL: postURL,
			}); err != nil {
				return err
			}
			slog.Info("Posted", "action", action, "url", postURL)
			return nil
		}
	}

	slog.Error("Reddit post failed", "id", c.ID, "error", err)
	return o.record(database.Attempt{
		CreationID: c.ID, PostID: attemptID(), PostType: action,
		Target: TargetReddit, Success: false, ErrorMessage: err.Error(),
		PostedAt: now, Title: title,
	})
}

func (o *Orchestrator) deliverWebhook(ctx context.Context, c catalog.Creation,
	action, title string, now string) error {
	if o.webhook == nil {
		return nil
	}

	body, err := format.RenderBody(c, action, o.webhookTemplate)
	if err == nil {
		if err = o.webhook.Send(ctx, body); err == nil {
			if err := o.record(database.Attempt{
				CreationID: c.ID, PostID: attemptID(), PostType: action,
				Target: TargetWebhook, Success: true, PostedAt: now,
				Title: title,
			}); err != nil {
				return err
			}
			slog.Info("Posted to webhook", "id", c.ID)
			return nil
		}
	}

	slog.Error("Webhook post failed", "id", c.ID, "error", err)
	return o.record(database.Attempt{
		CreationID: c.ID, PostID: attemptID(), PostType: action,
		Target: TargetWebhook, Success: false, ErrorMessage: err.Error(),
		PostedAt: now, Title: title,
	})
}

// record writes an attempt row. A ledger write failure here means a post may
// exist remotely with no trace locally, so it aborts the run.
func (o *Orchestrator) record(a database.Attempt) error {
	if err := o.store.RecordDelivery(a); err != nil {
		return fmt.Errorf("failed to record delivery attempt for %s: %w", a.CreationID, err)
	}
	return nil
}

// collectImages downloads the preview and gallery images for attachment and
// manual bundles. Individual failures are logged and skipped.
func (o *Orchestrator) collectImages(ctx context.Context, c catalog.Creation) []string {
	if o.images == nil || o.imageWorkDir == "" {
		return nil
	}

	dir := filepath.Join(o.imageWorkDir, safeFileName(c.ID))
	var paths []string

	if c.PreviewImageURL != "" {
		dest := filepath.Join(dir, "preview.jpg")
		if err := o.images.Download(ctx, c.PreviewImageURL, dest, true); err != nil {
			slog.Warn("Preview image download failed", "id", c.ID, "error", err)
		} else {
			paths = append(paths, dest)
		}
	}

	for i, url := range format.ImageURLs(c) {
		dest := filepath.Join(dir, fmt.Sprintf("image_%02d.jpg", i+1))
		if err := o.images.Download(ctx, url, dest, true); err != nil {
			slog.Warn("Gallery image download failed", "id", c.ID, "error", err)
			continue
		}
		paths = append(paths, dest)
	}

	return paths
}

// writeManualBundle writes the rendered reddit/discord/wiki posts (plus
// reddit imagery) to the manual output directory instead of delivering.
func (o *Orchestrator) writeManualBundle(ctx context.Context, c catalog.Creation,
	action, title string) error {
	redditBody, err := format.RenderBody(c, action, o.postTemplate)
	if err != nil {
		return err
	}
	webhookBody, err := format.RenderBody(c, action, o.webhookTemplate)
	if err != nil {
		return err
	}
	wikiBody, err := format.RenderBody(c, action, o.wikiTemplate)
	if err != nil {
		return err
	}

	datePrefix := "unknown"
	if len(c.FirstPublishedAt) >= 10 {
		datePrefix = c.FirstPublishedAt[:10]
	}
	author := c.AuthorDisplayName
	if author == "" {
		author = "Unknown"
	}
	baseName := safeFileName(fmt.Sprintf("%s_%s_%s", datePrefix, author, c.Title))

	redditDir := filepath.Join(o.manualOutputDir, "reddit", baseName)
	if err := os.MkdirAll(redditDir, 0o755); err != nil {
		return fmt.Errorf("failed to create reddit output dir: %w", err)
	}
	redditPath := filepath.Join(redditDir, baseName+".md")
	content := fmt.Sprintf("# %s\n\n%s\n", title, redditBody)
	if err := os.WriteFile(redditPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write reddit post: %w", err)
	}
	slog.Info("Wrote manual post", "path", redditPath)

	if o.images != nil {
		if c.PreviewImageURL != "" {
			dest := filepath.Join(redditDir, "image_00_preview.jpg")
			if err := o.images.Download(ctx, c.PreviewImageURL, dest, true); err != nil {
				slog.Warn("Preview image download failed", "id", c.ID, "error", err)
			}
		}
		for i, url := range format.ImageURLs(c) {
			dest := filepath.Join(redditDir, fmt.Sprintf("image_%02d.jpg", i+1))
			if err := o.images.Download(ctx, url, dest, true); err != nil {
				slog.Warn("Gallery image download failed", "id", c.ID, "error", err)
			}
		}
	}

	discordDir := filepath.Join(o.manualOutputDir, "discord")
	if err := os.MkdirAll(discordDir, 0o755); err != nil {
		return fmt.Errorf("failed to create discord output dir: %w", err)
	}
	discordPath := filepath.Join(discordDir, baseName+".md")
	if err := os.WriteFile(discordPath, []byte(webhookBody+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write discord post: %w", err)
	}
	slog.Info("Wrote manual post", "path", discordPath)

	wikiDir := filepath.Join(o.manualOutputDir, "wiki")
	if err := os.MkdirAll(wikiDir, 0o755); err != nil {
		return fmt.Errorf("failed to create wiki output dir: %w", err)
	}
	wikiPath := filepath.Join(wikiDir, baseName+".txt")
	if err := os.WriteFile(wikiPath, []byte(wikiBody+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write wiki post: %w", err)
	}
	slog.Info("Wrote manual post", "path", wikiPath)

	return nil
}

// attemptID generates the opaque client-side id recorded when no
// target-assigned id exists.
func attemptID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func safeFileName(value string) string {
	var out strings.Builder
	for _, ch := range value {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z',
			ch >= '0' && ch <= '9', ch == '-', ch == '_':
			out.WriteRune(ch)
		default:
			out.WriteByte('_')
		}
	}
	return strings.Trim(out.String(), "_")
}
