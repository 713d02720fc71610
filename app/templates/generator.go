package templates

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/modhaven/creations-bot/app/catalog"
	"github.com/modhaven/creations-bot/app/database"
	"github.com/modhaven/creations-bot/app/format"
	"github.com/modhaven/creations-bot/app/pipeline"
	"github.com/modhaven/creations-bot/app/publish"
)

const generateWorkers = 8

// Generator renders post bodies for eligible catalog entries without
// touching the ledger or any delivery target. Used for bulk backfills and
// for sample files when iterating on templates.
type Generator struct {
	fetcher pipeline.Fetcher
	policy  pipeline.Policy
	images  *publish.ImageFetcher

	postTemplate    string
	webhookTemplate string
	wikiTemplate    string

	page   catalog.PageRequest
	cutoff string
}

type Options struct {
	Fetcher pipeline.Fetcher
	Policy  pipeline.Policy
	Images  *publish.ImageFetcher

	PostTemplate    string
	WebhookTemplate string
	WikiTemplate    string

	Page catalog.PageRequest
	// Cutoff bounds the walk; empty falls back to the product hard stop.
	Cutoff string
}

func NewGenerator(opts Options) *Generator {
	return &Generator{
		fetcher:         opts.Fetcher,
		policy:          opts.Policy,
		images:          opts.Images,
		postTemplate:    opts.PostTemplate,
		webhookTemplate: opts.WebhookTemplate,
		wikiTemplate:    opts.WikiTemplate,
		page:            opts.Page,
		cutoff:          opts.Cutoff,
	}
}

// GeneratedPost is one rendered bundle, reported back for summary output.
type GeneratedPost struct {
	CreationID  string
	Title       string
	PublishedAt string
	RedditPath  string
}

// Generate walks the catalog down to the cutoff and writes reddit, discord
// and wiki renderings for every eligible creation under outputDir. Bundles
// are written concurrently; the returned posts are sorted oldest first.
func (g *Generator) Generate(ctx context.Context, outputDir string) ([]GeneratedPost, error) {
	eligible, err := g.collect(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("Generating post bundles", "count", len(eligible))

	var mu sync.Mutex
	var posts []GeneratedPost

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(generateWorkers)
	for _, c := range eligible {
		grp.Go(func() error {
			post, err := g.writeBundle(grpCtx, c, outputDir)
			if err != nil {
				return err
			}
			mu.Lock()
			posts = append(posts, post)
			mu.Unlock()
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(posts, func(i, j int) bool {
		return posts[i].PublishedAt < posts[j].PublishedAt
	})
	return posts, nil
}

// GenerateSample renders up to maxPages of current entries into two
// concatenated sample files, one per body template, for eyeballing template
// changes against live data.
func (g *Generator) GenerateSample(ctx context.Context, outputDir string, maxPages int) error {
	if maxPages < 1 {
		maxPages = 1
	}
	if maxPages > 10 {
		maxPages = 10
	}

	var eligible []catalog.Creation
	page := g.page
	if page.Page < 1 {
		page.Page = 1
	}
	for i := 0; i < maxPages; i++ {
		creations, err := g.fetcher.FetchPage(ctx, page)
		if err != nil {
			return fmt.Errorf("failed to fetch page %d: %w", page.Page, err)
		}
		if len(creations) == 0 {
			break
		}
		for _, c := range creations {
			if c.ID != "" && pipeline.IsNewCreation(c, g.policy) {
				eligible = append(eligible, c)
			}
		}
		page.Page++
	}
	if len(eligible) == 0 {
		return fmt.Errorf("no eligible creations found for sample output")
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create sample output dir: %w", err)
	}
	samples := []struct {
		template string
		path     string
	}{
		{g.postTemplate, filepath.Join(outputDir, "sample_reddit.md")},
		{g.webhookTemplate, filepath.Join(outputDir, "sample_discord.md")},
	}
	for _, s := range samples {
		var sections []string
		for _, c := range eligible {
			body, err := format.RenderBody(c, "new", s.template)
			if err != nil {
				return err
			}
			title := format.BuildTitle(c, "new", false)
			sections = append(sections, fmt.Sprintf("# %s\n\n%s", title, body))
		}
		content := strings.Join(sections, "\n\n---\n\n") + "\n"
		if err := os.WriteFile(s.path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write sample file: %w", err)
		}
		slog.Info("Wrote sample file", "path", s.path, "entries", len(eligible))
	}
	return nil
}

// collect reuses the walker against a null ledger so the page walk, cutoff
// handling and eligibility checks stay in one place. The walker still
// renders the item that triggered the stop; backfills exclude it, so items
// at or before the cutoff are filtered out here.
func (g *Generator) collect(ctx context.Context) ([]catalog.Creation, error) {
	walker := pipeline.NewWalker(g.fetcher, database.NewNullStore(), g.policy, g.page, g.cutoff)
	items, _, err := walker.Sync(ctx, pipeline.SyncOptions{
		Flags:        pipeline.Flags{PostNew: true},
		DryRun:       true,
		EmitEligible: true,
	})
	if err != nil {
		return nil, err
	}

	cutoff := catalog.LaterOf(g.cutoff, g.policy.HardStop(g.page.Product))
	creations := make([]catalog.Creation, 0, len(items))
	for _, item := range items {
		if !afterCutoff(item.Creation, cutoff) {
			slog.Debug("Skipping creation at or before cutoff",
				"id", item.Creation.ID, "first_published", publishInstant(item.Creation))
			continue
		}
		creations = append(creations, item.Creation)
	}
	return creations, nil
}

// afterCutoff is permissive: unparseable instants never exclude an item.
func afterCutoff(c catalog.Creation, cutoff string) bool {
	published, ok := catalog.ParseTime(publishInstant(c))
	cutoffTime, cutoffOK := catalog.ParseTime(cutoff)
	if !ok || !cutoffOK {
		return true
	}
	return published.After(cutoffTime)
}

func (g *Generator) writeBundle(ctx context.Context, c catalog.Creation, outputDir string) (GeneratedPost, error) {
	title := format.BuildTitle(c, "new", false)
	redditBody, err := format.RenderBody(c, "new", g.postTemplate)
	if err != nil {
		return GeneratedPost{}, err
	}
	webhookBody, err := format.RenderBody(c, "new", g.webhookTemplate)
	if err != nil {
		return GeneratedPost{}, err
	}
	wikiBody, err := format.RenderBody(c, "new", g.wikiTemplate)
	if err != nil {
		return GeneratedPost{}, err
	}

	baseName := bundleName(c)

	redditDir := filepath.Join(outputDir, "reddit", baseName)
	if err := os.MkdirAll(redditDir, 0o755); err != nil {
		return GeneratedPost{}, fmt.Errorf("failed to create reddit output dir: %w", err)
	}
	redditPath := filepath.Join(redditDir, baseName+".md")
	content := fmt.Sprintf("# %s\n\n%s\n", title, redditBody)
	if err := os.WriteFile(redditPath, []byte(content), 0o644); err != nil {
		return GeneratedPost{}, fmt.Errorf("failed to write reddit post: %w", err)
	}
	g.downloadImages(ctx, c, redditDir)

	discordDir := filepath.Join(outputDir, "discord")
	if err := os.MkdirAll(discordDir, 0o755); err != nil {
		return GeneratedPost{}, fmt.Errorf("failed to create discord output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(discordDir, baseName+".md"),
		[]byte(webhookBody+"\n"), 0o644); err != nil {
		return GeneratedPost{}, fmt.Errorf("failed to write discord post: %w", err)
	}

	wikiDir := filepath.Join(outputDir, "wiki")
	if err := os.MkdirAll(wikiDir, 0o755); err != nil {
		return GeneratedPost{}, fmt.Errorf("failed to create wiki output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(wikiDir, baseName+".txt"),
		[]byte(wikiBody+"\n"), 0o644); err != nil {
		return GeneratedPost{}, fmt.Errorf("failed to write wiki post: %w", err)
	}

	slog.Info("Generated post bundle", "id", c.ID, "title", c.Title)
	return GeneratedPost{
		CreationID:  c.ID,
		Title:       title,
		PublishedAt: publishInstant(c),
		RedditPath:  redditPath,
	}, nil
}

func (g *Generator) downloadImages(ctx context.Context, c catalog.Creation, dir string) {
	if g.images == nil {
		return
	}
	if c.PreviewImageURL != "" {
		dest := filepath.Join(dir, "image_00_preview.jpg")
		if err := g.images.Download(ctx, c.PreviewImageURL, dest, true); err != nil {
			slog.Warn("Preview image download failed", "id", c.ID, "error", err)
		}
	}
	for i, url := range format.ImageURLs(c) {
		dest := filepath.Join(dir, fmt.Sprintf("image_%02d.jpg", i+1))
		if err := g.images.Download(ctx, url, dest, true); err != nil {
			slog.Warn("Gallery image download failed", "id", c.ID, "error", err)
		}
	}
}

func bundleName(c catalog.Creation) string {
	datePrefix := "unknown"
	if len(c.FirstPublishedAt) >= 10 {
		datePrefix = c.FirstPublishedAt[:10]
	}
	author := c.AuthorDisplayName
	if author == "" {
		author = "Unknown"
	}
	name := fmt.Sprintf("%s_%s_%s", datePrefix, author, c.Title)

	var out strings.Builder
	for _, ch := range name {
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

func publishInstant(c catalog.Creation) string {
	if c.FirstPublishedAt != "" {
		return c.FirstPublishedAt
	}
	return c.PublishedAt
}
