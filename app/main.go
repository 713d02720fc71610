package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/modhaven/creations-bot/app/auth"
	"github.com/modhaven/creations-bot/app/catalog"
	"github.com/modhaven/creations-bot/app/cfg"
	"github.com/modhaven/creations-bot/app/database"
	"github.com/modhaven/creations-bot/app/pipeline"
	"github.com/modhaven/creations-bot/app/publish"
	"github.com/modhaven/creations-bot/app/templates"
)

type globalOpts struct {
	Verbose bool   `long:"verbose" short:"v" description:"Enable debug logging"`
	LogFile string `long:"log-file" description:"Append logs to this file instead of stderr"`
}

var opts globalOpts

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	parser := flags.NewParser(&opts, flags.Default)
	parser.CommandHandler = func(command flags.Commander, args []string) error {
		setupLogging(appCfg.Debug || opts.Verbose, opts.LogFile)
		slog.Info("Starting creations-bot", "version", appCfg.Version,
			"product", appCfg.Product)
		return command.Execute(args)
	}

	mustAddCommand(parser, "fetch", "Fetch one catalog page",
		"Fetch and print one page of catalog entries without touching the database.",
		&fetchCmd{cfg: appCfg})
	mustAddCommand(parser, "run", "Sync the catalog and deliver posts",
		"Walk the catalog from the high-water mark, classify entries, persist them, and deliver new posts.",
		&runCmd{cfg: appCfg})
	mustAddCommand(parser, "retry", "Retry failed deliveries",
		"Re-attempt deliveries whose latest attempt failed, plus missing webhook deliveries.",
		&retryCmd{cfg: appCfg})
	mustAddCommand(parser, "export-db", "Export the database as JSON",
		"Write a full JSON snapshot of the creations, posts and meta tables.",
		&exportCmd{cfg: appCfg})
	mustAddCommand(parser, "import-db", "Import a JSON database snapshot",
		"Load a snapshot produced by export-db into the database.",
		&importCmd{cfg: appCfg})
	mustAddCommand(parser, "reddit-auth", "Authorize the reddit app",
		"Run the one-shot OAuth flow and store the refresh token in the database.",
		&redditAuthCmd{cfg: appCfg})
	mustAddCommand(parser, "sample", "Render sample posts from live data",
		"Render a bounded sample of current catalog entries into concatenated files for template iteration.",
		&sampleCmd{cfg: appCfg})
	mustAddCommand(parser, "templates", "Generate post bundles in bulk",
		"Render reddit, discord and wiki post bundles for every eligible entry down to the cutoff.",
		&templatesCmd{cfg: appCfg})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return
		}
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func mustAddCommand(parser *flags.Parser, name, short, long string, cmd flags.Commander) {
	if _, err := parser.AddCommand(name, short, long, cmd); err != nil {
		panic(err)
	}
}

func setupLogging(verbose bool, logFile string) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	out := os.Stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		} else {
			out = f
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newCatalogClient(c *cfg.Cfg) *catalog.Client {
	return catalog.NewClient(catalog.ClientOptions{
		CoreURL:    c.CoreURL,
		ContentURL: c.ContentURL,
		BnetKey:    c.BnetKey,
		Bearer:     c.Bearer,
		UserAgent:  "creations-bot/" + c.Version,
		Timeout:    requestTimeout(c),
	})
}

func requestTimeout(c *cfg.Cfg) time.Duration {
	return time.Duration(c.RequestTimeout * float64(time.Second))
}

func pageRequest(c *cfg.Cfg) catalog.PageRequest {
	return catalog.PageRequest{
		Product:        c.Product,
		Sort:           c.Sort,
		TimePeriod:     c.TimePeriod,
		Size:           c.Size,
		Page:           c.Page,
		CountsPlatform: c.CountsPlatform,
		URLTemplate:    c.ModURLTemplate,
	}
}

func buildPolicy(c *cfg.Cfg) pipeline.Policy {
	return pipeline.Policy{
		HardStops:          c.HardStops(),
		StudioIgnoreBefore: c.BGSIgnoreBefore,
	}
}

func openStore(c *cfg.Cfg) (*database.Store, error) {
	db, err := database.NewConnection(c.DatabasePath)
	if err != nil {
		return nil, err
	}
	return database.NewStore(db), nil
}

// buildSubmitter wires a reddit client when credentials are configured.
// The refresh token lives in the database meta table, put there by the
// reddit-auth command.
func buildSubmitter(c *cfg.Cfg, store database.Ledger) (publish.Submitter, error) {
	hasApp := c.RedditClientID != ""
	hasSession := c.RedditSessionCookies != "" && c.RedditCSRFToken != ""
	if !hasApp && !hasSession {
		slog.Info("Reddit delivery not configured, skipping")
		return nil, nil
	}

	refreshToken, err := store.GetMeta(auth.MetaRefreshToken)
	if err != nil {
		return nil, err
	}

	return publish.NewRedditClient(publish.RedditConfig{
		ClientID:       c.RedditClientID,
		ClientSecret:   c.RedditClientSecret,
		Username:       c.RedditUsername,
		Password:       c.RedditPassword,
		UserAgent:      c.RedditUserAgent,
		Subreddit:      c.RedditSubreddit,
		RefreshToken:   refreshToken,
		SessionCookies: c.RedditSessionCookies,
		CSRFToken:      c.RedditCSRFToken,
		Timeout:        requestTimeout(c),
	})
}

func buildWebhook(c *cfg.Cfg) *publish.WebhookClient {
	if c.DiscordWebhookURL == "" {
		slog.Info("Webhook delivery not configured, skipping")
		return nil
	}
	webhook, err := publish.NewWebhookClient(c.DiscordWebhookURL, requestTimeout(c))
	if err != nil {
		slog.Warn("Webhook client unavailable", "error", err)
		return nil
	}
	return webhook
}

// requireTemplates fails fast on unreadable template files so no ledger
// state changes before a render error would surface.
func requireTemplates(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("template not readable: %w", err)
		}
	}
	return nil
}

type fetchCmd struct {
	cfg *cfg.Cfg
}

func (c *fetchCmd) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()

	client := newCatalogClient(c.cfg)
	creations, err := client.FetchPage(ctx, pageRequest(c.cfg))
	if err != nil {
		return err
	}

	slog.Info("Fetched creations", "count", len(creations))
	for _, item := range creations {
		fmt.Printf("%s  %-40s  by %s  first_published=%s\n",
			item.ID, item.Title, item.AuthorDisplayName, item.FirstPublishedAt)
	}
	return nil
}

type runCmd struct {
	cfg *cfg.Cfg

	NoNew           bool   `long:"no-new" description:"Do not post new creations"`
	NoUpdates       bool   `long:"no-updates" description:"Do not classify updates"`
	DryRun          bool   `long:"dry-run" description:"Classify and log without delivering or advancing markers"`
	MaxPosts        int    `long:"max-posts" default:"-1" description:"Cap deliveries this run (negative means unlimited)"`
	ManualOutputDir string `long:"manual-output-dir" description:"Write post bundles to this directory instead of delivering"`
	IgnoreDB        bool   `long:"ignore-db" description:"Run against a throwaway in-memory ledger"`
}

func (c *runCmd) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()

	dryRun := c.DryRun || c.cfg.DryRun
	if c.IgnoreDB && c.ManualOutputDir == "" {
		// Without a ledger there is nothing to stop duplicate deliveries.
		slog.Info("Ignoring database, forcing dry run")
		dryRun = true
	}

	if err := requireTemplates(c.cfg.PostTemplatePath,
		c.cfg.DiscordTemplatePath, c.cfg.WikiTemplatePath); err != nil {
		return err
	}

	var store database.Ledger
	if c.IgnoreDB {
		store = database.NewNullStore()
	} else {
		s, err := openStore(c.cfg)
		if err != nil {
			return err
		}
		store = s
	}
	defer store.Close()

	var reddit publish.Submitter
	var webhook *publish.WebhookClient
	if !dryRun && c.ManualOutputDir == "" {
		var err error
		reddit, err = buildSubmitter(c.cfg, store)
		if err != nil {
			return err
		}
		webhook = buildWebhook(c.cfg)
	}

	orchestrator := publish.NewOrchestrator(publish.Options{
		Store:           store,
		Reddit:          reddit,
		Webhook:         webhook,
		Images:          publish.NewImageFetcher(requestTimeout(c.cfg)),
		PostTemplate:    c.cfg.PostTemplatePath,
		WebhookTemplate: c.cfg.DiscordTemplatePath,
		WikiTemplate:    c.cfg.WikiTemplatePath,
		FlairIDs:        c.cfg.FlairIDs(),
		ImageWorkDir:    c.cfg.ImageWorkDir,
		DryRun:          dryRun,
		ManualOutputDir: c.ManualOutputDir,
		MaxPosts:        c.MaxPosts,
	})

	walker := pipeline.NewWalker(newCatalogClient(c.cfg), store,
		buildPolicy(c.cfg), pageRequest(c.cfg), c.cfg.SyntheticFirstPtime)
	_, seen, err := walker.Sync(ctx, pipeline.SyncOptions{
		Flags: pipeline.Flags{
			PostNew:     !c.NoNew,
			PostUpdates: !c.NoUpdates,
		},
		DryRun: dryRun,
		// Manual output regenerates bundles for already-recorded entries
		// too, so eligibility alone qualifies them.
		EmitEligible: c.ManualOutputDir != "",
		Handler: func(action pipeline.Action, item catalog.Creation) error {
			return orchestrator.Handle(ctx, action, item)
		},
	})
	if err != nil {
		return err
	}

	slog.Info("Run complete", "seen", seen,
		"posted", orchestrator.Posted(), "dry_runs", orchestrator.DryRunCount())
	return nil
}

type retryCmd struct {
	cfg *cfg.Cfg

	DryRun bool `long:"dry-run" description:"Log what would be retried without delivering"`
}

func (c *retryCmd) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if err := requireTemplates(c.cfg.PostTemplatePath, c.cfg.DiscordTemplatePath); err != nil {
		return err
	}

	store, err := openStore(c.cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	dryRun := c.DryRun || c.cfg.DryRun
	reddit, err := buildSubmitter(c.cfg, store)
	if err != nil {
		// The webhook retry pass still runs without a reddit client.
		slog.Warn("Reddit client unavailable, skipping reddit retries", "error", err)
		reddit = nil
	}
	webhook := buildWebhook(c.cfg)

	orchestrator := publish.NewOrchestrator(publish.Options{
		Store:           store,
		Reddit:          reddit,
		Webhook:         webhook,
		Images:          publish.NewImageFetcher(requestTimeout(c.cfg)),
		PostTemplate:    c.cfg.PostTemplatePath,
		WebhookTemplate: c.cfg.DiscordTemplatePath,
		WikiTemplate:    c.cfg.WikiTemplatePath,
		FlairIDs:        c.cfg.FlairIDs(),
		ImageWorkDir:    c.cfg.ImageWorkDir,
		DryRun:          dryRun,
		MaxPosts:        -1,
	})

	return orchestrator.RetryFailed(ctx)
}

type exportCmd struct {
	cfg *cfg.Cfg

	Output string `long:"output" short:"o" description:"Write the snapshot to this file instead of stdout"`
}

func (c *exportCmd) Execute([]string) error {
	store, err := openStore(c.cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	snapshot, err := store.Export()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	data = append(data, '\n')

	if c.Output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(c.Output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	slog.Info("Exported database snapshot", "path", c.Output,
		"creations", len(snapshot.Creations), "posts", len(snapshot.Posts))
	return nil
}

type importCmd struct {
	cfg *cfg.Cfg

	Input string `long:"input" short:"i" required:"true" description:"Snapshot file produced by export-db"`
}

func (c *importCmd) Execute([]string) error {
	data, err := os.ReadFile(c.Input)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snapshot database.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	store, err := openStore(c.cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Import(&snapshot); err != nil {
		return err
	}
	slog.Info("Imported database snapshot", "path", c.Input,
		"creations", len(snapshot.Creations), "posts", len(snapshot.Posts))
	return nil
}

type redditAuthCmd struct {
	cfg *cfg.Cfg
}

func (c *redditAuthCmd) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()

	store, err := openStore(c.cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	authorizer, err := auth.NewRedditAuthorizer(c.cfg.RedditClientID,
		c.cfg.RedditClientSecret, c.cfg.RedditRedirectURI, store)
	if err != nil {
		return err
	}
	return authorizer.Authorize(ctx)
}

type sampleCmd struct {
	cfg *cfg.Cfg

	OutputDir string `long:"output-dir" default:"data/samples" description:"Directory for the sample files"`
	MaxPages  int    `long:"max-pages" default:"2" description:"Pages of live data to sample (1-10)"`
}

func (c *sampleCmd) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if err := requireTemplates(c.cfg.PostTemplatePath, c.cfg.DiscordTemplatePath); err != nil {
		return err
	}

	generator := templates.NewGenerator(templates.Options{
		Fetcher:         newCatalogClient(c.cfg),
		Policy:          buildPolicy(c.cfg),
		PostTemplate:    c.cfg.PostTemplatePath,
		WebhookTemplate: c.cfg.DiscordTemplatePath,
		WikiTemplate:    c.cfg.WikiTemplatePath,
		Page:            pageRequest(c.cfg),
	})
	return generator.GenerateSample(ctx, c.OutputDir, c.MaxPages)
}

type templatesCmd struct {
	cfg *cfg.Cfg

	OutputDir string `long:"output-dir" default:"data/generated" description:"Directory for the generated bundles"`
	Cutoff    string `long:"cutoff" description:"Walk down to this first-published instant (defaults to the product hard stop)"`
	NoImages  bool   `long:"no-images" description:"Skip image downloads"`
}

func (c *templatesCmd) Execute([]string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if err := requireTemplates(c.cfg.PostTemplatePath,
		c.cfg.DiscordTemplatePath, c.cfg.WikiTemplatePath); err != nil {
		return err
	}

	var images *publish.ImageFetcher
	if !c.NoImages {
		images = publish.NewImageFetcher(requestTimeout(c.cfg))
	}

	generator := templates.NewGenerator(templates.Options{
		Fetcher:         newCatalogClient(c.cfg),
		Policy:          buildPolicy(c.cfg),
		Images:          images,
		PostTemplate:    c.cfg.PostTemplatePath,
		WebhookTemplate: c.cfg.DiscordTemplatePath,
		WikiTemplate:    c.cfg.WikiTemplatePath,
		Page:            pageRequest(c.cfg),
		Cutoff:          c.Cutoff,
	})

	posts, err := generator.Generate(ctx, c.OutputDir)
	if err != nil {
		return err
	}
	for _, post := range posts {
		fmt.Printf("%s  %s  %s\n", post.PublishedAt, post.CreationID, post.Title)
	}
	slog.Info("Generated post bundles", "count", len(posts), "dir", c.OutputDir)
	return nil
}
