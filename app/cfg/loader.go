package cfg

import (
	"cmp"
	"fmt"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

// rawCfg is resolved from the environment only: command-line flags belong
// to the subcommand parser in main, so no CLI args are handed to go-flags
// here and the env/default tags do all the work.
type rawCfg struct {
	// Catalog query configuration
	Product        string `long:"product" env:"BETHESDA_PRODUCT" default:"FALLOUT4" description:"Product catalog to poll (FALLOUT4, SKYRIM, STARFIELD)"`
	Sort           string `long:"sort" env:"BETHESDA_SORT" default:"first_ptime" description:"Catalog sort field"`
	TimePeriod     string `long:"time-period" env:"BETHESDA_TIME_PERIOD" default:"all_time" description:"Catalog time period filter"`
	Size           int    `long:"size" env:"BETHESDA_SIZE" default:"20" description:"Catalog page size"`
	Page           int    `long:"page" env:"BETHESDA_PAGE" default:"1" description:"Catalog start page"`
	CountsPlatform string `long:"counts-platform" env:"BETHESDA_COUNTS_PLATFORM" default:"ALL" description:"Platform filter for catalog counts"`

	// Catalog endpoints and credentials
	CoreURL        string  `long:"core-url" env:"BETHESDA_CORE_URL" default:"https://cdn.bethesda.net/data/core" description:"Core payload URL used to resolve the bnet key"`
	ContentURL     string  `long:"content-url" env:"BETHESDA_CONTENT_URL" default:"https://api.bethesda.net/ugcmods/v2/content" description:"Catalog content URL"`
	BnetKey        string  `long:"bnet-key" env:"BETHESDA_BNET_KEY" description:"Bnet key (resolved from the core payload when unset)"`
	Bearer         string  `long:"bearer" env:"BETHESDA_BEARER" description:"Bearer token for catalog requests (optional)"`
	ModURLTemplate string  `long:"mod-url-template" env:"BETHESDA_MOD_URL_TEMPLATE" description:"Detail URL template with {content_id} and {product} placeholders"`
	RequestTimeout float64 `long:"request-timeout" env:"REQUEST_TIMEOUT_SECONDS" default:"30" description:"HTTP request timeout in seconds"`

	// Storage and templates
	DatabasePath        string `long:"database-path" env:"DATABASE_PATH" default:"data/creations.db" description:"SQLite database path"`
	PostTemplatePath    string `long:"post-template" env:"POST_TEMPLATE_PATH" default:"templates/post.md" description:"Reddit post body template"`
	DiscordTemplatePath string `long:"discord-template" env:"DISCORD_TEMPLATE_PATH" default:"templates/discord_post.md" description:"Discord webhook body template"`
	WikiTemplatePath    string `long:"wiki-template" env:"WIKI_TEMPLATE_PATH" default:"templates/wiki_post.txt" description:"Wiki body template"`
	ImageWorkDir        string `long:"image-work-dir" env:"IMAGE_WORK_DIR" default:"data/images" description:"Scratch directory for downloaded images"`

	// Reddit delivery
	RedditClientID       string `long:"reddit-client-id" env:"REDDIT_CLIENT_ID" description:"Reddit OAuth app client id"`
	RedditClientSecret   string `long:"reddit-client-secret" env:"REDDIT_CLIENT_SECRET" description:"Reddit OAuth app client secret"`
	RedditUsername       string `long:"reddit-username" env:"REDDIT_USERNAME" description:"Reddit account username (password grant)"`
	RedditPassword       string `long:"reddit-password" env:"REDDIT_PASSWORD" description:"Reddit account password (password grant)"`
	RedditUserAgent      string `long:"reddit-user-agent" env:"REDDIT_USER_AGENT" description:"User agent for reddit requests"`
	RedditSubreddit      string `long:"reddit-subreddit" env:"REDDIT_SUBREDDIT" description:"Target subreddit"`
	RedditRedirectURI    string `long:"reddit-redirect-uri" env:"REDDIT_REDIRECT_URI" default:"http://localhost:8080/callback" description:"OAuth redirect URI for reddit-auth"`
	RedditSessionCookies string `long:"reddit-session-cookies" env:"REDDIT_SESSION_COOKIES" description:"Browser session cookies for the web submit fallback"`
	RedditCSRFToken      string `long:"reddit-csrf-token" env:"REDDIT_CSRF_TOKEN" description:"CSRF token matching the session cookies"`
	RedditFlairID        string `long:"reddit-flair-id" env:"REDDIT_FLAIR_ID" description:"Default post flair id"`
	RedditFallout4Flair  string `long:"reddit-fallout4-flair-id" env:"REDDIT_FALLOUT4_FLAIR_ID" description:"Flair id for Fallout 4 posts"`
	RedditSkyrimFlair    string `long:"reddit-skyrim-flair-id" env:"REDDIT_SKYRIM_FLAIR_ID" description:"Flair id for Skyrim posts"`
	RedditStarfieldFlair string `long:"reddit-starfield-flair-id" env:"REDDIT_STARFIELD_FLAIR_ID" description:"Flair id for Starfield posts"`

	// Discord delivery
	DiscordWebhookURL string `long:"discord-webhook-url" env:"DISCORD_WEBHOOK_URL" description:"Discord webhook URL (optional)"`

	// Eligibility windows
	Fallout4HardStop  string `long:"fallout4-hard-stop" env:"FALLOUT4_HARD_STOP" default:"2025-11-01T00:00:00+00:00" description:"Ignore Fallout 4 creations first published before this instant"`
	SkyrimHardStop    string `long:"skyrim-hard-stop" env:"SKYRIM_HARD_STOP" default:"2023-12-01T00:00:00+00:00" description:"Ignore Skyrim creations first published before this instant"`
	StarfieldHardStop string `long:"starfield-hard-stop" env:"STARFIELD_HARD_STOP" default:"2024-06-01T00:00:00+00:00" description:"Ignore Starfield creations first published before this instant"`
	BGSIgnoreBefore   string `long:"bgs-ignore-before" env:"BGS_IGNORE_BEFORE" default:"2025-01-01T00:00:00+00:00" description:"Ignore studio-authored creations published before this instant"`

	// Run behavior
	SyntheticFirstPtime string `long:"synthetic-first-ptime" env:"SYNTHETIC_LAST_SEEN_FIRST_PTIME" description:"Override the persisted high-water mark for one run"`
	DryRun              bool   `long:"dry-run" env:"DRY_RUN" description:"Classify and log without delivering or advancing markers"`
	Debug               bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load resolves configuration from .env and the process environment. It
// never reads os.Args.
func Load() (*Cfg, error) {
	// Missing .env is fine, the environment alone is a valid source.
	_ = godotenv.Load()

	var raw rawCfg

	parser := flags.NewParser(&raw, flags.None)
	if _, err := parser.ParseArgs(nil); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		Product:        raw.Product,
		Sort:           raw.Sort,
		TimePeriod:     raw.TimePeriod,
		Size:           raw.Size,
		Page:           raw.Page,
		CountsPlatform: raw.CountsPlatform,

		CoreURL:        raw.CoreURL,
		ContentURL:     raw.ContentURL,
		BnetKey:        raw.BnetKey,
		Bearer:         raw.Bearer,
		ModURLTemplate: raw.ModURLTemplate,
		RequestTimeout: raw.RequestTimeout,

		DatabasePath:        raw.DatabasePath,
		PostTemplatePath:    raw.PostTemplatePath,
		DiscordTemplatePath: raw.DiscordTemplatePath,
		WikiTemplatePath:    raw.WikiTemplatePath,
		ImageWorkDir:        raw.ImageWorkDir,

		RedditClientID:       raw.RedditClientID,
		RedditClientSecret:   raw.RedditClientSecret,
		RedditUsername:       raw.RedditUsername,
		RedditPassword:       raw.RedditPassword,
		RedditUserAgent:      raw.RedditUserAgent,
		RedditSubreddit:      raw.RedditSubreddit,
		RedditRedirectURI:    raw.RedditRedirectURI,
		RedditSessionCookies: raw.RedditSessionCookies,
		RedditCSRFToken:      raw.RedditCSRFToken,
		RedditFlairID:        raw.RedditFlairID,
		RedditFallout4Flair:  raw.RedditFallout4Flair,
		RedditSkyrimFlair:    raw.RedditSkyrimFlair,
		RedditStarfieldFlair: raw.RedditStarfieldFlair,

		DiscordWebhookURL: raw.DiscordWebhookURL,

		Fallout4HardStop:  raw.Fallout4HardStop,
		SkyrimHardStop:    raw.SkyrimHardStop,
		StarfieldHardStop: raw.StarfieldHardStop,
		BGSIgnoreBefore:   raw.BGSIgnoreBefore,

		SyntheticFirstPtime: raw.SyntheticFirstPtime,
		DryRun:              raw.DryRun,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}

	if cfg.Size < 1 {
		return nil, fmt.Errorf("page size must be positive, got %d", cfg.Size)
	}
	if cfg.Page < 1 {
		return nil, fmt.Errorf("start page must be positive, got %d", cfg.Page)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}
