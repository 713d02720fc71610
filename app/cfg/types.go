package cfg

type Cfg struct {
	// Catalog query configuration
	Product        string
	Sort           string
	TimePeriod     string
	Size           int
	Page           int
	CountsPlatform string

	// Catalog endpoints and credentials
	CoreURL        string
	ContentURL     string
	BnetKey        string
	Bearer         string
	ModURLTemplate string
	RequestTimeout float64

	// Storage and templates
	DatabasePath        string
	PostTemplatePath    string
	DiscordTemplatePath string
	WikiTemplatePath    string
	ImageWorkDir        string

	// Reddit delivery
	RedditClientID       string
	RedditClientSecret   string
	RedditUsername       string
	RedditPassword       string
	RedditUserAgent      string
	RedditSubreddit      string
	RedditRedirectURI    string
	RedditSessionCookies string
	RedditCSRFToken      string
	RedditFlairID        string
	RedditFallout4Flair  string
	RedditSkyrimFlair    string
	RedditStarfieldFlair string

	// Discord delivery
	DiscordWebhookURL string

	// Eligibility windows
	Fallout4HardStop  string
	SkyrimHardStop    string
	StarfieldHardStop string
	BGSIgnoreBefore   string

	// Run behavior
	SyntheticFirstPtime string
	DryRun              bool
	Debug               bool
	Version             string
}

// HardStops maps each product code to its configured hard-stop instant.
func (c *Cfg) HardStops() map[string]string {
	return map[string]string{
		"FALLOUT4":  c.Fallout4HardStop,
		"SKYRIM":    c.SkyrimHardStop,
		"STARFIELD": c.StarfieldHardStop,
	}
}

// FlairIDs maps each product code to its subreddit flair, falling back to
// the catch-all flair when a per-product one is unset.
func (c *Cfg) FlairIDs() map[string]string {
	flairs := map[string]string{
		"FALLOUT4":  c.RedditFallout4Flair,
		"SKYRIM":    c.RedditSkyrimFlair,
		"STARFIELD": c.RedditStarfieldFlair,
	}
	for product, flair := range flairs {
		if flair == "" {
			flairs[product] = c.RedditFlairID
		}
	}
	return flairs
}
