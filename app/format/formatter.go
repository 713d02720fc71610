package format

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/modhaven/creations-bot/app/catalog"
)

var platformEmoji = map[string]string{
	"XBOXONE":      ":xbox:",
	"XBOXSERIESX":  ":xbox:",
	"PLAYSTATION4": ":playstation:",
	"PLAYSTATION5": ":playstation:",
	"WINDOWS":      ":pc:",
	"ALL":          ":globe_with_meridians:",
}

var platformFullName = map[string]string{
	"XBOXONE":      "Xbox One",
	"XBOXSERIESX":  "Xbox Series X|S",
	"PLAYSTATION4": "PlayStation 4",
	"PLAYSTATION5": "PlayStation 5",
	"WINDOWS":      "Windows",
	"ALL":          "All Platforms",
}

var platformWikiLabel = map[string]string{
	"WINDOWS":      "PC",
	"XBOXONE":      "Xbox",
	"XBOXSERIESX":  "Xbox",
	"PLAYSTATION4": "PlayStation",
	"PLAYSTATION5": "PlayStation",
}

const (
	maxTitleFlairs = 10
	priceEmoji     = ":credits:"
)

// BuildTitle renders the post title for an action kind. Update titles carry
// a date hint from the creation's update instant.
func BuildTitle(c catalog.Creation, action string, includeEmojis bool) string {
	if action == "update" {
		dateHint := "Update"
		if len(c.UpdatedAt) >= 10 {
			dateHint = c.UpdatedAt[:10]
		}
		return fmt.Sprintf("[%s] Update: %s (%s)", productLabel(c), c.Title, dateHint)
	}

	creator := c.AuthorDisplayName
	if creator == "" {
		creator = "Unknown Creator"
	}
	suffix := ""
	if includeEmojis {
		if emojis := platformEmojis(c.HardwarePlatforms); emojis != "" {
			suffix = " " + emojis
		}
	}
	return fmt.Sprintf("%s presents: %s%s", creator, c.Title, suffix)
}

// RenderBody renders the post body from the template at templatePath.
// A missing template file is a configuration error and surfaces to the
// caller; anything absent from the creation degrades to the N/A sentinel.
func RenderBody(c catalog.Creation, action, templatePath string) (string, error) {
	template, err := os.ReadFile(templatePath)
	if err != nil {
		return "", fmt.Errorf("failed to read template %s: %w", templatePath, err)
	}
	return Substitute(string(template), TemplateData(c, action)), nil
}

// TemplateData flattens a creation into the substitution map: raw fields
// under their catalog names plus the computed, human-friendly variants.
func TemplateData(c catalog.Creation, action string) map[string]string {
	author := c.AuthorDisplayName
	if author == "" {
		author = "Unknown"
	}
	authorURL := Missing
	if c.Product != "" && author != "Unknown" {
		authorURL = fmt.Sprintf(
			"https://creations.bethesda.net/en/%s/all?author_displayname=%s",
			strings.ToLower(c.Product), url.QueryEscape(author))
	}

	data := map[string]string{
		"mod_id":             c.ID,
		"title":              c.Title,
		"overview":           c.Overview,
		"product":            c.Product,
		"content_type":       c.ContentType,
		"author_displayname": c.AuthorDisplayName,
		"author_buid":        c.AuthorBUID,
		"author_verified":    formatValue(c.AuthorVerified),
		"author_official":    formatValue(c.AuthorOfficial),
		"status":             c.Status,
		"moderation_state":   c.ModerationState,
		"default_locale":     c.DefaultLocale,
		"supported_locales":  joinList(c.SupportedLocales),
		"required_mods":      joinList(c.RequiredMods),
		"details_url":        c.DetailsURL,
		"preview_image_url":  c.PreviewImageURL,
		"cover_image_url":    c.CoverImageURL,

		"post_type":            action,
		"title_plain":          BuildTitle(c, action, false),
		"summary":              summaryText(c),
		"description":          cleanDescription(c.Description),
		"description_markdown": markdownDescription(c.Description),
		"description_wiki":     wikiDescription(c.Description),
		"author":               author,
		"author_url":           authorURL,
		"product_title":        productLabel(c),
		"platforms":            joinList(c.HardwarePlatforms),
		"platform_full_names":  platformFullNames(c.HardwarePlatforms),
		"platform_wiki":        platformWikiLabels(c.HardwarePlatforms),
		"platform_emojis":      platformEmojis(c.HardwarePlatforms),
		"categories":           joinList(c.Categories),
		"prices":               priceText(c),
		"prices_plain":         priceTextPlain(c),
		"price_credits":        priceCredits(c),
		"release_date":         releaseDate(c),
		"size":                 Missing,
		"version":              latestVersion(c),
		"xbox_link":            "Link",
		"cover_image_filename": coverFilename(c),
		"banner_image_url":     bannerURL(c),
		"image_urls":           imageURLsText(c),

		// Raw time aliases alongside the friendly names.
		"ptime":       c.PublishedAt,
		"first_ptime": c.FirstPublishedAt,
		"ctime":       c.CreatedAt,
		"utime":       c.UpdatedAt,
	}

	return data
}

func productLabel(c catalog.Creation) string {
	if c.ProductTitle != "" {
		return c.ProductTitle
	}
	if c.Product != "" {
		return c.Product
	}
	return "MOD"
}

func joinList(items []string) string {
	if len(items) == 0 {
		return Missing
	}
	return strings.Join(items, ", ")
}

func summaryText(c catalog.Creation) string {
	if c.Overview != "" {
		return stripMarkdown(strings.TrimSpace(c.Overview))
	}
	if c.Description != "" {
		firstLine := strings.SplitN(strings.TrimSpace(c.Description), "\n", 2)[0]
		return stripMarkdown(firstLine)
	}
	return "No summary provided."
}

func platformEmojis(platforms []string) string {
	var tokens []string
	for _, platform := range platforms {
		emoji := platformEmoji[platform]
		if emoji == "" {
			continue
		}
		if !contains(tokens, emoji) {
			tokens = append(tokens, emoji)
		}
	}
	if len(tokens) > maxTitleFlairs {
		tokens = tokens[:maxTitleFlairs]
	}
	return strings.Join(tokens, " ")
}

func platformFullNames(platforms []string) string {
	if len(platforms) == 0 {
		return Missing
	}
	names := make([]string, 0, len(platforms))
	for _, platform := range platforms {
		if name, ok := platformFullName[platform]; ok {
			names = append(names, name)
		} else {
			names = append(names, platform)
		}
	}
	return strings.Join(names, ", ")
}

func platformWikiLabels(platforms []string) string {
	if len(platforms) == 0 {
		return Missing
	}
	var labels []string
	for _, platform := range platforms {
		label, ok := platformWikiLabel[platform]
		if !ok {
			label = platform
		}
		if !contains(labels, label) {
			labels = append(labels, label)
		}
	}
	return strings.Join(labels, ", ")
}

// formatValue renders an arbitrary field for template use: lists join with
// commas, maps render as sorted key=value pairs, nil becomes the sentinel.
func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return Missing
	case bool:
		if v {
			return "true"
		}
		return "false"
	case []string:
		if len(v) == 0 {
			return Missing
		}
		return strings.Join(v, ", ")
	case []any:
		if len(v) == 0 {
			return Missing
		}
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		if len(v) == 0 {
			return Missing
		}
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", key, v[key]))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

func priceText(c catalog.Creation) string {
	for _, price := range c.Prices {
		if amount, ok := amountString(price["amount"]); ok {
			return priceEmoji + " " + amount
		}
	}
	return Missing
}

func priceCredits(c catalog.Creation) string {
	for _, price := range c.Prices {
		if amount, ok := amountString(price["amount"]); ok {
			return fmt.Sprintf("{{credits|%s}}", amount)
		}
	}
	return Missing
}

func priceTextPlain(c catalog.Creation) string {
	for _, price := range c.Prices {
		if amount, ok := amountString(price["amount"]); ok {
			return amount + " Credits"
		}
	}
	return Missing
}

func amountString(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v)), true
		}
		return fmt.Sprintf("%v", v), true
	default:
		return fmt.Sprint(v), true
	}
}

func coverFilename(c catalog.Creation) string {
	if filename, ok := c.CoverImage["filename"].(string); ok && filename != "" {
		return filename
	}
	return Missing
}

func releaseDate(c catalog.Creation) string {
	if len(c.FirstPublishedAt) >= 10 {
		return c.FirstPublishedAt[:10]
	}
	return Missing
}

// latestVersion digs the newest published version name out of the release
// notes blobs.
func latestVersion(c catalog.Creation) string {
	var latest map[string]any
	var latestUtime float64
	for _, entry := range c.ReleaseNotes {
		notes, ok := entry["release_notes"].([]any)
		if !ok {
			continue
		}
		for _, rawNote := range notes {
			note, ok := rawNote.(map[string]any)
			if !ok {
				continue
			}
			if published, ok := note["published"].(bool); ok && !published {
				continue
			}
			utime, _ := note["utime"].(float64)
			if latest == nil || utime > latestUtime {
				latest = note
				latestUtime = utime
			}
		}
	}
	if latest != nil {
		if version, ok := latest["version_name"].(string); ok && version != "" {
			return version
		}
	}
	return Missing
}

// ImageURLs collects the gallery image URLs for a creation: the non-banner
// cover first, then screenshots, banners excluded, duplicates dropped.
func ImageURLs(c catalog.Creation) []string {
	var urls []string
	if cover := nonBannerCoverURL(c); cover != "" {
		urls = append(urls, cover)
	}
	for _, image := range c.ScreenshotImages {
		if isBannerImage(image) {
			continue
		}
		url := catalog.ExtractImageURL(image)
		if url != "" && !contains(urls, url) {
			urls = append(urls, url)
		}
	}
	return urls
}

func imageURLsText(c catalog.Creation) string {
	urls := ImageURLs(c)
	if len(urls) == 0 {
		return Missing
	}
	lines := make([]string, 0, len(urls))
	for _, url := range urls {
		lines = append(lines, "- "+url)
	}
	return strings.Join(lines, "\n")
}

func isBannerImage(image map[string]any) bool {
	if len(image) == 0 {
		return false
	}
	classification, _ := image["classification"].(string)
	filename, _ := image["filename"].(string)
	s3key, _ := image["s3key"].(string)
	return strings.Contains(strings.ToLower(classification), "banner") ||
		strings.Contains(strings.ToLower(filename), "banner") ||
		strings.Contains(strings.ToLower(s3key), "/banner")
}

func bannerURL(c catalog.Creation) string {
	if !isBannerImage(c.CoverImage) {
		return Missing
	}
	bucket, _ := c.CoverImage["s3bucket"].(string)
	key, _ := c.CoverImage["s3key"].(string)
	if url := catalog.ImageURL(bucket, key); url != "" {
		return url
	}
	return Missing
}

func nonBannerCoverURL(c catalog.Creation) string {
	if isBannerImage(c.CoverImage) {
		return ""
	}
	return c.CoverImageURL
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
