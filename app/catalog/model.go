package catalog

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"strings"
)

// Creation is an immutable snapshot of one catalog item. All timestamp
// fields are RFC 3339 UTC instants; an empty string means the catalog did
// not report the value.
type Creation struct {
	ID                string
	Title             string
	Overview          string
	Description       string
	Product           string
	ProductTitle      string
	ContentType       string
	HardwarePlatforms []string
	Categories        []string

	AuthorDisplayName string
	AuthorBUID        string
	AuthorVerified    bool
	AuthorOfficial    bool
	PublishedBUID     string
	UpdatedBUID       string

	CreatedAt        string
	PublishedAt      string
	FirstPublishedAt string
	UpdatedAt        string

	Status          string
	ModerationState string
	ErrorInfo       string

	Deleted                bool
	Published              bool
	Moderated              bool
	Beta                   bool
	Maintenance            bool
	Restricted             bool
	UseHighReportThreshold bool
	Marketplace            bool
	ReviewRevision         bool

	AuthorPrice         any
	RequiredDLC         []any
	RequiredMods        []string
	AchievementFriendly bool
	DefaultLocale       string
	SupportedLocales    []string
	ReleaseNotes        []map[string]any
	Stats               map[string]any
	CustomData          any
	CatalogInfo         []any
	Prices              []map[string]any

	PreviewImageURL  string
	CoverImageURL    string
	PreviewImage     map[string]any
	CoverImage       map[string]any
	ScreenshotImages []map[string]any
	Videos           []any

	DetailsURL string
}

// ParseCreation normalizes a raw catalog item into a Creation. Missing or
// malformed fields degrade to zero values; it never fails.
func ParseCreation(item map[string]any, urlTemplate string) Creation {
	id := getString(item, "content_id")
	product := getString(item, "product")

	description := getString(item, "description")
	overview := getString(item, "overview")
	// Either free-text field stands in for the other when only one is set.
	if description == "" && overview != "" {
		description = overview
	}
	if overview == "" && description != "" {
		overview = description
	}

	c := Creation{
		ID:                id,
		Title:             html.UnescapeString(getString(item, "title")),
		Overview:          html.UnescapeString(overview),
		Description:       html.UnescapeString(description),
		Product:           product,
		ProductTitle:      html.UnescapeString(getString(item, "product_title")),
		ContentType:       getString(item, "content_type"),
		HardwarePlatforms: getStringList(item, "hardware_platforms"),
		Categories:        getStringList(item, "categories"),

		AuthorDisplayName: html.UnescapeString(getString(item, "author_displayname")),
		AuthorBUID:        getString(item, "author_buid"),
		AuthorVerified:    getBool(item, "author_verified"),
		AuthorOfficial:    getBool(item, "author_official"),
		PublishedBUID:     getString(item, "published_buid"),
		UpdatedBUID:       getString(item, "updated_buid"),

		CreatedAt:        FromEpoch(item["ctime"]),
		PublishedAt:      FromEpoch(item["ptime"]),
		FirstPublishedAt: FromEpoch(item["first_ptime"]),
		UpdatedAt:        FromEpoch(item["utime"]),

		Status:          getString(item, "status"),
		ModerationState: getString(item, "moderation_state"),
		ErrorInfo:       getString(item, "error_info"),

		Deleted:                getBool(item, "deleted"),
		Published:              getBool(item, "published"),
		Moderated:              getBool(item, "moderated"),
		Beta:                   getBool(item, "beta"),
		Maintenance:            getBool(item, "maintenance"),
		Restricted:             getBool(item, "restricted"),
		UseHighReportThreshold: getBool(item, "use_high_report_threshold"),
		Marketplace:            getBool(item, "marketplace"),
		ReviewRevision:         getBool(item, "review_revision"),

		AuthorPrice:         item["author_price"],
		RequiredDLC:         getList(item, "required_dlc"),
		RequiredMods:        getStringList(item, "required_mods"),
		AchievementFriendly: getBool(item, "achievement_friendly"),
		DefaultLocale:       getString(item, "default_locale"),
		SupportedLocales:    getStringList(item, "supported_locales"),
		ReleaseNotes:        getMapList(item, "release_notes"),
		Stats:               getMap(item, "stats"),
		CustomData:          item["custom_data"],
		CatalogInfo:         getList(item, "catalog_info"),
		Prices:              extractPrices(item),

		PreviewImage:     getMap(item, "preview_image"),
		CoverImage:       getMap(item, "cover_image"),
		ScreenshotImages: getMapList(item, "screenshot_images"),
		Videos:           getList(item, "videos"),
	}

	c.PreviewImageURL = ExtractImageURL(c.PreviewImage)
	c.CoverImageURL = ExtractImageURL(c.CoverImage)
	c.DetailsURL = resolveDetailsURL(id, product, urlTemplate)

	return c
}

// resolveDetailsURL substitutes {content_id} and {product} in the supplied
// template, falling back to the canonical details path when no template is
// given or substitution produces nothing usable.
func resolveDetailsURL(id, product, urlTemplate string) string {
	if id == "" || product == "" {
		return ""
	}
	if urlTemplate != "" {
		url := strings.ReplaceAll(urlTemplate, "{content_id}", id)
		url = strings.ReplaceAll(url, "{product}", product)
		if !strings.ContainsAny(url, "{}") {
			return url
		}
	}
	return fmt.Sprintf("https://creations.bethesda.net/en/%s/details/%s",
		strings.ToLower(product), id)
}

// ExtractImageURL resolves an opaque image blob to a fetchable URL. Direct
// URL-ish keys win; an s3bucket/s3key pair resolves through the image proxy
// encoding; as a last resort any http-prefixed string value is used.
func ExtractImageURL(image map[string]any) string {
	if len(image) == 0 {
		return ""
	}
	for _, key := range []string{"url", "uri", "path", "link"} {
		if value, ok := image[key].(string); ok && value != "" {
			return value
		}
	}
	bucket, _ := image["s3bucket"].(string)
	key, _ := image["s3key"].(string)
	if bucket != "" && key != "" {
		return ImageURL(bucket, key)
	}
	for _, value := range image {
		if s, ok := value.(string); ok && strings.HasPrefix(s, "http") {
			return s
		}
	}
	return ""
}

// ImageURL builds the image proxy URL for a bucket/key pair: a base64
// encoding of a compact JSON descriptor appended to the proxy host.
func ImageURL(bucket, key string) string {
	if bucket == "" || key == "" {
		return ""
	}
	payload := map[string]any{
		"bucket":       bucket,
		"key":          key,
		"edits":        map[string]any{"resize": map[string]any{}},
		"outputFormat": "webp",
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	token := base64.StdEncoding.EncodeToString(raw)
	return "https://ugcmods.bethesda.net/image/" + token
}

// ComputeHash returns a stable sha256 digest over the content-bearing subset
// of a Creation. Serialization goes through encoding/json, whose sorted map
// keys make the digest independent of field arrival order. First-seen and
// creation instants are deliberately excluded: they never change once set
// and carry no content signal.
func ComputeHash(c Creation) string {
	payload := map[string]any{
		"title":                     c.Title,
		"overview":                  c.Overview,
		"description":               c.Description,
		"categories":                c.Categories,
		"hardware_platforms":        c.HardwarePlatforms,
		"author_displayname":        c.AuthorDisplayName,
		"author_verified":           c.AuthorVerified,
		"author_official":           c.AuthorOfficial,
		"published_buid":            c.PublishedBUID,
		"updated_buid":              c.UpdatedBUID,
		"updated_at":                c.UpdatedAt,
		"published_at":              c.PublishedAt,
		"content_type":              c.ContentType,
		"details_url":               c.DetailsURL,
		"preview_image_url":         c.PreviewImageURL,
		"cover_image_url":           c.CoverImageURL,
		"preview_image":             c.PreviewImage,
		"cover_image":               c.CoverImage,
		"screenshot_images":         c.ScreenshotImages,
		"videos":                    c.Videos,
		"status":                    c.Status,
		"moderation_state":          c.ModerationState,
		"error_info":                c.ErrorInfo,
		"published":                 c.Published,
		"beta":                      c.Beta,
		"maintenance":               c.Maintenance,
		"restricted":                c.Restricted,
		"use_high_report_threshold": c.UseHighReportThreshold,
		"marketplace":               c.Marketplace,
		"review_revision":           c.ReviewRevision,
		"author_price":              c.AuthorPrice,
		"required_dlc":              c.RequiredDLC,
		"required_mods":             c.RequiredMods,
		"achievement_friendly":      c.AchievementFriendly,
		"default_locale":            c.DefaultLocale,
		"supported_locales":         c.SupportedLocales,
		"release_notes":             c.ReleaseNotes,
		"stats":                     c.Stats,
		"custom_data":               c.CustomData,
		"catalog_info":              c.CatalogInfo,
		"prices":                    c.Prices,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		// Only unmarshalable custom blobs can end up here; hash what we can.
		raw = []byte(c.ID + "|" + c.Title)
	}
	digest := sha256.Sum256(raw)
	return hex.EncodeToString(digest[:])
}

func extractPrices(item map[string]any) []map[string]any {
	var prices []map[string]any
	for _, entry := range getList(item, "catalog_info") {
		catalog, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		rawPrices, _ := catalog["prices"].([]any)
		for _, rawPrice := range rawPrices {
			if price, ok := rawPrice.(map[string]any); ok {
				prices = append(prices, price)
			}
		}
	}
	return prices
}

func getString(item map[string]any, key string) string {
	value, _ := item[key].(string)
	return value
}

func getBool(item map[string]any, key string) bool {
	switch value := item[key].(type) {
	case bool:
		return value
	case float64:
		return value != 0
	default:
		return false
	}
}

func getList(item map[string]any, key string) []any {
	value, _ := item[key].([]any)
	return value
}

func getStringList(item map[string]any, key string) []string {
	raw, _ := item[key].([]any)
	values := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s, ok := entry.(string); ok {
			values = append(values, s)
		}
	}
	return values
}

func getMap(item map[string]any, key string) map[string]any {
	value, _ := item[key].(map[string]any)
	return value
}

func getMapList(item map[string]any, key string) []map[string]any {
	raw, _ := item[key].([]any)
	values := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			values = append(values, m)
		}
	}
	return values
}
