package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/modhaven/creations-bot/app/catalog"
)

// Store is the sqlite-backed Ledger.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertCreation inserts or merges a creation by id. first_seen_at is
// first-write-wins; every other column, including the bookkeeping trio
// last_seen_at / last_seen_ptime / last_known_hash, is refreshed.
func (s *Store) UpsertCreation(c catalog.Creation, seenAt, hash string) error {
	_, err := s.db.Exec(`
		INSERT INTO creations (
			creation_id, product, product_title, title, overview, description,
			content_type, author_displayname, author_buid, author_verified,
			author_official, published_buid, updated_buid, created_at,
			published_at, first_published_at, updated_at, status,
			moderation_state, error_info, deleted, published, moderated, beta,
			maintenance, restricted, use_high_report_threshold, marketplace,
			review_revision, author_price_json, required_dlc_json,
			required_mods_json, achievement_friendly, default_locale,
			supported_locales_json, release_notes_json, stats_json,
			custom_data_json, catalog_info_json, prices_json, categories_json,
			platforms_json, preview_image_url, cover_image_url,
			preview_image_json, cover_image_json, screenshot_images_json,
			videos_json, details_url, first_seen_at, last_seen_at,
			last_seen_ptime, last_known_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (creation_id) DO UPDATE SET
			product = excluded.product,
			product_title = excluded.product_title,
			title = excluded.title,
			overview = excluded.overview,
			description = excluded.description,
			content_type = excluded.content_type,
			author_displayname = excluded.author_displayname,
			author_buid = excluded.author_buid,
			author_verified = excluded.author_verified,
			author_official = excluded.author_official,
			published_buid = excluded.published_buid,
			updated_buid = excluded.updated_buid,
			created_at = excluded.created_at,
			published_at = excluded.published_at,
			first_published_at = excluded.first_published_at,
			updated_at = excluded.updated_at,
			status = excluded.status,
			moderation_state = excluded.moderation_state,
			error_info = excluded.error_info,
			deleted = excluded.deleted,
			published = excluded.published,
			moderated = excluded.moderated,
			beta = excluded.beta,
			maintenance = excluded.maintenance,
			restricted = excluded.restricted,
			use_high_report_threshold = excluded.use_high_report_threshold,
			marketplace = excluded.marketplace,
			review_revision = excluded.review_revision,
			author_price_json = excluded.author_price_json,
			required_dlc_json = excluded.required_dlc_json,
			required_mods_json = excluded.required_mods_json,
			achievement_friendly = excluded.achievement_friendly,
			default_locale = excluded.default_locale,
			supported_locales_json = excluded.supported_locales_json,
			release_notes_json = excluded.release_notes_json,
			stats_json = excluded.stats_json,
			custom_data_json = excluded.custom_data_json,
			catalog_info_json = excluded.catalog_info_json,
			prices_json = excluded.prices_json,
			categories_json = excluded.categories_json,
			platforms_json = excluded.platforms_json,
			preview_image_url = excluded.preview_image_url,
			cover_image_url = excluded.cover_image_url,
			preview_image_json = excluded.preview_image_json,
			cover_image_json = excluded.cover_image_json,
			screenshot_images_json = excluded.screenshot_images_json,
			videos_json = excluded.videos_json,
			details_url = excluded.details_url,
			last_seen_at = excluded.last_seen_at,
			last_seen_ptime = excluded.last_seen_ptime,
			last_known_hash = excluded.last_known_hash,
			first_seen_at = COALESCE(creations.first_seen_at, excluded.first_seen_at)
	`,
		c.ID, c.Product, c.ProductTitle, c.Title, c.Overview, c.Description,
		c.ContentType, c.AuthorDisplayName, c.AuthorBUID,
		boolInt(c.AuthorVerified), boolInt(c.AuthorOfficial),
		c.PublishedBUID, c.UpdatedBUID, c.CreatedAt,
		c.PublishedAt, c.FirstPublishedAt, c.UpdatedAt, c.Status,
		c.ModerationState, c.ErrorInfo, boolInt(c.Deleted),
		boolInt(c.Published), boolInt(c.Moderated), boolInt(c.Beta),
		boolInt(c.Maintenance), boolInt(c.Restricted),
		boolInt(c.UseHighReportThreshold), boolInt(c.Marketplace),
		boolInt(c.ReviewRevision), jsonDump(c.AuthorPrice),
		jsonDump(c.RequiredDLC), jsonDump(c.RequiredMods),
		boolInt(c.AchievementFriendly), c.DefaultLocale,
		jsonDump(c.SupportedLocales), jsonDump(c.ReleaseNotes),
		jsonDump(c.Stats), jsonDump(c.CustomData), jsonDump(c.CatalogInfo),
		jsonDump(c.Prices), jsonDump(c.Categories),
		jsonDump(c.HardwarePlatforms), c.PreviewImageURL, c.CoverImageURL,
		jsonDump(c.PreviewImage), jsonDump(c.CoverImage),
		jsonDump(c.ScreenshotImages), jsonDump(c.Videos), c.DetailsURL,
		seenAt, seenAt, c.PublishedAt, hash,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert creation %s: %w", c.ID, err)
	}
	return nil
}

// GetRecord returns the bookkeeping view of a persisted creation, or nil
// when it was never seen.
func (s *Store) GetRecord(creationID string) (*Record, error) {
	var r Record
	err := s.db.QueryRow(`
		SELECT creation_id, product, COALESCE(title, ''),
		       COALESCE(author_displayname, ''), COALESCE(published_at, ''),
		       COALESCE(first_published_at, ''), COALESCE(updated_at, ''),
		       first_seen_at, last_seen_at, COALESCE(last_seen_ptime, ''),
		       COALESCE(last_posted_at, ''),
		       COALESCE(last_update_posted_at, ''),
		       COALESCE(last_known_hash, '')
		FROM creations
		WHERE creation_id = ?
	`, creationID).Scan(
		&r.CreationID, &r.Product, &r.Title, &r.AuthorDisplayName,
		&r.PublishedAt, &r.FirstPublishedAt, &r.UpdatedAt,
		&r.FirstSeenAt, &r.LastSeenAt, &r.LastSeenPtime,
		&r.LastPostedAt, &r.LastUpdatePostedAt, &r.LastKnownHash,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", creationID, err)
	}
	return &r, nil
}

// GetCreation reconstructs a full Creation value from the persisted columns,
// substituting structural defaults for anything never populated. Used by the
// retry pass, which re-renders from the last persisted snapshot.
func (s *Store) GetCreation(creationID string) (*catalog.Creation, error) {
	var (
		c catalog.Creation

		verified, official, deleted, published, moderated   int
		beta, maintenance, restricted, highReport           int
		marketplace, reviewRevision, achievementFriendly    int
		authorPrice, requiredDLC, requiredMods, locales     string
		releaseNotes, stats, customData, catalogInfo        string
		prices, categories, platforms                       string
		previewImage, coverImage, screenshotImages, videos  string
	)

	err := s.db.QueryRow(`
		SELECT creation_id, product, COALESCE(product_title, ''),
		       COALESCE(title, ''), COALESCE(overview, ''),
		       COALESCE(description, ''), COALESCE(content_type, ''),
		       COALESCE(author_displayname, ''), COALESCE(author_buid, ''),
		       COALESCE(author_verified, 0), COALESCE(author_official, 0),
		       COALESCE(published_buid, ''), COALESCE(updated_buid, ''),
		       COALESCE(created_at, ''), COALESCE(published_at, ''),
		       COALESCE(first_published_at, ''), COALESCE(updated_at, ''),
		       COALESCE(status, ''), COALESCE(moderation_state, ''),
		       COALESCE(error_info, ''), COALESCE(deleted, 0),
		       COALESCE(published, 0), COALESCE(moderated, 0),
		       COALESCE(beta, 0), COALESCE(maintenance, 0),
		       COALESCE(restricted, 0), COALESCE(use_high_report_threshold, 0),
		       COALESCE(marketplace, 0), COALESCE(review_revision, 0),
		       COALESCE(author_price_json, 'null'),
		       COALESCE(required_dlc_json, '[]'),
		       COALESCE(required_mods_json, '[]'),
		       COALESCE(achievement_friendly, 0),
		       COALESCE(default_locale, ''),
		       COALESCE(supported_locales_json, '[]'),
		       COALESCE(release_notes_json, '[]'),
		       COALESCE(stats_json, '{}'),
		       COALESCE(custom_data_json, 'null'),
		       COALESCE(catalog_info_json, '[]'),
		       COALESCE(prices_json, '[]'),
		       COALESCE(categories_json, '[]'),
		       COALESCE(platforms_json, '[]'),
		       COALESCE(preview_image_url, ''), COALESCE(cover_image_url, ''),
		       COALESCE(preview_image_json, '{}'),
		       COALESCE(cover_image_json, '{}'),
		       COALESCE(screenshot_images_json, '[]'),
		       COALESCE(videos_json, '[]'),
		       COALESCE(details_url, '')
		FROM creations
		WHERE creation_id = ?
	`, creationID).Scan(
		&c.ID, &c.Product, &c.ProductTitle, &c.Title, &c.Overview,
		&c.Description, &c.ContentType, &c.AuthorDisplayName, &c.AuthorBUID,
		&verified, &official, &c.PublishedBUID, &c.UpdatedBUID,
		&c.CreatedAt, &c.PublishedAt, &c.FirstPublishedAt, &c.UpdatedAt,
		&c.Status, &c.ModerationState, &c.ErrorInfo, &deleted, &published,
		&moderated, &beta, &maintenance, &restricted, &highReport,
		&marketplace, &reviewRevision, &authorPrice, &requiredDLC,
		&requiredMods, &achievementFriendly, &c.DefaultLocale, &locales,
		&releaseNotes, &stats, &customData, &catalogInfo, &prices,
		&categories, &platforms, &c.PreviewImageURL, &c.CoverImageURL,
		&previewImage, &coverImage, &screenshotImages, &videos,
		&c.DetailsURL,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get creation %s: %w", creationID, err)
	}

	c.AuthorVerified = verified != 0
	c.AuthorOfficial = official != 0
	c.Deleted = deleted != 0
	c.Published = published != 0
	c.Moderated = moderated != 0
	c.Beta = beta != 0
	c.Maintenance = maintenance != 0
	c.Restricted = restricted != 0
	c.UseHighReportThreshold = highReport != 0
	c.Marketplace = marketplace != 0
	c.ReviewRevision = reviewRevision != 0
	c.AchievementFriendly = achievementFriendly != 0

	jsonLoad(authorPrice, &c.AuthorPrice)
	jsonLoad(requiredDLC, &c.RequiredDLC)
	jsonLoad(requiredMods, &c.RequiredMods)
	jsonLoad(locales, &c.SupportedLocales)
	jsonLoad(releaseNotes, &c.ReleaseNotes)
	jsonLoad(stats, &c.Stats)
	jsonLoad(customData, &c.CustomData)
	jsonLoad(catalogInfo, &c.CatalogInfo)
	jsonLoad(prices, &c.Prices)
	jsonLoad(categories, &c.Categories)
	jsonLoad(platforms, &c.HardwarePlatforms)
	jsonLoad(previewImage, &c.PreviewImage)
	jsonLoad(coverImage, &c.CoverImage)
	jsonLoad(screenshotImages, &c.ScreenshotImages)
	jsonLoad(videos, &c.Videos)

	return &c, nil
}

// RecordDelivery appends one attempt row and advances the record's
// last-posted marker for the action kind. The marker moves on every attempt,
// success or not: the retry pass is driven off the posts table, and an
// attempt-advanced marker keeps a permanently failing target from
// re-classifying the same update on every run.
func (s *Store) RecordDelivery(a Attempt) error {
	if a.PostType != "new" && a.PostType != "update" {
		return fmt.Errorf("invalid post type %q", a.PostType)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delivery transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO posts (creation_id, post_id, post_type, target, success,
			error_message, posted_at, title, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.CreationID, a.PostID, a.PostType, a.Target, boolInt(a.Success),
		nullable(a.ErrorMessage), a.PostedAt, nullable(a.Title),
		nullable(a.URL))
	if err != nil {
		return fmt.Errorf("failed to record delivery for %s: %w", a.CreationID, err)
	}

	marker := "last_posted_at"
	if a.PostType == "update" {
		marker = "last_update_posted_at"
	}
	_, err = tx.Exec(
		fmt.Sprintf("UPDATE creations SET %s = ? WHERE creation_id = ?", marker),
		a.PostedAt, a.CreationID)
	if err != nil {
		return fmt.Errorf("failed to advance %s for %s: %w", marker, a.CreationID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delivery for %s: %w", a.CreationID, err)
	}
	return nil
}

// FailedDeliveries returns the distinct (creation, action) pairs with at
// least one failed attempt against the target.
func (s *Store) FailedDeliveries(target string) ([]PendingDelivery, error) {
	rows, err := s.db.Query(`
		SELECT creation_id, post_type
		FROM posts
		WHERE target = ? AND success = 0
		GROUP BY creation_id, post_type
	`, target)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed deliveries: %w", err)
	}
	defer rows.Close()

	return scanPending(rows)
}

// MissingWebhookDeliveries returns creations that were posted on the primary
// target but never successfully delivered to the webhook.
func (s *Store) MissingWebhookDeliveries() ([]PendingDelivery, error) {
	rows, err := s.db.Query(`
		SELECT creations.creation_id, 'new' AS post_type
		FROM creations
		WHERE creations.last_posted_at IS NOT NULL
		  AND NOT EXISTS (
		      SELECT 1 FROM posts
		      WHERE posts.creation_id = creations.creation_id
		        AND posts.target = 'webhook'
		        AND posts.success = 1
		        AND posts.post_type = 'new'
		  )
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get missing webhook deliveries: %w", err)
	}
	defer rows.Close()

	return scanPending(rows)
}

func scanPending(rows *sql.Rows) ([]PendingDelivery, error) {
	var pending []PendingDelivery
	for rows.Next() {
		var p PendingDelivery
		if err := rows.Scan(&p.CreationID, &p.PostType); err != nil {
			return nil, fmt.Errorf("failed to scan pending delivery: %w", err)
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending deliveries: %w", err)
	}
	return pending, nil
}

// GetMeta returns the stored scalar value for key, or "" when absent.
func (s *Store) GetMeta(key string) (string, error) {
	var value sql.NullString
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %s: %w", key, err)
	}
	return value.String, nil
}

func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func jsonDump(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(raw)
}

func jsonLoad(raw string, target any) {
	if raw == "" {
		return
	}
	// Malformed persisted JSON degrades to the structural default.
	_ = json.Unmarshal([]byte(raw), target)
}
