package database

import (
	"testing"

	"github.com/modhaven/creations-bot/app/catalog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := NewConnection(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	store := NewStore(db)
	t.Cleanup(func() { store.Close() })
	return store
}

func testCreation(id string) catalog.Creation {
	return catalog.Creation{
		ID:                id,
		Product:           "FALLOUT4",
		Title:             "Test Creation",
		AuthorDisplayName: "testauthor",
		PublishedAt:       "2026-01-10T12:00:00Z",
		FirstPublishedAt:  "2026-01-10T12:00:00Z",
		UpdatedAt:         "2026-01-10T12:00:00Z",
		HardwarePlatforms: []string{"WINDOWS", "XBOX"},
		RequiredMods:      []string{},
		Stats:             map[string]any{"likes": float64(3)},
	}
}

func TestUpsertCreationFirstSeenWins(t *testing.T) {
	store := newTestStore(t)
	c := testCreation("mod-1")

	if err := store.UpsertCreation(c, "2026-01-11T00:00:00Z", "hash-a"); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}

	c.Title = "Renamed Creation"
	if err := store.UpsertCreation(c, "2026-01-12T00:00:00Z", "hash-b"); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	record, err := store.GetRecord("mod-1")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if record == nil {
		t.Fatal("Expected record after upsert, got nil")
	}
	if record.FirstSeenAt != "2026-01-11T00:00:00Z" {
		t.Errorf("Expected first_seen_at to keep its original value, got %s", record.FirstSeenAt)
	}
	if record.LastSeenAt != "2026-01-12T00:00:00Z" {
		t.Errorf("Expected last_seen_at to refresh, got %s", record.LastSeenAt)
	}
	if record.Title != "Renamed Creation" {
		t.Errorf("Expected title to refresh, got %s", record.Title)
	}
	if record.LastKnownHash != "hash-b" {
		t.Errorf("Expected hash to refresh, got %s", record.LastKnownHash)
	}
}

func TestGetRecordMissing(t *testing.T) {
	store := newTestStore(t)

	record, err := store.GetRecord("never-seen")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if record != nil {
		t.Errorf("Expected nil record for unseen creation, got %+v", record)
	}
}

func TestGetCreationRoundTrip(t *testing.T) {
	store := newTestStore(t)
	c := testCreation("mod-2")
	c.Prices = []map[string]any{{"amount": float64(500), "currency_type": "virtual"}}

	if err := store.UpsertCreation(c, "2026-01-11T00:00:00Z", "h"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.GetCreation("mod-2")
	if err != nil {
		t.Fatalf("GetCreation failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected creation, got nil")
	}
	if got.Title != c.Title {
		t.Errorf("Expected title %q, got %q", c.Title, got.Title)
	}
	if len(got.HardwarePlatforms) != 2 || got.HardwarePlatforms[0] != "WINDOWS" {
		t.Errorf("Expected platforms to round-trip, got %v", got.HardwarePlatforms)
	}
	if len(got.Prices) != 1 || got.Prices[0]["amount"] != float64(500) {
		t.Errorf("Expected prices to round-trip, got %v", got.Prices)
	}
	if got.Stats["likes"] != float64(3) {
		t.Errorf("Expected stats to round-trip, got %v", got.Stats)
	}
}

func TestRecordDeliveryAdvancesMarker(t *testing.T) {
	store := newTestStore(t)
	if err := store.UpsertCreation(testCreation("mod-3"), "2026-01-11T00:00:00Z", "h"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	err := store.RecordDelivery(Attempt{
		CreationID: "mod-3",
		PostID:     "abc123",
		PostType:   "new",
		Target:     "reddit",
		Success:    true,
		PostedAt:   "2026-01-11T01:00:00Z",
		Title:      "Test Creation",
		URL:        "https://reddit.com/r/test/abc123",
	})
	if err != nil {
		t.Fatalf("RecordDelivery failed: %v", err)
	}

	record, err := store.GetRecord("mod-3")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if record.LastPostedAt != "2026-01-11T01:00:00Z" {
		t.Errorf("Expected last_posted_at to advance, got %s", record.LastPostedAt)
	}
	if record.LastUpdatePostedAt != "" {
		t.Errorf("Expected last_update_posted_at untouched, got %s", record.LastUpdatePostedAt)
	}
}

func TestRecordDeliveryAdvancesMarkerOnFailure(t *testing.T) {
	store := newTestStore(t)
	if err := store.UpsertCreation(testCreation("mod-4"), "2026-01-11T00:00:00Z", "h"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	err := store.RecordDelivery(Attempt{
		CreationID:   "mod-4",
		PostID:       "attempt-1",
		PostType:     "update",
		Target:       "reddit",
		Success:      false,
		ErrorMessage: "503 from submit endpoint",
		PostedAt:     "2026-01-11T02:00:00Z",
	})
	if err != nil {
		t.Fatalf("RecordDelivery failed: %v", err)
	}

	record, err := store.GetRecord("mod-4")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if record.LastUpdatePostedAt != "2026-01-11T02:00:00Z" {
		t.Errorf("Expected last_update_posted_at to advance on a failed attempt, got %s",
			record.LastUpdatePostedAt)
	}
}

func TestRecordDeliveryRejectsUnknownPostType(t *testing.T) {
	store := newTestStore(t)

	err := store.RecordDelivery(Attempt{
		CreationID: "mod-5",
		PostID:     "x",
		PostType:   "repost",
		Target:     "reddit",
		PostedAt:   "2026-01-11T00:00:00Z",
	})
	if err == nil {
		t.Error("Expected error for unknown post type, got nil")
	}
}

func TestFailedDeliveries(t *testing.T) {
	store := newTestStore(t)
	if err := store.UpsertCreation(testCreation("mod-6"), "2026-01-11T00:00:00Z", "h"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	attempts := []Attempt{
		{CreationID: "mod-6", PostID: "f1", PostType: "new", Target: "reddit",
			Success: false, ErrorMessage: "timeout", PostedAt: "2026-01-11T01:00:00Z"},
		{CreationID: "mod-6", PostID: "f2", PostType: "new", Target: "reddit",
			Success: false, ErrorMessage: "timeout again", PostedAt: "2026-01-11T02:00:00Z"},
		{CreationID: "mod-6", PostID: "w1", PostType: "new", Target: "webhook",
			Success: true, PostedAt: "2026-01-11T03:00:00Z"},
	}
	for _, a := range attempts {
		if err := store.RecordDelivery(a); err != nil {
			t.Fatalf("RecordDelivery failed: %v", err)
		}
	}

	pending, err := store.FailedDeliveries("reddit")
	if err != nil {
		t.Fatalf("FailedDeliveries failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending delivery (grouped), got %d", len(pending))
	}
	if pending[0].CreationID != "mod-6" || pending[0].PostType != "new" {
		t.Errorf("Unexpected pending delivery: %+v", pending[0])
	}

	webhookPending, err := store.FailedDeliveries("webhook")
	if err != nil {
		t.Fatalf("FailedDeliveries failed: %v", err)
	}
	if len(webhookPending) != 0 {
		t.Errorf("Expected no failed webhook deliveries, got %d", len(webhookPending))
	}
}

func TestMissingWebhookDeliveries(t *testing.T) {
	store := newTestStore(t)

	// Posted to reddit, never delivered to the webhook.
	if err := store.UpsertCreation(testCreation("mod-7"), "2026-01-11T00:00:00Z", "h"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.RecordDelivery(Attempt{
		CreationID: "mod-7", PostID: "r1", PostType: "new", Target: "reddit",
		Success: true, PostedAt: "2026-01-11T01:00:00Z",
	}); err != nil {
		t.Fatalf("RecordDelivery failed: %v", err)
	}

	// Posted to both targets.
	if err := store.UpsertCreation(testCreation("mod-8"), "2026-01-11T00:00:00Z", "h"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	for _, a := range []Attempt{
		{CreationID: "mod-8", PostID: "r2", PostType: "new", Target: "reddit",
			Success: true, PostedAt: "2026-01-11T01:00:00Z"},
		{CreationID: "mod-8", PostID: "w2", PostType: "new", Target: "webhook",
			Success: true, PostedAt: "2026-01-11T01:00:00Z"},
	} {
		if err := store.RecordDelivery(a); err != nil {
			t.Fatalf("RecordDelivery failed: %v", err)
		}
	}

	// Never posted anywhere.
	if err := store.UpsertCreation(testCreation("mod-9"), "2026-01-11T00:00:00Z", "h"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	missing, err := store.MissingWebhookDeliveries()
	if err != nil {
		t.Fatalf("MissingWebhookDeliveries failed: %v", err)
	}
	if len(missing) != 1 {
		t.Fatalf("Expected 1 missing webhook delivery, got %d", len(missing))
	}
	if missing[0].CreationID != "mod-7" || missing[0].PostType != "new" {
		t.Errorf("Unexpected missing delivery: %+v", missing[0])
	}
}

func TestMetaRoundTrip(t *testing.T) {
	store := newTestStore(t)

	value, err := store.GetMeta("absent")
	if err != nil {
		t.Fatalf("GetMeta failed: %v", err)
	}
	if value != "" {
		t.Errorf("Expected empty value for absent key, got %q", value)
	}

	if err := store.SetMeta("last_seen_first_ptime:FALLOUT4", "2026-01-10T12:00:00Z"); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}
	if err := store.SetMeta("last_seen_first_ptime:FALLOUT4", "2026-01-11T12:00:00Z"); err != nil {
		t.Fatalf("SetMeta overwrite failed: %v", err)
	}

	value, err = store.GetMeta("last_seen_first_ptime:FALLOUT4")
	if err != nil {
		t.Fatalf("GetMeta failed: %v", err)
	}
	if value != "2026-01-11T12:00:00Z" {
		t.Errorf("Expected overwritten value, got %q", value)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	source := newTestStore(t)
	c := testCreation("mod-10")
	if err := source.UpsertCreation(c, "2026-01-11T00:00:00Z", "hash-x"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := source.RecordDelivery(Attempt{
		CreationID: "mod-10", PostID: "p1", PostType: "new", Target: "reddit",
		Success: true, PostedAt: "2026-01-11T01:00:00Z", Title: "Test Creation",
	}); err != nil {
		t.Fatalf("RecordDelivery failed: %v", err)
	}
	if err := source.SetMeta("last_seen_first_ptime:FALLOUT4", "2026-01-10T12:00:00Z"); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}

	snapshot, err := source.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(snapshot.Creations) != 1 || len(snapshot.Posts) != 1 || len(snapshot.Meta) != 1 {
		t.Fatalf("Unexpected snapshot shape: %d creations, %d posts, %d meta",
			len(snapshot.Creations), len(snapshot.Posts), len(snapshot.Meta))
	}

	dest := newTestStore(t)
	if err := dest.Import(snapshot); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	record, err := dest.GetRecord("mod-10")
	if err != nil {
		t.Fatalf("GetRecord after import failed: %v", err)
	}
	if record == nil {
		t.Fatal("Expected imported record, got nil")
	}
	if record.LastKnownHash != "hash-x" {
		t.Errorf("Expected imported hash 'hash-x', got %q", record.LastKnownHash)
	}
	if record.LastPostedAt != "2026-01-11T01:00:00Z" {
		t.Errorf("Expected imported marker, got %q", record.LastPostedAt)
	}

	value, err := dest.GetMeta("last_seen_first_ptime:FALLOUT4")
	if err != nil {
		t.Fatalf("GetMeta after import failed: %v", err)
	}
	if value != "2026-01-10T12:00:00Z" {
		t.Errorf("Expected imported meta value, got %q", value)
	}
}
