package publish

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modhaven/creations-bot/app/catalog"
	"github.com/modhaven/creations-bot/app/database"
	"github.com/modhaven/creations-bot/app/pipeline"
)

type fakeSubmitter struct {
	submitted []Post
	err       error
}

func (f *fakeSubmitter) Submit(_ context.Context, post Post) (string, string, error) {
	f.submitted = append(f.submitted, post)
	if f.err != nil {
		return "", "", f.err
	}
	return "t3_abc", "https://reddit.com/r/test/t3_abc", nil
}

func orchestratorStore(t *testing.T) *database.Store {
	t.Helper()
	db, err := database.NewConnection(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	store := database.NewStore(db)
	t.Cleanup(func() { store.Close() })
	return store
}

func writeTemplates(t *testing.T) (post, webhook, wiki string) {
	t.Helper()
	dir := t.TempDir()
	post = filepath.Join(dir, "post.md")
	webhook = filepath.Join(dir, "discord.md")
	wiki = filepath.Join(dir, "wiki.txt")
	for path, content := range map[string]string{
		post:    "{title} by {author}",
		webhook: "New: {title} - {details_url}",
		wiki:    "== {title} ==",
	} {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write template: %v", err)
		}
	}
	return post, webhook, wiki
}

func deliverableCreation(id string) catalog.Creation {
	return catalog.Creation{
		ID:                id,
		Product:           "FALLOUT4",
		Title:             "Test Creation",
		AuthorDisplayName: "creator",
		PublishedAt:       "2026-01-10T12:00:00Z",
		FirstPublishedAt:  "2026-01-10T12:00:00Z",
	}
}

func TestHandleDeliversToBothTargets(t *testing.T) {
	store := orchestratorStore(t)
	c := deliverableCreation("o-1")
	if err := store.UpsertCreation(c, "2026-01-11T00:00:00Z", "h"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	webhookHits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookHits++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()
	webhook, err := NewWebhookClient(server.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewWebhookClient failed: %v", err)
	}

	reddit := &fakeSubmitter{}
	post, discord, wiki := writeTemplates(t)
	o := NewOrchestrator(Options{
		Store:           store,
		Reddit:          reddit,
		Webhook:         webhook,
		PostTemplate:    post,
		WebhookTemplate: discord,
		WikiTemplate:    wiki,
		FlairIDs:        map[string]string{"FALLOUT4": "flair-1"},
		MaxPosts:        -1,
	})

	if err := o.Handle(context.Background(), pipeline.ActionNew, c); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(reddit.submitted) != 1 {
		t.Fatalf("Expected 1 reddit submission, got %d", len(reddit.submitted))
	}
	if reddit.submitted[0].FlairID != "flair-1" {
		t.Errorf("Expected product flair applied, got %q", reddit.submitted[0].FlairID)
	}
	if webhookHits != 1 {
		t.Errorf("Expected 1 webhook delivery, got %d", webhookHits)
	}
	if o.Posted() != 1 {
		t.Errorf("Expected posted count 1, got %d", o.Posted())
	}

	record, err := store.GetRecord("o-1")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if record.LastPostedAt == "" {
		t.Error("Expected last_posted_at advanced after delivery")
	}

	// One attempt row per target, both successful.
	failed, err := store.FailedDeliveries(TargetReddit)
	if err != nil {
		t.Fatalf("FailedDeliveries failed: %v", err)
	}
	if len(failed) != 0 {
		t.Errorf("Expected no failed reddit deliveries, got %d", len(failed))
	}
	missing, err := store.MissingWebhookDeliveries()
	if err != nil {
		t.Fatalf("MissingWebhookDeliveries failed: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("Expected no missing webhook deliveries, got %d", len(missing))
	}
}

func TestHandleRecordsFailureAndRetryAppends(t *testing.T) {
	store := orchestratorStore(t)
	c := deliverableCreation("o-2")
	if err := store.UpsertCreation(c, "2026-01-11T00:00:00Z", "h"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	reddit := &fakeSubmitter{err: errors.New("503 from submit endpoint")}
	post, discord, wiki := writeTemplates(t)
	o := NewOrchestrator(Options{
		Store:           store,
		Reddit:          reddit,
		PostTemplate:    post,
		WebhookTemplate: discord,
		WikiTemplate:    wiki,
		MaxPosts:        -1,
	})

	// The delivery failure is recorded, not returned.
	if err := o.Handle(context.Background(), pipeline.ActionNew, c); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	pending, err := store.FailedDeliveries(TargetReddit)
	if err != nil {
		t.Fatalf("FailedDeliveries failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending reddit delivery, got %d", len(pending))
	}

	record, err := store.GetRecord("o-2")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if record.LastPostedAt == "" {
		t.Error("Expected marker advanced even for a failed attempt")
	}
	firstMarker := record.LastPostedAt

	// The retry succeeds and appends a second row without touching the first.
	reddit.err = nil
	if err := o.RetryFailed(context.Background()); err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if len(reddit.submitted) != 2 {
		t.Fatalf("Expected 2 submissions total, got %d", len(reddit.submitted))
	}

	record, err = store.GetRecord("o-2")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if record.LastPostedAt < firstMarker {
		t.Errorf("Expected marker to move forward, got %s after %s",
			record.LastPostedAt, firstMarker)
	}

	// The original failed row stays in place, so the pair still shows up in
	// the failed set until a history-aware caller inspects the latest row.
	snapshot, err := store.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if len(snapshot.Posts) != 2 {
		t.Errorf("Expected 2 attempt rows after retry, got %d", len(snapshot.Posts))
	}
}

type failingLedger struct {
	*database.NullStore
	recordErr error
}

func (f *failingLedger) RecordDelivery(database.Attempt) error {
	return f.recordErr
}

func TestHandleLedgerWriteFailureAbortsRun(t *testing.T) {
	boom := errors.New("disk full")
	store := &failingLedger{NullStore: database.NewNullStore(), recordErr: boom}
	reddit := &fakeSubmitter{}
	post, discord, wiki := writeTemplates(t)
	o := NewOrchestrator(Options{
		Store:           store,
		Reddit:          reddit,
		PostTemplate:    post,
		WebhookTemplate: discord,
		WikiTemplate:    wiki,
		MaxPosts:        -1,
	})

	// The submission went out, so losing the attempt row must not be silent:
	// the next run would deliver the same entry again with no trace.
	err := o.Handle(context.Background(), pipeline.ActionNew, deliverableCreation("o-7"))
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the ledger write error returned, got %v", err)
	}
	if len(reddit.submitted) != 1 {
		t.Fatalf("Expected the submission to have been attempted, got %d", len(reddit.submitted))
	}
}

func TestHandleUpdateIsLoggedOnly(t *testing.T) {
	store := orchestratorStore(t)
	reddit := &fakeSubmitter{}
	post, discord, wiki := writeTemplates(t)
	o := NewOrchestrator(Options{
		Store:           store,
		Reddit:          reddit,
		PostTemplate:    post,
		WebhookTemplate: discord,
		WikiTemplate:    wiki,
		MaxPosts:        -1,
	})

	if err := o.Handle(context.Background(), pipeline.ActionUpdate, deliverableCreation("o-3")); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(reddit.submitted) != 0 {
		t.Errorf("Expected no submissions for update actions, got %d", len(reddit.submitted))
	}
	if o.Posted() != 0 {
		t.Errorf("Expected posted count 0, got %d", o.Posted())
	}
}

func TestHandleRespectsMaxPosts(t *testing.T) {
	store := orchestratorStore(t)
	reddit := &fakeSubmitter{}
	post, discord, wiki := writeTemplates(t)
	o := NewOrchestrator(Options{
		Store:           store,
		Reddit:          reddit,
		PostTemplate:    post,
		WebhookTemplate: discord,
		WikiTemplate:    wiki,
		MaxPosts:        1,
	})

	for i, id := range []string{"m-1", "m-2", "m-3"} {
		c := deliverableCreation(id)
		if err := store.UpsertCreation(c, "2026-01-11T00:00:00Z", "h"); err != nil {
			t.Fatalf("Upsert %d failed: %v", i, err)
		}
		if err := o.Handle(context.Background(), pipeline.ActionNew, c); err != nil {
			t.Fatalf("Handle %d failed: %v", i, err)
		}
	}

	if len(reddit.submitted) != 1 {
		t.Errorf("Expected the post cap to hold at 1, got %d", len(reddit.submitted))
	}
}

func TestHandleDryRunDeliversNothing(t *testing.T) {
	store := orchestratorStore(t)
	reddit := &fakeSubmitter{}
	post, discord, wiki := writeTemplates(t)
	o := NewOrchestrator(Options{
		Store:           store,
		Reddit:          reddit,
		PostTemplate:    post,
		WebhookTemplate: discord,
		WikiTemplate:    wiki,
		DryRun:          true,
		MaxPosts:        -1,
	})

	if err := o.Handle(context.Background(), pipeline.ActionNew, deliverableCreation("o-4")); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(reddit.submitted) != 0 {
		t.Errorf("Expected no submissions under dry run, got %d", len(reddit.submitted))
	}
	if o.DryRunCount() != 1 {
		t.Errorf("Expected dry run count 1, got %d", o.DryRunCount())
	}
}

func TestHandleManualOutputWritesBundles(t *testing.T) {
	store := orchestratorStore(t)
	post, discord, wiki := writeTemplates(t)
	outDir := t.TempDir()
	o := NewOrchestrator(Options{
		Store:           store,
		PostTemplate:    post,
		WebhookTemplate: discord,
		WikiTemplate:    wiki,
		ManualOutputDir: outDir,
		MaxPosts:        -1,
	})

	if err := o.Handle(context.Background(), pipeline.ActionNew, deliverableCreation("o-5")); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	baseName := "2026-01-10_creator_Test_Creation"
	redditPath := filepath.Join(outDir, "reddit", baseName, baseName+".md")
	if _, err := os.Stat(redditPath); err != nil {
		t.Errorf("Expected reddit bundle at %s: %v", redditPath, err)
	}
	discordPath := filepath.Join(outDir, "discord", baseName+".md")
	if _, err := os.Stat(discordPath); err != nil {
		t.Errorf("Expected discord post at %s: %v", discordPath, err)
	}
	wikiPath := filepath.Join(outDir, "wiki", baseName+".txt")
	if _, err := os.Stat(wikiPath); err != nil {
		t.Errorf("Expected wiki post at %s: %v", wikiPath, err)
	}
	if o.Posted() != 1 {
		t.Errorf("Expected manual bundles counted as posted, got %d", o.Posted())
	}
}

func TestRetryMissingWebhookDeliveries(t *testing.T) {
	store := orchestratorStore(t)
	c := deliverableCreation("o-6")
	if err := store.UpsertCreation(c, "2026-01-11T00:00:00Z", "h"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	// Posted on reddit previously, webhook never attempted.
	if err := store.RecordDelivery(database.Attempt{
		CreationID: "o-6", PostID: "r1", PostType: "new", Target: TargetReddit,
		Success: true, PostedAt: "2026-01-11T01:00:00Z",
	}); err != nil {
		t.Fatalf("RecordDelivery failed: %v", err)
	}

	webhookHits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookHits++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()
	webhook, err := NewWebhookClient(server.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewWebhookClient failed: %v", err)
	}

	post, discord, wiki := writeTemplates(t)
	o := NewOrchestrator(Options{
		Store:           store,
		Webhook:         webhook,
		PostTemplate:    post,
		WebhookTemplate: discord,
		WikiTemplate:    wiki,
		MaxPosts:        -1,
	})

	if err := o.RetryFailed(context.Background()); err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if webhookHits != 1 {
		t.Errorf("Expected 1 webhook retry delivery, got %d", webhookHits)
	}

	missing, err := store.MissingWebhookDeliveries()
	if err != nil {
		t.Fatalf("MissingWebhookDeliveries failed: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("Expected no missing webhook deliveries after retry, got %d", len(missing))
	}
}
