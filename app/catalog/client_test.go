package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestBnetKeyResolvedOnceFromCore(t *testing.T) {
	coreHits := 0
	core := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		coreHits++
		json.NewEncoder(w).Encode(map[string]any{
			"ugc": map[string]any{"bnetKey": "resolved-key"},
		})
	}))
	defer core.Close()

	client := NewClient(ClientOptions{
		CoreURL: core.URL,
		Timeout: 5 * time.Second,
	})

	key, err := client.BnetKey(context.Background())
	if err != nil {
		t.Fatalf("BnetKey failed: %v", err)
	}
	if key != "resolved-key" {
		t.Errorf("Expected key 'resolved-key', got '%s'", key)
	}

	if _, err := client.BnetKey(context.Background()); err != nil {
		t.Fatalf("Second BnetKey call failed: %v", err)
	}
	if coreHits != 1 {
		t.Errorf("Expected core payload fetched once, got %d hits", coreHits)
	}
}

func TestBnetKeyConfiguredSkipsCore(t *testing.T) {
	client := NewClient(ClientOptions{
		CoreURL: "http://127.0.0.1:1", // never reached
		BnetKey: "configured-key",
		Timeout: time.Second,
	})

	key, err := client.BnetKey(context.Background())
	if err != nil {
		t.Fatalf("BnetKey failed: %v", err)
	}
	if key != "configured-key" {
		t.Errorf("Expected configured key, got '%s'", key)
	}
}

func TestFetchPageUnwrapsPlatformEnvelope(t *testing.T) {
	var gotProduct, gotKey string
	content := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotProduct = r.Header.Get("x-bnet-product")
		gotKey = r.Header.Get("x-bnet-key")
		json.NewEncoder(w).Encode(map[string]any{
			"platform": map[string]any{
				"response": map[string]any{
					"size": 2,
					"data": []any{
						map[string]any{
							"content_id": "a1",
							"product":    "FALLOUT4",
							"title":      "First",
						},
						// Some responses wrap each item under a data key.
						map[string]any{
							"data": map[string]any{
								"content_id": "a2",
								"product":    "FALLOUT4",
								"title":      "Second",
							},
						},
					},
				},
			},
		})
	}))
	defer content.Close()

	client := NewClient(ClientOptions{
		ContentURL: content.URL,
		BnetKey:    "k",
		Timeout:    5 * time.Second,
	})

	creations, err := client.FetchPage(context.Background(), PageRequest{
		Product: "FALLOUT4", Sort: "first_ptime", TimePeriod: "all_time",
		Size: 20, Page: 1, CountsPlatform: "ALL",
	})
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	if gotProduct != "FALLOUT4" {
		t.Errorf("Expected x-bnet-product header 'FALLOUT4', got '%s'", gotProduct)
	}
	if gotKey != "k" {
		t.Errorf("Expected x-bnet-key header 'k', got '%s'", gotKey)
	}
	if len(creations) != 2 {
		t.Fatalf("Expected 2 creations, got %d", len(creations))
	}
	if creations[0].ID != "a1" || creations[1].ID != "a2" {
		t.Errorf("Expected ids a1/a2, got %s/%s", creations[0].ID, creations[1].ID)
	}
	if creations[1].Title != "Second" {
		t.Errorf("Expected nested item unwrapped, got title '%s'", creations[1].Title)
	}
}

func TestFetchPageErrorStatus(t *testing.T) {
	content := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer content.Close()

	client := NewClient(ClientOptions{
		ContentURL: content.URL,
		BnetKey:    "k",
		Timeout:    5 * time.Second,
	})

	_, err := client.FetchPage(context.Background(), PageRequest{
		Product: "FALLOUT4", Sort: "first_ptime", TimePeriod: "all_time",
		Size: 20, Page: 1, CountsPlatform: "ALL",
	})
	if err == nil {
		t.Error("Expected error for 403 response, got nil")
	}
}
