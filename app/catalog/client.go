package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client fetches catalog pages. The bnet key is resolved lazily from the
// core payload on first use and cached for the lifetime of the client; the
// walker drives fetches sequentially, so no locking is needed.
type Client struct {
	coreURL    string
	contentURL string
	bnetKey    string
	bearer     string
	userAgent  string
	httpClient *http.Client
}

type ClientOptions struct {
	CoreURL    string
	ContentURL string
	BnetKey    string
	Bearer     string
	UserAgent  string
	Timeout    time.Duration
}

// PageRequest identifies one catalog page. Results come back newest-first
// by the configured sort field.
type PageRequest struct {
	Product        string
	Sort           string
	TimePeriod     string
	Size           int
	Page           int
	CountsPlatform string
	URLTemplate    string
}

func NewClient(opts ClientOptions) *Client {
	return &Client{
		coreURL:    opts.CoreURL,
		contentURL: opts.ContentURL,
		bnetKey:    opts.BnetKey,
		bearer:     opts.Bearer,
		userAgent:  opts.UserAgent,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}
}

// BnetKey returns the configured key, resolving ugc.bnetKey from the core
// payload when none was supplied.
func (c *Client) BnetKey(ctx context.Context) (string, error) {
	if c.bnetKey != "" {
		return c.bnetKey, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.coreURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build core request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch core payload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("core payload request returned status %d", resp.StatusCode)
	}

	var payload struct {
		UGC struct {
			BnetKey string `json:"bnetKey"`
		} `json:"ugc"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode core payload: %w", err)
	}
	if payload.UGC.BnetKey == "" {
		return "", fmt.Errorf("core payload has no ugc.bnetKey")
	}

	c.bnetKey = payload.UGC.BnetKey
	return c.bnetKey, nil
}

// FetchPage retrieves one page of catalog items and normalizes each into a
// Creation.
func (c *Client) FetchPage(ctx context.Context, page PageRequest) ([]Creation, error) {
	key, err := c.BnetKey(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("product", page.Product)
	params.Set("sort", page.Sort)
	params.Set("time_period", page.TimePeriod)
	params.Set("size", strconv.Itoa(page.Size))
	params.Set("page", strconv.Itoa(page.Page))
	params.Set("counts_platform", page.CountsPlatform)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.contentURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build content request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-bnet-product", page.Product)
	req.Header.Set("x-bnet-key", key)
	if c.bearer != "" {
		req.Header.Set("authorization", "Bearer "+c.bearer)
	}
	if c.userAgent != "" {
		req.Header.Set("user-agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content page %d: %w", page.Page, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read content response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("content request returned status %d", resp.StatusCode)
	}

	var payload struct {
		Platform struct {
			Response struct {
				Data []json.RawMessage `json:"data"`
				Size int               `json:"size"`
			} `json:"response"`
		} `json:"platform"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode content response: %w", err)
	}

	items := payload.Platform.Response.Data
	slog.Debug("Fetched catalog items",
		"count", len(items),
		"requested", page.Size,
		"reported", payload.Platform.Response.Size)

	creations := make([]Creation, 0, len(items))
	for _, raw := range items {
		var item map[string]any
		if err := json.Unmarshal(raw, &item); err != nil {
			slog.Warn("Skipping undecodable catalog item", "error", err)
			continue
		}
		// Some responses wrap each item under a data key.
		if nested, ok := item["data"].(map[string]any); ok {
			item = nested
		}
		creations = append(creations, ParseCreation(item, page.URLTemplate))
	}

	return creations, nil
}
