package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	redditTokenURL     = "https://www.reddit.com/api/v1/access_token"
	redditSubmitURL    = "https://oauth.reddit.com/api/submit"
	redditWebSubmitURL = "https://www.reddit.com/api/submit"

	webSubmitRetries = 3
	webSubmitBackoff = 2 * time.Second
)

// Post is one rendered submission. ImagePaths are local files collected for
// targets that can attach them; text-only targets ignore the field.
type Post struct {
	Title      string
	Body       string
	FlairID    string
	ImagePaths []string
}

// Submitter is the posting-API contract: deliver one post, get back the
// remote id and URL or an error.
type Submitter interface {
	Submit(ctx context.Context, post Post) (id, url string, err error)
}

// RedditConfig carries both credential shapes. Which variant is built is
// decided once, at construction.
type RedditConfig struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	Subreddit    string
	RefreshToken string

	SessionCookies string
	CSRFToken      string

	Timeout time.Duration
}

// NewRedditClient picks the client variant from the credential material
// present: session cookies select the web client, OAuth app credentials the
// API client. Missing required configuration is an error, not a fallback.
func NewRedditClient(cfg RedditConfig) (Submitter, error) {
	if cfg.SessionCookies != "" && cfg.CSRFToken != "" {
		if cfg.Subreddit == "" {
			return nil, fmt.Errorf("missing Reddit configuration: REDDIT_SUBREDDIT")
		}
		return &webSubmitter{
			cfg:        cfg,
			httpClient: &http.Client{Timeout: cfg.Timeout},
		}, nil
	}

	var missing []string
	for _, field := range []struct{ name, value string }{
		{"REDDIT_CLIENT_ID", cfg.ClientID},
		{"REDDIT_CLIENT_SECRET", cfg.ClientSecret},
		{"REDDIT_USER_AGENT", cfg.UserAgent},
		{"REDDIT_SUBREDDIT", cfg.Subreddit},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing Reddit configuration: %s", strings.Join(missing, ", "))
	}
	if cfg.RefreshToken == "" && (cfg.Username == "" || cfg.Password == "") {
		return nil, fmt.Errorf("missing Reddit refresh token or username/password credentials")
	}

	return newAppSubmitter(cfg)
}

// appSubmitter posts through the OAuth API using an x/oauth2 token source
// seeded from either a durable refresh token or password credentials.
type appSubmitter struct {
	cfg        RedditConfig
	httpClient *http.Client
}

func newAppSubmitter(cfg RedditConfig) (*appSubmitter, error) {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: redditTokenURL},
	}

	baseCtx := context.WithValue(context.Background(), oauth2.HTTPClient,
		&http.Client{Timeout: cfg.Timeout})

	var source oauth2.TokenSource
	if cfg.RefreshToken != "" {
		source = conf.TokenSource(baseCtx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	} else {
		token, err := conf.PasswordCredentialsToken(baseCtx, cfg.Username, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain Reddit token: %w", err)
		}
		source = conf.TokenSource(baseCtx, token)
	}

	client := oauth2.NewClient(baseCtx, source)
	client.Timeout = cfg.Timeout

	return &appSubmitter{cfg: cfg, httpClient: client}, nil
}

func (s *appSubmitter) Submit(ctx context.Context, post Post) (string, string, error) {
	if len(post.ImagePaths) > 0 {
		slog.Debug("Submitting as self post, image attachments skipped",
			"images", len(post.ImagePaths))
	}

	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("sr", s.cfg.Subreddit)
	form.Set("kind", "self")
	form.Set("title", post.Title)
	form.Set("text", post.Body)
	if post.FlairID != "" {
		form.Set("flair_id", post.FlairID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		redditSubmitURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", fmt.Errorf("failed to build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("reddit submit failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read submit response: %w", err)
	}
	if transientStatus(resp.StatusCode) {
		return "", "", markTransient(
			fmt.Errorf("reddit submit returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("reddit submit returned status %d: %s",
			resp.StatusCode, truncate(string(body), 200))
	}

	var payload struct {
		JSON struct {
			Errors [][]any `json:"errors"`
			Data   struct {
				ID   string `json:"id"`
				Name string `json:"name"`
				URL  string `json:"url"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", "", fmt.Errorf("failed to decode submit response: %w", err)
	}
	if len(payload.JSON.Errors) > 0 {
		return "", "", fmt.Errorf("reddit rejected submission: %v", payload.JSON.Errors)
	}

	id := payload.JSON.Data.ID
	if id == "" {
		id = payload.JSON.Data.Name
	}
	return id, payload.JSON.Data.URL, nil
}

// webSubmitter posts through the web endpoint with a session cookie and
// CSRF token. This path sees flaky upstream behavior, so it retries a fixed
// small number of times with linear backoff on the transient signature.
type webSubmitter struct {
	cfg        RedditConfig
	httpClient *http.Client
}

func (s *webSubmitter) Submit(ctx context.Context, post Post) (string, string, error) {
	var lastErr error
	for attempt := 1; attempt <= webSubmitRetries; attempt++ {
		id, postURL, err := s.submitOnce(ctx, post)
		if err == nil {
			return id, postURL, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return "", "", err
		}
		if attempt < webSubmitRetries {
			delay := time.Duration(attempt) * webSubmitBackoff
			slog.Warn("Transient web submit failure, backing off",
				"attempt", attempt, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", "", ctx.Err()
			}
		}
	}
	return "", "", lastErr
}

func (s *webSubmitter) submitOnce(ctx context.Context, post Post) (string, string, error) {
	form := url.Values{}
	form.Set("sr", s.cfg.Subreddit)
	form.Set("kind", "self")
	form.Set("title", post.Title)
	form.Set("text", post.Body)
	if post.FlairID != "" {
		form.Set("flair_id", post.FlairID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		redditWebSubmitURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", fmt.Errorf("failed to build web submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cookie", s.cfg.SessionCookies)
	req.Header.Set("x-csrf-token", s.cfg.CSRFToken)
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", "", markTransient(fmt.Errorf("web submit failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read web submit response: %w", err)
	}
	if transientStatus(resp.StatusCode) {
		return "", "", markTransient(
			fmt.Errorf("web submit returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("web submit returned status %d: %s",
			resp.StatusCode, truncate(string(body), 200))
	}

	var payload struct {
		Success bool `json:"success"`
		Data    struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"data"`
	}
	// The web endpoint's response shape varies; a decode failure still
	// counts as a submitted post when the status was OK.
	if err := json.Unmarshal(body, &payload); err != nil {
		return "submitted", "", nil
	}
	return payload.Data.ID, payload.Data.URL, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
