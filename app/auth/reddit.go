package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/modhaven/creations-bot/app/database"
)

const (
	authorizeURL = "https://www.reddit.com/api/v1/authorize"
	tokenURL     = "https://www.reddit.com/api/v1/access_token"

	// MetaRefreshToken is the ledger meta key the obtained token lands in.
	MetaRefreshToken = "reddit_refresh_token"

	callbackWait = 5 * time.Minute
)

// RedditAuthorizer runs the one-shot authorization-code flow: print the
// consent URL, wait for the browser redirect on the configured callback
// address, exchange the code, and persist the refresh token in the ledger.
type RedditAuthorizer struct {
	clientID     string
	clientSecret string
	redirectURI  string
	store        database.Ledger
}

func NewRedditAuthorizer(clientID, clientSecret, redirectURI string, store database.Ledger) (*RedditAuthorizer, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("reddit client id and secret are required for authorization")
	}
	if redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}
	return &RedditAuthorizer{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		store:        store,
	}, nil
}

type callbackResult struct {
	code string
	err  error
}

// Authorize blocks until the callback arrives, the wait times out, or ctx is
// cancelled. On success the refresh token is stored under MetaRefreshToken.
func (a *RedditAuthorizer) Authorize(ctx context.Context) error {
	target, err := url.Parse(a.redirectURI)
	if err != nil {
		return fmt.Errorf("invalid redirect uri: %w", err)
	}

	state, err := nonce()
	if err != nil {
		return err
	}

	conf := &oauth2.Config{
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
		RedirectURL:  a.redirectURI,
		Scopes:       []string{"identity", "submit", "flair"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  authorizeURL,
			TokenURL: tokenURL,
		},
	}
	consentURL := conf.AuthCodeURL(state, oauth2.SetAuthURLParam("duration", "permanent"))

	fmt.Printf("Open this URL in your browser and approve access:\n\n%s\n\n", consentURL)
	slog.Info("Waiting for authorization callback", "address", target.Host)

	results := make(chan callbackResult, 1)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET(target.Path, func(c *gin.Context) {
		if errCode := c.Query("error"); errCode != "" {
			c.String(http.StatusBadRequest, "Authorization denied: %s", errCode)
			results <- callbackResult{err: fmt.Errorf("authorization denied: %s", errCode)}
			return
		}
		if c.Query("state") != state {
			c.String(http.StatusBadRequest, "State mismatch, please retry.")
			results <- callbackResult{err: fmt.Errorf("authorization state mismatch")}
			return
		}
		code := c.Query("code")
		if code == "" {
			c.String(http.StatusBadRequest, "Missing authorization code.")
			results <- callbackResult{err: fmt.Errorf("callback missing authorization code")}
			return
		}
		c.String(http.StatusOK, "Authorization received, you can close this window.")
		results <- callbackResult{code: code}
	})

	srv := &http.Server{Addr: target.Host, Handler: router}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	var result callbackResult
	select {
	case result = <-results:
	case err := <-serveErr:
		return fmt.Errorf("callback listener failed: %w", err)
	case <-time.After(callbackWait):
		return fmt.Errorf("timed out waiting for authorization callback")
	case <-ctx.Done():
		return ctx.Err()
	}
	if result.err != nil {
		return result.err
	}

	token, err := conf.Exchange(ctx, result.code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		return fmt.Errorf("authorization response carried no refresh token")
	}

	if err := a.store.SetMeta(MetaRefreshToken, token.RefreshToken); err != nil {
		return err
	}
	slog.Info("Stored reddit refresh token")
	return nil
}

func nonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
