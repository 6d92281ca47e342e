package github

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/sevigo/review-relay/internal/config"
	"github.com/sevigo/review-relay/internal/core"
)

// tokenExpiryMargin is subtracted from a cached token's expiry so a token is
// never handed out moments before the host stops accepting it.
const tokenExpiryMargin = 60 * time.Second

// InstallationTokenSource exchanges the App's signed JWT for a short-lived
// installation token.
type InstallationTokenSource interface {
	CreateToken(ctx context.Context, installationID int64) (core.AccessToken, error)
}

type appTokenSource struct {
	client  *github.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewAppTokenSource builds a token source from the GitHub App credentials.
// The AppsTransport signs a JWT (issuer = app id, expiry <= 10 minutes) for
// every exchange request.
func NewAppTokenSource(cfg *config.Config, limiter *rate.Limiter, logger *slog.Logger) (InstallationTokenSource, error) {
	privateKey, err := os.ReadFile(cfg.GitHub.PrivateKeyPath)
	if err != nil {
		return nil, core.NewAuthError(err, "failed to read GitHub App private key")
	}

	appTransport, err := ghinstallation.NewAppsTransport(http.DefaultTransport, cfg.GitHub.AppID, privateKey)
	if err != nil {
		return nil, core.NewAuthError(err, "failed to create GitHub App transport")
	}

	return &appTokenSource{
		client:  github.NewClient(&http.Client{Transport: appTransport}),
		limiter: limiter,
		logger:  logger,
	}, nil
}

func (s *appTokenSource) CreateToken(ctx context.Context, installationID int64) (core.AccessToken, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return core.AccessToken{}, core.NewAuthError(err, "token exchange aborted")
		}
	}

	token, _, err := s.client.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return core.AccessToken{}, core.NewAuthError(err, "token exchange rejected for installation %d", installationID)
	}
	if token.GetToken() == "" {
		return core.AccessToken{}, core.NewAuthError(nil, "received an empty installation token")
	}

	s.logger.Info("created installation token",
		"installation_id", installationID,
		"expires_at", token.GetExpiresAt())

	return core.AccessToken{
		Value:     token.GetToken(),
		ExpiresAt: token.GetExpiresAt().Time,
	}, nil
}

// TokenBroker caches installation tokens per installation id and refreshes
// them lazily. The cache is the only shared mutable state between pipeline
// runs; concurrent refreshes for the same installation collapse into a
// single exchange.
type TokenBroker struct {
	source  InstallationTokenSource
	limiter *rate.Limiter
	logger  *slog.Logger
	margin  time.Duration
	now     func() time.Time

	mu    sync.Mutex
	cache map[int64]core.AccessToken
	group singleflight.Group
}

// NewTokenBroker creates a broker around the given token source. The limiter
// bounds requests made by clients the broker hands out.
func NewTokenBroker(source InstallationTokenSource, limiter *rate.Limiter, logger *slog.Logger) *TokenBroker {
	return &TokenBroker{
		source:  source,
		limiter: limiter,
		logger:  logger,
		margin:  tokenExpiryMargin,
		now:     time.Now,
		cache:   make(map[int64]core.AccessToken),
	}
}

// Token returns a valid installation token, from cache when possible. The
// cache key is always the installation id, never a shared default.
func (b *TokenBroker) Token(ctx context.Context, installationID int64) (core.AccessToken, error) {
	if tok, ok := b.cached(installationID); ok {
		return tok, nil
	}

	v, err, _ := b.group.Do(strconv.FormatInt(installationID, 10), func() (any, error) {
		// Another caller may have refreshed while we queued.
		if tok, ok := b.cached(installationID); ok {
			return tok, nil
		}

		tok, err := b.source.CreateToken(ctx, installationID)
		if err != nil {
			return core.AccessToken{}, err
		}

		b.mu.Lock()
		b.cache[installationID] = tok
		b.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return core.AccessToken{}, err
	}
	return v.(core.AccessToken), nil
}

func (b *TokenBroker) cached(installationID int64) (core.AccessToken, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tok, ok := b.cache[installationID]
	if !ok || !tok.Valid(b.now(), b.margin) {
		return core.AccessToken{}, false
	}
	return tok, true
}

// InstallationClient returns a Client authenticated as the given
// installation.
func (b *TokenBroker) InstallationClient(ctx context.Context, installationID int64) (Client, error) {
	tok, err := b.Token(ctx, installationID)
	if err != nil {
		return nil, err
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok.Value})
	tc := oauth2.NewClient(ctx, ts)
	return NewClient(github.NewClient(tc), b.limiter, b.logger), nil
}
