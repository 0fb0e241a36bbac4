// Package auth provides the credentials the dispatcher attaches to every call.
//
// A Credential holds one shared, mutable token. Refresh re-reads it from its
// TokenSource in place, so the retried call and everything queued behind it pick
// up the new value. Concurrent refreshes are coalesced into one read.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ErrNoCredential is returned when a token source yields an empty token.
var ErrNoCredential = errors.New("no credential available")

// Scheme selects how the token is presented.
type Scheme string

const (
	// SchemeBasic sends a personal access token as Basic auth with an empty user.
	SchemeBasic Scheme = "basic"

	// SchemeBearer sends an OAuth or Entra ID access token.
	SchemeBearer Scheme = "bearer"
)

// ParseScheme parses a scheme name. Empty means basic.
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "basic", "pat":
		return SchemeBasic, nil
	case "bearer", "oauth":
		return SchemeBearer, nil
	default:
		return "", fmt.Errorf("unknown auth scheme %q (want basic or bearer)", s)
	}
}

// TokenSource yields the current raw token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token. Refreshing it never changes anything.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

// EnvToken reads the token from an environment variable on every call.
type EnvToken string

// Token implements TokenSource.
func (e EnvToken) Token(context.Context) (string, error) {
	return strings.TrimSpace(os.Getenv(string(e))), nil
}

// FileToken reads the token from a file on every call, e.g. one kept fresh by
// `az account get-access-token` or a sidecar.
type FileToken string

// Token implements TokenSource.
func (f FileToken) Token(context.Context) (string, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Credential implements client.AuthProvider.
type Credential struct {
	scheme Scheme
	source TokenSource
	logger zerolog.Logger

	mu    sync.RWMutex
	token string

	group singleflight.Group
}

// New loads the initial token from source.
func New(ctx context.Context, scheme Scheme, source TokenSource) (*Credential, error) {
	if source == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if scheme == "" {
		scheme = SchemeBasic
	}

	c := &Credential{
		scheme: scheme,
		source: source,
		logger: log.With().Str("component", "auth").Logger(),
	}

	token, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.token = token
	return c, nil
}

// Scheme returns the presentation scheme.
func (c *Credential) Scheme() Scheme { return c.scheme }

// AuthHeader returns the Authorization header value for the current token.
func (c *Credential) AuthHeader() string {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if token == "" {
		return ""
	}
	if c.scheme == SchemeBearer {
		return "Bearer " + token
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+token))
}

// Refresh re-reads the token. Callers refreshing at the same time share one read.
func (c *Credential) Refresh(ctx context.Context) error {
	_, err, shared := c.group.Do("refresh", func() (any, error) {
		token, err := c.load(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		changed := token != c.token
		c.token = token
		c.mu.Unlock()

		if !changed {
			c.logger.Warn().Str("scheme", string(c.scheme)).Msg("Credential refresh returned the same token")
		} else {
			c.logger.Info().Str("scheme", string(c.scheme)).Msg("Credential refreshed")
		}
		return nil, nil
	})
	if shared {
		c.logger.Debug().Msg("Joined in-progress credential refresh")
	}
	return err
}

func (c *Credential) load(ctx context.Context) (string, error) {
	token, err := c.source.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}
