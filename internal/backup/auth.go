// Package backup mirrors the appointments database file to remote object storage.
package backup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

var (
	ErrUnauthorized = errors.New("remote storage rejected the access token")
	ErrNotFound     = errors.New("remote file not found")
)

// APIError is a non-successful response from a storage provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storage api error %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == 401
}

// Credentials holds the current access token and renews it from the refresh token.
type Credentials struct {
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	oauth        *oauth2.Config
}

// NewCredentials builds credentials for the provider token endpoint.
// The access token may be empty; the first 401 triggers a refresh.
func NewCredentials(accessToken, refreshToken, clientID, clientSecret, tokenURL string) *Credentials {
	return &Credentials{
		accessToken:  accessToken,
		refreshToken: refreshToken,
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// AccessToken returns the token to send with the next call.
func (c *Credentials) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// Refresh exchanges the refresh token (grant_type=refresh_token) for a new access token.
func (c *Credentials) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refreshToken == "" {
		return errors.New("no refresh token configured")
	}

	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: c.refreshToken}).Token()
	if err != nil {
		return fmt.Errorf("refresh access token: %w", err)
	}

	c.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		c.refreshToken = tok.RefreshToken
	}
	return nil
}

// Authenticator is what Reauthorizer needs from a credential.
type Authenticator interface {
	AccessToken() string
	Refresh(ctx context.Context) error
}

// Call is one authenticated remote operation.
type Call func(ctx context.Context, accessToken string) error

// Reauthorizer wraps remote calls: on ErrUnauthorized the credential is
// refreshed once and the call retried once. Any other failure is returned as is.
type Reauthorizer struct {
	creds  Authenticator
	logger *zerolog.Logger
}

func NewReauthorizer(creds Authenticator, logger *zerolog.Logger) *Reauthorizer {
	return &Reauthorizer{creds: creds, logger: logger}
}

// Do runs call with the current token, refreshing and retrying once on 401.
func (r *Reauthorizer) Do(ctx context.Context, op string, call Call) error {
	err := call(ctx, r.creds.AccessToken())
	if err == nil || !errors.Is(err, ErrUnauthorized) {
		return err
	}

	r.logger.Info().Str("op", op).Msg("access token rejected, refreshing")
	if rerr := r.creds.Refresh(ctx); rerr != nil {
		return fmt.Errorf("%s: %w (refresh failed: %v)", op, err, rerr)
	}

	if err := call(ctx, r.creds.AccessToken()); err != nil {
		return fmt.Errorf("%s after refresh: %w", op, err)
	}
	return nil
}
