package backup

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, accessToken string) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "client", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"`+accessToken+`","token_type":"bearer","expires_in":14400}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestCredentials_Refresh(t *testing.T) {
	srv, calls := newTokenServer(t, "fresh")
	creds := NewCredentials("stale", "refresh-1", "client", "secret", srv.URL)

	require.NoError(t, creds.Refresh(context.Background()))
	assert.Equal(t, "fresh", creds.AccessToken())
	assert.Equal(t, 1, *calls)
}

func TestCredentials_RefreshWithoutToken(t *testing.T) {
	creds := NewCredentials("stale", "", "client", "secret", "http://127.0.0.1:1")
	assert.Error(t, creds.Refresh(context.Background()))
	assert.Equal(t, "stale", creds.AccessToken())
}

type fakeAuth struct {
	token     string
	refreshed int
	err       error
}

func (f *fakeAuth) AccessToken() string { return f.token }

func (f *fakeAuth) Refresh(context.Context) error {
	f.refreshed++
	if f.err != nil {
		return f.err
	}
	f.token = "fresh"
	return nil
}

func TestReauthorizer(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	t.Run("success without refresh", func(t *testing.T) {
		auth := &fakeAuth{token: "valid"}
		r := NewReauthorizer(auth, &logger)
		var seen []string
		err := r.Do(ctx, "op", func(_ context.Context, token string) error {
			seen = append(seen, token)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"valid"}, seen)
		assert.Zero(t, auth.refreshed)
	})

	t.Run("401 refreshes and retries once", func(t *testing.T) {
		auth := &fakeAuth{token: "stale"}
		r := NewReauthorizer(auth, &logger)
		var seen []string
		err := r.Do(ctx, "op", func(_ context.Context, token string) error {
			seen = append(seen, token)
			if token == "stale" {
				return &APIError{StatusCode: http.StatusUnauthorized, Message: "expired_access_token"}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"stale", "fresh"}, seen)
		assert.Equal(t, 1, auth.refreshed)
	})

	t.Run("second 401 is returned", func(t *testing.T) {
		auth := &fakeAuth{token: "stale"}
		r := NewReauthorizer(auth, &logger)
		calls := 0
		err := r.Do(ctx, "op", func(context.Context, string) error {
			calls++
			return &APIError{StatusCode: http.StatusUnauthorized}
		})
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, 2, calls)
		assert.Equal(t, 1, auth.refreshed)
	})

	t.Run("refresh failure", func(t *testing.T) {
		auth := &fakeAuth{token: "stale", err: errors.New("invalid_grant")}
		r := NewReauthorizer(auth, &logger)
		calls := 0
		err := r.Do(ctx, "op", func(context.Context, string) error {
			calls++
			return &APIError{StatusCode: http.StatusUnauthorized}
		})
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Contains(t, err.Error(), "invalid_grant")
		assert.Equal(t, 1, calls)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		auth := &fakeAuth{token: "valid"}
		r := NewReauthorizer(auth, &logger)
		calls := 0
		err := r.Do(ctx, "op", func(context.Context, string) error {
			calls++
			return &APIError{StatusCode: http.StatusInternalServerError}
		})
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, 1, calls)
		assert.Zero(t, auth.refreshed)
	})
}
