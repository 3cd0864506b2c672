package supplier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"catalogsync/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	c := NewClient(ClientConfig{
		BaseURL:           url,
		AuthPath:          "/auth",
		ProductsPath:      "/products",
		Username:          "shop",
		Password:          "secret",
		Format:            "json",
		RequestTimeout:    time.Second,
		AuthRetries:       2,
		PageRetries:       3,
		Backoff:           []time.Duration{time.Millisecond},
		RetryableStatuses: []int{503},
	}, logger.NewNop())
	return c.WithSleep(func(context.Context, time.Duration) error { return nil })
}

func TestAuthenticate(t *testing.T) {
	t.Run("json token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/auth", r.URL.Path)
			w.Write([]byte(`{"access_token":"abc123"}`))
		}))
		defer srv.Close()

		token, err := newTestClient(srv.URL).Authenticate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "abc123", token)
	})

	t.Run("bare token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("tok-42\n"))
		}))
		defer srv.Close()

		token, err := newTestClient(srv.URL).Authenticate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-42", token)
	})

	t.Run("rejected credentials", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"bad credentials"}`))
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).Authenticate(context.Background())
		var authErr *AuthenticationError
		require.True(t, errors.As(err, &authErr))
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusUnauthorized, statusErr.Status)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestFetchPage(t *testing.T) {
	t.Run("retries whitelisted status then succeeds", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.Equal(t, "20", r.URL.Query().Get("offset"))
			assert.Equal(t, "10", r.URL.Query().Get("limit"))
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"products":[]}`))
		}))
		defer srv.Close()

		page, err := newTestClient(srv.URL).FetchPage(context.Background(), "tok", 20, 10)
		require.NoError(t, err)
		assert.Equal(t, `{"products":[]}`, string(page.Body))
		assert.Equal(t, "application/json", page.ContentType)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("non whitelisted status keeps body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("Rate limit exceeded"))
		}))
		defer srv.Close()

		_, err := newTestClient(srv.URL).FetchPage(context.Background(), "tok", 0, 10)
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode())
		assert.Equal(t, "Rate limit exceeded", string(statusErr.Body))
	})
}
