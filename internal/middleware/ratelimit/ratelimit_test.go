package rateLimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		name  string
		count int
		limit int
		base  time.Duration
		cap   time.Duration
		want  time.Duration
	}{
		{"first over limit", 6, 5, time.Second, time.Hour, time.Second},
		{"second over limit", 7, 5, time.Second, time.Hour, 2 * time.Second},
		{"third over limit", 8, 5, time.Second, time.Hour, 4 * time.Second},
		{"clamped to cap", 20, 5, time.Second, 10 * time.Second, 10 * time.Second},
		{"huge excess", 1000, 5, time.Second, time.Hour, time.Hour},
		{"at limit", 5, 5, time.Second, time.Hour, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Backoff(tt.count, tt.limit, tt.base, tt.cap))
		})
	}
}

func TestMemoryStoreCountsWithinWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		attempt, err := s.Increment(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, attempt.Count)
	}

	attempt, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 3, attempt.Count)
}

func TestMemoryStoreResetsAfterQuietWindow(t *testing.T) {
	now := time.Now()

	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Increment(ctx, "k", time.Minute)
		require.NoError(t, err)
	}

	// тишина дольше окна — счетчик начинается заново
	now = now.Add(time.Minute + time.Second)

	attempt, err := s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, attempt.Count)
}

func TestMemoryStoreReset(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx, "k"))

	attempt, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, attempt.Count)
}

func TestMemoryStorePrune(t *testing.T) {
	now := time.Now()

	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	_, err := s.Increment(context.Background(), "k", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	s.prune()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.entries)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = ip + ":51234"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestLimitByIPBlocksOverLimit(t *testing.T) {
	store := NewMemoryStore()
	h := Login(discardLogger(), store)(okHandler())

	for i := 0; i < 5; i++ {
		rec := doRequest(h, "10.0.0.1")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := doRequest(h, "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// задержка удваивается с каждой лишней попыткой
	rec = doRequest(h, "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	rec = doRequest(h, "10.0.0.1")
	assert.Equal(t, "4", rec.Header().Get("Retry-After"))
}

func TestLimitByIPIsolatesClients(t *testing.T) {
	store := NewMemoryStore()
	h := Login(discardLogger(), store)(okHandler())

	for i := 0; i < 6; i++ {
		doRequest(h, "10.0.0.1")
	}

	require.Equal(t, http.StatusTooManyRequests, doRequest(h, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.2").Code)
}

func TestLimitByIPRecoversAfterWindow(t *testing.T) {
	now := time.Now()

	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	h := Login(discardLogger(), store)(okHandler())

	for i := 0; i < 6; i++ {
		doRequest(h, "10.0.0.1")
	}

	require.Equal(t, http.StatusTooManyRequests, doRequest(h, "10.0.0.1").Code)

	now = now.Add(2 * time.Minute)

	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1").Code)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (Attempt, error) {
	return Attempt{}, errors.New("store down")
}

func (failingStore) Increment(context.Context, string, time.Duration) (Attempt, error) {
	return Attempt{}, errors.New("store down")
}

func (failingStore) Reset(context.Context, string) error {
	return errors.New("store down")
}

func TestLimitByIPFailsOpen(t *testing.T) {
	h := Login(discardLogger(), failingStore{})(okHandler())

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1").Code)
	}
}
