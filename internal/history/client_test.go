package history

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/resilience"
)

func noWaitRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return cfg
}

func entry() model.HistoryLog {
	return model.HistoryLog{
		CompanyName: "Acme",
		Domain:      "acme.com",
		Agent:       "Lead Enrichment Agent",
		Disposition: "Enriched",
		RunID:       "run-1",
	}
}

func TestPost_SendsJSON(t *testing.T) {
	t.Parallel()

	var got model.HistoryLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(noWaitRetry()))
	require.NoError(t, c.Post(context.Background(), entry()))
	assert.Equal(t, "acme.com", got.Domain)
	assert.Equal(t, "Enriched", got.Disposition)
	assert.Equal(t, "run-1", got.RunID)
}

func TestPost_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(noWaitRetry()))
	require.NoError(t, c.Post(context.Background(), entry()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestPost_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(noWaitRetry()))
	err := c.Post(context.Background(), entry())
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestPost_PermanentStatusNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"domain required"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(noWaitRetry()))
	err := c.Post(context.Background(), entry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "domain required")
	assert.Equal(t, int32(1), calls.Load())
}

func TestPost_DisabledWithoutURL(t *testing.T) {
	c := NewClient("")
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Post(context.Background(), entry()))
}

type memInserter struct {
	entries []model.HistoryLog
	err     error
}

func (m *memInserter) InsertHistory(_ context.Context, e *model.HistoryLog) error {
	if m.err != nil {
		return m.err
	}
	e.ID = "stored"
	m.entries = append(m.entries, *e)
	return nil
}

func TestStoreSink_Post(t *testing.T) {
	ins := &memInserter{}
	require.NoError(t, NewStoreSink(ins).Post(context.Background(), entry()))
	require.Len(t, ins.entries, 1)
	assert.Equal(t, "acme.com", ins.entries[0].Domain)
}

type funcNotifier func(context.Context, model.HistoryLog) error

func (f funcNotifier) Post(ctx context.Context, e model.HistoryLog) error { return f(ctx, e) }

func TestMulti_TriesEveryNotifier(t *testing.T) {
	boom := errors.New("boom")
	var second bool
	m := Multi{
		funcNotifier(func(context.Context, model.HistoryLog) error { return boom }),
		funcNotifier(func(context.Context, model.HistoryLog) error { second = true; return nil }),
	}

	err := m.Post(context.Background(), entry())
	assert.ErrorIs(t, err, boom)
	assert.True(t, second)
}

func TestMulti_Empty(t *testing.T) {
	assert.NoError(t, Multi{}.Post(context.Background(), entry()))
}
