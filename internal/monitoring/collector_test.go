package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enricher/internal/model"
)

type mockStore struct {
	runs    []model.Run
	listErr error
	limit   int
}

func (m *mockStore) ListRuns(_ context.Context, limit int) ([]model.Run, error) {
	m.limit = limit
	return m.runs, m.listErr
}

func TestCollect_SumsRunsInWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	st := &mockStore{runs: []model.Run{
		{ID: "r1", Status: model.RunStatusComplete, StartedAt: now.Add(-time.Hour), Succeeded: 3, Skipped: 1},
		{ID: "r2", Status: model.RunStatusAborted, StartedAt: now.Add(-2 * time.Hour), Succeeded: 1, WriteFailed: 1},
		{ID: "r3", Status: model.RunStatusRunning, StartedAt: now.Add(-10 * time.Minute)},
		{ID: "old", Status: model.RunStatusComplete, StartedAt: now.Add(-48 * time.Hour), Succeeded: 50},
	}}
	c := NewCollector(st)
	c.now = func() time.Time { return now }

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, maxRuns, st.limit)
	assert.Equal(t, 3, snap.Runs)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.Equal(t, 1, snap.RunsAborted)
	assert.Equal(t, 6, snap.Leads)
	assert.Equal(t, 4, snap.Enriched)
	assert.Equal(t, 1, snap.Skipped)
	assert.Equal(t, 1, snap.WriteFailed)
	assert.InDelta(t, 4.0/6.0, snap.SuccessRate, 0.0001)
	assert.Equal(t, now, snap.CollectedAt)
}

func TestCollect_NoLookbackCoversAll(t *testing.T) {
	st := &mockStore{runs: []model.Run{
		{StartedAt: time.Unix(0, 0), Succeeded: 1},
		{StartedAt: time.Now(), Skipped: 1},
	}}

	snap, err := NewCollector(st).Collect(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Runs)
	assert.InDelta(t, 0.5, snap.SuccessRate, 0.0001)
}

func TestCollect_Empty(t *testing.T) {
	snap, err := NewCollector(&mockStore{}).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.Runs)
	assert.Zero(t, snap.SuccessRate)
}

func TestCollect_StoreError(t *testing.T) {
	_, err := NewCollector(&mockStore{listErr: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}
