// Package monitoring summarises recent pipeline runs.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/model"
)

// maxRuns bounds how many runs a snapshot looks at.
const maxRuns = 1000

// Snapshot holds a point-in-time view of enrichment outcomes.
type Snapshot struct {
	// Run metrics (within lookback window).
	Runs        int `json:"runs"`
	RunsRunning int `json:"runs_running"`
	RunsAborted int `json:"runs_aborted"`

	// Lead metrics across those runs.
	Leads       int     `json:"leads"`
	Enriched    int     `json:"enriched"`
	Skipped     int     `json:"skipped"`
	WriteFailed int     `json:"write_failed"`
	SuccessRate float64 `json:"success_rate"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the store subset the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
}

// Collector gathers metrics from the run store.
type Collector struct {
	store RunLister
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st RunLister) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window. A lookback of
// zero or less covers every stored run up to the scan cap.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.store.ListRuns(ctx, maxRuns)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var cutoff time.Time
	if lookbackHours > 0 {
		cutoff = now.Add(-time.Duration(lookbackHours) * time.Hour)
	}

	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.Runs++
		switch r.Status {
		case model.RunStatusRunning:
			snap.RunsRunning++
		case model.RunStatusAborted:
			snap.RunsAborted++
		}
		snap.Enriched += r.Succeeded
		snap.Skipped += r.Skipped
		snap.WriteFailed += r.WriteFailed
	}

	snap.Leads = snap.Enriched + snap.Skipped + snap.WriteFailed
	if snap.Leads > 0 {
		snap.SuccessRate = float64(snap.Enriched) / float64(snap.Leads)
	}
	return snap, nil
}
