package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/lead-enricher/internal/model"
)

// --- Writer Mock ---

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) Write(ctx context.Context, lead model.Lead, profile model.Profile, pattern model.EmailPattern) error {
	args := m.Called(ctx, lead, profile, pattern)
	return args.Error(0)
}

// --- Notifier Mock ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Post(ctx context.Context, entry model.HistoryLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// --- Uploader Mock ---

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) UploadScreenshot(ctx context.Context, runID, domain string, png []byte) (string, error) {
	args := m.Called(ctx, runID, domain, png)
	return args.String(0), args.Error(1)
}

// --- Recorder ---

// memRecorder keeps everything in memory and can be told to fail.
type memRecorder struct {
	mu       sync.Mutex
	runs     map[string]*model.Run
	attempts []model.Attempt
	results  []model.LeadResult
	finished []model.Run
	err      error
}

func newMemRecorder() *memRecorder {
	return &memRecorder{runs: make(map[string]*model.Run)}
}

func (r *memRecorder) CreateRun(_ context.Context, run *model.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	return r.err
}

func (r *memRecorder) RecordAttempt(_ context.Context, _ string, a model.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return r.err
}

func (r *memRecorder) RecordResult(_ context.Context, _ string, res model.LeadResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return r.err
}

func (r *memRecorder) FinishRun(_ context.Context, run *model.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, *run)
	return r.err
}

// --- Sources ---

// scriptedSource answers the n-th call with script[n], repeating the last.
type scriptedSource struct {
	script []sourceReply
	calls  []string
}

type sourceReply struct {
	text string
	err  error
}

func (s *scriptedSource) Fetch(_ context.Context, domain string) (string, error) {
	s.calls = append(s.calls, domain)
	r := s.script[len(s.script)-1]
	if n := len(s.calls) - 1; n < len(s.script) {
		r = s.script[n]
	}
	return r.text, r.err
}

func texts(ts ...string) *scriptedSource {
	s := &scriptedSource{}
	for _, t := range ts {
		s.script = append(s.script, sourceReply{text: t})
	}
	return s
}

func failing(err error) *scriptedSource {
	return &scriptedSource{script: []sourceReply{{err: err}}}
}

// sleepLog records requested waits without sleeping.
type sleepLog struct {
	waits []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time { return t }
}
