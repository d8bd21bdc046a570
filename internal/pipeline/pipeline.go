// Package pipeline runs the per-lead enrichment loop: fetch provider text,
// extract a profile and an email pattern, retry with linear backoff, and hand
// successful leads to the form writer exactly once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/browser"
	"github.com/sells-group/lead-enricher/internal/extract"
	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/resilience"
	"github.com/sells-group/lead-enricher/internal/validate"
)

// Source returns provider page text for a domain. *fetch.Fetcher implements it.
type Source interface {
	Fetch(ctx context.Context, domain string) (string, error)
}

// Writer persists an enriched lead to the target system. *form.Writer
// implements it.
type Writer interface {
	Write(ctx context.Context, lead model.Lead, profile model.Profile, pattern model.EmailPattern) error
}

// Recorder persists runs, attempts and terminal results.
type Recorder interface {
	CreateRun(ctx context.Context, run *model.Run) error
	RecordAttempt(ctx context.Context, runID string, a model.Attempt) error
	RecordResult(ctx context.Context, runID string, r model.LeadResult) error
	FinishRun(ctx context.Context, run *model.Run) error
}

// Notifier receives one history event per terminal lead outcome.
type Notifier interface {
	Post(ctx context.Context, entry model.HistoryLog) error
}

// ScreenshotUploader stores a failure screenshot and returns its URL.
type ScreenshotUploader interface {
	UploadScreenshot(ctx context.Context, runID, domain string, png []byte) (string, error)
}

// Config holds the retry policy and pacing.
type Config struct {
	// MaxRetries is the attempt cap per lead. Default: 3.
	MaxRetries int
	// BaseDelay is multiplied by the failed attempt number. Zero retries
	// without waiting.
	BaseDelay time.Duration
	// PostWriteWait is waited after a successful write.
	PostWriteWait time.Duration
	// Agent is the history-log agent name.
	Agent string
}

// Controller drives leads through the enrichment state machine. It is used
// from a single goroutine; the page behind its sources and writer is never
// touched concurrently.
type Controller struct {
	profiles Source
	patterns Source
	writer   Writer
	cfg      Config

	recorder Recorder
	notifier Notifier
	shooter  browser.Screenshotter
	uploader ScreenshotUploader

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder persists every attempt and result.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithNotifier posts history events.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithScreenshots captures and uploads a screenshot when a write fails.
func WithScreenshots(s browser.Screenshotter, u ScreenshotUploader) Option {
	return func(c *Controller) {
		c.shooter = s
		c.uploader = u
	}
}

// WithSleep replaces the context-aware wait used for backoff and pacing.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) { c.sleep = fn }
}

// WithClock sets the time source for attempt and result timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a Controller. profiles and patterns are consulted in
// that order on every attempt.
func NewController(profiles, patterns Source, writer Writer, cfg Config, opts ...Option) *Controller {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	c := &Controller{
		profiles: profiles,
		patterns: patterns,
		writer:   writer,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// attemptFailure carries a failed outcome through the retry loop.
type attemptFailure struct {
	outcome model.AttemptOutcome
}

func (e *attemptFailure) Error() string {
	if e.outcome.Error != "" {
		return string(e.outcome.Reason) + ": " + e.outcome.Error
	}
	return string(e.outcome.Reason)
}

// attempt runs one fetch+extract round. Only the profile fetch precedes the
// pattern fetch; a failed profile fetch ends the attempt.
func (c *Controller) attempt(ctx context.Context, lead model.Lead) model.AttemptOutcome {
	text, err := c.profiles.Fetch(ctx, lead.Domain)
	if err != nil {
		return model.Failed(model.ReasonFetchError, err)
	}
	profile := extract.Profile(text)

	text, err = c.patterns.Fetch(ctx, lead.Domain)
	if err != nil {
		return model.Failed(model.ReasonFetchError, err)
	}
	pattern := extract.EmailPattern(text)

	switch {
	case !validate.UsableProfile(profile):
		return model.Failed(model.ReasonMissingProfile, nil)
	case !validate.UsablePattern(pattern):
		return model.Failed(model.ReasonMissingPattern, nil)
	}
	return model.Succeeded(profile, pattern)
}

// Process runs one lead to a terminal state outside of a run. The error is
// non-nil only when ctx is cancelled before the lead terminates.
func (c *Controller) Process(ctx context.Context, lead model.Lead) (model.LeadResult, []model.Attempt, error) {
	return c.process(ctx, "", lead)
}

func (c *Controller) process(ctx context.Context, runID string, lead model.Lead) (model.LeadResult, []model.Attempt, error) {
	log := zap.L().With(zap.String("domain", lead.Domain), zap.String("company", lead.Company))
	res := model.LeadResult{Lead: lead, State: model.LeadPending}
	var attempts []model.Attempt

	policy := resilience.LinearRetryConfig(c.cfg.MaxRetries, c.cfg.BaseDelay)
	policy.ShouldRetry = func(err error) bool {
		var af *attemptFailure
		return errors.As(err, &af)
	}
	policy.OnRetry = func(n int, delay time.Duration, err error) {
		log.Warn("pipeline: attempt failed, retrying",
			zap.Int("attempt", n),
			zap.Duration("delay", delay),
			zap.String("reason", err.Error()),
		)
	}
	policy.Sleep = c.sleep

	err := resilience.Do(ctx, policy, func(ctx context.Context, n int) error {
		res.State = model.LeadAttempting
		outcome := c.attempt(ctx, lead)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		a := model.Attempt{Lead: lead, Outcome: outcome, Number: n, At: c.now().UTC()}
		attempts = append(attempts, a)
		c.recordAttempt(ctx, runID, a)
		res.Attempts = n
		res.Final = outcome

		if !outcome.OK() {
			return &attemptFailure{outcome: outcome}
		}
		return nil
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, attempts, ctxErr
	}

	if err != nil {
		res.State = model.LeadSkipped
		res.Disposition = model.DispositionSkipped
		log.Warn("pipeline: lead skipped",
			zap.Int("attempts", res.Attempts),
			zap.String("reason", string(res.Final.Reason)),
		)
		c.finish(ctx, runID, &res, "")
		return res, attempts, nil
	}

	res.State = model.LeadSucceeded
	var screenshotURL string
	if werr := c.writer.Write(ctx, lead, res.Final.Profile, res.Final.Pattern); werr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, attempts, ctxErr
		}
		res.WriteError = werr.Error()
		res.Disposition = model.DispositionFailed
		log.Error("pipeline: form write failed", zap.Error(werr))
		screenshotURL = c.captureFailure(ctx, runID, lead.Domain)
	} else {
		res.Written = true
		res.Disposition = model.DispositionEnriched
		log.Info("pipeline: lead enriched",
			zap.Int("attempts", res.Attempts),
			zap.String("pattern", res.Final.Pattern.String()),
		)
		if c.cfg.PostWriteWait > 0 {
			// The lead is already written; a cancelled wait only ends the run early.
			_ = c.wait(ctx, c.cfg.PostWriteWait)
		}
	}
	c.finish(ctx, runID, &res, screenshotURL)
	return res, attempts, nil
}

// Run processes leads sequentially in input order. A cancelled ctx stops the
// run after the current lead's in-flight step; the run is then returned and
// persisted as aborted together with ctx's error.
func (c *Controller) Run(ctx context.Context, leads []model.Lead) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.NewString(),
		Status:    model.RunStatusRunning,
		Total:     len(leads),
		StartedAt: c.now().UTC(),
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: run started", zap.Int("leads", len(leads)))

	if c.recorder != nil {
		if err := c.recorder.CreateRun(ctx, run); err != nil {
			log.Warn("pipeline: failed to persist run", zap.Error(err))
		}
	}

	var runErr error
	for _, lead := range leads {
		if runErr = ctx.Err(); runErr != nil {
			break
		}
		res, atts, err := c.process(ctx, run.ID, lead)
		run.Attempts = append(run.Attempts, atts...)
		if err != nil {
			runErr = err
			break
		}
		run.Results = append(run.Results, res)
	}

	run.Status = model.RunStatusComplete
	if runErr != nil {
		run.Status = model.RunStatusAborted
	}
	run.Tally()
	finished := c.now().UTC()
	run.FinishedAt = &finished

	if c.recorder != nil {
		if err := c.recorder.FinishRun(context.WithoutCancel(ctx), run); err != nil {
			log.Warn("pipeline: failed to persist run completion", zap.Error(err))
		}
	}
	log.Info("pipeline: run finished",
		zap.String("status", string(run.Status)),
		zap.Int("total", run.Total),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("skipped", run.Skipped),
		zap.Int("write_failed", run.WriteFailed),
	)
	return run, runErr
}

func (c *Controller) wait(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		return c.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Controller) recordAttempt(ctx context.Context, runID string, a model.Attempt) {
	if c.recorder == nil || runID == "" {
		return
	}
	if err := c.recorder.RecordAttempt(context.WithoutCancel(ctx), runID, a); err != nil {
		zap.L().Warn("pipeline: failed to record attempt",
			zap.String("domain", a.Lead.Domain),
			zap.Int("attempt", a.Number),
			zap.Error(err),
		)
	}
}

// finish stamps the result and hands it to the audit collaborators. Audit
// failures never change the outcome.
func (c *Controller) finish(ctx context.Context, runID string, res *model.LeadResult, screenshotURL string) {
	res.FinishedAt = c.now().UTC()
	auditCtx := context.WithoutCancel(ctx)

	if c.recorder != nil && runID != "" {
		if err := c.recorder.RecordResult(auditCtx, runID, *res); err != nil {
			zap.L().Warn("pipeline: failed to record result",
				zap.String("domain", res.Lead.Domain), zap.Error(err))
		}
	}
	if c.notifier != nil {
		if err := c.notifier.Post(auditCtx, c.historyEntry(runID, *res, screenshotURL)); err != nil {
			zap.L().Warn("pipeline: failed to post history",
				zap.String("domain", res.Lead.Domain), zap.Error(err))
		}
	}
}

// querier is implemented by sources that can describe their search phrase.
type querier interface {
	Query(domain string) string
}

func (c *Controller) historyEntry(runID string, res model.LeadResult, screenshotURL string) model.HistoryLog {
	entry := model.HistoryLog{
		CompanyName:   res.Lead.Company,
		Domain:        res.Lead.Domain,
		Agent:         c.cfg.Agent,
		Disposition:   string(res.Disposition),
		Remarks:       Remarks(res),
		Headquarters:  res.Final.Profile.Headquarters,
		RunID:         runID,
		ScreenshotURL: screenshotURL,
		CreatedAt:     res.FinishedAt,
	}
	if q, ok := c.profiles.(querier); ok {
		entry.GoogleQuery = q.Query(res.Lead.Domain)
	}
	return entry
}

// Remarks renders a one-line human summary of a terminal result.
func Remarks(res model.LeadResult) string {
	switch res.Disposition {
	case model.DispositionEnriched:
		return fmt.Sprintf("enriched on attempt %d, email pattern %s", res.Attempts, res.Final.Pattern)
	case model.DispositionFailed:
		return "form write failed: " + res.WriteError
	default:
		msg := fmt.Sprintf("skipped after %d attempts: %s", res.Attempts, res.Final.Reason)
		if res.Final.Error != "" {
			msg += " (" + res.Final.Error + ")"
		}
		return msg
	}
}

func (c *Controller) captureFailure(ctx context.Context, runID, domain string) string {
	if c.shooter == nil || c.uploader == nil {
		return ""
	}
	ctx = context.WithoutCancel(ctx)
	png, err := c.shooter.Screenshot(ctx)
	if err != nil {
		zap.L().Warn("pipeline: screenshot failed", zap.String("domain", domain), zap.Error(err))
		return ""
	}
	url, err := c.uploader.UploadScreenshot(ctx, runID, domain, png)
	if err != nil {
		zap.L().Warn("pipeline: screenshot upload failed", zap.String("domain", domain), zap.Error(err))
		return ""
	}
	return url
}
