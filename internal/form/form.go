// Package form drives the target web application's contact form and its
// automation-rules page.
package form

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/browser"
	"github.com/sells-group/lead-enricher/internal/model"
)

// Selectors on the contacts page.
var (
	AddContactButton = browser.Text("Add Contact")
	SaveButton       = browser.XPath(`//button[contains(normalize-space(.), "Save")]`)
)

// FieldInput returns the selector of a named form input.
func FieldInput(name string) browser.Selector {
	return browser.CSS(fmt.Sprintf(`input[name="%s"]`, name))
}

// WriteError is returned when any step of the form fill fails. The fill is
// not transactional; earlier steps may already have been applied.
type WriteError struct {
	Domain string
	Step   string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("form write for %s failed at %s: %v", e.Domain, e.Step, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Config holds target URLs and typing behavior.
type Config struct {
	ContactsURL string
	RulesURL    string

	// Per-keystroke delay is sampled uniformly from [MinKeyDelay, MaxKeyDelay).
	MinKeyDelay time.Duration
	MaxKeyDelay time.Duration

	// PhoneRegion enables E.164 normalisation of phone numbers, e.g. "US".
	PhoneRegion string

	Rules Rules
}

// Writer fills the contact form on a page it does not own.
type Writer struct {
	page  browser.Page
	cfg   Config
	rand  func() float64
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Writer.
type Option func(*Writer)

// WithRand sets the source of keystroke jitter, returning values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(w *Writer) { w.rand = fn }
}

// WithSleep replaces the context-aware sleep used between keystrokes and
// while waiting for auto-save.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(w *Writer) { w.sleep = fn }
}

// NewWriter creates a Writer.
func NewWriter(page browser.Page, cfg Config, opts ...Option) *Writer {
	if cfg.MinKeyDelay <= 0 {
		cfg.MinKeyDelay = 40 * time.Millisecond
	}
	if cfg.MaxKeyDelay < cfg.MinKeyDelay {
		cfg.MaxKeyDelay = cfg.MinKeyDelay
	}
	w := &Writer{
		page:  page,
		cfg:   cfg,
		rand:  rand.Float64,
		sleep: sleepContext,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

type field struct {
	name  string
	value string
}

// Write creates one contact from the lead and its enrichment. It navigates
// to the contacts page, opens the add-contact form, types each field like a
// human would and saves.
func (w *Writer) Write(ctx context.Context, lead model.Lead, profile model.Profile, pattern model.EmailPattern) error {
	fail := func(step string, err error) error {
		return &WriteError{Domain: lead.Domain, Step: step, Err: err}
	}

	if w.cfg.ContactsURL != "" {
		if err := w.page.Navigate(ctx, w.cfg.ContactsURL); err != nil {
			return fail("open contacts", err)
		}
	}
	if err := w.page.Click(ctx, AddContactButton); err != nil {
		return fail("add contact", err)
	}

	fields := []field{
		{"domain", lead.Domain},
		{"phone", w.phone(profile.Phone)},
		{"headquarters", profile.Headquarters},
		{"employees", profile.Employees},
		{"revenue", profile.Revenue},
		{"emailPattern", pattern.String()},
	}
	for _, f := range fields {
		if err := w.typeSlow(ctx, FieldInput(f.name), f.value); err != nil {
			return fail("fill "+f.name, err)
		}
	}

	if err := w.page.Click(ctx, SaveButton); err != nil {
		return fail("save", err)
	}
	zap.L().Info("contact saved", zap.String("domain", lead.Domain))
	return nil
}

// typeSlow focuses sel and types value one character at a time.
func (w *Writer) typeSlow(ctx context.Context, sel browser.Selector, value string) error {
	if err := w.page.Click(ctx, sel); err != nil {
		return err
	}
	for _, r := range value {
		if err := w.page.Type(ctx, string(r)); err != nil {
			return err
		}
		if err := w.sleep(ctx, w.keyDelay()); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) keyDelay() time.Duration {
	span := w.cfg.MaxKeyDelay - w.cfg.MinKeyDelay
	return w.cfg.MinKeyDelay + time.Duration(w.rand()*float64(span))
}

// phone returns raw in E.164 when a region is configured and the number
// parses; otherwise raw unchanged.
func (w *Writer) phone(raw string) string {
	if w.cfg.PhoneRegion == "" || raw == "" {
		return raw
	}
	num, err := phonenumbers.Parse(raw, w.cfg.PhoneRegion)
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
