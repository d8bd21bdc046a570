// Package fetch loads search-result pages for a lead domain from a single
// data provider and returns their visible text.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/browser"
	"github.com/sells-group/lead-enricher/internal/resilience"
)

// DefaultSearchURL is the public search engine queried for provider snippets.
const DefaultSearchURL = "https://www.google.com/search"

// Provider is a third-party data provider whose cached snippets are searched.
type Provider struct {
	Name    string
	Keyword string
}

var (
	// ProfileProvider supplies company attributes.
	ProfileProvider = Provider{Name: "company-profile", Keyword: "zoominfo"}
	// PatternProvider supplies email pattern snippets.
	PatternProvider = Provider{Name: "email-pattern", Keyword: "rocketreach"}
)

// Error is returned when the provider page could not be loaded or read.
type Error struct {
	Provider string
	Domain   string
	URL      string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s for %s: %v", e.Provider, e.Domain, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Fetcher loads the search page for one provider. It never retries and never
// extracts; callers own both.
type Fetcher struct {
	page     browser.Page
	provider Provider
	baseURL  string
	timeout  time.Duration
	limiter  *AdaptiveLimiter
	breaker  *resilience.CircuitBreaker
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBaseURL overrides the search endpoint.
func WithBaseURL(u string) Option {
	return func(f *Fetcher) {
		if u != "" {
			f.baseURL = u
		}
	}
}

// WithTimeout bounds navigation plus text read. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithLimiter throttles searches. Fetchers for different providers may
// share one limiter since they hit the same search engine.
func WithLimiter(l *AdaptiveLimiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithBreaker fails fast while the search surface keeps failing.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(f *Fetcher) { f.breaker = cb }
}

// New creates a Fetcher that drives page.
func New(page browser.Page, provider Provider, opts ...Option) *Fetcher {
	f := &Fetcher{
		page:     page,
		provider: provider,
		baseURL:  DefaultSearchURL,
		timeout:  30 * time.Second,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Provider returns the provider this fetcher searches.
func (f *Fetcher) Provider() Provider { return f.provider }

// Query returns the search phrase for domain, e.g. "acme.com zoominfo".
func (f *Fetcher) Query(domain string) string {
	return domain + " " + f.provider.Keyword
}

// URL returns the search URL for domain.
func (f *Fetcher) URL(domain string) string {
	return f.baseURL + "?q=" + url.QueryEscape(domain) + "+" + url.QueryEscape(f.provider.Keyword)
}

// Fetch navigates to the provider search page for domain and returns its
// text. Any failure is an *Error.
func (f *Fetcher) Fetch(ctx context.Context, domain string) (string, error) {
	target := f.URL(domain)
	fail := func(err error) (string, error) {
		return "", &Error{Provider: f.provider.Name, Domain: domain, URL: target, Err: err}
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return fail(err)
		}
	}

	var text string
	load := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		if err := f.page.Navigate(ctx, target); err != nil {
			return err
		}
		t, err := f.page.ReadText(ctx)
		if err != nil {
			return err
		}
		if bt := browser.DetectBlockText(t); bt != browser.BlockNone {
			return &browser.ErrBlocked{Type: bt}
		}
		text = t
		return nil
	}

	var err error
	if f.breaker != nil {
		err = f.breaker.Execute(ctx, load)
	} else {
		err = load(ctx)
	}

	if f.limiter != nil {
		var blocked *browser.ErrBlocked
		switch {
		case errors.As(err, &blocked):
			f.limiter.OnBlocked()
		case err == nil:
			f.limiter.OnSuccess()
		}
	}
	if err != nil {
		zap.L().Debug("fetch failed",
			zap.String("provider", f.provider.Name),
			zap.String("domain", domain),
			zap.Error(err),
		)
		return fail(err)
	}
	return text, nil
}
