package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/artifacts"
	"github.com/sells-group/lead-enricher/internal/browser"
	"github.com/sells-group/lead-enricher/internal/config"
	"github.com/sells-group/lead-enricher/internal/fetch"
	"github.com/sells-group/lead-enricher/internal/form"
	"github.com/sells-group/lead-enricher/internal/history"
	"github.com/sells-group/lead-enricher/internal/resilience"
	"github.com/sells-group/lead-enricher/internal/store"
)

// initStore opens and migrates the configured run store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// openPage starts the configured page backend.
func openPage(ctx context.Context, backend string) (browser.Page, error) {
	switch backend {
	case "chromedp":
		return browser.NewChrome(ctx, browser.ChromeConfig{
			Headless:  cfg.Browser.Headless,
			ExecPath:  cfg.Browser.ExecPath,
			UserAgent: cfg.Browser.UserAgent,
			Settle:    config.Millis(cfg.Browser.SettleMs),
		})
	case "http":
		return browser.NewHTTP(browser.WithUserAgent(cfg.Browser.UserAgent)), nil
	default:
		return nil, eris.Errorf("unknown browser backend %q", backend)
	}
}

func authConfig() browser.AuthConfig {
	return browser.AuthConfig{
		File:      cfg.Target.AuthFile,
		LoginURL:  cfg.Target.LoginURL(),
		ReadyText: cfg.Target.ReadyText,
	}
}

func formConfig() form.Config {
	return form.Config{
		ContactsURL: cfg.Target.ContactsURL(),
		RulesURL:    cfg.Target.RulesURL(),
		MinKeyDelay: config.Millis(cfg.Form.MinKeyDelayMs),
		MaxKeyDelay: config.Millis(cfg.Form.MaxKeyDelayMs),
		PhoneRegion: cfg.Form.PhoneRegion,
		Rules: form.Rules{
			InvalidEmailLimit:   cfg.Rules.InvalidEmailLimit,
			InvalidAction:       cfg.Rules.InvalidAction,
			ProofpointProtected: cfg.Rules.ProofpointProtected,
			CatchAllRestricted:  cfg.Rules.CatchAllRestricted,
			GenericRestricted:   cfg.Rules.GenericRestricted,
			AutosaveWait:        config.Millis(cfg.Rules.AutosaveWaitMs),
		},
	}
}

// newFetchers builds the profile and pattern fetchers. They share one rate
// limiter and circuit breaker since both hit the same search engine.
func newFetchers(page browser.Page) (*fetch.Fetcher, *fetch.Fetcher) {
	limiter := fetch.NewAdaptiveLimiter(cfg.Search.RequestsPerMinute)
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Search.CircuitFailureThreshold,
		ResetTimeout:     time.Duration(cfg.Search.CircuitResetSecs) * time.Second,
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("search circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	opts := []fetch.Option{
		fetch.WithBaseURL(cfg.Search.BaseURL),
		fetch.WithTimeout(time.Duration(cfg.Search.NavTimeoutSecs) * time.Second),
		fetch.WithLimiter(limiter),
		fetch.WithBreaker(breaker),
	}

	profile := fetch.ProfileProvider
	if cfg.Search.ProfileKeyword != "" {
		profile.Keyword = cfg.Search.ProfileKeyword
	}
	pattern := fetch.PatternProvider
	if cfg.Search.PatternKeyword != "" {
		pattern.Keyword = cfg.Search.PatternKeyword
	}
	return fetch.New(page, profile, opts...), fetch.New(page, pattern, opts...)
}

// newNotifier fans history events out to the store and, when configured,
// the external history API.
func newNotifier(st store.Store) history.Multi {
	n := history.Multi{history.NewStoreSink(st)}
	if c := history.NewClient(cfg.History.URL); c.Enabled() {
		n = append(n, c)
	}
	return n
}

// newUploader returns nil when artifact storage is not configured.
func newUploader() (*artifacts.Uploader, error) {
	return artifacts.New(artifacts.Config{
		Endpoint:  cfg.Artifacts.Endpoint,
		AccessKey: cfg.Artifacts.AccessKey,
		SecretKey: cfg.Artifacts.SecretKey,
		Bucket:    cfg.Artifacts.Bucket,
		UseSSL:    cfg.Artifacts.UseSSL,
		Region:    cfg.Artifacts.Region,
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}
