package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enricher/internal/browser"
	"github.com/sells-group/lead-enricher/internal/browser/browsertest"
	"github.com/sells-group/lead-enricher/internal/resilience"
)

func TestFetcher_URL(t *testing.T) {
	f := New(browsertest.New(), ProfileProvider)
	assert.Equal(t, "https://www.google.com/search?q=acme.com+zoominfo", f.URL("acme.com"))
	assert.Equal(t, "acme.com zoominfo", f.Query("acme.com"))

	f = New(browsertest.New(), PatternProvider, WithBaseURL("http://search.test/s"))
	assert.Equal(t, "http://search.test/s?q=acme.com+rocketreach", f.URL("acme.com"))
}

func TestFetcher_ReturnsPageText(t *testing.T) {
	page := browsertest.New()
	f := New(page, ProfileProvider)
	page.RespondText(f.URL("acme.com"), "Acme Corp\nPhone: 555-0100")

	text, err := f.Fetch(context.Background(), "acme.com")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp\nPhone: 555-0100", text)
	assert.Equal(t, []string{f.URL("acme.com")}, page.Visits)
}

func TestFetcher_NavigationErrorIsFetchError(t *testing.T) {
	page := browsertest.New()
	f := New(page, PatternProvider)
	page.Respond(f.URL("acme.com"), browsertest.Response{Err: errors.New("net::ERR_NAME_NOT_RESOLVED")})

	_, err := f.Fetch(context.Background(), "acme.com")
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "email-pattern", fe.Provider)
	assert.Equal(t, "acme.com", fe.Domain)
	assert.Equal(t, f.URL("acme.com"), fe.URL)
	assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
}

func TestFetcher_BlockedPageIsFetchError(t *testing.T) {
	page := browsertest.New()
	f := New(page, ProfileProvider)
	page.RespondText(f.URL("acme.com"), "Our systems have detected unusual traffic from your computer network.")

	_, err := f.Fetch(context.Background(), "acme.com")
	var fe *Error
	require.ErrorAs(t, err, &fe)
	var blocked *browser.ErrBlocked
	assert.ErrorAs(t, err, &blocked)
}

func TestFetcher_CaptchaVendorInResultsIsNotBlocked(t *testing.T) {
	page := browsertest.New()
	lim := NewAdaptiveLimiter(60)
	f := New(page, ProfileProvider, WithLimiter(lim))
	want := "hCaptcha - ZoomInfo\nPhone: 415-555-0100\nHeadquarters: San Francisco, CA"
	page.RespondText(f.URL("hcaptcha.com"), want)

	text, err := f.Fetch(context.Background(), "hcaptcha.com")
	require.NoError(t, err)
	assert.Equal(t, want, text)
	assert.Equal(t, NewAdaptiveLimiter(60).Rate(), lim.Rate())
}

// slowPage blocks in Navigate until its context ends.
type slowPage struct{ *browsertest.Page }

func (slowPage) Navigate(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestFetcher_Timeout(t *testing.T) {
	f := New(slowPage{browsertest.New()}, ProfileProvider, WithTimeout(10*time.Millisecond))

	_, err := f.Fetch(context.Background(), "acme.com")
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetcher_BreakerFailsFast(t *testing.T) {
	page := browsertest.New()
	page.Fallback = browsertest.Response{Err: errors.New("navigation failed")}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	f := New(page, ProfileProvider, WithBreaker(cb))

	for range 2 {
		_, err := f.Fetch(context.Background(), "acme.com")
		require.Error(t, err)
	}
	_, err := f.Fetch(context.Background(), "acme.com")

	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Len(t, page.Visits, 2, "open breaker must not navigate")
}

func TestFetcher_WithHTTPBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "acme.com rocketreach", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`<html><body><p>Acme uses {first}.{last}@acme.com</p></body></html>`))
	}))
	defer srv.Close()

	page := browser.NewHTTP(browser.WithHTTPClient(srv.Client()))
	f := New(page, PatternProvider, WithBaseURL(srv.URL+"/search"))

	text, err := f.Fetch(context.Background(), "acme.com")
	require.NoError(t, err)
	assert.Contains(t, text, "{first}.{last}@acme.com")
}

func TestFetcher_LimiterCancelled(t *testing.T) {
	lim := NewAdaptiveLimiter(1)
	page := browsertest.New()
	f := New(page, ProfileProvider, WithLimiter(lim))

	_, err := f.Fetch(context.Background(), "a.com")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, "b.com")
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Len(t, page.Visits, 1)
}
