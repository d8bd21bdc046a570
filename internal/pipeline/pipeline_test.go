package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enricher/internal/browser/browsertest"
	"github.com/sells-group/lead-enricher/internal/fetch"
	"github.com/sells-group/lead-enricher/internal/form"
	"github.com/sells-group/lead-enricher/internal/model"
)

var acme = model.Lead{Company: "Acme", Domain: "acme.com"}

const (
	profileText = "Acme Corp\nPhone: 555-123-4567\nHeadquarters: Austin, TX\nEmployees: 1,200\nRevenue: $25M"
	patternText = "Acme email format {first}.{last}@acme.com (82%)"
)

func TestProcess_FetchErrorExhaustsRetries(t *testing.T) {
	profiles := failing(&fetch.Error{Provider: "company-profile", Domain: "acme.com", Err: errors.New("timeout")})
	patterns := texts(patternText)
	w := new(mockWriter)
	sl := &sleepLog{}

	c := NewController(profiles, patterns, w, Config{MaxRetries: 3, BaseDelay: time.Second}, WithSleep(sl.sleep))
	res, attempts, err := c.Process(context.Background(), acme)
	require.NoError(t, err)

	assert.Equal(t, model.LeadSkipped, res.State)
	assert.Equal(t, model.DispositionSkipped, res.Disposition)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, model.ReasonFetchError, res.Final.Reason)
	assert.Contains(t, res.Final.Error, "timeout")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sl.waits)
	assert.Empty(t, patterns.calls, "pattern fetch must not run after a failed profile fetch")
	require.Len(t, attempts, 3)
	for i, a := range attempts {
		assert.Equal(t, i+1, a.Number)
	}
	w.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_SucceedsOnSecondAttempt(t *testing.T) {
	profiles := texts("nothing useful", profileText)
	patterns := texts(patternText)
	w := new(mockWriter)
	w.On("Write", mock.Anything, acme, mock.AnythingOfType("model.Profile"), model.PatternFirstDotLast).Return(nil).Once()
	sl := &sleepLog{}

	c := NewController(profiles, patterns, w, Config{BaseDelay: 500 * time.Millisecond}, WithSleep(sl.sleep))
	res, attempts, err := c.Process(context.Background(), acme)
	require.NoError(t, err)

	assert.Equal(t, model.LeadSucceeded, res.State)
	assert.Equal(t, model.DispositionEnriched, res.Disposition)
	assert.True(t, res.Written)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "555-123-4567", res.Final.Profile.Phone)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, sl.waits)
	require.Len(t, attempts, 2)
	assert.Equal(t, model.ReasonMissingProfile, attempts[0].Outcome.Reason)
	assert.True(t, attempts[1].Outcome.OK())
	w.AssertNumberOfCalls(t, "Write", 1)
}

func TestProcess_Classification(t *testing.T) {
	tests := []struct {
		name    string
		profile string
		pattern string
		want    model.FailureReason
	}{
		{"both missing", "", "", model.ReasonMissingProfile},
		{"profile missing, pattern found", "", patternText, model.ReasonMissingProfile},
		{"pattern missing", profileText, "no pattern here", model.ReasonMissingPattern},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(texts(tt.profile), texts(tt.pattern), new(mockWriter), Config{MaxRetries: 1})
			res, _, err := c.Process(context.Background(), acme)
			require.NoError(t, err)
			assert.Equal(t, model.LeadSkipped, res.State)
			assert.Equal(t, tt.want, res.Final.Reason)
		})
	}
}

func TestProcess_PatternFetchErrorIsFetchError(t *testing.T) {
	patterns := failing(errors.New("navigation failed"))
	c := NewController(texts(profileText), patterns, new(mockWriter), Config{MaxRetries: 2}, WithSleep((&sleepLog{}).sleep))

	res, _, err := c.Process(context.Background(), acme)
	require.NoError(t, err)
	assert.Equal(t, model.ReasonFetchError, res.Final.Reason)
	assert.Len(t, patterns.calls, 2)
}

func TestProcess_ZeroBaseDelayRetriesImmediately(t *testing.T) {
	sl := &sleepLog{}
	c := NewController(texts(""), texts(""), new(mockWriter), Config{MaxRetries: 3, BaseDelay: 0}, WithSleep(sl.sleep))

	res, _, err := c.Process(context.Background(), acme)
	require.NoError(t, err)
	assert.Equal(t, model.LeadSkipped, res.State)
	assert.Equal(t, []time.Duration{0, 0}, sl.waits)
}

func TestProcess_WriteErrorNotRetried(t *testing.T) {
	w := new(mockWriter)
	werr := &form.WriteError{Domain: "acme.com", Step: "save", Err: errors.New("button missing")}
	w.On("Write", mock.Anything, acme, mock.Anything, mock.Anything).Return(werr).Once()
	profiles := texts(profileText)

	c := NewController(profiles, texts(patternText), w, Config{})
	res, _, err := c.Process(context.Background(), acme)
	require.NoError(t, err)

	assert.Equal(t, model.LeadSucceeded, res.State)
	assert.Equal(t, model.DispositionFailed, res.Disposition)
	assert.False(t, res.Written)
	assert.Contains(t, res.WriteError, "save")
	assert.Len(t, profiles.calls, 1)
	w.AssertExpectations(t)
}

func TestProcess_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sleep := func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	profiles := texts("")
	c := NewController(profiles, texts(""), new(mockWriter), Config{}, WithSleep(sleep))

	res, attempts, err := c.Process(ctx, acme)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, attempts, 1)
	assert.False(t, res.State.Terminal())
}

// Profile text has only a phone; the pattern is never found.
func TestScenario_SkippedMissingEmailPattern(t *testing.T) {
	page := browsertest.New()
	profiles := fetch.New(page, fetch.ProfileProvider)
	patterns := fetch.New(page, fetch.PatternProvider)
	page.RespondText(profiles.URL("acme.com"), "Acme\nPhone: 555-123-4567")
	page.RespondText(patterns.URL("acme.com"), "Acme Corp employees on RocketReach")
	w := new(mockWriter)
	sl := &sleepLog{}

	c := NewController(profiles, patterns, w, Config{MaxRetries: 3, BaseDelay: time.Second}, WithSleep(sl.sleep))
	res, attempts, err := c.Process(context.Background(), acme)
	require.NoError(t, err)

	assert.Equal(t, model.LeadSkipped, res.State)
	assert.Equal(t, model.ReasonMissingPattern, res.Final.Reason)
	assert.Len(t, attempts, 3)
	assert.Equal(t, 3, page.VisitsContaining("zoominfo"))
	assert.Equal(t, 3, page.VisitsContaining("rocketreach"))
	w.AssertNotCalled(t, "Write", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// Pattern text matches {f}{last}@ on the first attempt; profile has only HQ.
func TestScenario_SucceededFirstAttempt(t *testing.T) {
	page := browsertest.New()
	profiles := fetch.New(page, fetch.ProfileProvider)
	patterns := fetch.New(page, fetch.PatternProvider)
	page.RespondText(profiles.URL("acme.com"), "Headquarters: Springfield, IL")
	page.RespondText(patterns.URL("acme.com"), "Most common: {f}last@acme.com")

	w := new(mockWriter)
	w.On("Write", mock.Anything, acme, model.Profile{Headquarters: "Springfield, IL"}, model.PatternInitialLast).Return(nil).Once()
	sl := &sleepLog{}

	c := NewController(profiles, patterns, w, Config{}, WithSleep(sl.sleep))
	res, attempts, err := c.Process(context.Background(), acme)
	require.NoError(t, err)

	assert.Equal(t, model.LeadSucceeded, res.State)
	assert.Equal(t, 1, res.Attempts)
	assert.Len(t, attempts, 1)
	assert.Empty(t, sl.waits)
	assert.Equal(t, []string{profiles.URL("acme.com"), patterns.URL("acme.com")}, page.Visits,
		"profile fetch precedes pattern fetch")
	w.AssertExpectations(t)
}
