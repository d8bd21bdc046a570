package form

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enricher/internal/browser"
	"github.com/sells-group/lead-enricher/internal/browser/browsertest"
	"github.com/sells-group/lead-enricher/internal/model"
)

var (
	testLead    = model.Lead{Company: "Acme", Domain: "acme.com"}
	testProfile = model.Profile{Phone: "+1 555-0100", Headquarters: "Austin, TX", Employees: "1,200", Revenue: "$5M"}
)

func recordingSleep(waits *[]time.Duration) Option {
	return WithSleep(func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	})
}

func TestWrite_FillsEveryField(t *testing.T) {
	page := browsertest.New()
	var waits []time.Duration
	w := NewWriter(page, Config{ContactsURL: "https://app.test/contacts"}, recordingSleep(&waits))

	require.NoError(t, w.Write(context.Background(), testLead, testProfile, model.PatternFirstDotLast))

	assert.Equal(t, []string{"https://app.test/contacts"}, page.Visits)
	assert.Equal(t, "acme.com", page.Values[FieldInput("domain")])
	assert.Equal(t, "+1 555-0100", page.Values[FieldInput("phone")])
	assert.Equal(t, "Austin, TX", page.Values[FieldInput("headquarters")])
	assert.Equal(t, "1,200", page.Values[FieldInput("employees")])
	assert.Equal(t, "$5M", page.Values[FieldInput("revenue")])
	assert.Equal(t, "{first}.{last}@", page.Values[FieldInput("emailPattern")])

	clicks := []browser.Selector{}
	for _, a := range page.Actions {
		if a.Op == "click" {
			clicks = append(clicks, a.Selector)
		}
	}
	require.Len(t, clicks, 8)
	assert.Equal(t, AddContactButton, clicks[0])
	assert.Equal(t, FieldInput("domain"), clicks[1])
	assert.Equal(t, FieldInput("emailPattern"), clicks[6])
	assert.Equal(t, SaveButton, clicks[7])
}

func TestWrite_TypesOneCharacterAtATime(t *testing.T) {
	page := browsertest.New()
	var waits []time.Duration
	w := NewWriter(page, Config{MinKeyDelay: 40 * time.Millisecond, MaxKeyDelay: 80 * time.Millisecond},
		WithRand(func() float64 { return 0.5 }), recordingSleep(&waits))

	require.NoError(t, w.Write(context.Background(), model.Lead{Domain: "ab.io"}, model.Profile{Phone: "1"}, model.PatternFirst))

	var typed []string
	for _, a := range page.Actions {
		if a.Op == "type" {
			typed = append(typed, a.Text)
		}
	}
	assert.Equal(t, []string{"a", "b", ".", "i", "o", "1", "{", "f", "i", "r", "s", "t", "}", "@"}, typed)
	require.Len(t, waits, len(typed))
	for _, d := range waits {
		assert.Equal(t, 60*time.Millisecond, d)
	}
}

func TestKeyDelay_WithinBounds(t *testing.T) {
	w := NewWriter(browsertest.New(), Config{MinKeyDelay: 40 * time.Millisecond, MaxKeyDelay: 80 * time.Millisecond})
	for range 200 {
		d := w.keyDelay()
		assert.GreaterOrEqual(t, d, 40*time.Millisecond)
		assert.Less(t, d, 80*time.Millisecond)
	}
}

func TestWrite_StepFailureIsWriteError(t *testing.T) {
	page := browsertest.New()
	page.Fail[FieldInput("revenue")] = errors.New("element not found")
	w := NewWriter(page, Config{}, recordingSleep(new([]time.Duration)))

	err := w.Write(context.Background(), testLead, testProfile, model.PatternFirst)

	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "acme.com", we.Domain)
	assert.Equal(t, "fill revenue", we.Step)
	for _, a := range page.Actions {
		assert.NotEqual(t, SaveButton, a.Selector, "save must not be clicked")
	}
	assert.Empty(t, page.Values[FieldInput("emailPattern")])
}

func TestWrite_ReadOnlyBackend(t *testing.T) {
	w := NewWriter(browser.NewHTTP(), Config{})

	err := w.Write(context.Background(), testLead, testProfile, model.PatternFirst)
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "add contact", we.Step)
	assert.ErrorIs(t, err, browser.ErrUnsupported)
}

func TestWrite_CancelledWhileTyping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWriter(browsertest.New(), Config{}, WithSleep(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))

	err := w.Write(ctx, testLead, testProfile, model.PatternFirst)
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "fill domain", we.Step)
}

func TestPhoneNormalisation(t *testing.T) {
	tests := []struct {
		region string
		raw    string
		want   string
	}{
		{"", "(512) 555-0100", "(512) 555-0100"},
		{"US", "(512) 555-0100", "+15125550100"},
		{"US", "+44 20 7946 0958", "+442079460958"},
		{"US", "12", "12"},
		{"US", "", ""},
	}
	for _, tt := range tests {
		w := NewWriter(browsertest.New(), Config{PhoneRegion: tt.region})
		assert.Equal(t, tt.want, w.phone(tt.raw), tt.raw)
	}
}
