package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfileEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, Profile{}.Empty())
	assert.False(t, Profile{Phone: "555"}.Empty())
	assert.False(t, Profile{Revenue: "$5M"}.Empty())
}

func TestKnownPatternsOrder(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []EmailPattern{
		"{first}.{last}@",
		"{f}{last}@",
		"{first}@",
		"{first}_{last}@",
	}, KnownPatterns())
	assert.NotContains(t, KnownPatterns(), PatternUnknown)
}

func TestAttemptOutcomeConstructors(t *testing.T) {
	t.Parallel()

	ok := Succeeded(Profile{Phone: "555"}, PatternFirst)
	assert.True(t, ok.OK())
	assert.Equal(t, PatternFirst, ok.Pattern)
	assert.Empty(t, ok.Reason)

	miss := Failed(ReasonMissingPattern, nil)
	assert.False(t, miss.OK())
	assert.Equal(t, ReasonMissingPattern, miss.Reason)
	assert.Empty(t, miss.Error)

	fetchErr := Failed(ReasonFetchError, errors.New("navigation timeout"))
	assert.Equal(t, "navigation timeout", fetchErr.Error)
}

func TestLeadStateTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state LeadState
		want  bool
	}{
		{LeadPending, false},
		{LeadAttempting, false},
		{LeadSucceeded, true},
		{LeadSkipped, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.state.Terminal())
		})
	}
}

func TestRunTally(t *testing.T) {
	t.Parallel()

	r := Run{
		Succeeded: 9,
		Results: []LeadResult{
			{Disposition: DispositionEnriched},
			{Disposition: DispositionEnriched},
			{Disposition: DispositionSkipped},
			{Disposition: DispositionFailed},
		},
	}
	r.Tally()

	assert.Equal(t, 2, r.Succeeded)
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, 1, r.WriteFailed)
}
