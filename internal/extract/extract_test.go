package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/lead-enricher/internal/model"
)

func TestProfile_AllFields(t *testing.T) {
	text := "Acme Corp | ZoomInfo\n" +
		"Phone: +1 555-123-4567\n" +
		"Headquarters: 100 Main St, Springfield, IL\n" +
		"Employees: 1,250\n" +
		"Revenue: $45.2M\n"

	got := Profile(text)

	assert.Equal(t, "+1 555-123-4567", got.Phone)
	assert.Equal(t, "100 Main St, Springfield, IL", got.Headquarters)
	assert.Equal(t, "1,250", got.Employees)
	assert.Equal(t, "$45.2M", got.Revenue)
}

func TestProfile_FieldsAreIndependent(t *testing.T) {
	got := Profile("Revenue: $7B and nothing else")

	assert.Empty(t, got.Phone)
	assert.Empty(t, got.Headquarters)
	assert.Empty(t, got.Employees)
	assert.Equal(t, "$7B", got.Revenue)
}

func TestProfile_FirstMatchWins(t *testing.T) {
	got := Profile("Phone: 555-000-1111\nPhone: 555-999-9999")
	assert.Equal(t, "555-000-1111", got.Phone)
}

func TestProfile_PhoneOnly(t *testing.T) {
	got := Profile("Acme\nPhone: 555-123-4567")
	assert.Equal(t, model.Profile{Phone: "555-123-4567"}, got)
}

func TestProfile_NonBreakingSpace(t *testing.T) {
	got := Profile("Employees: 300")
	assert.Equal(t, "300", got.Employees)
}

func TestProfile_EmptyAndNoMatch(t *testing.T) {
	assert.Equal(t, model.Profile{}, Profile(""))
	assert.Equal(t, model.Profile{}, Profile("no labels here at all"))
	assert.Equal(t, model.Profile{}, Profile("Phone: \nEmployees: many"))
}

func TestEmailPattern_EachKnownPattern(t *testing.T) {
	tests := []struct {
		text string
		want model.EmailPattern
	}{
		{"Acme uses {first}.{last}@acme.com (72%)", model.PatternFirstDotLast},
		{"most common: {f}{last}@acme.com", model.PatternInitialLast},
		{"format {first}@acme.com", model.PatternFirst},
		{"format {first}_{last}@acme.com", model.PatternFirstUnderscoreLast},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, EmailPattern(tt.text))
		})
	}
}

func TestEmailPattern_PriorityOrder(t *testing.T) {
	text := "{first}@x.com is used 20%, {first}.{last}@x.com is used 70%"
	assert.Equal(t, model.PatternFirstDotLast, EmailPattern(text))

	text = "{first}_{last}@x.com or {f}{last}@x.com"
	assert.Equal(t, model.PatternInitialLast, EmailPattern(text))
}

func TestEmailPattern_Unknown(t *testing.T) {
	assert.Equal(t, model.PatternUnknown, EmailPattern(""))
	assert.Equal(t, model.PatternUnknown, EmailPattern("john.smith@acme.com"))
	assert.Equal(t, model.PatternUnknown, EmailPattern("{last}@acme.com"))
}

func TestEmailPattern_BracelessLast(t *testing.T) {
	assert.Equal(t, model.PatternInitialLast, EmailPattern("{f}last@acme.com"))
	assert.Equal(t, model.PatternFirstDotLast, EmailPattern("{first}.last@acme.com"))
}

func TestExtract_Idempotent(t *testing.T) {
	text := "Phone: 555-123-4567\nHeadquarters: Austin, TX\n{first}@acme.com"

	assert.Equal(t, Profile(text), Profile(text))
	assert.Equal(t, EmailPattern(text), EmailPattern(text))
}
