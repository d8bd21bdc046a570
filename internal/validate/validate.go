// Package validate decides whether extracted data is usable and whether an
// ingested lead is well formed.
package validate

import (
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/model"
)

// UsableProfile reports whether at least one profile field was extracted.
// Any partial signal counts.
func UsableProfile(p model.Profile) bool {
	return !p.Empty()
}

// UsablePattern reports whether a known email pattern was found.
func UsablePattern(p model.EmailPattern) bool {
	return p != model.PatternUnknown && p != ""
}

var (
	leadValidator     *validator.Validate
	leadValidatorOnce sync.Once
)

func structValidator() *validator.Validate {
	leadValidatorOnce.Do(func() {
		leadValidator = validator.New(validator.WithRequiredStructEnabled())
	})
	return leadValidator
}

// Lead checks that a lead has a company name and a fully qualified domain.
func Lead(lead model.Lead) error {
	if err := structValidator().Struct(lead); err != nil {
		return eris.Wrapf(err, "validate: lead %q", lead.Domain)
	}
	return nil
}
