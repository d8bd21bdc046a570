// Package extract pulls company attributes and email patterns out of
// rendered search-result text. All functions are pure and total.
package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/lead-enricher/internal/model"
)

// Each rule is anchored to a literal label; the first capture group is the
// field value.
var (
	phoneRule        = regexp.MustCompile(`Phone:\s*([+\d\s-]+)`)
	headquartersRule = regexp.MustCompile(`Headquarters:\s*(.*)`)
	employeesRule    = regexp.MustCompile(`Employees:\s*([\d,]+)`)
	revenueRule      = regexp.MustCompile(`Revenue:\s*(\$[\d,.A-Z]+)`)
)

// patternRules must stay in model.KnownPatterns order: the first match wins.
// Snippets sometimes render the {last} placeholder without its braces, so
// those are optional.
var patternRules = func() []*regexp.Regexp {
	known := model.KnownPatterns()
	rules := make([]*regexp.Regexp, len(known))
	for i, p := range known {
		expr := strings.ReplaceAll(regexp.QuoteMeta(string(p)), `\{last\}`, `\{?last\}?`)
		rules[i] = regexp.MustCompile(expr)
	}
	return rules
}()

// Profile applies the four field rules independently. A miss on one field
// leaves it empty without affecting the others.
func Profile(text string) model.Profile {
	if text == "" {
		return model.Profile{}
	}
	text = normalize(text)
	return model.Profile{
		Phone:        first(text, phoneRule),
		Headquarters: first(text, headquartersRule),
		Employees:    first(text, employeesRule),
		Revenue:      first(text, revenueRule),
	}
}

// EmailPattern returns the highest-priority known pattern present in text,
// or model.PatternUnknown.
func EmailPattern(text string) model.EmailPattern {
	if text == "" {
		return model.PatternUnknown
	}
	text = normalize(text)
	known := model.KnownPatterns()
	for i, rule := range patternRules {
		if rule.MatchString(text) {
			return known[i]
		}
	}
	return model.PatternUnknown
}

func first(text string, rule *regexp.Regexp) string {
	m := rule.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// normalize folds compatibility characters (non-breaking spaces, full-width
// punctuation) so rendered snippets match the ASCII rules.
func normalize(text string) string {
	return norm.NFKC.String(text)
}
