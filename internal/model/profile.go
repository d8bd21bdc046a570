package model

// Profile holds the company attributes extracted from the company-profile
// provider's search snippets. Any field may be empty.
type Profile struct {
	Phone        string `json:"phone"`
	Headquarters string `json:"headquarters"`
	Employees    string `json:"employees"`
	Revenue      string `json:"revenue"`
}

// Empty reports whether no field was extracted.
func (p Profile) Empty() bool {
	return p.Phone == "" && p.Headquarters == "" && p.Employees == "" && p.Revenue == ""
}

// EmailPattern is a templated guess of how a company forms email addresses.
type EmailPattern string

const (
	PatternFirstDotLast        EmailPattern = "{first}.{last}@"
	PatternInitialLast         EmailPattern = "{f}{last}@"
	PatternFirst               EmailPattern = "{first}@"
	PatternFirstUnderscoreLast EmailPattern = "{first}_{last}@"

	// PatternUnknown is the sentinel returned when no known pattern matched.
	PatternUnknown EmailPattern = "unknown"
)

// KnownPatterns lists the recognized email patterns in match priority order.
func KnownPatterns() []EmailPattern {
	return []EmailPattern{
		PatternFirstDotLast,
		PatternInitialLast,
		PatternFirst,
		PatternFirstUnderscoreLast,
	}
}

func (p EmailPattern) String() string { return string(p) }
