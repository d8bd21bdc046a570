// Package browser defines the narrow page capability the pipeline drives and
// its chromedp and plain-HTTP implementations.
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnsupported is returned by backends that cannot perform an operation,
// e.g. clicking on the read-only HTTP backend.
var ErrUnsupported = eris.New("browser: operation not supported by backend")

// SelectorKind is how a Selector's query is interpreted.
type SelectorKind int

const (
	KindCSS SelectorKind = iota
	KindXPath
	// KindText matches the innermost element whose text contains the query.
	KindText
)

func (k SelectorKind) String() string {
	switch k {
	case KindCSS:
		return "css"
	case KindXPath:
		return "xpath"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Selector identifies an element on the current page.
type Selector struct {
	Kind  SelectorKind
	Query string
}

// CSS returns a CSS selector.
func CSS(q string) Selector { return Selector{Kind: KindCSS, Query: q} }

// XPath returns an XPath selector.
func XPath(q string) Selector { return Selector{Kind: KindXPath, Query: q} }

// Text returns a selector for the innermost element containing text.
func Text(text string) Selector { return Selector{Kind: KindText, Query: text} }

func (s Selector) String() string {
	return s.Kind.String() + "=" + s.Query
}

// XPathExpr returns the selector as an XPath expression. CSS selectors are
// returned unchanged and must be queried as CSS.
func (s Selector) XPathExpr() string {
	if s.Kind != KindText {
		return s.Query
	}
	lit := XPathLiteral(s.Query)
	return fmt.Sprintf(`//*[contains(normalize-space(.), %s)][not(*[contains(normalize-space(.), %s)])]`, lit, lit)
}

// XPathLiteral quotes s as an XPath 1.0 string literal.
func XPathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		quoted = append(quoted, `"`+p+`"`)
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// Page is a single browser tab. Implementations are not safe for concurrent
// use; one goroutine owns a page for its lifetime.
type Page interface {
	// Navigate loads url and waits until the page has settled.
	Navigate(ctx context.Context, url string) error
	// ReadText returns the visible text of the current page.
	ReadText(ctx context.Context) (string, error)
	// Click clicks the element and gives it focus.
	Click(ctx context.Context, sel Selector) error
	// Type sends keystrokes to the focused element.
	Type(ctx context.Context, text string) error
	// Clear empties an input element.
	Clear(ctx context.Context, sel Selector) error
	// Exists reports whether the element is present without waiting for it.
	Exists(ctx context.Context, sel Selector) (bool, error)
	// Checked reports the checked state of a checkbox input.
	Checked(ctx context.Context, sel Selector) (bool, error)
	// Value returns the current value of an input element.
	Value(ctx context.Context, sel Selector) (string, error)
	Close() error
}

// StateSaver is implemented by pages that can persist the session credential
// artifact (cookies) between runs.
type StateSaver interface {
	LoadState(ctx context.Context, path string) error
	SaveState(ctx context.Context, path string) error
}

// Screenshotter is implemented by pages that can capture a PNG of the
// current viewport.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}
