// Package browsertest provides a scripted in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/browser"
)

// Response is one scripted result of navigating to a URL.
type Response struct {
	Text string
	Err  error
}

// Action is a recorded page interaction.
type Action struct {
	Op       string
	Selector browser.Selector
	Text     string
}

// Page is a fake browser.Page. Navigation answers come from per-URL queues;
// the last queued response repeats. Clicking focuses an element, typing
// appends to the focused element's value.
type Page struct {
	mu sync.Mutex

	responses map[string][]Response
	// Fallback answers URLs with no scripted response.
	Fallback Response

	// Present lists selectors Exists reports as present. Selectors with a
	// value or checked state are present as well.
	Present map[browser.Selector]bool
	Checks  map[browser.Selector]bool
	Values  map[browser.Selector]string
	// Fail makes operations on a selector return the error.
	Fail map[browser.Selector]error
	// TypeErr is returned by every Type call when set.
	TypeErr error
	// OnClick runs after a successful click, e.g. to flip a toggle.
	OnClick func(p *Page, sel browser.Selector)

	Visits  []string
	Actions []Action
	Saved   []string
	Loaded  []string
	Shots   int

	current string
	text    string
	focused *browser.Selector
	closed  bool
}

// New creates an empty fake page.
func New() *Page {
	return &Page{
		responses: make(map[string][]Response),
		Present:   make(map[browser.Selector]bool),
		Checks:    make(map[browser.Selector]bool),
		Values:    make(map[browser.Selector]string),
		Fail:      make(map[browser.Selector]error),
	}
}

// Respond queues responses for url.
func (p *Page) Respond(url string, rs ...Response) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses[url] = append(p.responses[url], rs...)
	return p
}

// RespondText queues plain text responses for url.
func (p *Page) RespondText(url string, texts ...string) *Page {
	rs := make([]Response, len(texts))
	for i, t := range texts {
		rs[i] = Response{Text: t}
	}
	return p.Respond(url, rs...)
}

func (p *Page) record(op string, sel browser.Selector, text string) {
	p.Actions = append(p.Actions, Action{Op: op, Selector: sel, Text: text})
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Visits = append(p.Visits, url)
	p.record("navigate", browser.Selector{}, url)
	p.focused = nil

	r := p.Fallback
	if q := p.responses[url]; len(q) > 0 {
		r = q[0]
		if len(q) > 1 {
			p.responses[url] = q[1:]
		}
	}
	if r.Err != nil {
		p.current, p.text = "", ""
		return r.Err
	}
	p.current, p.text = url, r.Text
	return nil
}

func (p *Page) ReadText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text, nil
}

// SetText replaces the current page text.
func (p *Page) SetText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.text = text
}

func (p *Page) Click(ctx context.Context, sel browser.Selector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if err := p.Fail[sel]; err != nil {
		p.mu.Unlock()
		return err
	}
	p.record("click", sel, "")
	s := sel
	p.focused = &s
	hook := p.OnClick
	p.mu.Unlock()

	if hook != nil {
		hook(p, sel)
	}
	return nil
}

func (p *Page) Type(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.TypeErr != nil {
		return p.TypeErr
	}
	if p.focused == nil {
		return eris.New("browsertest: type with no focused element")
	}
	p.record("type", *p.focused, text)
	p.Values[*p.focused] += text
	return nil
}

func (p *Page) Clear(ctx context.Context, sel browser.Selector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.Fail[sel]; err != nil {
		return err
	}
	p.record("clear", sel, "")
	p.Values[sel] = ""
	return nil
}

func (p *Page) Exists(ctx context.Context, sel browser.Selector) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Present[sel] {
		return true, nil
	}
	_, hasVal := p.Values[sel]
	_, hasCheck := p.Checks[sel]
	return hasVal || hasCheck, nil
}

func (p *Page) Checked(ctx context.Context, sel browser.Selector) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.Fail[sel]; err != nil {
		return false, err
	}
	return p.Checks[sel], nil
}

// SetChecked sets a checkbox state; intended for OnClick hooks.
func (p *Page) SetChecked(sel browser.Selector, v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Checks[sel] = v
}

func (p *Page) Value(ctx context.Context, sel browser.Selector) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.Fail[sel]; err != nil {
		return "", err
	}
	return p.Values[sel], nil
}

// LoadState records the load; the file must exist.
func (p *Page) LoadState(_ context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Loaded = append(p.Loaded, path)
	return nil
}

// SaveState writes a placeholder credential artifact to path.
func (p *Page) SaveState(_ context.Context, path string) error {
	if err := os.WriteFile(path, []byte(`{"cookies":[]}`), 0o600); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Saved = append(p.Saved, path)
	return nil
}

// Screenshot returns a fixed PNG header.
func (p *Page) Screenshot(_ context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Shots++
	return []byte("\x89PNG\r\n\x1a\n"), nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Ops returns the recorded operation names, e.g. for ordering assertions.
func (p *Page) Ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		ops[i] = a.Op
	}
	return ops
}

// VisitsContaining counts visits whose URL contains substr.
func (p *Page) VisitsContaining(substr string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, v := range p.Visits {
		if strings.Contains(v, substr) {
			n++
		}
	}
	return n
}

var (
	_ browser.Page          = (*Page)(nil)
	_ browser.StateSaver    = (*Page)(nil)
	_ browser.Screenshotter = (*Page)(nil)
)
