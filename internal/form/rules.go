package form

import (
	"context"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/browser"
)

// Selectors on the automation-rules page.
var (
	InvalidLimitInput = browser.CSS(`input[type="number"]`)
	ActionCombobox    = browser.CSS(`div[role="combobox"]`)
)

// Rules is the desired automation-rules configuration.
type Rules struct {
	InvalidEmailLimit   int
	InvalidAction       string
	ProofpointProtected bool
	CatchAllRestricted  bool
	GenericRestricted   bool
	// AutosaveWait is how long the page needs to persist changes.
	AutosaveWait time.Duration
}

// Toggle is a labelled checkbox on the rules page.
type Toggle struct {
	Label string
	On    bool
}

// Input returns the checkbox input inside the toggle's label.
func (t Toggle) Input() browser.Selector {
	return browser.XPath(`//label[contains(., ` + browser.XPathLiteral(t.Label) + `)]/input`)
}

func (r Rules) toggles() []Toggle {
	return []Toggle{
		{Label: "Proofpoint Protected", On: r.ProofpointProtected},
		{Label: "Catch-all Restricted", On: r.CatchAllRestricted},
		{Label: "Generic Restricted", On: r.GenericRestricted},
	}
}

// OptionStrategy selects an option of a single-choice control.
type OptionStrategy interface {
	Name() string
	Select(ctx context.Context, page browser.Page, option string) error
}

// DirectOption clicks an option that is already rendered.
type DirectOption struct{}

func (DirectOption) Name() string { return "direct" }

func (DirectOption) Select(ctx context.Context, page browser.Page, option string) error {
	return page.Click(ctx, browser.Text(option))
}

// DropdownOption opens a combobox first, then clicks the option.
type DropdownOption struct {
	Trigger browser.Selector
}

func (DropdownOption) Name() string { return "dropdown" }

func (d DropdownOption) Select(ctx context.Context, page browser.Page, option string) error {
	if err := page.Click(ctx, d.Trigger); err != nil {
		return eris.Wrap(err, "open dropdown")
	}
	return page.Click(ctx, browser.Text(option))
}

// ResolveOptionStrategy probes the page once: a visible option is clicked
// directly, otherwise it is reached through the combobox.
func ResolveOptionStrategy(ctx context.Context, page browser.Page, option string) (OptionStrategy, error) {
	ok, err := page.Exists(ctx, browser.Text(option))
	if err != nil {
		return nil, err
	}
	if ok {
		return DirectOption{}, nil
	}
	return DropdownOption{Trigger: ActionCombobox}, nil
}

// ConfigureRules applies the configured automation rules. Toggles are only
// clicked when their state differs, so running it twice changes nothing the
// second time.
func (w *Writer) ConfigureRules(ctx context.Context) error {
	r := w.cfg.Rules
	fail := func(step string, err error) error {
		return eris.Wrapf(err, "form: rules: %s", step)
	}

	if err := w.page.Navigate(ctx, w.cfg.RulesURL); err != nil {
		return fail("open rules page", err)
	}

	limit := strconv.Itoa(r.InvalidEmailLimit)
	if err := w.page.Click(ctx, InvalidLimitInput); err != nil {
		return fail("focus invalid email limit", err)
	}
	if err := w.page.Clear(ctx, InvalidLimitInput); err != nil {
		return fail("clear invalid email limit", err)
	}
	if err := w.page.Type(ctx, limit); err != nil {
		return fail("type invalid email limit", err)
	}
	if err := w.sleep(ctx, 300*time.Millisecond); err != nil {
		return fail("set invalid email limit", err)
	}

	if r.InvalidAction != "" {
		strategy, err := ResolveOptionStrategy(ctx, w.page, r.InvalidAction)
		if err != nil {
			return fail("probe invalid action", err)
		}
		if err := strategy.Select(ctx, w.page, r.InvalidAction); err != nil {
			return fail("select invalid action", err)
		}
		zap.L().Debug("rules: invalid action selected",
			zap.String("action", r.InvalidAction),
			zap.String("strategy", strategy.Name()),
		)
		if err := w.sleep(ctx, 500*time.Millisecond); err != nil {
			return fail("select invalid action", err)
		}
	}

	for _, t := range r.toggles() {
		checked, err := w.page.Checked(ctx, t.Input())
		if err != nil {
			return fail("read "+t.Label, err)
		}
		if checked == t.On {
			continue
		}
		if err := w.page.Click(ctx, browser.Text(t.Label)); err != nil {
			return fail("toggle "+t.Label, err)
		}
	}

	if err := w.sleep(ctx, r.AutosaveWait); err != nil {
		return fail("wait for auto-save", err)
	}

	got, err := w.page.Value(ctx, InvalidLimitInput)
	if err != nil {
		return fail("read back invalid email limit", err)
	}
	if got != limit {
		zap.L().Warn("rules: invalid email limit did not persist",
			zap.String("want", limit),
			zap.String("got", got),
		)
	} else {
		zap.L().Info("rules: invalid email limit set", zap.String("value", got))
	}
	return nil
}
