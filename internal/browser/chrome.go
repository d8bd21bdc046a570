package browser

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/resilience"
)

// ChromeConfig configures the chromedp backend.
type ChromeConfig struct {
	Headless  bool
	ExecPath  string
	UserAgent string
	// Settle is waited after the body is ready so client-side rendering and
	// late network requests can finish.
	Settle time.Duration
	// ActionTimeout bounds element operations so a missing element fails
	// instead of waiting forever. Navigation is bounded by the caller.
	ActionTimeout time.Duration
}

// Chrome is a Page backed by a single chromedp tab.
type Chrome struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    ChromeConfig
}

// NewChrome launches a browser and opens a tab. The browser lives until
// Close is called or parent is cancelled.
func NewChrome(parent context.Context, cfg ChromeConfig) (*Chrome, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 10 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	c := &Chrome{
		ctx: ctx,
		cancel: func() {
			cancel()
			allocCancel()
		},
		cfg: cfg,
	}
	// An empty Run starts the browser so launch failures surface here.
	if err := chromedp.Run(ctx); err != nil {
		c.cancel()
		return nil, eris.Wrap(err, "chrome: launch")
	}
	return c, nil
}

// tab derives a context on the browser tab that also ends when ctx does.
func (c *Chrome) tab(ctx context.Context, timeout time.Duration) (context.Context, func()) {
	var runCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(c.ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(c.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// run executes actions on the tab, honouring both the caller's context and
// an optional timeout.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, done := c.tab(ctx, timeout)
	defer done()
	return callerErr(ctx, chromedp.Run(runCtx, actions...))
}

// callerErr prefers the caller's cancellation over the tab error it caused.
func callerErr(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func queryOpts(sel Selector) []chromedp.QueryOption {
	if sel.Kind == KindCSS {
		return []chromedp.QueryOption{chromedp.ByQuery}
	}
	return []chromedp.QueryOption{chromedp.BySearch}
}

func queryExpr(sel Selector) string {
	if sel.Kind == KindCSS {
		return sel.Query
	}
	return sel.XPathExpr()
}

// Navigate loads url, waits for the body and then the settle delay. An error
// status on the document response or an embedded captcha widget fails the
// navigation.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	runCtx, done := c.tab(ctx, 0)
	defer done()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		return eris.Wrapf(callerErr(ctx, err), "chrome: navigate %s", url)
	}
	if err := responseError(resp); err != nil {
		return err
	}

	var captcha bool
	err = chromedp.Run(runCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(c.cfg.Settle),
		chromedp.Evaluate(captchaProbe, &captcha),
	)
	if err != nil {
		return eris.Wrapf(callerErr(ctx, err), "chrome: navigate %s", url)
	}
	if captcha {
		return &ErrBlocked{Type: BlockCaptcha}
	}
	return nil
}

var captchaProbe = "document.querySelector(" + strconv.Quote(CaptchaWidgetSelector) + ") !== null"

// responseError classifies the main document response the same way the
// HTTP backend classifies its responses.
func responseError(resp *network.Response) error {
	if resp == nil {
		return nil
	}
	status := int(resp.Status)
	hresp := &http.Response{StatusCode: status, Header: make(http.Header, len(resp.Headers))}
	for k, v := range resp.Headers {
		if s, ok := v.(string); ok {
			hresp.Header.Set(k, s)
		}
	}
	if bt := DetectBlock(hresp, nil); bt != BlockNone {
		return &ErrBlocked{Type: bt}
	}
	if status >= 400 {
		err := eris.Errorf("chrome: navigate %s: status %d", resp.URL, status)
		if resilience.IsTransientHTTPStatus(status) {
			return resilience.NewTransientError(err, status)
		}
		return err
	}
	return nil
}

// ReadText returns the rendered innerText of the body.
func (c *Chrome) ReadText(ctx context.Context) (string, error) {
	var text string
	if err := c.run(ctx, c.cfg.ActionTimeout, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
		return "", eris.Wrap(err, "chrome: read text")
	}
	return text, nil
}

func (c *Chrome) Click(ctx context.Context, sel Selector) error {
	opts := append(queryOpts(sel), chromedp.NodeVisible)
	err := c.run(ctx, c.cfg.ActionTimeout, chromedp.Click(queryExpr(sel), opts...))
	return eris.Wrapf(err, "chrome: click %s", sel)
}

func (c *Chrome) Type(ctx context.Context, text string) error {
	err := c.run(ctx, c.cfg.ActionTimeout, chromedp.KeyEvent(text))
	return eris.Wrap(err, "chrome: type")
}

func (c *Chrome) Clear(ctx context.Context, sel Selector) error {
	err := c.run(ctx, c.cfg.ActionTimeout, chromedp.SetValue(queryExpr(sel), "", queryOpts(sel)...))
	return eris.Wrapf(err, "chrome: clear %s", sel)
}

func (c *Chrome) Exists(ctx context.Context, sel Selector) (bool, error) {
	var nodes []*cdp.Node
	opts := append(queryOpts(sel), chromedp.AtLeast(0))
	if err := c.run(ctx, c.cfg.ActionTimeout, chromedp.Nodes(queryExpr(sel), &nodes, opts...)); err != nil {
		return false, eris.Wrapf(err, "chrome: probe %s", sel)
	}
	return len(nodes) > 0, nil
}

func (c *Chrome) Checked(ctx context.Context, sel Selector) (bool, error) {
	var checked bool
	err := c.run(ctx, c.cfg.ActionTimeout,
		chromedp.JavascriptAttribute(queryExpr(sel), "checked", &checked, queryOpts(sel)...))
	if err != nil {
		return false, eris.Wrapf(err, "chrome: checked %s", sel)
	}
	return checked, nil
}

func (c *Chrome) Value(ctx context.Context, sel Selector) (string, error) {
	var val string
	if err := c.run(ctx, c.cfg.ActionTimeout, chromedp.Value(queryExpr(sel), &val, queryOpts(sel)...)); err != nil {
		return "", eris.Wrapf(err, "chrome: value %s", sel)
	}
	return val, nil
}

// Screenshot captures the current viewport as PNG.
func (c *Chrome) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, c.cfg.ActionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, eris.Wrap(err, "chrome: screenshot")
	}
	return buf, nil
}

// Close shuts down the tab and the browser process.
func (c *Chrome) Close() error {
	c.cancel()
	return nil
}

var (
	_ Page          = (*Chrome)(nil)
	_ StateSaver    = (*Chrome)(nil)
	_ Screenshotter = (*Chrome)(nil)
	_ Page          = (*HTTPPage)(nil)
)
