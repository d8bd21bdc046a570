package browser

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/sells-group/lead-enricher/internal/resilience"
)

const maxBodyBytes = 2 << 20

// DefaultUserAgent is a desktop Chrome user agent used by both backends.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// HTTPPage is a read-only Page that fetches documents with net/http and
// extracts visible text with goquery. Interactive operations return
// ErrUnsupported.
type HTTPPage struct {
	client    *http.Client
	userAgent string

	url  string
	text string
}

// HTTPOption configures an HTTPPage.
type HTTPOption func(*HTTPPage)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPPage) { p.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(p *HTTPPage) {
		if ua != "" {
			p.userAgent = ua
		}
	}
}

// NewHTTP creates an HTTPPage with sensible transport timeouts.
func NewHTTP(opts ...HTTPOption) *HTTPPage {
	p := &HTTPPage{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent: DefaultUserAgent,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Navigate fetches url and keeps its visible text as the current page.
func (p *HTTPPage) Navigate(ctx context.Context, url string) error {
	p.url, p.text = "", ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "http page: create request")
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := p.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "http page: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return eris.Wrap(err, "http page: read body")
	}

	if bt := DetectBlock(resp, body); bt != BlockNone {
		return &ErrBlocked{Type: bt}
	}
	if resp.StatusCode >= 400 {
		err := eris.Errorf("http page: status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "http page: parse html")
	}
	p.url = url
	p.text = VisibleText(doc)
	return nil
}

// ReadText returns the text captured by the last successful Navigate.
func (p *HTTPPage) ReadText(_ context.Context) (string, error) {
	if p.url == "" {
		return "", eris.New("http page: no page loaded")
	}
	return p.text, nil
}

func (p *HTTPPage) Click(context.Context, Selector) error          { return ErrUnsupported }
func (p *HTTPPage) Type(context.Context, string) error             { return ErrUnsupported }
func (p *HTTPPage) Clear(context.Context, Selector) error          { return ErrUnsupported }
func (p *HTTPPage) Exists(context.Context, Selector) (bool, error) { return false, ErrUnsupported }
func (p *HTTPPage) Checked(context.Context, Selector) (bool, error) {
	return false, ErrUnsupported
}
func (p *HTTPPage) Value(context.Context, Selector) (string, error) { return "", ErrUnsupported }
func (p *HTTPPage) Close() error                                    { return nil }

// VisibleText returns the body text of doc with one line per text node,
// skipping scripts and styles. Line breaks keep adjacent snippets from
// running into each other the way rendered innerText does.
func VisibleText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, template").Remove()

	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.Join(strings.Fields(n.Data), " "); s != "" {
				lines = append(lines, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Find("body").Nodes {
		walk(n)
	}
	return strings.Join(lines, "\n")
}
