package browser

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
)

// sessionState is the on-disk credential artifact: the browser's cookies.
type sessionState struct {
	Cookies []*network.Cookie `json:"cookies"`
	SavedAt time.Time         `json:"saved_at"`
}

// SaveState writes every cookie of the browser to path.
func (c *Chrome) SaveState(ctx context.Context, path string) error {
	var cookies []*network.Cookie
	err := c.run(ctx, c.cfg.ActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetAllCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return eris.Wrap(err, "chrome: read cookies")
	}

	data, err := json.MarshalIndent(sessionState{Cookies: cookies, SavedAt: time.Now().UTC()}, "", "  ")
	if err != nil {
		return eris.Wrap(err, "chrome: marshal state")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return eris.Wrapf(err, "chrome: write state %s", path)
	}
	return nil
}

// LoadState restores cookies previously written by SaveState.
func (c *Chrome) LoadState(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "chrome: read state %s", path)
	}
	var st sessionState
	if err := json.Unmarshal(data, &st); err != nil {
		return eris.Wrapf(err, "chrome: parse state %s", path)
	}

	params := cookieParams(st.Cookies)
	if len(params) == 0 {
		return nil
	}
	err = c.run(ctx, c.cfg.ActionTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
	return eris.Wrap(err, "chrome: restore cookies")
}

func cookieParams(cookies []*network.Cookie) []*network.CookieParam {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, ck := range cookies {
		if ck == nil {
			continue
		}
		p := &network.CookieParam{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Secure:   ck.Secure,
			HTTPOnly: ck.HTTPOnly,
			SameSite: ck.SameSite,
		}
		// Session cookies carry no expiry.
		if !ck.Session && ck.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(ck.Expires), 0))
			p.Expires = &exp
		}
		params = append(params, p)
	}
	return params
}
