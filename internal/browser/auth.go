package browser

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// AuthConfig describes the one-time manual login capture.
type AuthConfig struct {
	// File is the session credential artifact.
	File string
	// LoginURL is opened when File does not exist.
	LoginURL string
	// ReadyText appears on the page once the operator has logged in.
	ReadyText string
	// PollInterval between ready checks. Default: 1s.
	PollInterval time.Duration
}

// EnsureAuth restores the saved session when the credential artifact exists.
// Otherwise it opens the login page and waits, without a timeout, for the
// operator to log in, then saves the session. It reports whether a new
// session was captured.
func EnsureAuth(ctx context.Context, page Page, cfg AuthConfig) (bool, error) {
	saver, ok := page.(StateSaver)
	if !ok {
		return false, eris.Wrap(ErrUnsupported, "auth: page cannot persist session state")
	}

	_, err := os.Stat(cfg.File)
	switch {
	case err == nil:
		if err := saver.LoadState(ctx, cfg.File); err != nil {
			return false, eris.Wrap(err, "auth: load session")
		}
		zap.L().Debug("auth: session restored", zap.String("file", cfg.File))
		return false, nil
	case !errors.Is(err, fs.ErrNotExist):
		return false, eris.Wrapf(err, "auth: stat %s", cfg.File)
	}

	zap.L().Info("auth: no saved session, log in manually in the browser window",
		zap.String("file", cfg.File),
		zap.String("login_url", cfg.LoginURL),
	)
	if err := page.Navigate(ctx, cfg.LoginURL); err != nil {
		return false, eris.Wrap(err, "auth: open login page")
	}
	if err := WaitForText(ctx, page, cfg.ReadyText, cfg.PollInterval); err != nil {
		return false, eris.Wrap(err, "auth: wait for login")
	}
	if err := saver.SaveState(ctx, cfg.File); err != nil {
		return false, eris.Wrap(err, "auth: save session")
	}
	zap.L().Info("auth: session saved", zap.String("file", cfg.File))
	return true, nil
}

// WaitForText polls the page until its text contains want or ctx is done.
// Read errors while the page is mid-navigation are ignored.
func WaitForText(ctx context.Context, page Page, want string, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if text, err := page.ReadText(ctx); err == nil && strings.Contains(text, want) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
