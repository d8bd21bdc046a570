package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/browser"
)

var loginForce bool

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Capture a logged-in session for the contact-management application",
	Long:  "Opens a visible browser on the login page and waits until you have logged in, then saves the session cookies to target.auth_file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("login"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if loginForce {
			if err := os.Remove(cfg.Target.AuthFile); err != nil && !os.IsNotExist(err) {
				return eris.Wrap(err, "login: remove saved session")
			}
		}

		cfg.Browser.Headless = false
		page, err := openPage(ctx, "chromedp")
		if err != nil {
			return eris.Wrap(err, "login: open browser")
		}
		defer page.Close() //nolint:errcheck

		captured, err := browser.EnsureAuth(ctx, page, authConfig())
		if err != nil {
			return err
		}
		if !captured {
			zap.L().Info("session already saved; use --force to log in again", zap.String("file", cfg.Target.AuthFile))
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().BoolVar(&loginForce, "force", false, "discard the saved session and log in again")
	rootCmd.AddCommand(loginCmd)
}
