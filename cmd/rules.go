package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-enricher/internal/browser"
	"github.com/sells-group/lead-enricher/internal/form"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Apply the configured automation rules and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("rules"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		page, err := openPage(ctx, "chromedp")
		if err != nil {
			return eris.Wrap(err, "rules: open browser")
		}
		defer page.Close() //nolint:errcheck

		if _, err := browser.EnsureAuth(ctx, page, authConfig()); err != nil {
			return err
		}
		return form.NewWriter(page, formConfig()).ConfigureRules(ctx)
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}
