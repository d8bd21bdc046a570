package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/browser"
	"github.com/sells-group/lead-enricher/internal/config"
	"github.com/sells-group/lead-enricher/internal/form"
	"github.com/sells-group/lead-enricher/internal/leads"
	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/pipeline"
	"github.com/sells-group/lead-enricher/internal/store"
)

var (
	runCSV         string
	runLimit       int
	runDryRun      bool
	runBackend     string
	runSkipRules   bool
	runStrictRules bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Enrich every lead in a CSV file",
	Long: `Reads company_name,domain rows from a CSV and, for each lead, searches for
the company profile and email pattern, then adds the contact in the
contact-management application. Leads are processed one at a time.

Examples:
  # Full run with the default browser backend
  lead-enricher run --csv leads.csv

  # Fetch and extract only, print results, never touch the form
  lead-enricher run --csv leads.csv --dry-run --backend http --limit 5`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if runBackend != "" {
			cfg.Browser.Backend = runBackend
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		path := runCSV
		if path == "" {
			path = cfg.Leads.CSV
		}
		list, err := leads.ReadFile(path)
		if err != nil {
			return err
		}
		list = applyLimit(list, runLimit)
		if len(list) == 0 {
			zap.L().Warn("no leads to process", zap.String("csv", path))
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		run, err := runPipeline(ctx, list)
		if run != nil && (runDryRun || err != nil) {
			if werr := writeJSON(os.Stdout, run); werr != nil {
				zap.L().Warn("print run", zap.Error(werr))
			}
		}
		return err
	},
}

func runPipeline(ctx context.Context, list []model.Lead) (*model.Run, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	page, err := openPage(ctx, cfg.Browser.Backend)
	if err != nil {
		return nil, eris.Wrap(err, "run: open page")
	}
	defer page.Close() //nolint:errcheck

	return enrich(ctx, page, st, list)
}

// enrich prepares the target application on page and runs the controller
// over list.
func enrich(ctx context.Context, page browser.Page, st store.Store, list []model.Lead) (*model.Run, error) {
	var writer pipeline.Writer = pipeline.LogWriter{}
	if !runDryRun {
		if _, err := browser.EnsureAuth(ctx, page, authConfig()); err != nil {
			return nil, err
		}
		fw := form.NewWriter(page, formConfig())
		if cfg.Rules.Enabled && !runSkipRules {
			if err := applyRules(ctx, fw, runStrictRules); err != nil {
				return nil, err
			}
		}
		writer = fw
	}

	profiles, patterns := newFetchers(page)
	opts := []pipeline.Option{
		pipeline.WithRecorder(st),
		pipeline.WithNotifier(newNotifier(st)),
	}
	if shooter, ok := page.(browser.Screenshotter); ok && !runDryRun {
		up, err := newUploader()
		if err != nil {
			return nil, err
		}
		if up != nil {
			opts = append(opts, pipeline.WithScreenshots(shooter, up))
		}
	}

	ctrl := pipeline.NewController(profiles, patterns, writer, pipeline.Config{
		MaxRetries:    cfg.Retry.MaxRetries,
		BaseDelay:     cfg.Retry.BaseDelay(),
		PostWriteWait: config.Millis(cfg.Form.PostSubmitWaitMs),
		Agent:         cfg.History.Agent,
	}, opts...)

	run, err := ctrl.Run(ctx, list)
	if run != nil {
		zap.L().Info("run finished",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
			zap.Int("total", run.Total),
			zap.Int("succeeded", run.Succeeded),
			zap.Int("skipped", run.Skipped),
			zap.Int("write_failed", run.WriteFailed),
		)
	}
	return run, err
}

type rulesConfigurer interface {
	ConfigureRules(ctx context.Context) error
}

// applyRules configures the automation rules once before the leads. A
// failure is logged and the run goes on unless strict is set.
func applyRules(ctx context.Context, rc rulesConfigurer, strict bool) error {
	err := rc.ConfigureRules(ctx)
	if err == nil {
		return nil
	}
	if strict || ctx.Err() != nil {
		return err
	}
	zap.L().Error("configure automation rules failed, continuing with leads", zap.Error(err))
	return nil
}

func applyLimit(list []model.Lead, limit int) []model.Lead {
	if limit > 0 && limit < len(list) {
		return list[:limit]
	}
	return list
}

func init() {
	runCmd.Flags().StringVar(&runCSV, "csv", "", "path to the leads CSV (default from config)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "max leads to process (0 = all)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "fetch and extract only, log instead of writing contacts")
	runCmd.Flags().StringVar(&runBackend, "backend", "", "page backend: chromedp or http (default from config)")
	runCmd.Flags().BoolVar(&runSkipRules, "skip-rules", false, "do not configure automation rules before the run")
	runCmd.Flags().BoolVar(&runStrictRules, "strict-rules", false, "abort the run when automation rules cannot be configured")
	rootCmd.AddCommand(runCmd)
}
