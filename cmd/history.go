package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print stored history log entries as JSON, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListHistory(ctx, historyLimit)
		if err != nil {
			return eris.Wrap(err, "history")
		}
		if entries == nil {
			entries = []model.HistoryLog{}
		}
		return writeJSON(os.Stdout, entries)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", store.DefaultHistoryLimit, "max entries to print")
	rootCmd.AddCommand(historyCmd)
}
