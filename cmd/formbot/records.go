package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/formbot/form/app"
	"github.com/m3rciful/formbot/form/sink"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Print stored applications, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, stores, closeFn, err := openStores(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer func() { _ = closeFn() }()

		recs, err := stores.Records.List(cmd.Context(), limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			for _, r := range recs {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		}
		if len(recs) == 0 {
			fmt.Fprintln(out, "No applications stored.")
			return nil
		}
		catalog := app.NewCatalog(cfg)
		for _, r := range recs {
			fmt.Fprintf(out, "[%s] %s\n%s\n\n", r.CreatedAt.Format("2006-01-02 15:04"), r.ID, sink.Render(catalog, r))
		}
		return nil
	},
}

func init() {
	recordsCmd.Flags().Int("limit", 20, "maximum number of applications; 0 prints all")
	recordsCmd.Flags().Bool("json", false, "print one JSON object per line")
	rootCmd.AddCommand(recordsCmd)
}
