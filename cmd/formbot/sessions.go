package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List in-progress forms",
	Long:  `List the conversation ids of stored sessions. With --sweep, sessions idle longer than form.session_ttl are deleted first.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		sweep, _ := cmd.Flags().GetBool("sweep")

		_, stores, closeFn, err := openStores(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer func() { _ = closeFn() }()

		out := cmd.OutOrStdout()
		if sweep {
			if stores.Sessions.TTL() <= 0 {
				return fmt.Errorf("form.session_ttl is not set; nothing expires")
			}
			n, err := stores.Sessions.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Removed %d expired session(s).\n", n)
		}

		ids, err := stores.Sessions.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Fprintln(out, "No active sessions found.")
			return nil
		}
		fmt.Fprintln(out, "Active sessions:")
		for _, id := range ids {
			fmt.Fprintln(out, "- "+id)
		}
		return nil
	},
}

func init() {
	sessionsCmd.Flags().Bool("sweep", false, "delete expired sessions first")
	rootCmd.AddCommand(sessionsCmd)
}
