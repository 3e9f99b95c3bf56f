package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pruneMaxAge time.Duration

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove listings not seen within the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		maxAge := pruneMaxAge
		if maxAge == 0 {
			maxAge = cfg.Poll.MaxListingAge
		}

		n, err := st.Prune(ctx, maxAge)
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d listing(s) older than %s\n", n, maxAge)
		return nil
	},
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneMaxAge, "max-age", 0, "override the configured retention window")
	rootCmd.AddCommand(pruneCmd)
}
