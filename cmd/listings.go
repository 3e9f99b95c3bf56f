package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/flathunters/flatwatch/internal/model"
)

var listingsSource string

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Inspect stored listings",
}

var listingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print stored listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var listings map[string]model.Listing
		if listingsSource != "" {
			listings, err = st.BySource(ctx, listingsSource)
		} else {
			listings, err = st.LoadAll(ctx)
		}
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(listings))
		for id := range listings {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		bold := color.New(color.Bold)
		faint := color.New(color.Faint)
		for _, id := range ids {
			l := listings[id]
			bold.Println(l.Address)
			fmt.Printf("  %s · %s m² · %s € cold · %s € total · %s rooms\n",
				l.Borough, l.SQM, l.PriceCold, l.PriceTotal, l.Rooms)
			faint.Printf("  %s (%s, seen %s)\n", l.Identifier, l.Source, l.UpdatedAt.Format("2006-01-02 15:04"))
		}
		fmt.Printf("\n%d listing(s)\n", len(ids))
		return nil
	},
}

var listingsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of stored listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

func init() {
	listingsListCmd.Flags().StringVar(&listingsSource, "source", "", "only show listings from this source")
	listingsCmd.AddCommand(listingsListCmd)
	listingsCmd.AddCommand(listingsCountCmd)
	rootCmd.AddCommand(listingsCmd)
}
