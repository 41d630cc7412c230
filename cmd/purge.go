package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-group/econwatch/internal/model"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Purge observations older than a cutoff period",
	Long:  "Deletes observations whose period starts before the cutoff. The purge itself is recorded in the audit ledger; audit entries are never purged.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		before, _ := cmd.Flags().GetString("before")
		actor, _ := cmd.Flags().GetString("actor")
		if before == "" || actor == "" {
			return eris.New("--before and --actor are required")
		}
		cutoff, err := model.ParsePeriod(before)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		purged, err := st.PurgeObservationsBefore(ctx, cutoff, actor)
		if err != nil {
			return eris.Wrap(err, "purge")
		}

		fmt.Fprintf(os.Stdout, "Purged %d observation(s) with periods before %s.\n", purged, before)
		return nil
	},
}

func init() {
	purgeCmd.Flags().String("before", "", "cutoff period (e.g. 2020-01, 2020-Q1); earlier periods are purged")
	purgeCmd.Flags().String("actor", "", "operator recorded on the audit trail")

	rootCmd.AddCommand(purgeCmd)
}
