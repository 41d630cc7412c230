package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-group/econwatch/internal/model"
	"github.com/meridian-group/econwatch/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history <entity> <indicator>",
	Short: "Show the revision history of an indicator stream",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		subRegion, _ := cmd.Flags().GetString("sub-region")
		src, _ := cmd.Flags().GetString("source")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		latestOnly, _ := cmd.Flags().GetBool("latest")
		limit, _ := cmd.Flags().GetInt("limit")

		history, err := st.GetHistory(ctx, store.HistoryFilter{
			Entity:     args[0],
			Indicator:  args[1],
			SubRegion:  subRegion,
			Source:     src,
			FromPeriod: model.Period(from),
			ToPeriod:   model.Period(to),
			LatestOnly: latestOnly,
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "history")
		}

		if len(history) == 0 {
			fmt.Fprintln(os.Stderr, "No observations found.")
			return nil
		}

		formatHistory(os.Stdout, history)
		return nil
	},
}

var latestCmd = &cobra.Command{
	Use:   "latest <entity> <indicator> <period> <source>",
	Short: "Show the latest revision of one observation",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		subRegion, _ := cmd.Flags().GetString("sub-region")
		obs, err := st.GetLatest(ctx, model.NaturalKey{
			Entity:    args[0],
			Indicator: args[1],
			SubRegion: subRegion,
			Period:    model.Period(args[2]),
			Source:    args[3],
		})
		if err != nil {
			return eris.Wrap(err, "latest")
		}
		if obs == nil {
			fmt.Fprintln(os.Stderr, "No observation found.")
			return nil
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(obs)
	},
}

func init() {
	historyCmd.Flags().String("sub-region", "", "filter by sub-region")
	historyCmd.Flags().String("source", "", "filter by source")
	historyCmd.Flags().String("from", "", "earliest period (e.g. 2024-01, 2024-Q1)")
	historyCmd.Flags().String("to", "", "latest period")
	historyCmd.Flags().Bool("latest", false, "only the latest revision per natural key")
	historyCmd.Flags().Int("limit", 200, "max number of observations")

	latestCmd.Flags().String("sub-region", "", "sub-region of the natural key")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(latestCmd)
}

func formatHistory(out io.Writer, history []model.Observation) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PERIOD\tSOURCE\tREV\tVALUE\tUNIT\tOFFICIAL\tCLASS\tCOMMITTED")
	_, _ = fmt.Fprintln(w, "------\t------\t---\t-----\t----\t--------\t-----\t---------")

	for _, o := range history {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%g\t%s\t%t\t%s\t%s\n",
			o.Period,
			o.Source,
			o.Revision,
			o.Value,
			o.Unit,
			o.Official,
			o.Classification,
			o.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
