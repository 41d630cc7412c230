package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-group/econwatch/internal/model"
	"github.com/meridian-group/econwatch/internal/scorer"
)

var scoreCmd = &cobra.Command{
	Use:   "score <period>",
	Short: "Evaluate anomaly scorers and store findings",
	Long:  "Runs every scoring model over the observed subjects for the given period. With --entity and --indicator, evaluates a single subject.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		period, err := model.ParsePeriod(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		engine := scorer.NewEngine(st, cfg.Scorer)

		entity, _ := cmd.Flags().GetString("entity")
		indicator, _ := cmd.Flags().GetString("indicator")
		subRegion, _ := cmd.Flags().GetString("sub-region")

		var findings []model.Finding
		if entity != "" || indicator != "" {
			if entity == "" || indicator == "" {
				return eris.New("score: --entity and --indicator must be given together")
			}
			findings, err = engine.EvaluateSubject(ctx, model.Subject{
				Entity: entity, Indicator: indicator, SubRegion: subRegion,
			}, period)
		} else {
			findings, err = engine.EvaluateAll(ctx, period)
		}
		if err != nil {
			return eris.Wrap(err, "score")
		}

		if len(findings) == 0 {
			fmt.Fprintln(os.Stderr, "No findings produced.")
			return nil
		}

		formatFindings(os.Stdout, findings)
		return nil
	},
}

func init() {
	scoreCmd.Flags().String("entity", "", "evaluate a single entity")
	scoreCmd.Flags().String("indicator", "", "evaluate a single indicator type")
	scoreCmd.Flags().String("sub-region", "", "sub-region of the subject")

	rootCmd.AddCommand(scoreCmd)
}

func formatFindings(out io.Writer, findings []model.Finding) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ENTITY\tINDICATOR\tMODEL\tSEVERITY\tSCORE\tTREND")
	_, _ = fmt.Fprintln(w, "------\t---------\t-----\t--------\t-----\t-----")

	for _, f := range findings {
		score := "-"
		if f.Score != nil {
			score = fmt.Sprintf("%.2f", *f.Score)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			f.Subject.Entity,
			f.Subject.Indicator,
			f.Model,
			f.Severity,
			score,
			f.Trend,
		)
	}
	_ = w.Flush()
}
