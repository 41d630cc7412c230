package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-group/econwatch/internal/model"
	"github.com/meridian-group/econwatch/internal/recommend"
	"github.com/meridian-group/econwatch/internal/store"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Generate and review policy recommendations",
}

// -- recommend generate --

var recommendGenerateCmd = &cobra.Command{
	Use:   "generate <period>",
	Short: "Aggregate recent findings into draft recommendations",
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

		gen, err := recommend.NewGenerator(st, cfg.Recommend)
		if err != nil {
			return err
		}

		recs, err := gen.Generate(ctx, period)
		if err != nil {
			return eris.Wrap(err, "recommend generate")
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No recommendations generated.")
			return nil
		}
		formatRecommendations(os.Stdout, recs)
		return nil
	},
}

// -- recommend list --

var recommendListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recommendations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		jurisdiction, _ := cmd.Flags().GetString("jurisdiction")
		area, _ := cmd.Flags().GetString("policy-area")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		recs, err := st.ListRecommendations(ctx, store.RecommendationFilter{
			Jurisdiction: jurisdiction,
			PolicyArea:   area,
			Status:       model.RecommendationStatus(status),
			Limit:        limit,
		})
		if err != nil {
			return eris.Wrap(err, "recommend list")
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No recommendations found.")
			return nil
		}
		formatRecommendations(os.Stdout, recs)
		return nil
	},
}

// -- recommend show --

var recommendShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show full details of a recommendation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetRecommendation(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "recommend show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

// -- recommend review / approve / reject --

func transitionCmd(use, short string, fn func(context.Context, store.Store, string, string) (*model.Recommendation, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			actor, _ := cmd.Flags().GetString("actor")
			if actor == "" {
				return eris.New("--actor is required")
			}

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			rec, err := fn(ctx, st, args[0], actor)
			if err != nil {
				return eris.Wrapf(err, "recommend %s", use)
			}

			fmt.Fprintf(os.Stdout, "Recommendation %s is now %s.\n", truncateID(rec.ID), rec.Status)
			return nil
		},
	}
	cmd.Flags().String("actor", "", "acting reviewer or approver")
	return cmd
}

func init() {
	recommendListCmd.Flags().String("jurisdiction", "", "filter by jurisdiction")
	recommendListCmd.Flags().String("policy-area", "", "filter by policy area")
	recommendListCmd.Flags().String("status", "", "filter by workflow status (draft, under_review, approved, rejected)")
	recommendListCmd.Flags().Int("limit", 50, "max number of recommendations")

	recommendCmd.AddCommand(recommendGenerateCmd)
	recommendCmd.AddCommand(recommendListCmd)
	recommendCmd.AddCommand(recommendShowCmd)
	recommendCmd.AddCommand(transitionCmd("review", "Move a draft recommendation into review", recommend.Submit))
	recommendCmd.AddCommand(transitionCmd("approve", "Approve a recommendation under review", recommend.Approve))
	recommendCmd.AddCommand(transitionCmd("reject", "Reject a recommendation under review", recommend.Reject))
	rootCmd.AddCommand(recommendCmd)
}

func formatRecommendations(out io.Writer, recs []model.Recommendation) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tJURISDICTION\tPOLICY_AREA\tBUCKET\tPRIORITY\tURGENCY\tCONF\tSTATUS")
	_, _ = fmt.Fprintln(w, "--\t------------\t-----------\t------\t--------\t-------\t----\t------")

	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%.2f\t%s\n",
			truncateID(r.ID),
			r.Jurisdiction,
			r.PolicyArea,
			r.PeriodBucket,
			r.Priority,
			r.Urgency,
			r.Confidence,
			r.Status,
		)
	}
	_ = w.Flush()
}
