package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-group/econwatch/internal/ledger"
	"github.com/meridian-group/econwatch/internal/model"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and verify the audit ledger",
}

// -- audit list --

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		actor, _ := cmd.Flags().GetString("actor")
		action, _ := cmd.Flags().GetString("action")
		resourceType, _ := cmd.Flags().GetString("resource-type")
		resourceID, _ := cmd.Flags().GetString("resource-id")
		jurisdiction, _ := cmd.Flags().GetString("jurisdiction")
		since, _ := cmd.Flags().GetDuration("since")
		afterSeq, _ := cmd.Flags().GetInt64("after-seq")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := ledger.Filter{
			Actor:        actor,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			Jurisdiction: jurisdiction,
			AfterSeq:     afterSeq,
			Limit:        limit,
		}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		entries, err := st.Ledger().Query(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "audit list")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No audit entries found.")
			return nil
		}

		formatAuditEntries(os.Stdout, entries)
		return nil
	},
}

// -- audit verify --

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify every ledger checksum",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report, err := st.Ledger().Verify(ctx)
		if report != nil {
			fmt.Fprintf(os.Stdout, "Checked %d entries in %s.\n", report.Checked, report.Duration.Round(time.Millisecond))
			for _, id := range report.BadIDs {
				fmt.Fprintf(os.Stdout, "  CORRUPT: %s\n", id)
			}
		}
		if err != nil {
			return eris.Wrap(err, "audit verify")
		}

		fmt.Fprintln(os.Stdout, "Ledger intact.")
		return nil
	},
}

func init() {
	auditListCmd.Flags().String("actor", "", "filter by actor")
	auditListCmd.Flags().String("action", "", "filter by action (observation.commit, recommendation.transition, ...)")
	auditListCmd.Flags().String("resource-type", "", "filter by resource type")
	auditListCmd.Flags().String("resource-id", "", "filter by resource id")
	auditListCmd.Flags().String("jurisdiction", "", "filter by jurisdiction")
	auditListCmd.Flags().Duration("since", 0, "time window (e.g. 24h)")
	auditListCmd.Flags().Int64("after-seq", 0, "page from this ledger sequence number")
	auditListCmd.Flags().Int("limit", 100, "max number of entries")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	rootCmd.AddCommand(auditCmd)
}

func formatAuditEntries(out io.Writer, entries []model.AuditEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEQ\tTIMESTAMP\tACTOR\tACTION\tOUTCOME\tRESOURCE")
	_, _ = fmt.Fprintln(w, "---\t---------\t-----\t------\t-------\t--------")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s/%s\n",
			e.Seq,
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.Actor,
			e.Action,
			e.Outcome,
			e.ResourceType,
			truncateID(e.ResourceID),
		)
	}
	_ = w.Flush()
}
