package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bigcats-cc/email-sieve/internal/core/db"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent routing decisions from the journal",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int("limit", 20, fmt.Sprintf("number of decisions to show (max %d)", db.MaxRecentLimit))
	historyCmd.Flags().Bool("json", false, "print decisions as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	journal, err := db.NewJournal(database)
	if err != nil {
		return err
	}
	decisions, err := journal.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(decisions)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECEIVED\tFROM\tTO\tACTION\tRULE\tDETAIL")
	for _, d := range decisions {
		rule := d.RuleName
		if rule == "" {
			rule = fmt.Sprintf("#%d", d.RuleIndex)
		}
		if d.RuleIndex < 0 {
			rule = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ReceivedAt.Format("2006-01-02 15:04:05"), d.EnvelopeFrom, d.EnvelopeTo, d.Action, rule, detail(d))
	}
	return tw.Flush()
}

func detail(d db.Decision) string {
	switch {
	case d.Error != "":
		return d.Error
	case d.Action == "reject":
		return d.Reason
	default:
		return d.Recipients
	}
}
