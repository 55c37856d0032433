package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/cascada/internal/script"
	"github.com/user/cascada/internal/types"
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd)
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run journal",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journaled runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		st, err := openStores(cfg)
		if err != nil {
			return err
		}

		ctx := context.Background()
		list, err := st.runs.List(ctx)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No runs found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSCENARIO\tSTATUS\tBEST\tEVENTS\tSTARTED")
		for _, r := range list {
			count, err := st.events.Count(ctx, r.RunID)
			if err != nil {
				count = 0
			}
			best := "-"
			if r.BestDiscount > 0 {
				best = script.FormatPercent(r.BestDiscount) + "%"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
				r.RunID,
				r.Scenario,
				r.Status,
				best,
				count,
				r.StartedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a run and its transcripts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		st, err := openStores(cfg)
		if err != nil {
			return err
		}

		ctx := context.Background()
		id := types.RunID(args[0])
		run, err := st.runs.Get(ctx, id)
		if err != nil {
			return err
		}

		fmt.Printf("Run %s (%s)\n", run.RunID, run.Scenario)
		fmt.Printf("Status: %s  Speed: %gx  Seed: %d\n", run.Status, run.Speed, run.Seed)
		fmt.Printf("Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
		if run.EndedAt != nil {
			fmt.Printf("Ended: %s\n", run.EndedAt.Format("2006-01-02 15:04:05"))
		}
		for _, d := range run.Deals {
			fmt.Printf("Deal: %s %s%%\n", d.Counterparty, script.FormatPercent(d.Discount))
		}

		transcripts, err := st.transcripts.List(ctx, id)
		if err != nil {
			return fmt.Errorf("list transcripts: %w", err)
		}
		for _, t := range transcripts {
			fmt.Printf("\n== %s: %s", t.Counterparty, t.Status)
			if t.Discount > 0 {
				fmt.Printf(" (%s%%)", script.FormatPercent(t.Discount))
			}
			fmt.Println()
			for _, m := range t.Messages {
				fmt.Printf("  [%s] %s\n", m.Sender, m.Content)
			}
		}
		return nil
	},
}
