package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/cascada/internal/items"
	"github.com/user/cascada/internal/types"
)

var itemName string

func init() {
	rootCmd.AddCommand(itemsCmd)
	itemsCmd.AddCommand(itemsListCmd, itemsTrackCmd, itemsRemoveCmd)
	itemsTrackCmd.Flags().StringVar(&itemName, "name", "", "product name (skips fetching the page)")
}

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Manage tracked product pages",
}

func newTracker() (*items.Tracker, error) {
	cfg := loadConfig()
	st, err := openStores(cfg)
	if err != nil {
		return nil, err
	}
	return items.NewTracker(items.NewFetcher(), st.items), nil
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked items",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tracker, err := newTracker()
		if err != nil {
			return err
		}
		list, err := tracker.List(context.Background())
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No items tracked.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTORE\tNAME\tADDED")
		for _, item := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				item.ID,
				item.Store,
				item.Name,
				item.CreatedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var itemsTrackCmd = &cobra.Command{
	Use:   "track <url>",
	Short: "Track a product page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tracker, err := newTracker()
		if err != nil {
			return err
		}
		item, err := tracker.Track(cmd.Context(), args[0], itemName)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Tracking %s (%s) as %s.\n", item.Name, item.Store, item.ID)
		return nil
	},
}

var itemsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Stop tracking an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tracker, err := newTracker()
		if err != nil {
			return err
		}
		if err := tracker.Remove(context.Background(), types.ItemID(args[0])); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Item %s removed.\n", args[0])
		return nil
	},
}
