package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list <addr>",
	Short: "List the ROMs a server offers",
	Args:  cobra.ExactArgs(1),
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&useWebSocket, "ws", false, "Connect through the HTTP gateway's WebSocket bridge")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Print the listing as JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	addr := args[0]
	c, err := newClient(addr)
	if err != nil {
		return err
	}
	entries, err := listAndCache(cmd.Context(), c, addr)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if listJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\n", e.ID, e.Name)
	}
	return tw.Flush()
}
