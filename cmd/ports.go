package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nkootstra/romlink/internal/serialout"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports that fetch --serial can use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := serialout.ListPorts()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(ports) == 0 {
			fmt.Fprintln(out, "No serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Fprintln(out, p.Name)
			if p.IsUSB {
				fmt.Fprintf(out, "   USB ID     %s:%s\n", p.VID, p.PID)
				if p.SerialNumber != "" {
					fmt.Fprintf(out, "   USB serial %s\n", p.SerialNumber)
				}
				if p.Product != "" {
					fmt.Fprintf(out, "   Product    %s\n", p.Product)
				}
			}
		}
		return nil
	},
}
