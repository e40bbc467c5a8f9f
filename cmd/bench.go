package cmd

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/spf13/cobra"
)

var benchCount int

var benchCmd = &cobra.Command{
	Use:   "bench <addr> <id|name>",
	Short: "Fetch a ROM repeatedly and report transfer latency",
	Args:  cobra.ExactArgs(2),
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().BoolVar(&useWebSocket, "ws", false, "Connect through the HTTP gateway's WebSocket bridge")
	benchCmd.Flags().IntVarP(&benchCount, "count", "n", 20, "Number of fetches")
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchCount < 1 {
		return fmt.Errorf("invalid --count: must be at least 1")
	}
	addr, ref := args[0], args[1]
	c, err := newClient(addr)
	if err != nil {
		return err
	}
	entry, _, err := resolveRom(cmd.Context(), c, addr, ref, false)
	if err != nil {
		return err
	}

	times := make([]float64, 0, benchCount)
	size := 0
	for i := 0; i < benchCount; i++ {
		start := time.Now()
		data, err := c.Fetch(cmd.Context(), entry.ID)
		if err != nil {
			return fmt.Errorf("fetch %d of %d: %w", i+1, benchCount, err)
		}
		times = append(times, float64(time.Since(start).Nanoseconds()))
		size = len(data)
	}

	return reportLatency(cmd.OutOrStdout(), times, size)
}

// reportLatency prints a summary and a histogram of fetch times given in
// nanoseconds.
func reportLatency(w io.Writer, times []float64, size int) error {
	sorted := append([]float64(nil), times...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))
	p50 := sorted[len(sorted)/2]

	printer.Fprintf(w, "%d fetches of %d bytes\n", len(sorted), size)
	printer.Fprintf(w, "min %dµs  p50 %dµs  mean %dµs  max %dµs\n\n",
		int64(sorted[0]/1e3), int64(p50/1e3), int64(mean/1e3), int64(sorted[len(sorted)-1]/1e3))

	hist := histogram.Hist(10, sorted)
	return histogram.Fprintf(w, hist, histogram.Linear(40), func(v float64) string {
		return printer.Sprintf("% 9dµs", int64(v/1e3))
	})
}
