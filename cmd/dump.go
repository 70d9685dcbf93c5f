package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/smazurov/stkcam/internal/logging"
	"github.com/smazurov/stkcam/internal/reassembly"
	"github.com/smazurov/stkcam/internal/tracelog"
	"github.com/spf13/cobra"
)

// TraceSummary aggregates a trace.
type TraceSummary struct {
	Header       tracelog.Header `json:"header"`
	Transfers    int             `json:"transfers"`
	Packets      int             `json:"packets"`
	Bytes        int             `json:"bytes"`
	FailedXfers  int             `json:"failed_transfers"`
	FailedPkts   int             `json:"failed_packets"`
	FrameStarts  int             `json:"frame_starts"`
	EndMarkers   int             `json:"end_markers"`
	DurationSecs float64         `json:"duration_secs"`
}

// DumpTrace writes one line per transfer (up to limit, 0 for none) to out
// and returns the summary of the whole trace.
func DumpTrace(path string, limit int, out io.Writer) (TraceSummary, error) {
	r, err := tracelog.Open(path)
	if err != nil {
		return TraceSummary{}, err
	}
	defer r.Close()

	sum := TraceSummary{Header: r.Header()}
	var first, last time.Time
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, fmt.Errorf("record %d: %w", sum.Transfers, err)
		}
		if first.IsZero() {
			first = rec.Time
		}
		last = rec.Time

		t := rec.Transfer
		var starts, ends, failed int
		for _, p := range t.Packets {
			switch {
			case p.Status != reassembly.StatusOK:
				failed++
			case p.IsEndMarker():
				ends++
			case len(p.Data) >= reassembly.HeaderLong && p.Data[0]&0x80 != 0:
				starts++
			}
		}
		sum.Transfers++
		sum.Packets += len(t.Packets)
		sum.Bytes += t.Bytes()
		sum.FailedPkts += failed
		sum.FrameStarts += starts
		sum.EndMarkers += ends
		if t.Status != reassembly.StatusOK {
			sum.FailedXfers++
		}

		if sum.Transfers <= limit {
			fmt.Fprintf(out, "%6d %s status=%-10s packets=%-3d bytes=%-7d starts=%d ends=%d failed=%d\n",
				sum.Transfers-1, rec.Time.Format("15:04:05.000000"), reassembly.StatusText(t.Status),
				len(t.Packets), t.Bytes(), starts, ends, failed)
		}
	}
	if !first.IsZero() {
		sum.DurationSecs = last.Sub(first).Seconds()
	}
	return sum, nil
}

// CreateDumpTraceCmd creates the dump-trace command.
func CreateDumpTraceCmd() *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "dump-trace [path]",
		Short: "Print the contents of a transfer trace",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			logger := logging.GetLogger("record")
			lines := limit
			if asJSON {
				lines = 0
			}
			sum, err := DumpTrace(args[0], lines, os.Stdout)
			if err != nil {
				logger.Error("Failed to read trace", "path", args[0], "error", err)
				os.Exit(1)
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				_ = enc.Encode(sum)
				return
			}
			fmt.Printf("sensor=%s source=%q transfers=%d packets=%d bytes=%d failed_transfers=%d failed_packets=%d frames=%d duration=%.3fs\n",
				sum.Header.Sensor, sum.Header.Source, sum.Transfers, sum.Packets, sum.Bytes,
				sum.FailedXfers, sum.FailedPkts, sum.EndMarkers, sum.DurationSecs)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Transfers to print before the summary")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print only the summary as JSON")

	return cmd
}
