package cmd

import (
	"fmt"
	"math"

	"github.com/fatih/color"
	"github.com/samsamfire/gocanfd/pkg/bittiming"
	"github.com/spf13/cobra"
)

var (
	bold   = color.New(color.Bold).SprintfFunc()
	cyan   = color.New(color.FgCyan).SprintfFunc()
	yellow = color.New(color.FgYellow).SprintfFunc()
	green  = color.New(color.FgGreen).SprintfFunc()
	faint  = color.New(color.Faint).SprintfFunc()
)

var timingFlags struct {
	clockHz     uint32
	bitrate     uint32
	samplePoint float64
	sjw         uint32
	data        bool
}

var timingCmd = &cobra.Command{
	Use:   "timing",
	Short: "Calculate the bit timing registers for a bitrate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := bittiming.Nominal
		if timingFlags.data {
			c = bittiming.Data
		}
		sp := uint32(math.Round(timingFlags.samplePoint * 1000))
		p, err := bittiming.Calculate(c, timingFlags.clockHz, timingFlags.bitrate, sp, timingFlags.sjw)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s %s\n", bold("%v timing", c.Name), faint("clock %d Hz", timingFlags.clockHz))
		fmt.Fprintf(w, "  bitrate      %s\n", green("%d", p.Bitrate))
		fmt.Fprintf(w, "  sample point %s\n", green("%d.%d%%", p.SamplePoint/10, p.SamplePoint%10))
		fmt.Fprintf(w, "  brp %d sjw %d prop_seg %d phase_seg1 %d phase_seg2 %d (%d tq)\n",
			p.BRP, p.SJW, p.PropSeg, p.PhaseSeg1, p.PhaseSeg2, p.Quanta())
		if !timingFlags.data {
			fmt.Fprintf(w, "  %s 0x%s\n", cyan("NBTP"), yellow("%08x", bittiming.EncodeNominal(p)))
			return nil
		}
		fmt.Fprintf(w, "  %s 0x%s\n", cyan("DBTP"), yellow("%08x", bittiming.EncodeData(p)))
		if tdco, ok := bittiming.ComputeTDC(timingFlags.clockHz, p.Bitrate); ok {
			fmt.Fprintf(w, "  %s 0x%s (offset %d)\n", cyan("TDCR"), yellow("%08x", bittiming.EncodeTDC(tdco)), tdco)
		} else {
			fmt.Fprintf(w, "  %s\n", faint("TDCR unchanged, no delay compensation needed"))
		}
		return nil
	},
}

func init() {
	timingCmd.Flags().Uint32Var(&timingFlags.clockHz, "clock", 80_000_000, "controller clock in Hz")
	timingCmd.Flags().Uint32VarP(&timingFlags.bitrate, "bitrate", "b", 500_000, "bitrate in bit/s")
	timingCmd.Flags().Float64Var(&timingFlags.samplePoint, "sample-point", 0, "sample point e.g. 0.875, CiA default if 0")
	timingCmd.Flags().Uint32Var(&timingFlags.sjw, "sjw", 0, "synchronisation jump width, 1 if 0")
	timingCmd.Flags().BoolVar(&timingFlags.data, "data", false, "data phase timing")
	rootCmd.AddCommand(timingCmd)
}
