//go:build linux

package cmd

import (
	"fmt"
	"io"

	"github.com/samsamfire/gocanfd/pkg/bittiming"
	"github.com/samsamfire/gocanfd/pkg/regs"
	"github.com/spf13/cobra"
)

var dumpFlags struct {
	sim bool
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the controller registers",
	Long: `Dump the controller registers. With --sim, the simulated controller is
started with the configuration first, showing what would be programmed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !dumpFlags.sim {
			m, err := regs.Map(cfg.Device.Mem, int64(cfg.Device.Base), int(cfg.Device.Size))
			if err != nil {
				return err
			}
			defer m.Close()
			dumpRegisters(cmd.OutOrStdout(), m)
			return nil
		}
		s, err := newSystem(cfg, simOptions{enabled: true})
		if err != nil {
			return err
		}
		defer s.close()
		if err := s.dev.Up(); err != nil {
			return err
		}
		dumpRegisters(cmd.OutOrStdout(), s.hw)
		return nil
	},
}

func init() {
	dumpCmd.Flags().BoolVar(&dumpFlags.sim, "sim", false, "dump a simulated controller")
	rootCmd.AddCommand(dumpCmd)
}

func dumpRegisters(w io.Writer, r regs.Accessor) {
	for _, reg := range regs.Dump {
		value := r.Read(reg)
		valueText := faint("0x%08x", value)
		if value != 0 {
			valueText = yellow("0x%08x", value)
		}
		fmt.Fprintf(w, "%s %s %s", faint("%03x", uint32(reg)), cyan("%-12v", reg), valueText)
		switch reg {
		case regs.Mode:
			fmt.Fprintf(w, "  %s", modeString(value))
		case regs.Int, regs.IntMask:
			fmt.Fprintf(w, "  %v", regs.IntStatus(value))
		case regs.NBTP:
			fmt.Fprintf(w, "  %v", bittiming.DecodeNominal(value))
		case regs.DBTP:
			fmt.Fprintf(w, "  %v", bittiming.DecodeData(value))
		}
		fmt.Fprintln(w)
	}
}

func modeString(mode uint32) string {
	s := ""
	for _, bit := range []struct {
		mask uint32
		name string
	}{
		{regs.ModeWork, "WORK"},
		{regs.ModeSelfTest, "SELF_TEST"},
		{regs.ModeLBack, "LBACK"},
		{regs.ModeAutoRetx, "AUTO_RETX"},
		{regs.ModeFDOE, "FDOE"},
	} {
		if mode&bit.mask != 0 {
			if s != "" {
				s += "|"
			}
			s += bit.name
		}
	}
	if s == "" {
		return "RESET"
	}
	return s
}
