//go:build linux

package cmd

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runFlags struct {
	sim           bool
	simBus        string
	statsInterval time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the controller and serve it until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := newSystem(cfg, simOptions{enabled: runFlags.sim, bus: runFlags.simBus})
		if err != nil {
			return err
		}
		defer s.close()

		ctx := cmd.Context()
		if runFlags.statsInterval > 0 {
			go func() {
				ticker := time.NewTicker(runFlags.statsInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						s.logStats()
					}
				}
			}()
		}
		err = s.run(ctx)
		s.logStats()
		log.Infof("[CANFD] exiting")
		return err
	},
}

func init() {
	runCmd.Flags().BoolVar(&runFlags.sim, "sim", false, "use simulated hardware instead of the register window")
	runCmd.Flags().StringVar(&runFlags.simBus, "sim-bus", "", "virtual bus broker the simulated controller is attached to")
	runCmd.Flags().DurationVar(&runFlags.statsInterval, "stats", 0, "statistics logging interval, disabled if 0")
	rootCmd.AddCommand(runCmd)
}
