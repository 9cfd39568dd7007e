package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samsamfire/gocanfd/pkg/config"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "canfd",
	Short:        "CAN-FD controller driver in userspace",
	SilenceUsage: true,
}

var (
	configPath string
	logLevel   string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "controller configuration file (ini)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level, overrides the configuration")
}

// Execute runs the root command until it returns or an interrupt is received
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		// Failsafe if shutdown hangs
		<-time.After(10 * time.Second)
		log.Fatal("took too long to shutdown, forcefully exiting")
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// Load the configuration given by flags and apply its log level
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if logLevel != "" {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}
	log.SetLevel(cfg.LogLevel)
	return cfg, nil
}
