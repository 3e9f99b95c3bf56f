package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchOnce bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll all sources for new listings",
	Long:  "Runs the discovery loop: fetch every enabled source, reconcile results into the store, and notify about new matches.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if watchOnce {
			return e.App.RunOnce(ctx)
		}

		zap.L().Info("starting watch loop",
			zap.Duration("interval", cfg.Poll.Interval),
		)
		return e.App.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "run a single poll cycle and exit")
	rootCmd.AddCommand(watchCmd)
}
