package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var (
		passes      int
		interactive bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the cooperative scheduler against a simulated platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := bringUp()
			if err != nil {
				return err
			}

			if metricsAddr != "" {
				stopMetrics := serveMetrics(metricsAddr)
				defer stopMetrics()
			}

			if interactive {
				return runInteractive(ctx, rt)
			}
			return runBatch(ctx, rt, passes)
		},
	}

	cmd.Flags().IntVar(&passes, "passes", 100, "number of scheduler passes to run in batch mode")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "drive the console stream from a raw terminal instead of batch passes")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090 (disabled when empty)")
	return cmd
}

// runBatch executes a fixed number of scheduler passes, advancing the
// simulated hardware counter one tick interval per pass.
func runBatch(ctx context.Context, rt *runtime, passes int) error {
	for i := 0; i < passes; i++ {
		select {
		case <-ctx.Done():
			log.Info().Int("passes_run", i).Msg("simulate: interrupted")
			return nil
		default:
		}
		rt.tick()
		passesTotal.Inc()
	}
	log.Info().Int("passes_run", passes).Msg("simulate: batch complete")
	return nil
}

// runInteractive puts the controlling terminal into raw mode and pumps the
// console PrintStream until ctx is cancelled, ticking the runtime on a fixed
// schedule in the background.
func runInteractive(ctx context.Context, rt *runtime) error {
	restore, err := enterRawMode()
	if err != nil {
		return err
	}
	defer restore()

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rt.tick()
			passesTotal.Inc()
			rt.pumpConsole()
		}
	}
}
