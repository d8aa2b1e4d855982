package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/anggasct/lifeline"
	"github.com/anggasct/lifeline/pkg/feed"
	"github.com/anggasct/lifeline/pkg/logging"
)

var (
	runFeedPath   string
	runSpeed      float64
	runHold       time.Duration
	runMetrics    string
	runNoMetrics  bool
	runPrintFinal bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay a JSON-lines detection feed through the controller",
	Long: `Starts the controller, replays a recorded detection feed against it and prints the
final snapshot as JSON. Each feed record also counts as a detector heartbeat, so gaps in
the recording longer than watchdog.timeout trip the fail-safe.

Use "-" as the feed path to read from stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logging.New(cfg.Logging, "lifeline")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := []lifeline.Option{
			lifeline.WithLogger(log),
			lifeline.WithObserver(lifeline.NewLoggingObserver(log)),
		}

		listen := cfg.Metrics.Listen
		if runMetrics != "" {
			listen = runMetrics
		}
		if !runNoMetrics && listen != "" {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics, err := lifeline.NewMetricsObserver(reg)
			if err != nil {
				return err
			}
			opts = append(opts, lifeline.WithObserver(metrics))

			srv := serveMetrics(listen, reg, log)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		c, err := lifeline.New(cfg, opts...)
		if err != nil {
			return err
		}
		if err := c.Start(ctx); err != nil {
			return err
		}
		defer c.Stop()

		in := os.Stdin
		if runFeedPath != "-" {
			f, err := os.Open(runFeedPath)
			if err != nil {
				return fmt.Errorf("open feed: %w", err)
			}
			defer f.Close()
			in = f
		}

		stats, err := feed.NewReplayer(c, runSpeed, log).Replay(ctx, feed.NewReader(in))
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		log.Info().
			Int("records", stats.Records).
			Int("detections", stats.Detections).
			Int("commands", stats.Commands).
			Int("failed_commands", stats.FailedCommands).
			Msg("feed replayed")

		if runHold > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(runHold):
			}
		}

		if runPrintFinal {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(c.Snapshot())
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runFeedPath, "feed", "f", "-", "JSON-lines feed file")
	runCmd.Flags().Float64Var(&runSpeed, "speed", 1, "replay speed factor; 0 replays without pacing")
	runCmd.Flags().DurationVar(&runHold, "hold", 0, "keep the controller running this long after the feed ends")
	runCmd.Flags().StringVar(&runMetrics, "metrics", "", "Prometheus listen address (overrides metrics.listen)")
	runCmd.Flags().BoolVar(&runNoMetrics, "no-metrics", false, "disable the Prometheus endpoint")
	runCmd.Flags().BoolVar(&runPrintFinal, "print-snapshot", true, "print the final snapshot as JSON")
}

func serveMetrics(addr string, reg *prometheus.Registry, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving metrics")
	return srv
}
