// Command wineserver runs the named-pipe subsystem as a standalone RPC
// service: a Unix-socket front end over internal/transport, backed by
// internal/pipe's device, with logging, configuration and metrics wired
// the way the teacher library's own consumers expect to wire them.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wine-np/npserver/internal/config"
	"github.com/wine-np/npserver/internal/metrics"
	"github.com/wine-np/npserver/internal/pipe"
	"github.com/wine-np/npserver/internal/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "wineserver",
		Short: "Serve NT named-pipe semantics over a Unix RPC socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML configuration file")
	return cmd
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.WithError(err).Warn("metrics listener exited")
			}
		}()
	}

	device := pipe.NewDevice(pipe.WithLogger(log), pipe.WithMetrics(recorder))
	srv := transport.New(device, log)

	log.WithField("socket", cfg.Listen.SocketPath).Info("wineserver listening")
	return srv.Serve(cfg.Listen.SocketPath)
}
