// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/destiny/livelink"
	"github.com/destiny/livelink/discovery"
	"github.com/destiny/livelink/internal/telemetry"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "livelink",
	Short: "LAN capture transport demo",
	Long: `livelink exchanges capture data between a server and its companion
clients over a reliable TCP stream and an unreliable UDP path, and finds
servers on the local network through UDP broadcast discovery.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, ok := livelink.ParseLogLevel(logLevel)
		if !ok {
			return fmt.Errorf("unknown log level %q", logLevel)
		}
		if logJSON {
			zcfg := zap.NewProductionConfig()
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			z, err := zcfg.Build()
			if err != nil {
				return fmt.Errorf("could not create logger: %w", err)
			}
			logger = livelink.NewLoggerFromZap(z, lvl)
		} else {
			logger = livelink.NewLogger(lvl)
		}
		telemetry.SetBuildInfo(Version, livelink.DefaultProtocolVersion.String())
		return nil
	},
}

var (
	logLevel      string
	logJSON       bool
	metricsAddr   string
	product       string
	discoveryPort int
	broadcastAddr string

	logger = livelink.DefaultLogger
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write JSON logs")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.PersistentFlags().StringVar(&product, "product", "Cam", "Product name used by discovery")
	rootCmd.PersistentFlags().IntVar(&discoveryPort, "discovery-port", discovery.DefaultPort, "UDP discovery port")
	rootCmd.PersistentFlags().StringVar(&broadcastAddr, "broadcast", "255.255.255.255", "Discovery broadcast address")

	rootCmd.AddCommand(serveCmd, connectCmd, discoverCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("livelink %s (protocol %v)\n", Version, livelink.DefaultProtocolVersion)
	},
}

func discoveryConfig() discovery.Config {
	cfg := discovery.DefaultConfig(product)
	cfg.Port = discoveryPort
	cfg.BroadcastAddr = broadcastAddr
	cfg.Logger = logger
	return cfg
}

func defaultIDFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "livelink_id"
	}
	return filepath.Join(dir, "livelink", "node_id")
}

// serveMetrics runs the metrics endpoint until ctx is done.
func serveMetrics(ctx context.Context) error {
	if metricsAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	logger.Info("metrics on %s/metrics", metricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func printEvents(ctx context.Context, ch <-chan livelink.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Type {
			case livelink.EventConnected:
				fmt.Printf("+ %v\n", ev.Remote)
			case livelink.EventDisconnected:
				retry := ""
				if ev.Status.ShouldReconnect() {
					retry = " (worth retrying)"
				}
				fmt.Printf("- %v: %v%s\n", ev.Remote.ID, ev.Status, retry)
			}
		}
	}
}
