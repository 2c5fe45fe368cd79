// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/destiny/livelink/discovery"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Watch servers appear and disappear on the LAN",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := discovery.NewClient(discoveryConfig(), nil)
		events := client.Events(64)
		if err := client.Start(ctx); err != nil {
			return err
		}
		defer client.Close()

		if err := client.Request(); err != nil {
			return err
		}
		fmt.Printf("watching for %q servers, ctrl-c to stop\n", product)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return serveMetrics(ctx) })
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-events:
					s := ev.Server
					fmt.Printf("%s %-7s %-24q %v tcp=%v udp=%v v%v\n",
						time.Now().Format("15:04:05"), ev.Type, s.Data.InstanceName(),
						s.Remote.ID, s.Remote.TCP, s.Remote.UDP, s.Data.Version())
				}
			}
		})
		return g.Wait()
	},
}
