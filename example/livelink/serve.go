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

	"github.com/destiny/livelink"
	"github.com/destiny/livelink/discovery"
)

var (
	serveTCP      string
	serveUDP      string
	serveInstance string
	serveIDFile   string
	serveTick     time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a capture server",
	Long: `Run a capture server that advertises itself on the LAN, echoes every
reliable message back to its sender and broadcasts a timestamp on the
unreliable channel at a fixed rate.`,
	RunE: runServe,
}

func init() {
	host, _ := os.Hostname()
	serveCmd.Flags().StringVar(&serveTCP, "tcp", "0.0.0.0:9100", "Reliable channel listen address")
	serveCmd.Flags().StringVar(&serveUDP, "udp", "0.0.0.0:9101", "Unreliable channel listen address")
	serveCmd.Flags().StringVar(&serveInstance, "instance", host, "Instance name advertised to clients")
	serveCmd.Flags().StringVar(&serveIDFile, "id-file", defaultIDFile(), "File holding the persistent instance identifier")
	serveCmd.Flags().DurationVar(&serveTick, "tick", 100*time.Millisecond, "Unreliable broadcast period (0 disables)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id, err := livelink.LoadOrCreateID(serveIDFile)
	if err != nil {
		return err
	}

	var node *livelink.Node
	node = livelink.NewNode(
		livelink.WithID(id),
		livelink.WithLogger(logger),
		livelink.WithHandler(func(m *livelink.Message) {
			if m.Channel() != livelink.ReliableOrdered {
				m.Release()
				return
			}
			reply := node.Acquire(m.Remote(), livelink.ReliableOrdered, m.Len())
			_, _ = reply.Write(m.Bytes())
			m.Release()
			if err := node.Send(reply); err != nil {
				logger.Warn("echo failed: %+v", err)
			}
		}),
	)
	defer node.Close()
	if err := node.Start(serveUDP); err != nil {
		return err
	}
	if err := node.Listen(serveTCP); err != nil {
		return err
	}

	adv, err := discovery.Advertise(discoveryConfig(), node, serveInstance)
	if err != nil {
		return err
	}
	if err := adv.Start(ctx); err != nil {
		return err
	}
	defer adv.Close()

	fmt.Printf("serving %q as %v on tcp %v, udp %v\n", serveInstance, id, node.Addr(), node.UDPAddr())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveMetrics(ctx) })
	g.Go(func() error {
		printEvents(ctx, node.Events(64))
		return nil
	})
	g.Go(func() error {
		if serveTick <= 0 {
			return nil
		}
		ticker := time.NewTicker(serveTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				err := node.SendBytes(livelink.Broadcast, livelink.UnreliableUnordered, []byte(now.UTC().Format(time.RFC3339Nano)))
				if err != nil {
					logger.Debug("tick: %+v", err)
				}
			}
		}
	})
	return g.Wait()
}
