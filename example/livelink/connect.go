// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
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
	connectServer string
	connectUDP    string
	connectCount  int
	connectWait   time.Duration
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to a server and exchange messages",
	Long: `Connect to a server, either at --server or the first one discovered for
--product, send numbered reliable messages and print whatever comes back.`,
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&connectServer, "server", "", "Server reliable channel address (default: discover)")
	connectCmd.Flags().StringVar(&connectUDP, "udp", "0.0.0.0:0", "Local unreliable channel address")
	connectCmd.Flags().IntVar(&connectCount, "count", 10, "Number of reliable messages to send")
	connectCmd.Flags().DurationVar(&connectWait, "wait", 5*time.Second, "How long to wait for discovery")
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := livelink.NewRegistry()
	node, err := livelink.NewClient(connectUDP, livelink.WithLogger(logger), livelink.WithRegistry(registry))
	if err != nil {
		return err
	}
	defer node.Close()

	target, err := resolveServer(ctx, registry)
	if err != nil {
		return err
	}

	events := node.Events(64)
	dctx, cancel := context.WithTimeout(ctx, livelink.DefaultHandshakeTimeout)
	session, err := node.Connect(dctx, target)
	cancel()
	if err != nil {
		return err
	}
	remote := session.Remote()
	fmt.Printf("connected to %v (protocol %v)\n", remote, session.PeerVersion())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveMetrics(ctx) })
	g.Go(func() error {
		printEvents(ctx, events)
		return nil
	})
	g.Go(func() error {
		for i := 0; i < connectCount; i++ {
			if err := node.SendBytes(remote, livelink.ReliableOrdered, []byte(fmt.Sprintf("message %d", i))); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for {
			m, err := node.Receive(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, livelink.ErrNodeClosed) {
					return nil
				}
				return err
			}
			fmt.Printf("[%v] %s\n", m.Channel(), m.Bytes())
			m.Release()
		}
	})
	g.Go(func() error {
		select {
		case <-session.Done():
			status, cause := session.Status()
			if status == livelink.Graceful {
				stop()
				return nil
			}
			return fmt.Errorf("session ended (%v): %w", status, cause)
		case <-ctx.Done():
			return session.Close()
		}
	})
	return g.Wait()
}

// resolveServer returns the --server address or waits for discovery to
// find one.
func resolveServer(ctx context.Context, registry *livelink.Registry) (netip.AddrPort, error) {
	if connectServer != "" {
		return netip.ParseAddrPort(connectServer)
	}

	client := discovery.NewClient(discoveryConfig(), registry)
	found := client.Events(8)
	if err := client.Start(ctx); err != nil {
		return netip.AddrPort{}, err
	}
	defer client.Close()

	if err := client.Request(); err != nil {
		logger.Warn("discovery request failed: %+v", err)
	}

	timer := time.NewTimer(connectWait)
	defer timer.Stop()
	for {
		select {
		case ev := <-found:
			if ev.Type == discovery.Found {
				fmt.Printf("discovered %q at %v\n", ev.Server.Data.InstanceName(), ev.Server.Remote.TCP)
				return ev.Server.Remote.TCP, nil
			}
		case <-timer.C:
			return netip.AddrPort{}, fmt.Errorf("no %q server found within %v", product, connectWait)
		case <-ctx.Done():
			return netip.AddrPort{}, ctx.Err()
		}
	}
}
