// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/destiny/livelink/internal/telemetry"
)

// endpoint is the UDP socket shared by Server and Client.
type endpoint struct {
	conn *net.UDPConn
	dst  *net.UDPAddr
}

func openEndpoint(ctx context.Context, cfg Config) (*endpoint, error) {
	lc := net.ListenConfig{Control: control}
	addr := net.JoinHostPort(cfg.ListenAddr, strconv.Itoa(cfg.Port))
	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("discovery: could not listen to %q: %w", addr, err)
	}

	dstAddr := net.JoinHostPort(cfg.BroadcastAddr, strconv.Itoa(cfg.BroadcastPort))
	dst, err := net.ResolveUDPAddr("udp4", dstAddr)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("discovery: invalid broadcast address %q: %w", dstAddr, err)
	}
	return &endpoint{conn: pc.(*net.UDPConn), dst: dst}, nil
}

// send writes a packet to the broadcast destination.
func (e *endpoint) send(k kind, payload appender) error {
	b, err := appendPacket(make([]byte, 0, maxPacketSize), k, payload)
	if err != nil {
		return err
	}
	if _, err := e.conn.WriteToUDP(b, e.dst); err != nil {
		return fmt.Errorf("discovery: could not send %v: %w", k, err)
	}
	telemetry.DiscoveryPackets.WithLabelValues("out", k.String()).Inc()
	return nil
}

func (e *endpoint) close() error {
	return e.conn.Close()
}
