// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package testutil provides helpers shared by the livelink network tests.
package testutil

import (
	"fmt"
	"net"
	"net/netip"
	"testing"
)

// FreeTCPPort returns a loopback TCP port that was free a moment ago.
func FreeTCPPort(t testing.TB) int {
	t.Helper()
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not find a free tcp port: %+v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// FreeUDPPort returns a loopback UDP port that was free a moment ago.
func FreeUDPPort(t testing.TB) int {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not find a free udp port: %+v", err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

// Loopback returns 127.0.0.1:port.
func Loopback(port int) string {
	return fmt.Sprintf("127.0.0.1:%d", port)
}

// LoopbackAddrPort returns 127.0.0.1:port as a netip.AddrPort.
func LoopbackAddrPort(port int) netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), uint16(port))
}

// PortPair returns two distinct free UDP ports, for tests where two
// sockets must send to each other on loopback.
func PortPair(t testing.TB) (int, int) {
	t.Helper()
	a, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("could not find a free udp port: %+v", err)
	}
	b, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		a.Close()
		t.Fatalf("could not find a free udp port: %+v", err)
	}
	pa, pb := a.LocalAddr().(*net.UDPAddr).Port, b.LocalAddr().(*net.UDPAddr).Port
	a.Close()
	b.Close()
	return pa, pb
}
