// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package discovery

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/destiny/livelink"
	"github.com/destiny/livelink/internal/testutil"
	"github.com/destiny/livelink/wire"
)

const waitTimeout = 3 * time.Second

// loopbackPair returns configs for a server and a client that talk to
// each other on 127.0.0.1 through two distinct ports.
func loopbackPair(t *testing.T) (srv, cli Config) {
	t.Helper()
	sp, cp := testutil.PortPair(t)
	base := Config{
		BroadcastAddr: "127.0.0.1",
		ListenAddr:    "127.0.0.1",
		Interval:      time.Hour,
		Expiry:        time.Hour,
		Product:       "Cam",
		Logger:        livelink.DevNullLogger,
	}
	srv, cli = base, base
	srv.Port, srv.BroadcastPort = sp, cp
	cli.Port, cli.BroadcastPort = cp, sp
	return srv, cli
}

func newServerData(t *testing.T, product, instance string) wire.ServerData {
	t.Helper()
	data, err := wire.NewServerData(product, instance, uuid.New(), livelink.DefaultProtocolVersion)
	require.NoError(t, err)
	return data
}

func waitEvent(t *testing.T, ch <-chan Event, typ EventType) Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %v event within %v", typ, waitTimeout)
		}
	}
}

func TestRequestResponse(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()
	srvCfg, cliCfg := loopbackPair(t)

	// the server's first announcement goes nowhere: the client is not up
	data := newServerData(t, "Cam", "Stage Left")
	srv, err := NewServer(srvCfg, data, netip.MustParseAddrPort("127.0.0.1:7000"), netip.AddrPort{})
	require.NoError(t, err)
	require.NoError(t, srv.Start(ctx))
	defer srv.Close()

	cli := NewClient(cliCfg, nil)
	events := cli.Events(8)
	require.NoError(t, cli.Start(ctx))
	defer cli.Close()

	start := time.Now()
	require.NoError(t, cli.Request())
	ev := waitEvent(t, events, Found)
	assert.Less(t, time.Since(start), srvCfg.Interval)

	assert.Equal(t, data.ID(), ev.Server.Data.ID())
	assert.Equal(t, data.ID(), ev.Server.Remote.ID)
	assert.Equal(t, "Stage Left", ev.Server.Data.InstanceName())
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:7000"), ev.Server.Remote.TCP)

	r, ok := cli.Registry().Resolve(data.ID())
	require.True(t, ok)
	assert.Equal(t, ev.Server.Remote, r)
}

func TestRequestForOtherProductIsIgnored(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()
	srvCfg, cliCfg := loopbackPair(t)
	cliCfg.Product = "Mic"

	srv, err := NewServer(srvCfg, newServerData(t, "Cam", "A"), netip.AddrPort{}, netip.AddrPort{})
	require.NoError(t, err)
	require.NoError(t, srv.Start(ctx))
	defer srv.Close()

	cli := NewClient(cliCfg, nil)
	require.NoError(t, cli.Start(ctx))
	defer cli.Close()

	require.NoError(t, cli.Request())
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, cli.Servers())
}

func TestPeriodicRefreshIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()
	srvCfg, cliCfg := loopbackPair(t)
	srvCfg.Interval = 20 * time.Millisecond

	registry := livelink.NewRegistry()
	cli := NewClient(cliCfg, registry)
	events := cli.Events(64)
	require.NoError(t, cli.Start(ctx))
	defer cli.Close()

	data := newServerData(t, "Cam", "Booth")
	srv, err := NewServer(srvCfg, data, netip.AddrPort{}, netip.AddrPort{})
	require.NoError(t, err)
	require.NoError(t, srv.Start(ctx))
	defer srv.Close()

	waitEvent(t, events, Found)
	first, ok := registry.LastSeen(data.ID())
	require.True(t, ok)

	require.True(t, testutil.WaitFor(waitTimeout, func() bool {
		seen, _ := registry.LastSeen(data.ID())
		return seen.After(first)
	}), "advertisements never refreshed the entry")

	assert.Equal(t, 1, registry.Len())
	assert.Len(t, cli.Servers(), 1)
	for {
		select {
		case ev := <-events:
			assert.NotEqual(t, Found, ev.Type, "duplicate found event")
			continue
		default:
		}
		break
	}
}

func TestShutdownEvicts(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()
	srvCfg, cliCfg := loopbackPair(t)

	cli := NewClient(cliCfg, nil)
	events := cli.Events(8)
	require.NoError(t, cli.Start(ctx))
	defer cli.Close()

	data := newServerData(t, "Cam", "Booth")
	srv, err := NewServer(srvCfg, data, netip.AddrPort{}, netip.AddrPort{})
	require.NoError(t, err)
	require.NoError(t, srv.Start(ctx))

	waitEvent(t, events, Found)
	require.NoError(t, srv.Close())

	ev := waitEvent(t, events, Lost)
	assert.Equal(t, data.ID(), ev.Server.Remote.ID)
	_, ok := cli.Registry().Resolve(data.ID())
	assert.False(t, ok)
	assert.Empty(t, cli.Servers())
}

func TestExpiry(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()
	_, cliCfg := loopbackPair(t)
	cliCfg.Expiry = 300 * time.Millisecond

	cli := NewClient(cliCfg, nil)
	events := cli.Events(8)
	require.NoError(t, cli.Start(ctx))
	defer cli.Close()

	// a single advertisement from a server that then vanishes silently
	conn, err := net.Dial("udp4", testutil.Loopback(cliCfg.Port))
	require.NoError(t, err)
	defer conn.Close()

	data := newServerData(t, "Cam", "Ghost")
	ad := advertisement{Server: data, TCP: wire.EndPointData{Port: 7000}, UDP: wire.EndPointData{Port: 7001}}
	b, err := appendPacket(nil, kindAdvertisement, ad)
	require.NoError(t, err)
	_, err = conn.Write(b)
	require.NoError(t, err)

	found := waitEvent(t, events, Found)
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:7000"), found.Server.Remote.TCP)
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:7001"), found.Server.Remote.UDP)

	ad.TCP.Port = 7100
	b, err = appendPacket(nil, kindAdvertisement, ad)
	require.NoError(t, err)
	_, err = conn.Write(b)
	require.NoError(t, err)

	updated := waitEvent(t, events, Updated)
	assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:7100"), updated.Server.Remote.TCP)

	lost := waitEvent(t, events, Lost)
	assert.Equal(t, data.ID(), lost.Server.Remote.ID)
	assert.Zero(t, cli.Registry().Len())
}

func TestAdvertiseNode(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()
	srvCfg, cliCfg := loopbackPair(t)

	version := wire.Version{Major: livelink.DefaultProtocolVersion.Major, Minor: 3, Build: 12}
	node, err := livelink.NewServer("127.0.0.1:0", "127.0.0.1:0",
		livelink.WithLogger(livelink.DevNullLogger),
		livelink.WithProtocolVersion(version),
	)
	require.NoError(t, err)
	defer node.Close()

	registry := livelink.NewRegistry()
	cli := NewClient(cliCfg, registry)
	events := cli.Events(8)
	require.NoError(t, cli.Start(ctx))
	defer cli.Close()

	srv, err := Advertise(srvCfg, node, "Main Stage")
	require.NoError(t, err)
	require.NoError(t, srv.Start(ctx))
	defer srv.Close()

	ev := waitEvent(t, events, Found)
	assert.Equal(t, version, ev.Server.Data.Version())
	assert.Equal(t, version, srv.Data().Version())

	// the discovered entry is enough to open a session
	peer, err := livelink.NewClient("127.0.0.1:0",
		livelink.WithLogger(livelink.DevNullLogger),
		livelink.WithRegistry(registry),
	)
	require.NoError(t, err)
	defer peer.Close()

	cctx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()
	s, err := peer.ConnectRemote(cctx, node.ID())
	require.NoError(t, err)
	assert.Equal(t, node.ID(), s.Remote().ID)
	assert.Equal(t, node.UDPAddrPort(), s.Remote().UDP)
}
