// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/destiny/livelink"
	"github.com/destiny/livelink/internal/event"
	"github.com/destiny/livelink/internal/telemetry"
	"github.com/destiny/livelink/wire"
)

// EventType tells what happened to a discovered server.
type EventType int

const (
	// Found is emitted the first time a server is heard.
	Found EventType = iota + 1
	// Updated is emitted when a known server changes its addresses or
	// description.
	Updated
	// Lost is emitted when a server shuts down or expires.
	Lost
)

func (t EventType) String() string {
	switch t {
	case Found:
		return "found"
	case Updated:
		return "updated"
	case Lost:
		return "lost"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// ServerInfo is what a client knows about one server.
type ServerInfo struct {
	Data     wire.ServerData
	Remote   livelink.Remote
	Source   netip.AddrPort // where the last advertisement came from
	LastSeen time.Time
}

// Event reports a change in the set of known servers.
type Event struct {
	Type   EventType
	Server ServerInfo
}

// Client tracks the servers advertising a product and mirrors them into a
// livelink.Registry.
type Client struct {
	cfg      Config
	registry *livelink.Registry
	log      *livelink.Logger
	ep       *endpoint
	events   *event.Channel[Event]
	now      func() time.Time

	mu      sync.Mutex
	servers map[uuid.UUID]*ServerInfo

	ctx       context.Context
	cancel    context.CancelFunc
	group     *errgroup.Group
	closeOnce sync.Once
	closeErr  error
}

// NewClient creates a client that keeps registry up to date. A nil
// registry gets a private one.
func NewClient(cfg Config, registry *livelink.Registry) *Client {
	cfg.setDefaults()
	if registry == nil {
		registry = livelink.NewRegistry()
	}
	return &Client{
		cfg:      cfg,
		registry: registry,
		log:      cfg.Logger.Named("discovery"),
		events:   event.NewChannel[Event](),
		now:      time.Now,
		servers:  make(map[uuid.UUID]*ServerInfo),
	}
}

// Registry returns the registry the client populates.
func (c *Client) Registry() *livelink.Registry { return c.registry }

// Events subscribes to server events.
func (c *Client) Events(buffer int) <-chan Event {
	return c.events.Subscribe(buffer)
}

// Start binds the discovery port and starts listening.
func (c *Client) Start(ctx context.Context) error {
	ep, err := openEndpoint(ctx, c.cfg)
	if err != nil {
		return err
	}
	c.ep = ep

	loopCtx, cancel := context.WithCancel(context.Background())
	c.group, c.ctx = errgroup.WithContext(loopCtx)
	c.cancel = cancel
	c.group.Go(c.listenLoop)
	c.group.Go(c.expiryLoop)
	c.log.Debug("listening for %q on %v", c.cfg.Product, ep.conn.LocalAddr())
	return nil
}

// Request asks servers of the configured product to announce themselves
// now rather than at their next interval.
func (c *Client) Request() error {
	if c.ep == nil {
		return fmt.Errorf("discovery: client not started")
	}
	req, err := wire.NewRequestData(c.cfg.Product)
	if err != nil {
		return err
	}
	return c.ep.send(kindRequest, req)
}

// Servers returns the known servers ordered by instance name.
func (c *Client) Servers() []ServerInfo {
	c.mu.Lock()
	out := make([]ServerInfo, 0, len(c.servers))
	for _, s := range c.servers {
		out = append(out, *s)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Data.InstanceName(), out[j].Data.InstanceName()
		if a != b {
			return a < b
		}
		return out[i].Remote.ID.String() < out[j].Remote.ID.String()
	})
	return out
}

// Lookup returns the server with id.
func (c *Client) Lookup(id uuid.UUID) (ServerInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.servers[id]
	if !ok {
		return ServerInfo{}, false
	}
	return *s, true
}

func (c *Client) listenLoop() error {
	buf := make([]byte, readBufferSize)
	for {
		n, from, err := c.ep.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			c.log.Debug("read failed: %+v", err)
			continue
		}
		from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())

		k, payload, err := parsePacket(buf[:n])
		if err != nil {
			c.log.Trace("ignoring packet from %v: %+v", from, err)
			continue
		}
		telemetry.DiscoveryPackets.WithLabelValues("in", k.String()).Inc()

		switch k {
		case kindAdvertisement:
			var ad advertisement
			if err := ad.UnmarshalBinary(payload); err != nil {
				c.log.Trace("bad advertisement from %v: %+v", from, err)
				continue
			}
			c.advertised(ad, from)
		case kindShutdown:
			var sd wire.ShutdownData
			if err := sd.UnmarshalBinary(payload); err != nil {
				continue
			}
			c.evict(sd.ID(), "shutdown")
		}
	}
}

// advertised records an advertisement. Repeats refresh the entry.
func (c *Client) advertised(ad advertisement, from netip.AddrPort) {
	if ad.Server.ProductName() != c.cfg.Product {
		return
	}
	id := ad.Server.ID()
	if id == uuid.Nil {
		return
	}

	tcp := resolve(ad.TCP, from.Addr())
	udp := resolve(ad.UDP, from.Addr())
	remote := c.registry.Upsert(id, tcp, udp)
	now := c.now()

	c.mu.Lock()
	info, known := c.servers[id]
	changed := known && (info.Remote.TCP != remote.TCP || info.Remote.UDP != remote.UDP || info.Data != ad.Server)
	if !known {
		info = &ServerInfo{}
		c.servers[id] = info
	}
	info.Data = ad.Server
	info.Remote = remote
	info.Source = from
	info.LastSeen = now
	snapshot := *info
	c.mu.Unlock()

	switch {
	case !known:
		c.log.Info("found %q (%v) at %v", ad.Server.InstanceName(), id, tcp)
		c.events.Publish(Event{Type: Found, Server: snapshot})
	case changed:
		c.log.Debug("updated %q (%v)", ad.Server.InstanceName(), id)
		c.events.Publish(Event{Type: Updated, Server: snapshot})
	}
}

// resolve replaces an unspecified advertised address with the packet's
// source address.
func resolve(ep wire.EndPointData, source netip.Addr) netip.AddrPort {
	if ep.IsUnspecified() {
		return netip.AddrPortFrom(source, ep.Port)
	}
	return ep.AddrPort()
}

func (c *Client) evict(id uuid.UUID, reason string) {
	c.mu.Lock()
	info, ok := c.servers[id]
	if ok {
		delete(c.servers, id)
	}
	c.mu.Unlock()
	if ok {
		c.lost(*info, reason)
	}
}

func (c *Client) lost(info ServerInfo, reason string) {
	c.registry.Remove(info.Remote.ID)
	c.log.Info("lost %q (%v): %s", info.Data.InstanceName(), info.Remote.ID, reason)
	c.events.Publish(Event{Type: Lost, Server: info})
}

func (c *Client) expiryLoop() error {
	period := c.cfg.Expiry / 4
	if period < 10*time.Millisecond {
		period = 10 * time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.expire(c.now())
		case <-c.ctx.Done():
			return nil
		}
	}
}

func (c *Client) expire(now time.Time) {
	var stale []ServerInfo
	c.mu.Lock()
	for id, s := range c.servers {
		if now.Sub(s.LastSeen) > c.cfg.Expiry {
			stale = append(stale, *s)
			delete(c.servers, id)
		}
	}
	c.mu.Unlock()

	for _, info := range stale {
		c.lost(info, "expired")
	}
}

// Close stops listening. Known servers stay in the registry.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.ep == nil {
			return
		}
		c.cancel()
		c.closeErr = c.ep.close()
		if err := c.group.Wait(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
		c.events.Close()
	})
	return c.closeErr
}
