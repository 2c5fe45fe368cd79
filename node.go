// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package livelink

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

	"github.com/destiny/livelink/internal/event"
	"github.com/destiny/livelink/internal/telemetry"
	"github.com/destiny/livelink/wire"
)

var (
	// ErrNodeClosed is returned by operations on a closed node.
	ErrNodeClosed = errors.New("livelink: node closed")

	// ErrNotStarted is returned when a node is used before Start bound
	// its unreliable channel.
	ErrNotStarted = errors.New("livelink: node not started")

	// ErrUnknownRemote is returned when sending to a peer without a
	// connected session.
	ErrUnknownRemote = errors.New("livelink: unknown remote")
)

// EventType tells Connected events from Disconnected ones.
type EventType int

const (
	EventConnected EventType = iota + 1
	EventDisconnected
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event reports a session entering or leaving the connected state.
// Status and Err are only set on EventDisconnected.
type Event struct {
	Type    EventType
	Remote  Remote
	Session *Session
	Status  DisconnectStatus
	Err     error
	Time    time.Time
}

// Node is one endpoint of the transport. A node that listens acts as a
// server, a node that connects acts as a client; one node may do both.
// Every node owns a single UDP socket for the unreliable channel.
type Node struct {
	id       uuid.UUID
	log      *Logger
	pool     *Pool
	registry *Registry
	handler  Handler
	version  wire.Version

	heartbeat         time.Duration
	timeout           time.Duration
	handshakeTimeout  time.Duration
	sendTimeout       time.Duration
	writeRetries      int
	writeRetryBackoff time.Duration
	sendQueueSize     int
	receiveQueueSize  int

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu       sync.RWMutex
	closed   bool
	started  bool
	listener net.Listener
	sessions map[uuid.UUID]*Session
	pending  map[*Session]struct{}

	udp        *net.UDPConn
	udpMu      sync.Mutex
	udpScratch []byte

	incoming chan *Message
	events   *event.Channel[Event]
}

// NewNode creates a node. It does not touch the network until Start.
func NewNode(opts ...Option) *Node {
	n := &Node{
		log:               DefaultLogger,
		version:           DefaultProtocolVersion,
		heartbeat:         DefaultHeartbeatInterval,
		timeout:           DefaultTimeout,
		handshakeTimeout:  DefaultHandshakeTimeout,
		sendTimeout:       DefaultSendTimeout,
		writeRetries:      DefaultWriteRetries,
		writeRetryBackoff: DefaultWriteRetryBackoff,
		sendQueueSize:     DefaultSendQueueSize,
		receiveQueueSize:  DefaultReceiveQueueSize,
		sessions:          make(map[uuid.UUID]*Session),
		pending:           make(map[*Session]struct{}),
		events:            event.NewChannel[Event](),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.id == uuid.Nil {
		n.id = uuid.New()
	}
	if n.pool == nil {
		n.pool = DefaultPool()
	}
	if n.registry == nil {
		n.registry = NewRegistry()
	}
	if n.sendQueueSize < 1 {
		n.sendQueueSize = 1
	}
	if n.receiveQueueSize < 1 {
		n.receiveQueueSize = 1
	}
	n.log = n.log.Named("node").With("id", n.id.String())
	n.incoming = make(chan *Message, n.receiveQueueSize)

	ctx, cancel := context.WithCancel(context.Background())
	n.group, n.ctx = errgroup.WithContext(ctx)
	n.cancel = cancel
	return n
}

// NewServer creates a node that accepts sessions on tcpAddr and exchanges
// datagrams on udpAddr.
func NewServer(tcpAddr, udpAddr string, opts ...Option) (*Node, error) {
	n := NewNode(opts...)
	if err := n.Start(udpAddr); err != nil {
		return nil, err
	}
	if err := n.Listen(tcpAddr); err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

// NewClient creates a node bound to udpAddr, ready to Connect.
func NewClient(udpAddr string, opts ...Option) (*Node, error) {
	n := NewNode(opts...)
	if err := n.Start(udpAddr); err != nil {
		return nil, err
	}
	return n, nil
}

// ID returns the node's identifier.
func (n *Node) ID() uuid.UUID { return n.id }

// Version returns the protocol version the node announces in handshakes.
func (n *Node) Version() wire.Version { return n.version }

// Pool returns the pool outgoing and incoming messages come from.
func (n *Node) Pool() *Pool { return n.pool }

// Registry returns the node's remote registry.
func (n *Node) Registry() *Registry { return n.registry }

// Acquire takes a message addressed to remote from the node's pool.
func (n *Node) Acquire(remote Remote, channel ChannelType, sizeHint int) *Message {
	return n.pool.Acquire(remote, channel, sizeHint)
}

// Start binds the unreliable channel and starts the background loops.
func (n *Node) Start(udpAddr string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch {
	case n.closed:
		return ErrNodeClosed
	case n.started:
		return fmt.Errorf("livelink: node already started")
	}

	addr, err := net.ResolveUDPAddr("udp4", udpAddr)
	if err != nil {
		return fmt.Errorf("livelink: invalid udp address %q: %w", udpAddr, err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("livelink: could not listen to %q: %w", udpAddr, err)
	}
	n.udp = conn
	n.started = true

	n.group.Go(n.datagramLoop)
	n.group.Go(n.livenessLoop)
	n.log.Debug("unreliable channel on %v", conn.LocalAddr())
	return nil
}

// Listen accepts reliable-channel sessions on tcpAddr.
func (n *Node) Listen(tcpAddr string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch {
	case n.closed:
		return ErrNodeClosed
	case !n.started:
		return ErrNotStarted
	case n.listener != nil:
		return fmt.Errorf("livelink: node already listening on %v", n.listener.Addr())
	}

	l, err := net.Listen("tcp4", tcpAddr)
	if err != nil {
		return fmt.Errorf("livelink: could not listen to %q: %w", tcpAddr, err)
	}
	n.listener = l
	n.group.Go(n.acceptLoop)
	n.log.Info("listening on %v", l.Addr())
	return nil
}

// Addr returns the reliable-channel listener's address, if any.
func (n *Node) Addr() net.Addr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

// UDPAddr returns the unreliable channel's local address, if bound.
func (n *Node) UDPAddr() net.Addr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.udp == nil {
		return nil
	}
	return n.udp.LocalAddr()
}

// AddrPort is Addr as a netip.AddrPort.
func (n *Node) AddrPort() netip.AddrPort {
	return addrPortOf(n.Addr())
}

// UDPAddrPort is UDPAddr as a netip.AddrPort.
func (n *Node) UDPAddrPort() netip.AddrPort {
	return addrPortOf(n.UDPAddr())
}

// Connect dials a server and completes the handshake. The returned session
// is connected, or an error says why it could not be.
func (n *Node) Connect(ctx context.Context, addr netip.AddrPort) (*Session, error) {
	n.mu.RLock()
	started := n.started
	n.mu.RUnlock()
	if !started {
		return nil, ErrNotStarted
	}

	dialer := net.Dialer{Timeout: n.handshakeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp4", addr.String())
	if err != nil {
		return nil, fmt.Errorf("livelink: could not dial %v: %w", addr, err)
	}

	s := newSession(n, conn, true)
	if err := n.track(s); err != nil {
		_ = conn.Close()
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	err = s.handshake()
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = n.attach(s)
	}
	if err != nil {
		s.finish(Error, err)
		return nil, fmt.Errorf("livelink: could not connect to %v: %w", addr, err)
	}

	if !n.spawn(s.writeLoop) || !n.spawn(s.readLoop) {
		s.finish(Error, ErrNodeClosed)
		return nil, ErrNodeClosed
	}
	return s, nil
}

// ConnectRemote connects to the reliable channel of a registered remote.
func (n *Node) ConnectRemote(ctx context.Context, id uuid.UUID) (*Session, error) {
	r, ok := n.registry.Resolve(id)
	if !ok || r.IsBroadcast() {
		return nil, fmt.Errorf("%w: %v", ErrUnknownRemote, id)
	}
	return n.Connect(ctx, r.TCP)
}

func (n *Node) acceptLoop() error {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			if n.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			n.log.Warn("could not accept: %+v", err)
			select {
			case <-n.ctx.Done():
				return nil
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		s := newSession(n, conn, false)
		if !n.spawn(func() { n.serveInbound(s) }) {
			_ = conn.Close()
		}
	}
}

func (n *Node) serveInbound(s *Session) {
	if err := n.track(s); err != nil {
		_ = s.conn.Close()
		return
	}
	err := s.handshake()
	if err == nil {
		err = n.attach(s)
	}
	if err != nil {
		s.log.Debug("handshake failed: %+v", err)
		s.finish(Error, err)
		return
	}
	if !n.spawn(s.writeLoop) {
		s.finish(Error, ErrNodeClosed)
		return
	}
	s.readLoop()
}

// spawn runs fn on the node's group unless the node is closed.
func (n *Node) spawn(fn func()) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return false
	}
	n.group.Go(func() error {
		fn()
		return nil
	})
	return true
}

// track records a session whose handshake is in flight.
func (n *Node) track(s *Session) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}
	n.pending[s] = struct{}{}
	return nil
}

// localInit builds the init packet advertised on conn.
func (n *Node) localInit(conn net.Conn) (initPacket, error) {
	local := addrPortOf(conn.LocalAddr())
	tcp := local
	n.mu.RLock()
	if n.listener != nil {
		tcp = netip.AddrPortFrom(local.Addr(), addrPortOf(n.listener.Addr()).Port())
	}
	udpPort := uint16(0)
	if n.udp != nil {
		udpPort = addrPortOf(n.udp.LocalAddr()).Port()
	}
	n.mu.RUnlock()

	version, err := wire.NewVersionData(n.version)
	if err != nil {
		return initPacket{}, err
	}
	p := initPacket{Version: version, ID: n.id}
	if ep, err := wire.NewEndPointData(tcp); err == nil {
		p.TCP = ep
	}
	if ep, err := wire.NewEndPointData(netip.AddrPortFrom(local.Addr(), udpPort)); err == nil {
		p.UDP = ep
	} else {
		p.UDP = wire.EndPointData{Port: udpPort}
	}
	return p, nil
}

// attach installs a freshly handshaken session as the one for its remote.
// A session already installed for the same ID ends with Reconnected.
func (n *Node) attach(s *Session) error {
	remote := s.Remote()

	n.mu.Lock()
	delete(n.pending, s)
	if n.closed {
		n.mu.Unlock()
		return ErrNodeClosed
	}
	if !s.transition(StateConnecting, StateConnected) {
		n.mu.Unlock()
		return ErrSessionClosed
	}
	old := n.sessions[remote.ID]
	n.sessions[remote.ID] = s
	n.mu.Unlock()

	n.registry.Upsert(remote.ID, remote.TCP, remote.UDP)
	if old != nil {
		s.log.Info("superseding previous session with %v", remote.ID)
		old.finish(Reconnected, nil)
	}

	telemetry.SessionsActive.Inc()
	telemetry.HandshakeDuration.Observe(time.Since(s.openedAt).Seconds())
	s.log.Info("connected to %v (tcp=%v udp=%v version=%v)", remote.ID, remote.TCP, remote.UDP, s.PeerVersion())
	n.events.Publish(Event{Type: EventConnected, Remote: remote, Session: s, Time: time.Now()})
	return nil
}

// detach is called once per session when it reaches StateDisconnected.
func (n *Node) detach(s *Session, prev State, status DisconnectStatus, cause error) {
	remote := s.Remote()

	n.mu.Lock()
	delete(n.pending, s)
	current := false
	if cur, ok := n.sessions[remote.ID]; ok && cur == s {
		delete(n.sessions, remote.ID)
		current = true
	}
	n.mu.Unlock()

	if current && (status == Graceful || status == Timeout) {
		n.registry.Remove(remote.ID)
	}
	if prev == StateConnected || prev == StateDisconnecting {
		telemetry.SessionsActive.Dec()
	}
	telemetry.Disconnects.WithLabelValues(status.String()).Inc()

	if remote.ID == uuid.Nil {
		s.log.Debug("closed before handshake: %v", status)
		return
	}
	if cause != nil {
		s.log.Info("disconnected from %v (%v): %+v", remote.ID, status, cause)
	} else {
		s.log.Info("disconnected from %v (%v)", remote.ID, status)
	}
	n.events.Publish(Event{
		Type:    EventDisconnected,
		Remote:  remote,
		Session: s,
		Status:  status,
		Err:     cause,
		Time:    time.Now(),
	})
}

// livenessLoop drives heartbeats and timeouts for every session.
func (n *Node) livenessLoop() error {
	period := n.livenessPeriod()
	if period <= 0 {
		return nil
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return nil
		case now := <-ticker.C:
			for _, s := range n.Sessions() {
				s.checkLiveness(now)
			}
		}
	}
}

func (n *Node) livenessPeriod() time.Duration {
	period := n.heartbeat
	if t := n.timeout / 4; t > 0 && (period <= 0 || t < period) {
		period = t
	}
	return period
}

func (n *Node) closeTimeout() time.Duration {
	if n.sendTimeout > 0 {
		return n.sendTimeout
	}
	return DefaultSendTimeout
}

// Session returns the connected session for id.
func (n *Node) Session(id uuid.UUID) (*Session, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s, ok := n.sessions[id]
	return s, ok
}

// Sessions returns a snapshot of the current sessions ordered by remote ID.
func (n *Node) Sessions() []*Session {
	n.mu.RLock()
	out := make([]*Session, 0, len(n.sessions))
	for _, s := range n.sessions {
		out = append(out, s)
	}
	n.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Remote().ID, out[j].Remote().ID
		return string(a[:]) < string(b[:])
	})
	return out
}

// DisconnectRemote gracefully closes the session with id.
func (n *Node) DisconnectRemote(id uuid.UUID) error {
	s, ok := n.Session(id)
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownRemote, id)
	}
	return s.Close()
}

// Events subscribes to session events. Slow subscribers lose events
// rather than stalling the transport.
func (n *Node) Events(buffer int) <-chan Event {
	return n.events.Subscribe(buffer)
}

// Unsubscribe stops delivery to a channel returned by Events.
func (n *Node) Unsubscribe(ch <-chan Event) {
	n.events.Unsubscribe(ch)
}

// Close gracefully ends every session, stops the background loops and
// releases undelivered messages.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	sessions := make([]*Session, 0, len(n.sessions))
	for _, s := range n.sessions {
		sessions = append(sessions, s)
	}
	pending := make([]*Session, 0, len(n.pending))
	for s := range n.pending {
		pending = append(pending, s)
	}
	listener := n.listener
	n.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			_ = s.Close()
		}(s)
	}
	wg.Wait()
	for _, s := range pending {
		s.finish(Error, ErrNodeClosed)
	}

	n.cancel()
	if n.udp != nil {
		_ = n.udp.Close()
	}
	err := n.group.Wait()

	for {
		select {
		case m := <-n.incoming:
			m.Release()
			continue
		default:
		}
		break
	}
	n.events.Close()
	n.log.Debug("closed")
	return err
}
