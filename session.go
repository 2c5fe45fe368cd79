// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package livelink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/destiny/livelink/internal/telemetry"
	"github.com/destiny/livelink/wire"
)

var (
	// ErrSessionClosed is returned when sending on a session that has
	// left the connected state.
	ErrSessionClosed = errors.New("livelink: session closed")

	// ErrSendTimeout is returned when a session's send queue stays full
	// for longer than the send timeout.
	ErrSendTimeout = errors.New("livelink: send queue full")
)

// maxRetainedScratch caps the write scratch buffer kept between frames.
const maxRetainedScratch = 256 * 1024

// outbound is one entry of a session's reliable send queue.
type outbound struct {
	typ  packetType
	msg  *Message      // nil for control packets
	sent chan struct{} // closed once written, may be nil
}

// Session is the reliable-channel connection with one remote, together
// with its lifecycle state.
//
// A session moves Idle → Connecting → Connected → Disconnecting →
// Disconnected, and may jump to Disconnected from any earlier state. The
// status recorded on entering Disconnected says why.
type Session struct {
	node     *Node
	conn     net.Conn
	reader   *bufio.Reader
	outgoing bool // we dialed
	log      *Logger

	mu          sync.RWMutex
	remote      Remote
	peerVersion wire.Version
	status      DisconnectStatus
	cause       error

	state     atomic.Int32
	lastRecv  atomic.Int64 // unix nanos
	lastSend  atomic.Int64 // unix nanos
	hbPending atomic.Bool

	sendq     chan outbound
	done      chan struct{}
	closeOnce sync.Once
	openedAt  time.Time
}

func newSession(n *Node, conn net.Conn, outgoing bool) *Session {
	now := time.Now()
	s := &Session{
		node:     n,
		conn:     conn,
		reader:   bufio.NewReaderSize(conn, 64*1024),
		outgoing: outgoing,
		log:      n.log.With("peer", conn.RemoteAddr().String()),
		sendq:    make(chan outbound, n.sendQueueSize),
		done:     make(chan struct{}),
		openedAt: now,
	}
	s.state.Store(int32(StateIdle))
	s.lastRecv.Store(now.UnixNano())
	s.lastSend.Store(now.UnixNano())
	return s
}

// Remote returns the peer of this session. Before the handshake completes
// its ID is uuid.Nil.
func (s *Session) Remote() Remote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remote
}

// PeerVersion returns the protocol version the peer announced.
func (s *Session) PeerVersion() wire.Version {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerVersion
}

// NegotiatedVersion returns the version both ends speak: the shared major
// version and the lower of the two minor versions.
func (s *Session) NegotiatedVersion() wire.Version {
	local := s.node.version
	return wire.Version{Major: local.Major, Minor: min(local.Minor, s.PeerVersion().Minor)}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Status returns why the session ended and the underlying error, if any.
// The status is zero while the session is not yet disconnected.
func (s *Session) Status() (DisconnectStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.cause
}

// Done is closed when the session reaches StateDisconnected.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Outgoing reports whether the local node dialed this session.
func (s *Session) Outgoing() bool {
	return s.outgoing
}

// Close ends the session gracefully: queued reliable messages are flushed,
// a disconnect packet is sent and the socket is closed. The session ends
// with Graceful. Close on an ended session is a no-op.
func (s *Session) Close() error {
	if !s.transition(StateConnected, StateDisconnecting) {
		if s.State() != StateDisconnected {
			s.finish(Graceful, nil)
		}
		return nil
	}

	timer := time.NewTimer(s.node.closeTimeout())
	defer timer.Stop()

	sent := make(chan struct{})
	select {
	case s.sendq <- outbound{typ: packetDisconnect, sent: sent}:
		select {
		case <-sent:
		case <-s.done:
		case <-timer.C:
		}
	case <-s.done:
	case <-timer.C:
	}
	s.finish(Graceful, nil)
	return nil
}

func (s *Session) transition(from, to State) bool {
	if !canTransition(from, to) {
		return false
	}
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *Session) touch() {
	s.lastRecv.Store(time.Now().UnixNano())
}

// handshake exchanges init packets and fills in the remote.
func (s *Session) handshake() error {
	if !s.transition(StateIdle, StateConnecting) {
		return fmt.Errorf("livelink: handshake in state %v", s.State())
	}

	if d := s.node.handshakeTimeout; d > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(d))
		defer s.conn.SetReadDeadline(time.Time{})
	}

	local, err := s.node.localInit(s.conn)
	if err != nil {
		return err
	}
	frame, err := appendFrame(nil, packetInit, local.marshal())
	if err != nil {
		return err
	}
	if err := s.writeFull(frame); err != nil {
		return fmt.Errorf("livelink: could not send init: %w", err)
	}

	var hdr [streamHeaderSize]byte
	typ, size, err := readFrameHeader(s.reader, &hdr)
	if err != nil {
		return fmt.Errorf("livelink: could not recv init: %w", err)
	}
	if typ != packetInit {
		return fmt.Errorf("%w: %v during handshake", errBadPacket, typ)
	}
	if size != initSize {
		return fmt.Errorf("%w: init packet of %d bytes", errBadFrame, size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(s.reader, buf); err != nil {
		return fmt.Errorf("livelink: could not recv init: %w", err)
	}

	var peer initPacket
	if err := peer.unmarshal(buf); err != nil {
		return err
	}
	switch {
	case !compatible(s.node.version, peer.Version.Version()):
		return fmt.Errorf("%w: local %v, peer %v", ErrIncompatibleVersion, s.node.version, peer.Version)
	case peer.ID == uuid.Nil:
		return errNilID
	case peer.ID == s.node.id:
		return errSelfID
	}

	observed := addrPortOf(s.conn.RemoteAddr())
	tcp := advertised(peer.TCP, observed)
	if tcp.Port() == 0 {
		tcp = observed
	}
	udp := advertised(peer.UDP, observed)

	s.mu.Lock()
	s.remote = NewRemote(peer.ID, tcp, udp)
	s.peerVersion = peer.Version.Version()
	s.mu.Unlock()
	s.touch()
	return nil
}

// enqueue puts a reliable packet on the send queue, waiting at most the
// node's send timeout for room.
func (s *Session) enqueue(out outbound) error {
	if s.State() != StateConnected {
		return ErrSessionClosed
	}
	select {
	case s.sendq <- out:
		return nil
	default:
	}

	timer := time.NewTimer(s.node.sendTimeout)
	defer timer.Stop()
	select {
	case s.sendq <- out:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-timer.C:
		return ErrSendTimeout
	}
}

// writeFull writes b completely. A timeout-class error is retried up to
// the node's retry budget, resuming after the bytes already written.
func (s *Session) writeFull(b []byte) error {
	retries := 0
	for len(b) > 0 {
		if d := s.node.sendTimeout; d > 0 {
			_ = s.conn.SetWriteDeadline(time.Now().Add(d))
		}
		n, err := s.conn.Write(b)
		b = b[n:]
		if err == nil {
			continue
		}

		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() && retries < s.node.writeRetries {
			retries++
			s.log.Debug("write timed out, retry %d/%d", retries, s.node.writeRetries)
			select {
			case <-time.After(time.Duration(retries) * s.node.writeRetryBackoff):
			case <-s.done:
				return ErrSessionClosed
			}
			continue
		}
		return err
	}
	return nil
}

func (s *Session) writeLoop() {
	defer s.drain()

	var scratch []byte
	for {
		select {
		case out := <-s.sendq:
			var payload []byte
			if out.msg != nil {
				payload = out.msg.Bytes()
			}
			scratch, _ = appendFrame(scratch[:0], out.typ, payload)
			if out.msg != nil {
				telemetry.MessagesSent.WithLabelValues(ReliableOrdered.String()).Inc()
				telemetry.BytesSent.WithLabelValues(ReliableOrdered.String()).Add(float64(len(payload)))
				out.msg.Release()
			}
			if out.typ == packetHeartbeat {
				s.hbPending.Store(false)
			}

			err := s.writeFull(scratch)
			if out.sent != nil {
				close(out.sent)
			}
			if err != nil {
				s.ioFailed(err)
				return
			}
			s.lastSend.Store(time.Now().UnixNano())
			if cap(scratch) > maxRetainedScratch {
				scratch = nil
			}

		case <-s.done:
			return
		}
	}
}

// drain releases messages left in the send queue once the session ended.
func (s *Session) drain() {
	for {
		select {
		case out := <-s.sendq:
			if out.msg != nil {
				out.msg.Release()
			}
			if out.sent != nil {
				close(out.sent)
			}
		default:
			return
		}
	}
}

func (s *Session) readLoop() {
	var hdr [streamHeaderSize]byte
	for {
		typ, size, err := readFrameHeader(s.reader, &hdr)
		if err != nil {
			s.ioFailed(err)
			return
		}
		s.touch()

		switch typ {
		case packetMessage:
			m := s.node.pool.Acquire(s.Remote(), ReliableOrdered, size)
			buf := m.Data()
			b := buf.AvailableBuffer()[:size]
			if _, err := io.ReadFull(s.reader, b); err != nil {
				m.Release()
				s.ioFailed(err)
				return
			}
			buf.Write(b)
			s.node.deliver(s, m)

		case packetHeartbeat:
			if _, err := s.reader.Discard(size); err != nil {
				s.ioFailed(err)
				return
			}

		case packetDisconnect:
			s.log.Debug("peer requested disconnect")
			s.transition(StateConnected, StateDisconnecting)
			s.finish(Graceful, nil)
			return

		default:
			s.ioFailed(fmt.Errorf("%w: %v", errBadPacket, typ))
			return
		}
	}
}

// ioFailed classifies a reliable-channel I/O error. Errors seen while a
// graceful teardown is in flight complete that teardown; anything else is
// fatal to the session.
func (s *Session) ioFailed(err error) {
	if s.State() == StateDisconnecting {
		s.finish(Graceful, nil)
		return
	}
	s.finish(Error, err)
}

// checkLiveness is called periodically by the node. It ends a silent
// session with Timeout and queues a heartbeat when the outbound side has
// been idle.
func (s *Session) checkLiveness(now time.Time) {
	if s.State() != StateConnected {
		return
	}
	if t := s.node.timeout; t > 0 {
		idle := now.Sub(time.Unix(0, s.lastRecv.Load()))
		if idle > t {
			s.finish(Timeout, fmt.Errorf("livelink: no traffic for %v", idle.Round(time.Millisecond)))
			return
		}
	}
	if h := s.node.heartbeat; h > 0 && now.Sub(time.Unix(0, s.lastSend.Load())) >= h {
		if s.hbPending.CompareAndSwap(false, true) {
			select {
			case s.sendq <- outbound{typ: packetHeartbeat}:
			default:
				// a full queue will refresh lastSend soon enough
				s.hbPending.Store(false)
			}
		}
	}
}

// finish moves the session to StateDisconnected with status. Only the
// first call has an effect.
func (s *Session) finish(status DisconnectStatus, cause error) {
	s.closeOnce.Do(func() {
		prev := State(s.state.Swap(int32(StateDisconnected)))

		s.mu.Lock()
		s.status = status
		s.cause = cause
		s.mu.Unlock()

		close(s.done)
		_ = s.conn.Close()
		s.node.detach(s, prev, status, cause)
	})
}

// advertised returns the end point a peer announced, taking the address
// from observed when the peer left it unspecified.
func advertised(ep wire.EndPointData, observed netip.AddrPort) netip.AddrPort {
	if ep.IsUnspecified() {
		return netip.AddrPortFrom(observed.Addr(), ep.Port)
	}
	return ep.AddrPort()
}

func addrPortOf(addr net.Addr) netip.AddrPort {
	var ap netip.AddrPort
	switch a := addr.(type) {
	case *net.TCPAddr:
		ap = a.AddrPort()
	case *net.UDPAddr:
		ap = a.AddrPort()
	default:
		if addr != nil {
			ap, _ = netip.ParseAddrPort(addr.String())
		}
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
