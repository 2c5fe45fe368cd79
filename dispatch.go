// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package livelink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/google/uuid"

	"github.com/destiny/livelink/internal/telemetry"
)

// Send routes m to its remote over its channel. Send takes ownership of m:
// the message is released once written, or immediately on error.
//
// A message addressed to Broadcast is copied to every connected session.
// Reliable messages are queued and written in order by the session;
// unreliable ones are written to the UDP socket before Send returns.
func (n *Node) Send(m *Message) error {
	if n.ctx.Err() != nil {
		m.Release()
		return ErrNodeClosed
	}
	remote := m.Remote()
	if remote.IsBroadcast() {
		return n.broadcast(m)
	}
	s, ok := n.Session(remote.ID)
	if !ok {
		m.Release()
		return fmt.Errorf("%w: %v", ErrUnknownRemote, remote.ID)
	}
	return n.sendTo(s, m)
}

// SendBytes copies p into a pooled message and sends it.
func (n *Node) SendBytes(remote Remote, channel ChannelType, p []byte) error {
	m := n.pool.Acquire(remote, channel, len(p))
	_, _ = m.Write(p)
	return n.Send(m)
}

func (n *Node) sendTo(s *Session, m *Message) error {
	if m.Channel() == UnreliableUnordered {
		defer m.Release()
		return n.sendDatagram(s, m)
	}

	if m.Len()+1 > MaxFrameSize {
		m.Release()
		return fmt.Errorf("%w: %d bytes", errOverflow, m.Len())
	}
	if err := s.enqueue(outbound{typ: packetMessage, msg: m}); err != nil {
		m.Release()
		return err
	}
	return nil
}

// broadcast fans m out over a snapshot of the connected sessions. Every
// session gets its own copy; failures are joined. Registered remotes
// without a session are skipped, and a session whose registry entry was
// dropped by discovery still receives.
func (n *Node) broadcast(m *Message) error {
	defer m.Release()

	var errs []error
	for _, s := range n.Sessions() {
		if s.State() != StateConnected {
			continue
		}
		c := n.pool.Acquire(s.Remote(), m.Channel(), m.Len())
		_, _ = c.Write(m.Bytes())
		if err := n.sendTo(s, c); err != nil {
			errs = append(errs, fmt.Errorf("livelink: broadcast to %v: %w", s.Remote().ID, err))
		}
	}
	return errors.Join(errs...)
}

// sendDatagram writes one unreliable message. Failures are reported to the
// caller and never affect the session.
func (n *Node) sendDatagram(s *Session, m *Message) error {
	dst := s.Remote().UDP
	if !dst.IsValid() || dst.Port() == 0 {
		return fmt.Errorf("%w: %v has no unreliable end point", ErrUnknownRemote, s.Remote().ID)
	}

	n.udpMu.Lock()
	defer n.udpMu.Unlock()

	var err error
	n.udpScratch, err = appendDatagram(n.udpScratch[:0], packetMessage, n.id, m.Bytes())
	if err != nil {
		return fmt.Errorf("%w: %d bytes", err, m.Len())
	}
	if _, err := n.udp.WriteToUDPAddrPort(n.udpScratch, dst); err != nil {
		return fmt.Errorf("livelink: could not send datagram to %v: %w", dst, err)
	}
	telemetry.MessagesSent.WithLabelValues(UnreliableUnordered.String()).Inc()
	telemetry.BytesSent.WithLabelValues(UnreliableUnordered.String()).Add(float64(m.Len()))
	return nil
}

func (n *Node) datagramLoop() error {
	buf := make([]byte, 64*1024)
	for {
		size, from, err := n.udp.ReadFromUDPAddrPort(buf)
		if err != nil {
			if n.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			n.log.Debug("could not read datagram: %+v", err)
			continue
		}

		typ, sender, payload, err := parseDatagram(buf[:size])
		if err != nil || typ != packetMessage {
			telemetry.DatagramsDropped.WithLabelValues("malformed").Inc()
			n.log.Trace("dropped malformed datagram from %v", from)
			continue
		}
		s, ok := n.attribute(sender, from)
		if !ok {
			telemetry.DatagramsDropped.WithLabelValues("unknown").Inc()
			n.log.Trace("dropped datagram from unknown sender %v (%v)", sender, from)
			continue
		}

		// datagrams never refresh liveness, only the reliable stream does
		m := n.pool.Acquire(s.Remote(), UnreliableUnordered, len(payload))
		_, _ = m.Write(payload)
		n.deliver(s, m)
	}
}

// attribute finds the connected session a datagram belongs to. Datagrams
// carry their sender's ID; one sent with a nil ID is attributed by its
// source address through the registry.
func (n *Node) attribute(sender uuid.UUID, from netip.AddrPort) (*Session, bool) {
	if sender == uuid.Nil {
		r, ok := n.registry.ResolveUDP(from)
		if !ok {
			return nil, false
		}
		sender = r.ID
	}
	s, ok := n.Session(sender)
	if !ok || s.State() != StateConnected {
		return nil, false
	}
	return s, true
}

// deliver hands an incoming message to the handler or the receive queue.
// Unreliable messages are dropped when the queue is full; reliable ones
// wait, which back-pressures the peer through the stream.
func (n *Node) deliver(s *Session, m *Message) {
	channel := m.Channel()
	telemetry.MessagesReceived.WithLabelValues(channel.String()).Inc()

	if n.handler != nil {
		n.handler(m)
		return
	}

	if channel == UnreliableUnordered {
		select {
		case n.incoming <- m:
		default:
			telemetry.DatagramsDropped.WithLabelValues("queue_full").Inc()
			m.Release()
		}
		return
	}

	select {
	case n.incoming <- m:
	case <-s.done:
		m.Release()
	case <-n.ctx.Done():
		m.Release()
	}
}

// Receive returns the next incoming message. The caller owns it and must
// release it. Receive is not used when a Handler is installed.
func (n *Node) Receive(ctx context.Context) (*Message, error) {
	select {
	case m := <-n.incoming:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.ctx.Done():
		return nil, ErrNodeClosed
	}
}
