// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package livelink implements a LAN transport that lets a capture host and
// its companion clients exchange real-time data over two delivery
// qualities multiplexed on one logical connection: a reliable, ordered
// TCP stream and an unreliable, unordered UDP path.
//
// Peers are identified by a Remote, messages are pooled and reused, and
// every session runs through a small state machine whose terminal state
// records why it ended (see DisconnectStatus).
package livelink

import (
	"fmt"
	"net/netip"

	"github.com/google/uuid"
)

// Remote identifies a peer and the addresses of its two channels.
//
// Two Remotes are the same peer when their IDs match; addresses may change
// when a peer reconnects while its identity persists.
type Remote struct {
	ID  uuid.UUID      // stable peer identifier
	TCP netip.AddrPort // reliable-ordered channel address
	UDP netip.AddrPort // unreliable-unordered channel address
}

// Broadcast is the reserved remote that addresses every registered peer.
var Broadcast = Remote{ID: uuid.Nil}

// NewRemote returns a Remote for id with the given channel addresses.
func NewRemote(id uuid.UUID, tcp, udp netip.AddrPort) Remote {
	return Remote{ID: id, TCP: tcp, UDP: udp}
}

// Equal reports whether r and o identify the same peer. Addresses are
// ignored.
func (r Remote) Equal(o Remote) bool {
	return r.ID == o.ID
}

// Key returns the value to use when a Remote indexes a map.
func (r Remote) Key() uuid.UUID {
	return r.ID
}

// IsBroadcast reports whether r addresses all peers.
func (r Remote) IsBroadcast() bool {
	return r.ID == uuid.Nil
}

func (r Remote) String() string {
	if r.IsBroadcast() {
		return "remote(broadcast)"
	}
	return fmt.Sprintf("remote(%s tcp=%v udp=%v)", r.ID, r.TCP, r.UDP)
}
