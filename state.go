// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package livelink

import "fmt"

// State is a session's position in its lifecycle.
type State int32

const (
	StateIdle          State = iota // no socket
	StateConnecting                 // handshake in flight
	StateConnected                  // application traffic permitted
	StateDisconnecting              // teardown in flight
	StateDisconnected               // terminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DisconnectStatus classifies how a session ended. It is informational:
// the transport never reconnects on its own.
type DisconnectStatus int

const (
	// Graceful means an explicit shutdown handshake completed.
	Graceful DisconnectStatus = iota + 1
	// Timeout means no traffic arrived within the liveness window.
	Timeout
	// Error means an unrecoverable transport fault.
	Error
	// Reconnected means a newer session for the same peer superseded
	// this one.
	Reconnected
)

func (s DisconnectStatus) String() string {
	switch s {
	case Graceful:
		return "graceful"
	case Timeout:
		return "timeout"
	case Error:
		return "error"
	case Reconnected:
		return "reconnected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ShouldReconnect reports whether a consumer would typically try to
// re-establish a session that ended with s.
func (s DisconnectStatus) ShouldReconnect() bool {
	return s == Timeout || s == Error
}

// transitions lists the legal moves of the session state machine.
// StateDisconnected is reachable from every non-terminal state.
var transitions = map[State][]State{
	StateIdle:          {StateConnecting, StateDisconnected},
	StateConnecting:    {StateConnected, StateDisconnected},
	StateConnected:     {StateDisconnecting, StateDisconnected},
	StateDisconnecting: {StateDisconnected},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
