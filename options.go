// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package livelink

import (
	"time"

	"github.com/google/uuid"

	"github.com/destiny/livelink/wire"
)

const (
	DefaultHeartbeatInterval = 1 * time.Second
	DefaultTimeout           = 5 * time.Second
	DefaultHandshakeTimeout  = 5 * time.Second
	DefaultSendTimeout       = 5 * time.Second
	DefaultWriteRetries      = 2
	DefaultWriteRetryBackoff = 20 * time.Millisecond
	DefaultSendQueueSize     = 1024
	DefaultReceiveQueueSize  = 1024
)

// Handler consumes an incoming message. The handler owns m and must
// release it. Handlers run on the transport's I/O goroutines, so they
// should return quickly.
type Handler func(m *Message)

// Option configures some aspect of a Node.
type Option func(n *Node)

// WithID sets the node's identifier. A random one is generated otherwise.
func WithID(id uuid.UUID) Option {
	return func(n *Node) {
		n.id = id
	}
}

// WithLogger sets a dedicated logger for the node.
func WithLogger(l *Logger) Option {
	return func(n *Node) {
		n.log = l
	}
}

// WithPool makes the node acquire incoming messages from p instead of
// DefaultPool.
func WithPool(p *Pool) Option {
	return func(n *Node) {
		n.pool = p
	}
}

// WithRegistry shares a remote registry with the node, typically the one
// a discovery client populates.
func WithRegistry(r *Registry) Option {
	return func(n *Node) {
		n.registry = r
	}
}

// WithHeartbeat sets how long the outbound reliable channel may stay idle
// before a keep-alive is sent. Zero disables keep-alives.
func WithHeartbeat(interval time.Duration) Option {
	return func(n *Node) {
		n.heartbeat = interval
	}
}

// WithTimeout sets the liveness window: a session that receives nothing
// for this long ends with Timeout. Zero disables the check.
func WithTimeout(timeout time.Duration) Option {
	return func(n *Node) {
		n.timeout = timeout
	}
}

// WithHandshakeTimeout bounds the exchange of init packets.
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(n *Node) {
		n.handshakeTimeout = timeout
	}
}

// WithSendTimeout bounds how long Send waits for room in a session's
// reliable send queue.
func WithSendTimeout(timeout time.Duration) Option {
	return func(n *Node) {
		n.sendTimeout = timeout
	}
}

// WithWriteRetry configures how many extra attempts a reliable write gets
// after a timeout-class error, and the linear backoff between attempts.
// Any other write error ends the session immediately.
func WithWriteRetry(retries int, backoff time.Duration) Option {
	return func(n *Node) {
		n.writeRetries = retries
		n.writeRetryBackoff = backoff
	}
}

// WithHandler installs a handler for incoming messages. Without one,
// messages are queued for Receive.
func WithHandler(h Handler) Option {
	return func(n *Node) {
		n.handler = h
	}
}

// WithProtocolVersion overrides the protocol version sent in handshakes.
func WithProtocolVersion(v wire.Version) Option {
	return func(n *Node) {
		n.version = v
	}
}

// WithQueueSizes sets the per-session send queue and the node's receive
// queue capacities.
func WithQueueSizes(send, receive int) Option {
	return func(n *Node) {
		n.sendQueueSize = send
		n.receiveQueueSize = receive
	}
}
