// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package livelink

import (
	"bytes"
	"errors"
	"sync/atomic"
)

// ErrUseAfterRelease is the panic value raised when a released Message is
// touched again.
var ErrUseAfterRelease = errors.New("livelink: message used after release")

// Message is a pooled unit of data addressed to, or received from, a
// Remote on a fixed channel.
//
// A Message is owned by exactly one borrower between Acquire and Release.
// Accessing it after Release panics with ErrUseAfterRelease. The check is
// per instance: a stale pointer kept past Release cannot be told apart from
// the next borrower once the pool hands the same instance out again.
type Message struct {
	remote  Remote
	channel ChannelType
	data    bytes.Buffer

	pool     *Pool
	released atomic.Bool
}

func (m *Message) check() {
	if m.released.Load() {
		panic(ErrUseAfterRelease)
	}
}

// Remote returns the destination of an outgoing message or the origin of
// an incoming one.
func (m *Message) Remote() Remote {
	m.check()
	return m.remote
}

// Channel returns the channel chosen when the message was acquired.
func (m *Message) Channel() ChannelType {
	m.check()
	return m.channel
}

// Data returns the message's growable payload buffer.
func (m *Message) Data() *bytes.Buffer {
	m.check()
	return &m.data
}

// Bytes returns the unread payload. The slice aliases the buffer and is
// only valid until the message is released.
func (m *Message) Bytes() []byte {
	m.check()
	return m.data.Bytes()
}

// Len returns the payload length.
func (m *Message) Len() int {
	m.check()
	return m.data.Len()
}

// Write appends p to the payload.
func (m *Message) Write(p []byte) (int, error) {
	m.check()
	return m.data.Write(p)
}

// WriteByte appends c to the payload.
func (m *Message) WriteByte(c byte) error {
	m.check()
	return m.data.WriteByte(c)
}

// Release returns the message to the pool it came from.
func (m *Message) Release() {
	if m.pool == nil {
		panic("livelink: message was not acquired from a pool")
	}
	m.pool.Release(m)
}

// Released reports whether the message has been released. It is meant for
// assertions; a released message may be handed to another borrower at any
// time.
func (m *Message) Released() bool {
	return m.released.Load()
}
