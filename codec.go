// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package livelink

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
)

// ErrNoCodec is returned when no codec is registered for a peer's
// protocol version.
var ErrNoCodec = errors.New("livelink: no codec for protocol version")

// Codec converts application values to and from message payloads.
type Codec[T any] interface {
	Encode(v T, buf *bytes.Buffer) error
	Decode(r *bytes.Reader) (T, error)
}

// CodecFuncs adapts a pair of functions to Codec.
type CodecFuncs[T any] struct {
	EncodeFunc func(v T, buf *bytes.Buffer) error
	DecodeFunc func(r *bytes.Reader) (T, error)
}

func (c CodecFuncs[T]) Encode(v T, buf *bytes.Buffer) error { return c.EncodeFunc(v, buf) }
func (c CodecFuncs[T]) Decode(r *bytes.Reader) (T, error) { return c.DecodeFunc(r) }

// CodecTable selects a codec by the minor protocol version negotiated in
// the handshake. Peers share a major version; the minor one is the
// capability level both sides understand. Look the codec up once per
// session, typically on the Connected event, and keep it for the session's
// lifetime.
type CodecTable[T any] struct {
	mu     sync.RWMutex
	codecs map[int]Codec[T]
}

// NewCodecTable creates an empty table.
func NewCodecTable[T any]() *CodecTable[T] {
	return &CodecTable[T]{codecs: make(map[int]Codec[T])}
}

// Register installs c for sessions negotiating minor version minor or
// later, until a codec registered for a higher minor version takes over.
func (t *CodecTable[T]) Register(minor int, c Codec[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.codecs[minor] = c
}

// Lookup returns the codec registered for the highest minor version not
// above minor.
func (t *CodecTable[T]) Lookup(minor int) (Codec[T], error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	best := -1
	for v := range t.codecs {
		if v <= minor && v > best {
			best = v
		}
	}
	if best < 0 {
		return nil, fmt.Errorf("%w %d", ErrNoCodec, minor)
	}
	return t.codecs[best], nil
}

// ForSession returns the codec for the version negotiated on s.
func (t *CodecTable[T]) ForSession(s *Session) (Codec[T], error) {
	return t.Lookup(s.NegotiatedVersion().Minor)
}

// SendValue encodes v into a pooled message and sends it to remote.
func SendValue[T any](n *Node, remote Remote, channel ChannelType, c Codec[T], v T) error {
	m := n.Acquire(remote, channel, 0)
	if err := c.Encode(v, m.Data()); err != nil {
		m.Release()
		return fmt.Errorf("livelink: could not encode value: %w", err)
	}
	return n.Send(m)
}

// DecodeValue decodes the payload of m. It does not release m.
func DecodeValue[T any](m *Message, c Codec[T]) (T, error) {
	return c.Decode(bytes.NewReader(m.Bytes()))
}
