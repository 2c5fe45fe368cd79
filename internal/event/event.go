// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package event distributes events to any number of subscribers through
// buffered Go channels.
package event

import "sync"

// Channel fans published events out to subscribers. Publish never blocks:
// an event is dropped for a subscriber whose buffer is full.
type Channel[T any] struct {
	mu        sync.Mutex
	listeners []chan T
	closed    bool
	dropped   uint64
}

// NewChannel creates an event channel.
func NewChannel[T any]() *Channel[T] {
	return &Channel[T]{}
}

// Subscribe returns a channel that will receive copies of all events
// published after the call. It is closed by Close.
func (c *Channel[T]) Subscribe(bufferSize int) <-chan T {
	listener := make(chan T, bufferSize)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(listener)
		return listener
	}
	c.listeners = append(c.listeners, listener)
	return listener
}

// Unsubscribe removes and closes a listener returned by Subscribe.
func (c *Channel[T]) Unsubscribe(ch <-chan T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, l := range c.listeners {
		if l == ch {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			close(l)
			return
		}
	}
}

// Publish sends an event to all subscribers
func (c *Channel[T]) Publish(ev T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for _, l := range c.listeners {
		select {
		case l <- ev:
		default:
			c.dropped++
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (c *Channel[T]) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Close stops the event channel and closes all subscriptions
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, l := range c.listeners {
		close(l)
	}
	c.listeners = nil
}
