// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package testutil

import (
	"sync"
	"testing"
	"time"
)

// WaitFor polls cond every few milliseconds until it holds or timeout
// elapses, and reports whether it held.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Receive waits for one value on ch.
func Receive[T any](t testing.TB, ch <-chan T, timeout time.Duration) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed")
		}
		return v
	case <-time.After(timeout):
		var zero T
		t.Fatalf("nothing received within %v", timeout)
		return zero
	}
}

// MessageTracker records sent and received message IDs so tests can check
// delivery and ordering.
type MessageTracker struct {
	mu       sync.Mutex
	sent     []string
	received []string
}

// NewMessageTracker creates an empty tracker.
func NewMessageTracker() *MessageTracker {
	return &MessageTracker{}
}

// MarkSent records id as sent.
func (mt *MessageTracker) MarkSent(id string) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.sent = append(mt.sent, id)
}

// MarkReceived records id as received.
func (mt *MessageTracker) MarkReceived(id string) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.received = append(mt.received, id)
}

// Received returns how many messages were received so far.
func (mt *MessageTracker) Received() int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return len(mt.received)
}

// VerifyDelivery fails t unless every sent message was received.
func (mt *MessageTracker) VerifyDelivery(t testing.TB) {
	t.Helper()
	mt.mu.Lock()
	defer mt.mu.Unlock()

	got := make(map[string]bool, len(mt.received))
	for _, id := range mt.received {
		got[id] = true
	}
	for _, id := range mt.sent {
		if !got[id] {
			t.Errorf("message %s was sent but not received", id)
		}
	}
}

// VerifyOrder fails t unless messages were received exactly in the order
// they were sent.
func (mt *MessageTracker) VerifyOrder(t testing.TB) {
	t.Helper()
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if len(mt.sent) != len(mt.received) {
		t.Errorf("delivery mismatch: sent %d, received %d", len(mt.sent), len(mt.received))
		return
	}
	for i := range mt.sent {
		if mt.sent[i] != mt.received[i] {
			t.Errorf("message %d out of order: sent %s, received %s", i, mt.sent[i], mt.received[i])
			return
		}
	}
}
