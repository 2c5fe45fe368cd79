// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package testutil

import (
	"testing"
	"time"
)

func TestPortPair(t *testing.T) {
	a, b := PortPair(t)
	if a == b || a == 0 || b == 0 {
		t.Fatalf("invalid port pair %d/%d", a, b)
	}
	if got := LoopbackAddrPort(a).String(); got != Loopback(a) {
		t.Fatalf("got %q, want %q", got, Loopback(a))
	}
}

func TestWaitFor(t *testing.T) {
	start := time.Now()
	ok := WaitFor(time.Second, func() bool { return time.Since(start) > 20*time.Millisecond })
	if !ok {
		t.Fatalf("condition never held")
	}
	if WaitFor(20*time.Millisecond, func() bool { return false }) {
		t.Fatalf("false condition reported as held")
	}
}

func TestMessageTracker(t *testing.T) {
	mt := NewMessageTracker()
	for _, id := range []string{"a", "b", "c"} {
		mt.MarkSent(id)
		mt.MarkReceived(id)
	}
	mt.VerifyDelivery(t)
	mt.VerifyOrder(t)
	if got := mt.Received(); got != 3 {
		t.Fatalf("got %d received, want 3", got)
	}
}
