// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package livelink

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/destiny/livelink/internal/testutil"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// flakyConn cuts the first fails writes short with a timeout error and
// fails every later write with err, when set.
type flakyConn struct {
	net.Conn

	mu     sync.Mutex
	fails  int
	err    error
	writes int
}

func (c *flakyConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	c.writes++
	fails, err := c.fails, c.err
	if fails > 0 {
		c.fails--
	}
	c.mu.Unlock()

	switch {
	case fails > 0:
		n, werr := c.Conn.Write(b[:len(b)/2])
		if werr != nil {
			return n, werr
		}
		return n, timeoutError{}
	case err != nil:
		return 0, err
	}
	return c.Conn.Write(b)
}

func (c *flakyConn) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func newPipeSession(t *testing.T, n *Node, fails int, err error) (*Session, *flakyConn, net.Conn) {
	t.Helper()
	local, peer := net.Pipe()
	conn := &flakyConn{Conn: local, fails: fails, err: err}
	t.Cleanup(func() {
		local.Close()
		peer.Close()
	})
	return newSession(n, conn, true), conn, peer
}

func TestWriteRetry(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := NewNode(WithLogger(DevNullLogger), WithWriteRetry(2, time.Millisecond))
	defer n.Close()

	payload := bytes.Repeat([]byte("capture"), 300)
	frame, err := appendFrame(nil, packetMessage, payload)
	require.NoError(t, err)

	t.Run("timeout_resumes_at_offset", func(t *testing.T) {
		s, conn, peer := newPipeSession(t, n, 2, nil)

		got := make(chan []byte, 1)
		go func() {
			var hdr [streamHeaderSize]byte
			typ, size, err := readFrameHeader(peer, &hdr)
			if err != nil || typ != packetMessage {
				close(got)
				return
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(peer, body); err != nil {
				close(got)
				return
			}
			got <- body
		}()

		require.NoError(t, s.writeFull(frame))
		assert.Equal(t, payload, testutil.Receive(t, got, waitTimeout))
		assert.Equal(t, 3, conn.Writes())
	})

	t.Run("retries_are_bounded", func(t *testing.T) {
		s, conn, peer := newPipeSession(t, n, 5, nil)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = io.Copy(io.Discard, peer)
		}()

		err := s.writeFull(frame)
		var ne net.Error
		require.ErrorAs(t, err, &ne)
		assert.True(t, ne.Timeout())
		assert.Equal(t, 3, conn.Writes())

		conn.Close()
		wg.Wait()
	})

	t.Run("other_errors_end_the_session", func(t *testing.T) {
		pool := NewPool(PoolOptions{})
		errLinkDown := errors.New("link down")
		s, conn, _ := newPipeSession(t, n, 0, errLinkDown)
		s.state.Store(int32(StateConnected))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.writeLoop()
		}()

		m := pool.Acquire(Remote{}, ReliableOrdered, len(payload))
		_, _ = m.Write(payload)
		require.NoError(t, s.enqueue(outbound{typ: packetMessage, msg: m}))

		select {
		case <-s.Done():
		case <-time.After(waitTimeout):
			t.Fatalf("session still open after a failed write")
		}
		wg.Wait()

		status, cause := s.Status()
		assert.Equal(t, Error, status)
		assert.ErrorIs(t, cause, errLinkDown)
		assert.Equal(t, StateDisconnected, s.State())
		assert.Equal(t, 1, conn.Writes())
		assert.Zero(t, pool.Stats().Active)
	})
}
