// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package livelink

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/destiny/livelink/internal/telemetry"
)

const (
	// DefaultLargeMessageThreshold is the buffer capacity above which a
	// released message's buffer is freed instead of kept.
	DefaultLargeMessageThreshold = 64 * 1024

	// DefaultMaxIdle bounds the number of idle messages kept by a pool.
	DefaultMaxIdle = 1024
)

// PoolOptions configures a Pool.
type PoolOptions struct {
	LargeMessageThreshold int // free buffers above this capacity on release
	MaxIdle               int // idle messages kept for reuse
}

// DefaultPoolOptions returns the options used by DefaultPool.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		LargeMessageThreshold: DefaultLargeMessageThreshold,
		MaxIdle:               DefaultMaxIdle,
	}
}

// PoolStats is a snapshot of pool activity.
type PoolStats struct {
	Hits   uint64 // acquisitions served from the idle list
	Misses uint64 // acquisitions that allocated
	Frees  uint64 // releases that dropped an oversized buffer
	Idle   int    // messages waiting for reuse
	Active int    // messages currently borrowed
}

// Pool recycles Message values so the steady-state send and receive paths
// do not allocate. Acquire and Release never block on I/O; the idle list is
// guarded by a mutex.
type Pool struct {
	mu        sync.Mutex
	idle      []*Message
	threshold int
	maxIdle   int
	stats     PoolStats
}

// NewPool creates a pool. Zero fields in opts take their defaults.
func NewPool(opts PoolOptions) *Pool {
	if opts.LargeMessageThreshold <= 0 {
		opts.LargeMessageThreshold = DefaultLargeMessageThreshold
	}
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = DefaultMaxIdle
	}
	return &Pool{
		idle:      make([]*Message, 0, min(opts.MaxIdle, 64)),
		threshold: opts.LargeMessageThreshold,
		maxIdle:   opts.MaxIdle,
	}
}

var defaultPool struct {
	once sync.Once
	pool *Pool
}

// DefaultPool returns the process-wide pool, creating it on first use.
// It is never torn down.
func DefaultPool() *Pool {
	defaultPool.once.Do(func() {
		defaultPool.pool = NewPool(DefaultPoolOptions())
	})
	return defaultPool.pool
}

// Acquire returns a message addressed to remote on channel. A positive
// sizeHint makes sure the payload buffer can hold that many bytes without
// growing; zero means no preallocation.
func (p *Pool) Acquire(remote Remote, channel ChannelType, sizeHint int) *Message {
	if !channel.Valid() {
		panic(fmt.Sprintf("livelink: invalid %v", channel))
	}

	var m *Message
	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		m = p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.stats.Hits++
	} else {
		p.stats.Misses++
	}
	p.stats.Active++
	p.mu.Unlock()

	if m == nil {
		m = &Message{pool: p}
		telemetry.PoolAcquires.WithLabelValues("miss").Inc()
	} else {
		telemetry.PoolAcquires.WithLabelValues("hit").Inc()
	}

	m.remote = remote
	m.channel = channel
	if sizeHint > 0 {
		m.data.Grow(sizeHint)
	}
	m.released.Store(false)
	return m
}

// Release hands m back to the pool. Releasing a message twice, or one
// that belongs to another pool, panics.
func (p *Pool) Release(m *Message) {
	if m.pool != p {
		panic("livelink: message released to a foreign pool")
	}
	if !m.released.CompareAndSwap(false, true) {
		panic(ErrUseAfterRelease)
	}

	m.remote = Remote{}
	m.channel = ReliableOrdered

	freed := m.data.Cap() > p.threshold
	if freed {
		m.data = bytes.Buffer{}
	} else {
		m.data.Reset()
	}

	p.mu.Lock()
	p.stats.Active--
	if freed {
		p.stats.Frees++
	}
	if len(p.idle) < p.maxIdle {
		p.idle = append(p.idle, m)
	}
	p.mu.Unlock()

	if freed {
		telemetry.PoolFrees.Inc()
	}
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Idle = len(p.idle)
	return s
}
