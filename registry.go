// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package livelink

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// registryEntry is a remote plus the last time it was upserted.
type registryEntry struct {
	remote   Remote
	lastSeen time.Time
}

// Registry is the authoritative map from peer ID to channel addresses.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*registryEntry
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[uuid.UUID]*registryEntry),
		now:     time.Now,
	}
}

// Resolve returns the remote registered for id.
// Resolving uuid.Nil yields Broadcast.
func (r *Registry) Resolve(id uuid.UUID) (Remote, bool) {
	if id == uuid.Nil {
		return Broadcast, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Remote{}, false
	}
	return e.remote, true
}

// ResolveUDP returns the remote whose unreliable-channel address is addr.
func (r *Registry) ResolveUDP(addr netip.AddrPort) (Remote, bool) {
	addr = netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.remote.UDP == addr {
			return e.remote, true
		}
	}
	return Remote{}, false
}

// Upsert registers id with the given addresses, replacing the addresses
// of an existing entry and refreshing its last-seen time.
// Upserting uuid.Nil is a no-op that returns Broadcast.
func (r *Registry) Upsert(id uuid.UUID, tcp, udp netip.AddrPort) Remote {
	if id == uuid.Nil {
		return Broadcast
	}
	remote := NewRemote(id, tcp, udp)

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.remote = remote
		e.lastSeen = r.now()
		return remote
	}
	r.entries[id] = &registryEntry{remote: remote, lastSeen: r.now()}
	return remote
}

// Remove deletes id and reports whether it was registered.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// LastSeen returns the last time id was upserted.
func (r *Registry) LastSeen(id uuid.UUID) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return e.lastSeen, true
}

// Snapshot returns a copy of all registered remotes, ordered by ID.
func (r *Registry) Snapshot() []Remote {
	r.mu.RLock()
	out := make([]Remote, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.remote)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Len returns the number of registered remotes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
