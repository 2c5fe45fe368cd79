// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package livelink

import "fmt"

// ChannelType selects the delivery quality of a message.
type ChannelType uint8

const (
	// ReliableOrdered messages are delivered once, in the order they
	// were sent to a given remote.
	ReliableOrdered ChannelType = iota

	// UnreliableUnordered messages may be lost, duplicated or reordered.
	UnreliableUnordered
)

func (c ChannelType) String() string {
	switch c {
	case ReliableOrdered:
		return "reliable-ordered"
	case UnreliableUnordered:
		return "unreliable-unordered"
	default:
		return fmt.Sprintf("channel(%d)", uint8(c))
	}
}

// Valid reports whether c is one of the defined channel types.
func (c ChannelType) Valid() bool {
	return c == ReliableOrdered || c == UnreliableUnordered
}
