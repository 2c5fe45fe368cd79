// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package livelink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// packetType tags every frame on the stream and every datagram.
type packetType byte

const (
	packetInit       packetType = 1 // handshake, stream only
	packetMessage    packetType = 2 // application payload
	packetHeartbeat  packetType = 3 // keep-alive, stream only
	packetDisconnect packetType = 4 // graceful shutdown, stream only
)

func (p packetType) String() string {
	switch p {
	case packetInit:
		return "init"
	case packetMessage:
		return "message"
	case packetHeartbeat:
		return "heartbeat"
	case packetDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("packet(%d)", byte(p))
	}
}

const (
	// streamHeaderSize is the u32 length plus the packet type byte.
	streamHeaderSize = 5

	// datagramHeaderSize is the packet type byte plus the sender ID.
	datagramHeaderSize = 1 + 16

	// MaxFrameSize bounds a single reliable-channel frame.
	MaxFrameSize = 16 << 20

	// MaxDatagramPayload bounds an unreliable-channel payload so that a
	// datagram fits the IPv4 UDP limit.
	MaxDatagramPayload = 65507 - datagramHeaderSize
)

var (
	errOverflow   = errors.New("livelink: frame exceeds maximum size")
	errBadFrame   = errors.New("livelink: malformed frame")
	errBadPacket  = errors.New("livelink: unexpected packet type")
	errShortDgram = errors.New("livelink: short datagram")
)

var le = binary.LittleEndian

// appendFrame appends a stream frame: [u32 length][u8 type][payload],
// where length covers the type byte and the payload.
func appendFrame(dst []byte, typ packetType, payload []byte) ([]byte, error) {
	if len(payload)+1 > MaxFrameSize {
		return dst, errOverflow
	}
	dst = le.AppendUint32(dst, uint32(len(payload)+1))
	dst = append(dst, byte(typ))
	return append(dst, payload...), nil
}

// readFrameHeader reads a frame header and returns the packet type and
// payload length.
func readFrameHeader(r io.Reader, hdr *[streamHeaderSize]byte) (packetType, int, error) {
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, err
	}
	size := le.Uint32(hdr[0:4])
	if size == 0 {
		return 0, 0, errBadFrame
	}
	if size > MaxFrameSize {
		return 0, 0, errOverflow
	}
	return packetType(hdr[4]), int(size - 1), nil
}

// appendDatagram appends a datagram: [u8 type][16-byte sender][payload].
func appendDatagram(dst []byte, typ packetType, sender uuid.UUID, payload []byte) ([]byte, error) {
	if len(payload) > MaxDatagramPayload {
		return dst, errOverflow
	}
	dst = append(dst, byte(typ))
	dst = append(dst, sender[:]...)
	return append(dst, payload...), nil
}

// parseDatagram splits a datagram into its parts. The payload aliases b.
func parseDatagram(b []byte) (packetType, uuid.UUID, []byte, error) {
	var id uuid.UUID
	if len(b) < datagramHeaderSize {
		return 0, id, nil, errShortDgram
	}
	copy(id[:], b[1:datagramHeaderSize])
	return packetType(b[0]), id, b[datagramHeaderSize:], nil
}
