// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package livelink

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/destiny/livelink/wire"
)

// protocolMagic opens every init packet.
var protocolMagic = [4]byte{'L', 'L', 'N', 'K'}

// DefaultProtocolVersion is the transport protocol version advertised in
// the handshake. Peers must agree on the major component.
var DefaultProtocolVersion = wire.Version{Major: 1}

const initSize = len(protocolMagic) + wire.VersionDataSize + 16 + 2*wire.EndPointDataSize

var (
	// ErrIncompatibleVersion is the cause recorded when a peer speaks
	// another major protocol version.
	ErrIncompatibleVersion = errors.New("livelink: incompatible protocol version")

	errBadMagic = errors.New("livelink: bad protocol magic")
	errNilID    = errors.New("livelink: peer sent nil identifier")
	errSelfID   = errors.New("livelink: peer uses our own identifier")
)

// initPacket is exchanged by both sides before any application message.
type initPacket struct {
	Version wire.VersionData
	ID      uuid.UUID
	TCP     wire.EndPointData // advertised reliable-channel end point
	UDP     wire.EndPointData // advertised unreliable-channel end point
}

func (p initPacket) marshal() []byte {
	b := make([]byte, 0, initSize)
	b = append(b, protocolMagic[:]...)
	b, _ = p.Version.AppendBinary(b)
	b = append(b, p.ID[:]...)
	b, _ = p.TCP.AppendBinary(b)
	b, _ = p.UDP.AppendBinary(b)
	return b
}

func (p *initPacket) unmarshal(b []byte) error {
	if len(b) != initSize {
		return fmt.Errorf("%w: init packet of %d bytes", errBadFrame, len(b))
	}
	if !bytes.Equal(b[:4], protocolMagic[:]) {
		return errBadMagic
	}
	off := 4
	if err := p.Version.UnmarshalBinary(b[off:]); err != nil {
		return err
	}
	off += wire.VersionDataSize
	copy(p.ID[:], b[off:off+16])
	off += 16
	if err := p.TCP.UnmarshalBinary(b[off:]); err != nil {
		return err
	}
	off += wire.EndPointDataSize
	return p.UDP.UnmarshalBinary(b[off:])
}

// compatible reports whether two protocol versions can talk to each other.
func compatible(local, peer wire.Version) bool {
	return local.Major == peer.Major
}
