// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"net"
	"net/netip"
)

// EndPointDataSize is the encoded size of an EndPointData.
const EndPointDataSize = 6

// EndPointData is the wire form of an IPv4 end point: the address as a
// 32-bit integer in host order (a.b.c.d is a<<24|b<<16|c<<8|d) and a
// 16-bit port.
type EndPointData struct {
	Address uint32
	Port    uint16
}

// NewEndPointData converts a native end point. IPv4-mapped IPv6 addresses
// are unmapped; any other non-IPv4 address fails with ErrUnsupportedFamily.
func NewEndPointData(ap netip.AddrPort) (EndPointData, error) {
	addr := ap.Addr().Unmap()
	if !addr.Is4() {
		return EndPointData{}, fmt.Errorf("%w: %v", ErrUnsupportedFamily, ap)
	}
	b := addr.As4()
	return EndPointData{
		Address: uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]),
		Port:    ap.Port(),
	}, nil
}

// EndPointFromNet converts a *net.TCPAddr or *net.UDPAddr.
func EndPointFromNet(addr net.Addr) (EndPointData, error) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return NewEndPointData(a.AddrPort())
	case *net.UDPAddr:
		return NewEndPointData(a.AddrPort())
	case nil:
		return EndPointData{}, fmt.Errorf("%w: nil address", ErrUnsupportedFamily)
	default:
		return EndPointData{}, fmt.Errorf("%w: %s", ErrUnsupportedFamily, addr.Network())
	}
}

// AddrPort returns the native end point.
func (e EndPointData) AddrPort() netip.AddrPort {
	addr := netip.AddrFrom4([4]byte{
		byte(e.Address >> 24),
		byte(e.Address >> 16),
		byte(e.Address >> 8),
		byte(e.Address),
	})
	return netip.AddrPortFrom(addr, e.Port)
}

// IsUnspecified reports whether the address is 0.0.0.0.
func (e EndPointData) IsUnspecified() bool {
	return e.Address == 0
}

func (e EndPointData) String() string {
	return e.AddrPort().String()
}

// AppendBinary appends the encoded end point to b.
func (e EndPointData) AppendBinary(b []byte) ([]byte, error) {
	b = order.AppendUint32(b, e.Address)
	b = order.AppendUint16(b, e.Port)
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (e EndPointData) MarshalBinary() ([]byte, error) {
	return e.AppendBinary(make([]byte, 0, EndPointDataSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (e *EndPointData) UnmarshalBinary(data []byte) error {
	if len(data) < EndPointDataSize {
		return fmt.Errorf("%w: end point needs %d bytes, got %d", ErrShortBuffer, EndPointDataSize, len(data))
	}
	e.Address = order.Uint32(data[0:4])
	e.Port = order.Uint16(data[4:6])
	return nil
}
