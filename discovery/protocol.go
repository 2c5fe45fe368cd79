// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package discovery lets clients find livelink servers on a LAN without
// prior address knowledge.
//
// A Server broadcasts an advertisement on a well-known UDP port at a fixed
// interval, answers matching requests immediately and announces its own
// shutdown. A Client listens for those packets and keeps a
// livelink.Registry up to date.
//
// Every packet starts with the 3-byte magic "LCD", a protocol version
// byte and a kind byte, followed by a fixed-size payload:
//
//	Request        wire.RequestData
//	Advertisement  wire.ServerData, TCP wire.EndPointData, UDP wire.EndPointData
//	Shutdown       wire.ShutdownData
package discovery

import (
	"errors"
	"fmt"
	"time"

	"github.com/destiny/livelink"
	"github.com/destiny/livelink/wire"
)

const (
	// DefaultPort is the well-known discovery port.
	DefaultPort = 14045

	// DefaultInterval is how often servers advertise themselves.
	DefaultInterval = 1 * time.Second

	// DefaultExpiry is how long a client keeps a server it no longer hears.
	DefaultExpiry = 5 * time.Second

	// ProtocolVersion is carried in every discovery packet.
	ProtocolVersion = 1

	headerSize           = 5
	advertisementSize    = wire.ServerDataSize + 2*wire.EndPointDataSize
	maxPacketSize        = headerSize + advertisementSize
	protocolMagic        = "LCD"
	defaultBroadcastAddr = "255.255.255.255"
	defaultListenAddr    = "0.0.0.0"
	readBufferSize       = 2048
)

var (
	errBadMagic   = errors.New("discovery: bad packet magic")
	errBadVersion = errors.New("discovery: unsupported protocol version")
	errBadKind    = errors.New("discovery: unknown packet kind")
	errShort      = errors.New("discovery: short packet")
)

type kind byte

const (
	kindRequest       kind = 1
	kindAdvertisement kind = 2
	kindShutdown      kind = 3
)

func (k kind) String() string {
	switch k {
	case kindRequest:
		return "request"
	case kindAdvertisement:
		return "advertisement"
	case kindShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

func (k kind) payloadSize() int {
	switch k {
	case kindRequest:
		return wire.RequestDataSize
	case kindAdvertisement:
		return advertisementSize
	case kindShutdown:
		return wire.ShutdownDataSize
	default:
		return -1
	}
}

// Config holds the externally visible discovery tunables.
type Config struct {
	// Port is the UDP port the service listens on.
	Port int
	// BroadcastAddr is where packets are sent, usually the limited
	// broadcast address or a subnet's directed broadcast address.
	BroadcastAddr string
	// BroadcastPort is the destination port. Zero means Port.
	BroadcastPort int
	// ListenAddr is the local address to bind. Empty means all interfaces.
	ListenAddr string
	// Interval is the server's advertisement period.
	Interval time.Duration
	// Expiry is how long a client keeps a silent server.
	Expiry time.Duration
	// Product filters servers and requests by exact product name.
	Product string
	// Logger receives diagnostics. Nil means livelink.DefaultLogger.
	Logger *livelink.Logger
}

// DefaultConfig returns the configuration for product on the default port.
func DefaultConfig(product string) Config {
	return Config{
		Port:          DefaultPort,
		BroadcastAddr: defaultBroadcastAddr,
		ListenAddr:    defaultListenAddr,
		Interval:      DefaultInterval,
		Expiry:        DefaultExpiry,
		Product:       product,
	}
}

func (c *Config) setDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.BroadcastPort == 0 {
		c.BroadcastPort = c.Port
	}
	if c.BroadcastAddr == "" {
		c.BroadcastAddr = defaultBroadcastAddr
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Expiry <= 0 {
		c.Expiry = DefaultExpiry
	}
	if c.Logger == nil {
		c.Logger = livelink.DefaultLogger
	}
}

// advertisement is the payload of kindAdvertisement.
type advertisement struct {
	Server wire.ServerData
	TCP    wire.EndPointData
	UDP    wire.EndPointData
}

func (a advertisement) AppendBinary(b []byte) ([]byte, error) {
	b, err := a.Server.AppendBinary(b)
	if err != nil {
		return b, err
	}
	if b, err = a.TCP.AppendBinary(b); err != nil {
		return b, err
	}
	return a.UDP.AppendBinary(b)
}

func (a *advertisement) UnmarshalBinary(data []byte) error {
	if len(data) < advertisementSize {
		return errShort
	}
	if err := a.Server.UnmarshalBinary(data); err != nil {
		return err
	}
	off := wire.ServerDataSize
	if err := a.TCP.UnmarshalBinary(data[off:]); err != nil {
		return err
	}
	return a.UDP.UnmarshalBinary(data[off+wire.EndPointDataSize:])
}

type appender interface {
	AppendBinary(b []byte) ([]byte, error)
}

// appendPacket appends a complete discovery packet carrying payload.
func appendPacket(dst []byte, k kind, payload appender) ([]byte, error) {
	dst = append(dst, protocolMagic...)
	dst = append(dst, ProtocolVersion, byte(k))
	return payload.AppendBinary(dst)
}

// parsePacket validates the header and returns the kind and payload.
func parsePacket(b []byte) (kind, []byte, error) {
	if len(b) < headerSize {
		return 0, nil, errShort
	}
	if string(b[:3]) != protocolMagic {
		return 0, nil, errBadMagic
	}
	if b[3] != ProtocolVersion {
		return 0, nil, fmt.Errorf("%w: %d", errBadVersion, b[3])
	}
	k := kind(b[4])
	size := k.payloadSize()
	if size < 0 {
		return 0, nil, fmt.Errorf("%w: %d", errBadKind, b[4])
	}
	payload := b[headerSize:]
	if len(payload) < size {
		return 0, nil, fmt.Errorf("%w: %v needs %d bytes, got %d", errShort, k, size, len(payload))
	}
	return k, payload[:size], nil
}
