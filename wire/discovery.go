// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"

	"github.com/google/uuid"
)

// Encoded sizes of the discovery records.
const (
	RequestDataSize  = FixedStringSize
	ServerDataSize   = 2*FixedStringSize + 16 + VersionDataSize
	ShutdownDataSize = 16
)

// RequestData asks servers of a product to announce themselves.
type RequestData struct {
	productName FixedString
}

// NewRequestData builds a request for product.
func NewRequestData(product string) (RequestData, error) {
	name, err := NewFixedString(product)
	if err != nil {
		return RequestData{}, fmt.Errorf("wire: invalid product name: %w", err)
	}
	return RequestData{productName: name}, nil
}

// ProductName returns the requested product.
func (r RequestData) ProductName() string { return r.productName.String() }

// AppendBinary appends the encoded request to b.
func (r RequestData) AppendBinary(b []byte) ([]byte, error) {
	return r.productName.AppendBinary(b)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (r RequestData) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, RequestDataSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *RequestData) UnmarshalBinary(data []byte) error {
	if len(data) < RequestDataSize {
		return fmt.Errorf("%w: request needs %d bytes, got %d", ErrShortBuffer, RequestDataSize, len(data))
	}
	return r.productName.UnmarshalBinary(data)
}

// ServerData describes a server instance.
type ServerData struct {
	productName  FixedString
	instanceName FixedString
	id           uuid.UUID
	version      VersionData
}

// NewServerData builds a server description. Both names are required.
func NewServerData(product, instance string, id uuid.UUID, version Version) (ServerData, error) {
	productName, err := NewFixedString(product)
	if err != nil {
		return ServerData{}, fmt.Errorf("wire: invalid product name: %w", err)
	}
	instanceName, err := NewFixedString(instance)
	if err != nil {
		return ServerData{}, fmt.Errorf("wire: invalid instance name: %w", err)
	}
	v, err := NewVersionData(version)
	if err != nil {
		return ServerData{}, err
	}
	return ServerData{
		productName:  productName,
		instanceName: instanceName,
		id:           id,
		version:      v,
	}, nil
}

func (s ServerData) ProductName() string  { return s.productName.String() }
func (s ServerData) InstanceName() string { return s.instanceName.String() }
func (s ServerData) ID() uuid.UUID        { return s.id }
func (s ServerData) Version() Version     { return s.version.Version() }

// AppendBinary appends the encoded server data to b.
func (s ServerData) AppendBinary(b []byte) ([]byte, error) {
	b, _ = s.productName.AppendBinary(b)
	b, _ = s.instanceName.AppendBinary(b)
	b = append(b, s.id[:]...)
	return s.version.AppendBinary(b)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s ServerData) MarshalBinary() ([]byte, error) {
	return s.AppendBinary(make([]byte, 0, ServerDataSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *ServerData) UnmarshalBinary(data []byte) error {
	if len(data) < ServerDataSize {
		return fmt.Errorf("%w: server data needs %d bytes, got %d", ErrShortBuffer, ServerDataSize, len(data))
	}
	off := 0
	if err := s.productName.UnmarshalBinary(data[off:]); err != nil {
		return err
	}
	off += FixedStringSize
	if err := s.instanceName.UnmarshalBinary(data[off:]); err != nil {
		return err
	}
	off += FixedStringSize
	copy(s.id[:], data[off:off+16])
	off += 16
	return s.version.UnmarshalBinary(data[off:])
}

// ShutdownData announces that a server is leaving.
type ShutdownData struct {
	id uuid.UUID
}

// NewShutdownData builds a shutdown notice for id. The nil UUID is
// rejected since it cannot identify a server.
func NewShutdownData(id uuid.UUID) (ShutdownData, error) {
	if id == uuid.Nil {
		return ShutdownData{}, fmt.Errorf("wire: shutdown notice needs a non-nil id")
	}
	return ShutdownData{id: id}, nil
}

func (s ShutdownData) ID() uuid.UUID { return s.id }

// AppendBinary appends the encoded notice to b.
func (s ShutdownData) AppendBinary(b []byte) ([]byte, error) {
	return append(b, s.id[:]...), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s ShutdownData) MarshalBinary() ([]byte, error) {
	return s.AppendBinary(make([]byte, 0, ShutdownDataSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *ShutdownData) UnmarshalBinary(data []byte) error {
	if len(data) < ShutdownDataSize {
		return fmt.Errorf("%w: shutdown needs %d bytes, got %d", ErrShortBuffer, ShutdownDataSize, len(data))
	}
	copy(s.id[:], data[:16])
	return nil
}
