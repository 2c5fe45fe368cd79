// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// VersionDataSize is the encoded size of a VersionData.
const VersionDataSize = 8

// Version is a native four-component version number.
type Version struct {
	Major    int
	Minor    int
	Build    int
	Revision int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// ParseVersion parses "major[.minor[.build[.revision]]]". Missing trailing
// components are zero.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) == 0 || len(parts) > 4 || parts[0] == "" {
		return Version{}, fmt.Errorf("wire: invalid version %q", s)
	}
	var fields [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("wire: invalid version %q: %w", s, err)
		}
		fields[i] = n
	}
	return Version{Major: fields[0], Minor: fields[1], Build: fields[2], Revision: fields[3]}, nil
}

// VersionRangeError reports a version component that does not fit the
// 16-bit wire field.
type VersionRangeError struct {
	Field string
	Value int
}

func (e *VersionRangeError) Error() string {
	return fmt.Sprintf("wire: version %s component %d out of range [0, %d]", e.Field, e.Value, math.MaxUint16)
}

// VersionData is the wire form of a Version.
type VersionData struct {
	Major    uint16
	Minor    uint16
	Build    uint16
	Revision uint16
}

// NewVersionData converts v, failing with a *VersionRangeError naming the
// first component outside [0, 65535].
func NewVersionData(v Version) (VersionData, error) {
	fields := []struct {
		name  string
		value int
	}{
		{"major", v.Major},
		{"minor", v.Minor},
		{"build", v.Build},
		{"revision", v.Revision},
	}
	for _, f := range fields {
		if f.value < 0 || f.value > math.MaxUint16 {
			return VersionData{}, &VersionRangeError{Field: f.name, Value: f.value}
		}
	}
	return VersionData{
		Major:    uint16(v.Major),
		Minor:    uint16(v.Minor),
		Build:    uint16(v.Build),
		Revision: uint16(v.Revision),
	}, nil
}

// Version returns the native version.
func (d VersionData) Version() Version {
	return Version{
		Major:    int(d.Major),
		Minor:    int(d.Minor),
		Build:    int(d.Build),
		Revision: int(d.Revision),
	}
}

func (d VersionData) String() string {
	return d.Version().String()
}

// AppendBinary appends the encoded version to b.
func (d VersionData) AppendBinary(b []byte) ([]byte, error) {
	b = order.AppendUint16(b, d.Major)
	b = order.AppendUint16(b, d.Minor)
	b = order.AppendUint16(b, d.Build)
	b = order.AppendUint16(b, d.Revision)
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (d VersionData) MarshalBinary() ([]byte, error) {
	return d.AppendBinary(make([]byte, 0, VersionDataSize))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (d *VersionData) UnmarshalBinary(data []byte) error {
	if len(data) < VersionDataSize {
		return fmt.Errorf("%w: version needs %d bytes, got %d", ErrShortBuffer, VersionDataSize, len(data))
	}
	d.Major = order.Uint16(data[0:2])
	d.Minor = order.Uint16(data[2:4])
	d.Build = order.Uint16(data[4:6])
	d.Revision = order.Uint16(data[6:8])
	return nil
}
