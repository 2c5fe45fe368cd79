// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"errors"
	"math"
	"net"
	"net/netip"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndPointData(t *testing.T) {
	ap := netip.MustParseAddrPort("192.168.1.20:9000")
	ep, err := NewEndPointData(ap)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xC0A80114), ep.Address)
	assert.Equal(t, uint16(9000), ep.Port)
	assert.Equal(t, ap, ep.AddrPort())

	raw, err := ep.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, raw, EndPointDataSize)

	var got EndPointData
	require.NoError(t, got.UnmarshalBinary(raw))
	assert.Equal(t, ep, got)

	assert.ErrorIs(t, got.UnmarshalBinary(raw[:3]), ErrShortBuffer)
}

func TestEndPointDataFamilies(t *testing.T) {
	mapped := netip.AddrPortFrom(netip.MustParseAddr("::ffff:10.0.0.1"), 80)
	ep, err := NewEndPointData(mapped)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:80", ep.String())

	_, err = NewEndPointData(netip.MustParseAddrPort("[fe80::1]:80"))
	assert.ErrorIs(t, err, ErrUnsupportedFamily)

	ep, err = EndPointFromNet(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5000", ep.String())

	_, err = EndPointFromNet(&net.UnixAddr{Name: "/tmp/x", Net: "unix"})
	assert.ErrorIs(t, err, ErrUnsupportedFamily)

	assert.True(t, EndPointData{Port: 1}.IsUnspecified())
}

func TestVersionRoundTrip(t *testing.T) {
	for _, v := range []Version{
		{},
		{1, 2, 3, 4},
		{math.MaxUint16, math.MaxUint16, math.MaxUint16, math.MaxUint16},
		{7, 0, 65535, 1},
	} {
		d, err := NewVersionData(v)
		require.NoError(t, err, v)
		raw, err := d.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, raw, VersionDataSize)

		var got VersionData
		require.NoError(t, got.UnmarshalBinary(raw))
		assert.Equal(t, v, got.Version())
	}
}

func TestVersionOutOfRange(t *testing.T) {
	tests := []struct {
		v     Version
		field string
	}{
		{Version{Major: 65536}, "major"},
		{Version{Minor: 70000}, "minor"},
		{Version{Build: -1}, "build"},
		{Version{Revision: math.MaxInt32}, "revision"},
	}
	for _, tt := range tests {
		_, err := NewVersionData(tt.v)
		var rerr *VersionRangeError
		require.True(t, errors.As(err, &rerr), "%v", tt.v)
		assert.Equal(t, tt.field, rerr.Field)
		assert.Contains(t, err.Error(), tt.field)
	}
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("3.1")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 3, Minor: 1}, v)

	v, err = ParseVersion("1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", v.String())

	for _, bad := range []string{"", "1.2.3.4.5", "a.b", "1..2"} {
		_, err := ParseVersion(bad)
		assert.Error(t, err, bad)
	}
}

func TestFixedStringRoundTrip(t *testing.T) {
	for _, s := range []string{
		"Cam",
		"Face Capture",
		"héllo wörld",
		"日本語のカメラ",
		"🎥 rig",
		strings.Repeat("x", FixedStringCapacity),
	} {
		fs, err := NewFixedString(s)
		require.NoError(t, err, s)

		raw, err := fs.AppendBinary(nil)
		require.NoError(t, err)
		require.Len(t, raw, FixedStringSize)

		var got FixedString
		require.NoError(t, got.UnmarshalBinary(raw))
		assert.Equal(t, s, got.String())
	}
}

func TestFixedStringRejects(t *testing.T) {
	_, err := NewFixedString("")
	assert.ErrorIs(t, err, ErrEmptyString)

	_, err = NewFixedString("a\x00b")
	assert.ErrorIs(t, err, ErrInvalidString)

	_, err = NewFixedString(string([]byte{0xff, 0xfe}))
	assert.ErrorIs(t, err, ErrInvalidString)

	var cerr *CapacityError
	_, err = NewFixedString(strings.Repeat("x", FixedStringCapacity+1))
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, FixedStringCapacity+1, cerr.Units)

	// Each emoji is a surrogate pair, so 17 of them need 34 code units.
	_, err = NewFixedString(strings.Repeat("🎥", 17))
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 34, cerr.Units)
}

func TestServerData(t *testing.T) {
	id := uuid.New()
	sd, err := NewServerData("Cam", "Stage A", id, Version{Major: 2, Minor: 1})
	require.NoError(t, err)

	raw, err := sd.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, raw, ServerDataSize)

	var got ServerData
	require.NoError(t, got.UnmarshalBinary(raw))
	assert.Equal(t, "Cam", got.ProductName())
	assert.Equal(t, "Stage A", got.InstanceName())
	assert.Equal(t, id, got.ID())
	assert.Equal(t, Version{Major: 2, Minor: 1}, got.Version())

	_, err = NewServerData("", "Stage A", id, Version{})
	assert.ErrorIs(t, err, ErrEmptyString)
	_, err = NewServerData("Cam", strings.Repeat("n", 40), id, Version{})
	assert.Error(t, err)
	_, err = NewServerData("Cam", "Stage A", id, Version{Major: 1 << 16})
	assert.Error(t, err)

	assert.ErrorIs(t, got.UnmarshalBinary(raw[:ServerDataSize-1]), ErrShortBuffer)
}

func TestRequestAndShutdownData(t *testing.T) {
	req, err := NewRequestData("Cam")
	require.NoError(t, err)
	raw, err := req.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, raw, RequestDataSize)

	var gotReq RequestData
	require.NoError(t, gotReq.UnmarshalBinary(raw))
	assert.Equal(t, "Cam", gotReq.ProductName())

	_, err = NewRequestData("")
	assert.ErrorIs(t, err, ErrEmptyString)

	id := uuid.New()
	sd, err := NewShutdownData(id)
	require.NoError(t, err)
	raw, err = sd.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, raw, ShutdownDataSize)

	var gotSd ShutdownData
	require.NoError(t, gotSd.UnmarshalBinary(raw))
	assert.Equal(t, id, gotSd.ID())

	_, err = NewShutdownData(uuid.Nil)
	assert.Error(t, err)
}
