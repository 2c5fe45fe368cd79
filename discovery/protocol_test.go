// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package discovery

import (
	"net/netip"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/destiny/livelink/wire"
)

func TestPacket(t *testing.T) {
	data, err := wire.NewServerData("Cam", "Stage Left", uuid.New(), wire.Version{Major: 1, Minor: 2})
	require.NoError(t, err)
	tcp, err := wire.NewEndPointData(netip.MustParseAddrPort("10.0.0.5:7000"))
	require.NoError(t, err)
	ad := advertisement{Server: data, TCP: tcp, UDP: wire.EndPointData{Port: 7001}}

	t.Run("advertisement", func(t *testing.T) {
		b, err := appendPacket(nil, kindAdvertisement, ad)
		require.NoError(t, err)
		require.Len(t, b, maxPacketSize)
		assert.Equal(t, "LCD", string(b[:3]))

		k, payload, err := parsePacket(b)
		require.NoError(t, err)
		assert.Equal(t, kindAdvertisement, k)

		var got advertisement
		require.NoError(t, got.UnmarshalBinary(payload))
		assert.Equal(t, ad, got)
		assert.Equal(t, "Stage Left", got.Server.InstanceName())
		assert.True(t, got.UDP.IsUnspecified())
	})

	t.Run("request", func(t *testing.T) {
		req, err := wire.NewRequestData("Cam")
		require.NoError(t, err)
		b, err := appendPacket(nil, kindRequest, req)
		require.NoError(t, err)

		k, payload, err := parsePacket(b)
		require.NoError(t, err)
		assert.Equal(t, kindRequest, k)
		var got wire.RequestData
		require.NoError(t, got.UnmarshalBinary(payload))
		assert.Equal(t, "Cam", got.ProductName())
	})

	t.Run("rejects_garbage", func(t *testing.T) {
		b, err := appendPacket(nil, kindAdvertisement, ad)
		require.NoError(t, err)

		_, _, err = parsePacket(b[:4])
		assert.ErrorIs(t, err, errShort)

		bad := append([]byte(nil), b...)
		bad[0] = 'Z'
		_, _, err = parsePacket(bad)
		assert.ErrorIs(t, err, errBadMagic)

		bad = append([]byte(nil), b...)
		bad[3] = ProtocolVersion + 1
		_, _, err = parsePacket(bad)
		assert.ErrorIs(t, err, errBadVersion)

		bad = append([]byte(nil), b...)
		bad[4] = 9
		_, _, err = parsePacket(bad)
		assert.ErrorIs(t, err, errBadKind)

		_, _, err = parsePacket(b[:len(b)-1])
		assert.ErrorIs(t, err, errShort)
	})

	t.Run("resolve_falls_back_to_source", func(t *testing.T) {
		src := netip.MustParseAddr("192.168.0.9")
		assert.Equal(t, netip.MustParseAddrPort("192.168.0.9:7001"), resolve(ad.UDP, src))
		assert.Equal(t, netip.MustParseAddrPort("10.0.0.5:7000"), resolve(ad.TCP, src))
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("Cam")
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultInterval, cfg.Interval)
	assert.Equal(t, DefaultExpiry, cfg.Expiry)

	cfg.setDefaults()
	assert.Equal(t, cfg.Port, cfg.BroadcastPort)
	assert.NotNil(t, cfg.Logger)
}
