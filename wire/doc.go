// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wire defines the fixed-size binary structures exchanged between
// livelink peers: IPv4 end points, four-field version numbers and the
// discovery records (request, server advertisement, shutdown notice).
//
// Every structure has an explicit little-endian layout that does not depend
// on host alignment, so values can be copied onto the wire as raw bytes.
// Conversions from native values validate ranges and fail instead of
// clamping or truncating; conversions back to native values always succeed.
package wire

import (
	"encoding/binary"
	"errors"
)

var order = binary.LittleEndian

var (
	// ErrShortBuffer is returned when decoding from fewer bytes than the
	// structure's fixed size.
	ErrShortBuffer = errors.New("wire: short buffer")

	// ErrUnsupportedFamily is returned for end points that are not IPv4.
	ErrUnsupportedFamily = errors.New("wire: unsupported address family")
)
