// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

const (
	// FixedStringCapacity is the maximum number of UTF-16 code units a
	// FixedString holds.
	FixedStringCapacity = 32

	// FixedStringSize is the encoded size of a FixedString.
	FixedStringSize = FixedStringCapacity * 2
)

var (
	// ErrEmptyString is returned when a required string is absent.
	ErrEmptyString = errors.New("wire: empty string")

	// ErrInvalidString is returned for strings that are not valid UTF-8 or
	// that contain NUL characters.
	ErrInvalidString = errors.New("wire: invalid string")
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// CapacityError reports a string that does not fit a FixedString.
type CapacityError struct {
	Value    string
	Units    int
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("wire: string %q needs %d UTF-16 code units, capacity is %d", e.Value, e.Units, e.Capacity)
}

// FixedString is a NUL-padded UTF-16LE string of FixedStringCapacity code
// units.
type FixedString struct {
	raw [FixedStringSize]byte
}

// NewFixedString encodes s. It fails if s is empty, not valid UTF-8,
// contains NUL, or needs more than FixedStringCapacity code units.
func NewFixedString(s string) (FixedString, error) {
	var fs FixedString
	if s == "" {
		return fs, ErrEmptyString
	}
	if !utf8.ValidString(s) || strings.IndexByte(s, 0) >= 0 {
		return fs, fmt.Errorf("%w: %q", ErrInvalidString, s)
	}
	enc, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return fs, fmt.Errorf("wire: could not encode %q: %w", s, err)
	}
	if len(enc) > FixedStringSize {
		return fs, &CapacityError{Value: s, Units: len(enc) / 2, Capacity: FixedStringCapacity}
	}
	copy(fs.raw[:], enc)
	return fs, nil
}

// String decodes the string, dropping the NUL padding. Unpaired
// surrogates decode as U+FFFD.
func (fs FixedString) String() string {
	n := 0
	for n+1 < len(fs.raw) && (fs.raw[n] != 0 || fs.raw[n+1] != 0) {
		n += 2
	}
	if n == 0 {
		return ""
	}
	dec, err := utf16le.NewDecoder().Bytes(fs.raw[:n])
	if err != nil {
		return strings.ToValidUTF8(string(dec), "�")
	}
	return string(dec)
}

// AppendBinary appends the raw encoded string to b.
func (fs FixedString) AppendBinary(b []byte) ([]byte, error) {
	return append(b, fs.raw[:]...), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (fs *FixedString) UnmarshalBinary(data []byte) error {
	if len(data) < FixedStringSize {
		return fmt.Errorf("%w: string needs %d bytes, got %d", ErrShortBuffer, FixedStringSize, len(data))
	}
	copy(fs.raw[:], data[:FixedStringSize])
	return nil
}
