// Copyright (C) 2015-2016  Nexedi SA and Contributors.
//                          Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.

// Package envelope implements the 8-byte framing every NIPObject and
// NIPIndex blob wears on IPFS: a "NIPNIP" magic followed by a big-endian
// u16 protocol version. The envelope has no knowledge of what the payload
// means - schema interpretation belongs to package migrate.
package envelope

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic is the fixed 6-byte prefix of every framed blob.
const Magic = "NIPNIP"

// HeaderSize is the total size of the envelope header (magic + version).
const HeaderSize = len(Magic) + 2

// ErrBadMagic is returned when a blob does not start with Magic.
var ErrBadMagic = errors.New("envelope: bad magic")

// ErrTruncated is returned when a blob is shorter than HeaderSize.
var ErrTruncated = errors.New("envelope: truncated header")

// Encode prepends the header for the given version to payload and returns
// the framed blob.
func Encode(version uint16, payload []byte) []byte {
	out := make([]byte, 0, HeaderSize+len(payload))
	out = append(out, Magic...)
	out = binary.BigEndian.AppendUint16(out, version)
	out = append(out, payload...)
	return out
}

// Decode validates the header and splits a framed blob into its version and
// payload. It fails with ErrBadMagic if the first 6 bytes are not Magic.
func Decode(blob []byte) (version uint16, payload []byte, err error) {
	if len(blob) < HeaderSize {
		return 0, nil, fmt.Errorf("envelope: decode: %w", ErrTruncated)
	}
	if string(blob[:len(Magic)]) != Magic {
		return 0, nil, fmt.Errorf("envelope: decode: %w", ErrBadMagic)
	}
	version = binary.BigEndian.Uint16(blob[len(Magic):HeaderSize])
	return version, blob[HeaderSize:], nil
}

// PeekVersion reads only the version field, without validating or returning
// the payload. Still fails on bad magic or a truncated header.
func PeekVersion(blob []byte) (uint16, error) {
	version, _, err := Decode(blob)
	return version, err
}
