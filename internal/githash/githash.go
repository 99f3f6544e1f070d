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

// Package githash provides the 20-byte git object identifier used to key
// NIPObject and NIPIndex entries, and small supporting set/sort helpers.
package githash

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// Size is the raw length of a git object hash (SHA-1).
const Size = 20

// Hash is a git object identifier in raw form.
//
// The zero value Hash{} is the null hash. On amd64 a Hash is 20 bytes, so it
// is reasonable to pass it by value rather than by pointer.
type Hash [Size]byte

var _ fmt.Stringer = Hash{}

// String renders the hash as lowercase hex, same as `git cat-file`/`rev-parse`.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Parse decodes a 40-character hex string into a Hash.
func Parse(s string) (Hash, error) {
	var h Hash
	if hex.DecodedLen(len(s)) != Size {
		return Hash{}, fmt.Errorf("githash: %q: invalid length", s)
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return Hash{}, fmt.Errorf("githash: %q: %w", s, err)
	}
	return h, nil
}

// IsZero reports whether h is the null hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ObjectHash computes the git hash of an object, i.e. SHA-1 of
// "<type> <len>\0<data>", the rule invariant 2 of the NIPObject format
// relies on.
func ObjectHash(objType string, data []byte) Hash {
	header := fmt.Sprintf("%s %d\x00", objType, len(data))
	h := sha1.New()
	h.Write([]byte(header))
	h.Write(data)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Set is a set of Hash, used to track frontiers and visited-object sets
// while the sync engine traverses the object graph.
type Set map[Hash]struct{}

func NewSet() Set { return make(Set) }

func (s Set) Add(h Hash)            { s[h] = struct{}{} }
func (s Set) Contains(h Hash) bool  { _, ok := s[h]; return ok }
func (s Set) Remove(h Hash)         { delete(s, h) }
func (s Set) Len() int              { return len(s) }

// Elements returns all members of s as a slice, in unspecified order.
func (s Set) Elements() []Hash {
	ev := make([]Hash, 0, len(s))
	for h := range s {
		ev = append(ev, h)
	}
	return ev
}

// ByHash sorts a []Hash in byte order, used wherever upload/ref order must
// be stable between runs.
type ByHash []Hash

func (p ByHash) Len() int           { return len(p) }
func (p ByHash) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p ByHash) Less(i, j int) bool { return bytes.Compare(p[i][:], p[j][:]) < 0 }
