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

// Package localgit abstracts read/write of git objects keyed by git hash,
// and ref enumeration/update, the way git-backup's gitobjects.go wraps
// libgit2. Two implementations exist: Git2goStore (real, cgo via
// git2go/v31) and MemStore (in-memory fake used throughout
// internal/syncengine's test suite).
package localgit

import (
	"errors"
	"fmt"

	"lab.nexedi.com/kirr/git-backup/internal/githash"
)

// ErrRefRaceLost is returned by UpdateRef when the ref's current value does
// not match the expected old value passed in (a compare-and-set failure).
var ErrRefRaceLost = errors.New("localgit: ref race lost")

// ErrObjectNotFound is returned by ReadObject for a hash not present
// locally.
var ErrObjectNotFound = errors.New("localgit: object not found")

// ObjectKind mirrors nipobject.ObjectKind without importing it, so this
// package has no dependency on the wire format - only on git's own object
// types.
type ObjectKind string

const (
	KindCommit ObjectKind = "commit"
	KindTree   ObjectKind = "tree"
	KindBlob   ObjectKind = "blob"
	KindTag    ObjectKind = "tag"
)

// Store is the capability set the sync engine needs from the local git
// repository.
type Store interface {
	// HasObject is an O(1) existence check.
	HasObject(h githash.Hash) bool

	// ReadObject reads the canonical, uncompressed object payload - the
	// bytes whose SHA-1, with the "<type> <len>\0" prefix, equals h.
	ReadObject(h githash.Hash) (kind ObjectKind, raw []byte, err error)

	// WriteObject inserts an object, returning its computed git hash.
	WriteObject(kind ObjectKind, raw []byte) (githash.Hash, error)

	// ListRefs returns every ref and the hash it currently resolves to.
	ListRefs() (map[string]githash.Hash, error)

	// UpdateRef compare-and-sets a ref to newHash. If expectedOld is
	// non-nil, the update only succeeds if the ref's current value
	// equals *expectedOld; otherwise it fails with ErrRefRaceLost.
	UpdateRef(ref string, newHash githash.Hash, expectedOld *githash.Hash) error

	// ParseObjectEdges yields the git hashes raw directly references:
	// parents + tree for a commit, children for a tree, target for a
	// tag, none for a blob.
	ParseObjectEdges(kind ObjectKind, raw []byte) ([]githash.Hash, error)
}

// RefRaceError carries the ref and the observed/expected hashes for an
// ErrRefRaceLost failure.
type RefRaceError struct {
	Ref      string
	Expected githash.Hash
	Observed githash.Hash
}

func (e *RefRaceError) Error() string {
	return fmt.Sprintf("localgit: ref %s: expected %s, observed %s", e.Ref, e.Expected, e.Observed)
}

func (e *RefRaceError) Unwrap() error { return ErrRefRaceLost }
