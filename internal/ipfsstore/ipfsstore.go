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

// Package ipfsstore abstracts put/get/resolve of opaque byte blobs keyed by
// IPFS content identifier. The sync engine never interprets CID structure
// beyond equality; it only relies on Put being idempotent (storing
// identical bytes returns the same CID).
package ipfsstore

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors, surfaced to the helper dialogue as terminal errors.
var (
	// ErrNotFound is returned by Get when the requested CID is absent.
	ErrNotFound = errors.New("ipfsstore: not found")

	// ErrUnreachable is returned when the local IPFS daemon cannot be
	// contacted. This is the most common operator error, so callers
	// should surface it with an explicit, actionable message.
	ErrUnreachable = errors.New("ipfsstore: IPFS daemon unreachable")
)

// Store is the capability set the sync engine needs from IPFS. No
// assumption of pinning, replication, or network visibility beyond the
// local daemon is made.
type Store interface {
	// Put stores bytes and returns a stable content identifier. Storing
	// identical bytes twice returns the same CID.
	Put(ctx context.Context, data []byte) (cid string, err error)

	// Get retrieves the bytes behind cid. Fails with ErrNotFound if
	// absent, ErrUnreachable if the daemon cannot be contacted.
	Get(ctx context.Context, cid string) ([]byte, error)

	// Resolve turns a "/ipfs/<cid>" or "/ipns/<name>" path into a
	// concrete CID.
	Resolve(ctx context.Context, path string) (cid string, err error)
}

// WrapUnreachable wraps a low-level transport error with ErrUnreachable and
// a user-facing hint, for adapters that cannot distinguish "daemon down"
// from other transport failures except by inspecting the error text.
func WrapUnreachable(endpoint string, err error) error {
	return fmt.Errorf("%w: could not reach IPFS daemon at %s (is it running?): %s", ErrUnreachable, endpoint, err)
}
