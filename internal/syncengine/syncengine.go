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

// Package syncengine implements push and fetch: the two operations that
// keep a local git repository and its NIPIndex snapshot on IPFS in sync.
// Both walk the object graph children-first (parents/tree-before-commit,
// entries-before-tree) so that an interrupted run never leaves a NIPIndex
// referencing an object that isn't itself already on IPFS.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"lab.nexedi.com/kirr/git-backup/internal/envelope"
	"lab.nexedi.com/kirr/git-backup/internal/githash"
	"lab.nexedi.com/kirr/git-backup/internal/ipfsstore"
	"lab.nexedi.com/kirr/git-backup/internal/localgit"
	"lab.nexedi.com/kirr/git-backup/internal/migrate"
	"lab.nexedi.com/kirr/git-backup/internal/nipobject"
)

// ErrNonFastForward is returned per-ref when the remote's current value for
// a ref is not an ancestor of the local value being pushed, and the caller
// did not request a force update.
var ErrNonFastForward = errors.New("syncengine: non-fast-forward update rejected")

// ErrMissingObject is returned when the object graph references a git hash
// that is neither present in the local repository nor reachable from the
// baseline NIPIndex - a corrupt or incomplete local clone.
var ErrMissingObject = errors.New("syncengine: missing object")

// ErrLocalGitError wraps failures reading from/writing to the local
// repository, as distinct from IPFS or NIPIndex decoding failures.
var ErrLocalGitError = errors.New("syncengine: local git error")

// Engine bundles the two stores push/fetch operate across.
type Engine struct {
	IPFS  ipfsstore.Store
	Local localgit.Store
	Log   *logrus.Entry
}

// New returns an Engine over the given stores. log may be nil.
func New(ipfs ipfsstore.Store, local localgit.Store, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{IPFS: ipfs, Local: local, Log: log}
}

// loadIndex resolves path (an "/ipfs/<cid>" or "/ipns/<name>" string) to a
// concrete CID, fetches it, and decodes its NIPIndex, migrating forward
// from any historical envelope version. An empty path yields a fresh,
// empty index - the "new-ipfs" baseline.
func (e *Engine) loadIndex(ctx context.Context, path string) (idx *nipobject.Index, cid string, err error) {
	if path == "" {
		return nipobject.NewIndex(), "", nil
	}
	resolved, err := e.IPFS.Resolve(ctx, path)
	if err != nil {
		return nil, "", fmt.Errorf("syncengine: resolve %s: %w", path, err)
	}
	blob, err := e.IPFS.Get(ctx, resolved)
	if err != nil {
		return nil, "", fmt.Errorf("syncengine: fetch index %s: %w", resolved, err)
	}
	version, payload, err := envelope.Decode(blob)
	if err != nil {
		return nil, "", fmt.Errorf("syncengine: decode index envelope: %w", err)
	}
	idx, err = migrate.DecodeIndex(version, payload)
	if err != nil {
		return nil, "", fmt.Errorf("syncengine: decode index: %w", err)
	}
	return idx, resolved, nil
}

// ListRemoteRefs resolves path to a NIPIndex and returns the refs it
// records, without fetching or touching any object. It is the primitive
// the remote helper's "list"/"list for-push" verbs need - git only wants
// ref names and hashes at that point, never object bytes.
func (e *Engine) ListRemoteRefs(ctx context.Context, path string) (map[string]githash.Hash, error) {
	idx, _, err := e.loadIndex(ctx, path)
	if err != nil {
		return nil, err
	}
	return idx.Refs, nil
}

// loadObject resolves and decodes the NIPObject stored at cid.
func (e *Engine) loadObject(ctx context.Context, cid string) (nipobject.Object, error) {
	blob, err := e.IPFS.Get(ctx, cid)
	if err != nil {
		return nipobject.Object{}, fmt.Errorf("syncengine: fetch object %s: %w", cid, err)
	}
	version, payload, err := envelope.Decode(blob)
	if err != nil {
		return nipobject.Object{}, fmt.Errorf("syncengine: decode object envelope: %w", err)
	}
	obj, err := migrate.DecodeObject(ctx, e.IPFS, version, payload)
	if err != nil {
		return nipobject.Object{}, fmt.Errorf("syncengine: decode object %s: %w", cid, err)
	}
	return obj, nil
}

// sortedHashes returns the elements of a githash.Set in stable byte order,
// for deterministic upload/traversal order between runs.
func sortedHashes(s githash.Set) []githash.Hash {
	out := s.Elements()
	sort.Sort(githash.ByHash(out))
	return out
}
