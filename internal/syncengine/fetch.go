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

package syncengine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"lab.nexedi.com/kirr/git-backup/internal/githash"
	"lab.nexedi.com/kirr/git-backup/internal/localgit"
	"lab.nexedi.com/kirr/git-backup/internal/nipobject"
)

// layerConcurrency bounds how many objects of one topological layer are
// put/fetched from IPFS at once. Layers themselves are always processed
// strictly in order, so this only ever parallelizes independent work.
const layerConcurrency = 8

// FetchResult is the outcome of a Fetch call.
type FetchResult struct {
	IndexCID       string
	Refs           map[string]githash.Hash
	ObjectsFetched int
	ObjectsSkipped int // already present locally
}

// Fetch resolves the NIPIndex at path, downloads every object reachable
// from want (or, if want is empty, from every ref in the index) that is
// not already present locally, and writes it into the local repository.
// Refs are updated last, via compare-and-set against expectedOld; a ref
// with no entry in expectedOld (or a nil map, e.g. on first clone) is
// written without the check.
//
// This is the full pull/clone operation. The git remote helper's own
// "fetch" protocol verb only ever needs FetchObjects: git already knows
// the ref layout from "list" and maintains its own remote-tracking refs,
// so a helper that also rewrote local refs here would be racing git
// itself.
func (e *Engine) Fetch(ctx context.Context, path string, want []githash.Hash, expectedOld map[string]githash.Hash) (*FetchResult, error) {
	idx, result, err := e.FetchObjects(ctx, path, want)
	if err != nil {
		return nil, err
	}
	result.Refs = idx.Refs

	for ref, h := range idx.Refs {
		var expected *githash.Hash
		if v, ok := expectedOld[ref]; ok {
			expected = &v
		}
		if err := e.Local.UpdateRef(ref, h, expected); err != nil {
			return nil, fmt.Errorf("syncengine: fetch: updating %s: %w", ref, err)
		}
	}

	return result, nil
}

// FetchObjects resolves the NIPIndex at path and downloads every object
// reachable from want (or, if want is empty, from every ref in the index)
// that is not already present locally. It never touches local refs.
func (e *Engine) FetchObjects(ctx context.Context, path string, want []githash.Hash) (*nipobject.Index, *FetchResult, error) {
	idx, cid, err := e.loadIndex(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	if cid == "" {
		return nil, nil, fmt.Errorf("syncengine: fetch: %q does not resolve to an index", path)
	}

	result := &FetchResult{IndexCID: cid}

	roots := want
	if len(roots) == 0 {
		roots = make([]githash.Hash, 0, len(idx.Refs))
		for _, h := range idx.Refs {
			roots = append(roots, h)
		}
	}

	order, level, skipped, err := e.remoteChildrenFirstOrder(ctx, idx, roots)
	if err != nil {
		return nil, nil, err
	}
	result.ObjectsSkipped += skipped

	for _, layer := range layerize(order, level) {
		var toFetch []githash.Hash
		for _, h := range layer {
			if e.Local.HasObject(h) {
				result.ObjectsSkipped++
				continue
			}
			toFetch = append(toFetch, h)
		}
		if len(toFetch) == 0 {
			continue
		}

		// Network fetch + hash verification fan out across the layer;
		// the actual local write happens afterwards, one at a time,
		// since Store implementations (in particular Git2goStore's
		// underlying libgit2 Odb) are not assumed safe for concurrent
		// writers.
		fetched := make([]fetchedObject, len(toFetch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(layerConcurrency)
		for i, h := range toFetch {
			i, h := i, h
			g.Go(func() error {
				fo, err := e.fetchRaw(gctx, idx, h)
				if err != nil {
					return fmt.Errorf("syncengine: fetch: object %s: %w", h, err)
				}
				fetched[i] = fo
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}

		for _, fo := range fetched {
			if _, err := e.Local.WriteObject(localKind(fo.kind), fo.raw); err != nil {
				return nil, nil, fmt.Errorf("%w: writing %s: %s", ErrLocalGitError, fo.hash, err)
			}
		}
		result.ObjectsFetched += len(toFetch)
	}

	return idx, result, nil
}

// remoteChildrenFirstOrder mirrors childrenFirstOrder but walks edges from
// the remote NIPIndex's metadata (already-parsed, no raw bytes needed)
// rather than re-parsing raw git bytes, and stops descending into any
// object already present locally - its subtree is assumed already
// complete, by the same invariant push relies on (an object is only ever
// indexed after its children are). It also returns how many distinct
// locally-present objects the walk stopped at.
func (e *Engine) remoteChildrenFirstOrder(ctx context.Context, idx *nipobject.Index, roots []githash.Hash) ([]githash.Hash, map[githash.Hash]int, int, error) {
	visited := githash.NewSet()
	level := map[githash.Hash]int{}
	var order []githash.Hash
	skipped := 0

	var visit func(h githash.Hash) error
	visit = func(h githash.Hash) error {
		if visited.Contains(h) {
			return nil
		}
		visited.Add(h)
		if e.Local.HasObject(h) {
			skipped++
			return nil
		}

		cid, ok := idx.Objects[h]
		if !ok {
			return fmt.Errorf("%w: %s not present in index", ErrMissingObject, h)
		}
		obj, err := e.loadObject(ctx, cid)
		if err != nil {
			return err
		}
		lvl := 0
		for _, edge := range obj.Metadata.Edges() {
			if edge.IsZero() {
				continue
			}
			if err := visit(edge); err != nil {
				return err
			}
			if l, ok := level[edge]; ok && l+1 > lvl {
				lvl = l + 1
			}
		}
		level[h] = lvl
		order = append(order, h)
		return nil
	}

	for _, root := range sortedHashes(rootSet(roots)) {
		if err := visit(root); err != nil {
			return nil, nil, 0, err
		}
	}
	return order, level, skipped, nil
}

// fetchedObject is the result of downloading and verifying one object,
// ready to be handed to the local Store's (serial) WriteObject.
type fetchedObject struct {
	hash githash.Hash
	kind nipobject.ObjectKind
	raw  []byte
}

// fetchRaw downloads the NIPObject and its raw data for h and verifies the
// raw bytes hash to h, without touching the local repository.
func (e *Engine) fetchRaw(ctx context.Context, idx *nipobject.Index, h githash.Hash) (fetchedObject, error) {
	cid := idx.Objects[h]
	obj, err := e.loadObject(ctx, cid)
	if err != nil {
		return fetchedObject{}, err
	}
	raw, err := e.IPFS.Get(ctx, obj.RawDataIPFSHash)
	if err != nil {
		return fetchedObject{}, fmt.Errorf("fetching raw data: %w", err)
	}
	if err := obj.VerifyHash(raw); err != nil {
		return fetchedObject{}, err
	}
	return fetchedObject{hash: h, kind: obj.Metadata.Kind, raw: raw}, nil
}

func localKind(k nipobject.ObjectKind) localgit.ObjectKind {
	switch k {
	case nipobject.KindCommit:
		return localgit.KindCommit
	case nipobject.KindTree:
		return localgit.KindTree
	case nipobject.KindBlob:
		return localgit.KindBlob
	case nipobject.KindTag:
		return localgit.KindTag
	default:
		return ""
	}
}
