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

	"lab.nexedi.com/kirr/git-backup/internal/envelope"
	"lab.nexedi.com/kirr/git-backup/internal/githash"
	"lab.nexedi.com/kirr/git-backup/internal/nipobject"
)

// RefUpdate is one requested ref change, as a push src:dst refspec already
// resolved to a local git hash.
type RefUpdate struct {
	Ref     string
	NewHash githash.Hash
	Force   bool
}

// RefPushResult is the outcome of one requested RefUpdate.
type RefPushResult struct {
	Ref string
	Err error // nil on success; wraps ErrNonFastForward on rejection
}

// PushResult is the outcome of a full Push call.
type PushResult struct {
	// NewIndexCID is the CID of the newly committed NIPIndex. A new index
	// is committed even if every ref update was rejected; its
	// PrevIndexHash is BaselineCID, so the two CIDs always differ.
	NewIndexCID string
	BaselineCID string
	Refs        []RefPushResult
	// ObjectsUploaded is the number of git objects newly written to
	// IPFS by this call (objects already present in the baseline index
	// are never re-uploaded).
	ObjectsUploaded int
}

// Push uploads every object reachable from updates' new hashes that is not
// already present in the index at baselinePath, then commits a new
// NIPIndex advancing the accepted refs. Rejected refs (non-fast-forward
// without Force) do not block the rest of the push: their old value is
// carried forward unchanged in the new index, and the rejection is
// reported in PushResult.Refs.
func (e *Engine) Push(ctx context.Context, baselinePath string, updates []RefUpdate) (*PushResult, error) {
	baseline, baselineCID, err := e.loadIndex(ctx, baselinePath)
	if err != nil {
		return nil, err
	}

	newIndex := baseline.Clone()
	result := &PushResult{BaselineCID: baselineCID}

	var accepted []RefUpdate
	for _, u := range updates {
		old, hadOld := baseline.Refs[u.Ref]
		if hadOld && !u.Force && old != u.NewHash && !isAncestor(e.Local, old, u.NewHash) {
			result.Refs = append(result.Refs, RefPushResult{
				Ref: u.Ref,
				Err: fmt.Errorf("%w: %s (remote has %s)", ErrNonFastForward, u.Ref, old),
			})
			continue
		}
		accepted = append(accepted, u)
	}

	known := githash.NewSet()
	for h := range baseline.Objects {
		known.Add(h)
	}

	roots := make([]githash.Hash, len(accepted))
	for i, u := range accepted {
		roots[i] = u.NewHash
	}

	order, level, err := childrenFirstOrder(e.Local, roots, known)
	if err != nil {
		return nil, err
	}

	for _, layer := range layerize(order, level) {
		cids := make([]string, len(layer))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(layerConcurrency)
		for i, h := range layer {
			i, h := i, h
			g.Go(func() error {
				cid, err := e.uploadObject(gctx, h)
				if err != nil {
					return fmt.Errorf("syncengine: push: uploading %s: %w", h, err)
				}
				cids[i] = cid
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for i, h := range layer {
			newIndex.Objects[h] = cids[i]
		}
		result.ObjectsUploaded += len(layer)
	}

	for _, u := range accepted {
		newIndex.Refs[u.Ref] = u.NewHash
		result.Refs = append(result.Refs, RefPushResult{Ref: u.Ref})
	}

	newIndex.PrevIndexHash = baselineCID

	payload, err := nipobject.EncodeIndexV2(newIndex)
	if err != nil {
		return nil, fmt.Errorf("syncengine: push: encoding new index: %w", err)
	}
	blob := envelope.Encode(nipobject.CurrentVersion, payload)
	cid, err := e.IPFS.Put(ctx, blob)
	if err != nil {
		return nil, fmt.Errorf("syncengine: push: committing new index: %w", err)
	}
	result.NewIndexCID = cid
	return result, nil
}

// uploadObject reads h from the local repository, uploads its raw bytes,
// and builds+uploads the corresponding NIPObject, returning the NIPObject's
// CID (the value stored in a NIPIndex's Objects map).
func (e *Engine) uploadObject(ctx context.Context, h githash.Hash) (string, error) {
	kind, raw, err := e.Local.ReadObject(h)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %s", ErrMissingObject, h, err)
	}

	rawCID, err := e.IPFS.Put(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("uploading raw data: %w", err)
	}

	md, err := buildMetadata(kind, raw)
	if err != nil {
		return "", fmt.Errorf("parsing object: %w", err)
	}

	obj := nipobject.Object{
		RawDataIPFSHash: rawCID,
		GitHash:         h,
		Metadata:        md,
	}
	payload, err := nipobject.EncodeV2(obj)
	if err != nil {
		return "", fmt.Errorf("encoding NIPObject: %w", err)
	}
	blob := envelope.Encode(nipobject.CurrentVersion, payload)
	cid, err := e.IPFS.Put(ctx, blob)
	if err != nil {
		return "", fmt.Errorf("uploading NIPObject: %w", err)
	}
	return cid, nil
}
