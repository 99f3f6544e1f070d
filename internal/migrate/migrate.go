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

// Package migrate accepts any historical (version, payload) pair read from
// IPFS and produces a current-version in-memory NIPObject/NIPIndex,
// applied transparently at the decode boundary. It is a pipeline of
// per-version stages: v1 -> v2 -> ... -> current, each a pure function on
// the in-memory shape for that version (except the v1->v2 NIPObject stage,
// which needs the store adapter to fetch raw bytes and compute the
// missing git hash).
//
// Downgrade is not supported; an unknown (future) version is fatal.
package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"lab.nexedi.com/kirr/git-backup/internal/githash"
	"lab.nexedi.com/kirr/git-backup/internal/ipfsstore"
	"lab.nexedi.com/kirr/git-backup/internal/nipobject"
)

// ErrUnknownVersion is returned for any envelope version newer than this
// binary understands.
var ErrUnknownVersion = errors.New("migrate: unknown envelope version")

// --- version 1 wire schema (legacy, read-only) ---
//
// Identical to v2 except NIPObject omits git_hash, and submodule handling
// was unspecified - v1 trees never contain the SubmoduleTip marker because
// it didn't exist yet, so the v1->v2 NIPIndex stage is a pure re-encode.

type wireMetadataV1 struct {
	Kind    string   `cbor:"kind"`
	Parents []string `cbor:"parents,omitempty"`
	Tree    string   `cbor:"tree,omitempty"`
	Entries []string `cbor:"entries,omitempty"`
	Target  string   `cbor:"target,omitempty"`
}

type wireObjectV1 struct {
	RawDataIPFSHash string         `cbor:"raw_data_ipfs_hash"`
	Metadata        wireMetadataV1 `cbor:"metadata"`
}

type wireIndexV1 struct {
	Refs        map[string]string `cbor:"refs"`
	Objects     map[string]string `cbor:"objects"`
	PrevIdxHash string            `cbor:"prev_idx_hash,omitempty"`
}

func decodeObjectV1(payload []byte) (wireObjectV1, error) {
	var w wireObjectV1
	if err := cbor.Unmarshal(payload, &w); err != nil {
		return wireObjectV1{}, fmt.Errorf("%w: %s", nipobject.ErrMalformedObject, err)
	}
	return w, nil
}

func metadataV1ToV2(m wireMetadataV1) (nipobject.Metadata, error) {
	parseHash := func(s string) (githash.Hash, error) { return githash.Parse(s) }

	switch m.Kind {
	case "commit":
		parents := make([]githash.Hash, len(m.Parents))
		for i, s := range m.Parents {
			h, err := parseHash(s)
			if err != nil {
				return nipobject.Metadata{}, err
			}
			parents[i] = h
		}
		tree, err := parseHash(m.Tree)
		if err != nil {
			return nipobject.Metadata{}, err
		}
		return nipobject.Metadata{Kind: nipobject.KindCommit, CommitParents: parents, CommitTree: tree}, nil
	case "tree":
		entries := make([]nipobject.TreeEntry, len(m.Entries))
		for i, s := range m.Entries {
			h, err := parseHash(s)
			if err != nil {
				return nipobject.Metadata{}, err
			}
			entries[i] = nipobject.TreeEntry{Hash: h}
		}
		return nipobject.Metadata{Kind: nipobject.KindTree, TreeEntries: entries}, nil
	case "blob":
		return nipobject.Metadata{Kind: nipobject.KindBlob}, nil
	case "tag":
		target, err := parseHash(m.Target)
		if err != nil {
			return nipobject.Metadata{}, err
		}
		return nipobject.Metadata{Kind: nipobject.KindTag, TagTarget: target}, nil
	default:
		return nipobject.Metadata{}, fmt.Errorf("%w: unknown v1 metadata kind %q", nipobject.ErrMalformedObject, m.Kind)
	}
}

// objectV1ToV2 is the v1->v2 NIPObject stage: v1 objects lack git_hash, so
// this stage downloads the raw bytes from the IPFS store and computes it.
func objectV1ToV2(ctx context.Context, store ipfsstore.Store, w wireObjectV1) (nipobject.Object, error) {
	md, err := metadataV1ToV2(w.Metadata)
	if err != nil {
		return nipobject.Object{}, err
	}
	raw, err := store.Get(ctx, w.RawDataIPFSHash)
	if err != nil {
		return nipobject.Object{}, fmt.Errorf("migrate: v1->v2: fetching raw data: %w", err)
	}
	gitHash := githash.ObjectHash(md.Kind.String(), raw)
	return nipobject.Object{
		RawDataIPFSHash: w.RawDataIPFSHash,
		GitHash:         gitHash,
		Metadata:        md,
	}, nil
}

// DecodeObject parses a payload of the given envelope version into the
// current in-memory NIPObject shape, migrating as needed. ctx/store are
// only used when migrating a v1 payload.
func DecodeObject(ctx context.Context, store ipfsstore.Store, version uint16, payload []byte) (nipobject.Object, error) {
	switch version {
	case 2:
		return nipobject.DecodeV2(payload)
	case 1:
		w, err := decodeObjectV1(payload)
		if err != nil {
			return nipobject.Object{}, err
		}
		return objectV1ToV2(ctx, store, w)
	default:
		return nipobject.Object{}, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
}

func indexV1ToV2(w wireIndexV1) (*nipobject.Index, error) {
	idx := nipobject.NewIndex()
	idx.PrevIndexHash = w.PrevIdxHash
	for ref, s := range w.Refs {
		h, err := githash.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: ref %q: %s", nipobject.ErrMalformedIndex, ref, err)
		}
		idx.Refs[ref] = h
	}
	for s, cid := range w.Objects {
		// v1 submodule entries, if any, are rewritten to the
		// submodule-tip marker on re-encode; as a *key* of the
		// objects map a submodule was never representable (it is
		// only ever an edge inside a tree), so there is nothing to
		// rewrite here - the marker only ever appears as a Tree
		// entry, handled by metadataV1ToV2.
		h, err := githash.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: object key %q: %s", nipobject.ErrMalformedIndex, s, err)
		}
		idx.Objects[h] = cid
	}
	return idx, nil
}

// DecodeIndex parses a payload of the given envelope version into the
// current in-memory NIPIndex shape, migrating as needed. The v1->v2
// NIPIndex stage needs no structural change beyond re-encoding under the
// v2 schema, so it takes no store.
func DecodeIndex(version uint16, payload []byte) (*nipobject.Index, error) {
	switch version {
	case 2:
		return nipobject.DecodeIndexV2(payload)
	case 1:
		var w wireIndexV1
		if err := cbor.Unmarshal(payload, &w); err != nil {
			return nil, fmt.Errorf("%w: %s", nipobject.ErrMalformedIndex, err)
		}
		return indexV1ToV2(w)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
}
