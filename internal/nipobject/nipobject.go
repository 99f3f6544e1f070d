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

// Package nipobject defines NIPObject and NIPIndex, the content-addressed
// value types the remote snapshot format is built from, and their
// canonical CBOR encoding.
//
// The in-memory shapes below are the current (v2) schema; all other
// packages in this module work against them exclusively. Historical
// schemas and their upgrade to this shape live in package migrate.
package nipobject

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"lab.nexedi.com/kirr/git-backup/internal/githash"
)

// CurrentVersion is the envelope version this binary writes.
const CurrentVersion uint16 = 2

// Sentinel errors surfaced by codec/validation failures.
var (
	ErrUnknownVersion  = errors.New("nipobject: unknown envelope version")
	ErrMalformedObject = errors.New("nipobject: malformed NIPObject payload")
	ErrMalformedIndex  = errors.New("nipobject: malformed NIPIndex payload")
	ErrHashMismatch    = errors.New("nipobject: raw data does not hash to declared git hash")
)

// SubmoduleTip is the reserved marker used in place of a child git hash
// inside a Tree's entries, for submodule gitlinks. Metadata.Edges omits it,
// so push and fetch never follow a gitlink; there is no other submodule
// handling, and encountering the marker raises no error.
const SubmoduleTip = "submodule-tip"

// ErrSubmodulesUnsupported reports that a submodule-tip marker cannot be
// resolved into an actual object. No code path in this module returns it.
var ErrSubmodulesUnsupported = errors.New("nipobject: submodules not supported")

// ObjectKind distinguishes the git object type an NIPObject wraps.
type ObjectKind int

const (
	KindCommit ObjectKind = iota
	KindTree
	KindBlob
	KindTag
)

func (k ObjectKind) String() string {
	switch k {
	case KindCommit:
		return "commit"
	case KindTree:
		return "tree"
	case KindBlob:
		return "blob"
	case KindTag:
		return "tag"
	default:
		return fmt.Sprintf("ObjectKind(%d)", int(k))
	}
}

// Metadata is the tagged union of git-object-type-specific edges carried by
// an NIPObject. Exactly one of the typed fields is meaningful, selected by
// Kind.
type Metadata struct {
	Kind ObjectKind

	// Commit: ordered parents, single tree.
	CommitParents []githash.Hash
	CommitTree    githash.Hash

	// Tree: children, each either another tree or a blob hash, or the
	// literal SubmoduleTip marker for a gitlink entry.
	TreeEntries []TreeEntry

	// Tag: single target.
	TagTarget githash.Hash
}

// TreeEntry is one child of a Tree NIPObject: either a git hash (for a
// regular tree/blob child) or the SubmoduleTip marker (Submodule == true).
type TreeEntry struct {
	Hash      githash.Hash
	Submodule bool
}

// Edges returns the git hashes this object's metadata directly references,
// for graph traversal - the same directly-referenced-hash notion
// localgit.Store.ParseObjectEdges yields from raw git bytes, generalized
// here to work on the in-memory NIPObject instead. Submodule-tip entries
// are omitted - they carry no followable hash.
func (m Metadata) Edges() []githash.Hash {
	switch m.Kind {
	case KindCommit:
		edges := make([]githash.Hash, 0, len(m.CommitParents)+1)
		edges = append(edges, m.CommitParents...)
		edges = append(edges, m.CommitTree)
		return edges
	case KindTree:
		edges := make([]githash.Hash, 0, len(m.TreeEntries))
		for _, e := range m.TreeEntries {
			if e.Submodule {
				continue
			}
			edges = append(edges, e.Hash)
		}
		return edges
	case KindTag:
		return []githash.Hash{m.TagTarget}
	case KindBlob:
		return nil
	default:
		return nil
	}
}

// Object is the canonical (v2) in-memory NIPObject: one per git object
// stored on the remote.
type Object struct {
	// RawDataIPFSHash is the IPFS content identifier of the exact raw
	// bytes of the underlying git object. Raw bytes are never inlined.
	RawDataIPFSHash string

	// GitHash is the 20-byte git object identifier this NIPObject
	// represents. Always populated for v2+; v1 payloads get it filled in
	// by migration (package migrate).
	GitHash githash.Hash

	Metadata Metadata
}

// VerifyHash recomputes the git hash of raw and compares it to o.GitHash,
// implementing invariant 2 / testable property 5 of the format.
func (o Object) VerifyHash(raw []byte) error {
	got := githash.ObjectHash(o.Metadata.Kind.String(), raw)
	if got != o.GitHash {
		return fmt.Errorf("%w: have %s, raw hashes to %s", ErrHashMismatch, o.GitHash, got)
	}
	return nil
}

// Index is the canonical (v2) in-memory NIPIndex: one per remote snapshot.
type Index struct {
	// Refs maps ref name (e.g. "refs/heads/master") to the git hash it
	// resolves to.
	Refs map[string]githash.Hash

	// Objects maps git hash to the IPFS content identifier of the
	// corresponding NIPObject.
	Objects map[githash.Hash]string

	// PrevIndexHash is the IPFS identifier of the prior NIPIndex, if any,
	// forming an audit chain of remote snapshots.
	PrevIndexHash string
}

// NewIndex returns an empty NIPIndex, the baseline used when pushing to
// the "new-ipfs" placeholder.
func NewIndex() *Index {
	return &Index{
		Refs:    map[string]githash.Hash{},
		Objects: map[githash.Hash]string{},
	}
}

// Clone returns a deep copy of idx; NIPIndex values are plain data, meant
// to be freely cloned.
func (idx *Index) Clone() *Index {
	out := &Index{
		Refs:          make(map[string]githash.Hash, len(idx.Refs)),
		Objects:       make(map[githash.Hash]string, len(idx.Objects)),
		PrevIndexHash: idx.PrevIndexHash,
	}
	for k, v := range idx.Refs {
		out.Refs[k] = v
	}
	for k, v := range idx.Objects {
		out.Objects[k] = v
	}
	return out
}

// --- CBOR wire schema, version 2 ---

type wireMetadataV2 struct {
	Kind    string         `cbor:"kind"`
	Parents []githash.Hash `cbor:"parents,omitempty"`
	Tree    *githash.Hash  `cbor:"tree,omitempty"`
	Entries []string       `cbor:"entries,omitempty"` // hex hash, or SubmoduleTip
	Target  *githash.Hash  `cbor:"target,omitempty"`
}

type wireObjectV2 struct {
	RawDataIPFSHash string         `cbor:"raw_data_ipfs_hash"`
	GitHash         []byte         `cbor:"git_hash"`
	Metadata        wireMetadataV2 `cbor:"metadata"`
}

type wireIndexV2 struct {
	Refs        map[string]string `cbor:"refs"`
	Objects     map[string]string `cbor:"objects"`
	PrevIdxHash string            `cbor:"prev_idx_hash,omitempty"`
}

var canonicalEncMode = func() cbor.EncMode {
	mode, err := cbor.CTAP2EncOptions().EncMode()
	if err != nil {
		panic(err) // options are a compile-time constant, can never fail
	}
	return mode
}()

func toWireMetadataV2(m Metadata) (wireMetadataV2, error) {
	w := wireMetadataV2{Kind: m.Kind.String()}
	switch m.Kind {
	case KindCommit:
		w.Parents = m.CommitParents
		tree := m.CommitTree
		w.Tree = &tree
	case KindTree:
		w.Entries = make([]string, len(m.TreeEntries))
		for i, e := range m.TreeEntries {
			if e.Submodule {
				w.Entries[i] = SubmoduleTip
			} else {
				w.Entries[i] = e.Hash.String()
			}
		}
	case KindBlob:
		// no edges
	case KindTag:
		target := m.TagTarget
		w.Target = &target
	default:
		return wireMetadataV2{}, fmt.Errorf("%w: unknown object kind %d", ErrMalformedObject, m.Kind)
	}
	return w, nil
}

func fromWireMetadataV2(w wireMetadataV2) (Metadata, error) {
	switch w.Kind {
	case "commit":
		if w.Tree == nil {
			return Metadata{}, fmt.Errorf("%w: commit metadata missing tree", ErrMalformedObject)
		}
		return Metadata{Kind: KindCommit, CommitParents: w.Parents, CommitTree: *w.Tree}, nil
	case "tree":
		entries := make([]TreeEntry, len(w.Entries))
		for i, s := range w.Entries {
			if s == SubmoduleTip {
				entries[i] = TreeEntry{Submodule: true}
				continue
			}
			h, err := githash.Parse(s)
			if err != nil {
				return Metadata{}, fmt.Errorf("%w: tree entry: %s", ErrMalformedObject, err)
			}
			entries[i] = TreeEntry{Hash: h}
		}
		return Metadata{Kind: KindTree, TreeEntries: entries}, nil
	case "blob":
		return Metadata{Kind: KindBlob}, nil
	case "tag":
		if w.Target == nil {
			return Metadata{}, fmt.Errorf("%w: tag metadata missing target", ErrMalformedObject)
		}
		return Metadata{Kind: KindTag, TagTarget: *w.Target}, nil
	default:
		return Metadata{}, fmt.Errorf("%w: unknown metadata kind %q", ErrMalformedObject, w.Kind)
	}
}

// EncodeV2 serializes o under the v2 CBOR schema. Encoding the same value
// twice always produces byte-identical output (canonical CBOR: sorted map
// keys, definite-length items), which is what lets independent
// repositories deduplicate identical objects on IPFS.
func EncodeV2(o Object) ([]byte, error) {
	wm, err := toWireMetadataV2(o.Metadata)
	if err != nil {
		return nil, err
	}
	w := wireObjectV2{
		RawDataIPFSHash: o.RawDataIPFSHash,
		GitHash:         o.GitHash[:],
		Metadata:        wm,
	}
	return canonicalEncMode.Marshal(w)
}

// DecodeV2 parses a v2-schema NIPObject payload.
func DecodeV2(payload []byte) (Object, error) {
	var w wireObjectV2
	if err := cbor.Unmarshal(payload, &w); err != nil {
		return Object{}, fmt.Errorf("%w: %s", ErrMalformedObject, err)
	}
	if len(w.GitHash) != githash.Size {
		return Object{}, fmt.Errorf("%w: git_hash has %d bytes, want %d", ErrMalformedObject, len(w.GitHash), githash.Size)
	}
	md, err := fromWireMetadataV2(w.Metadata)
	if err != nil {
		return Object{}, err
	}
	var h githash.Hash
	copy(h[:], w.GitHash)
	return Object{RawDataIPFSHash: w.RawDataIPFSHash, GitHash: h, Metadata: md}, nil
}

// EncodeIndexV2 serializes idx under the v2 CBOR schema.
func EncodeIndexV2(idx *Index) ([]byte, error) {
	w := wireIndexV2{
		Refs:        make(map[string]string, len(idx.Refs)),
		Objects:     make(map[string]string, len(idx.Objects)),
		PrevIdxHash: idx.PrevIndexHash,
	}
	for ref, h := range idx.Refs {
		w.Refs[ref] = h.String()
	}
	for h, cid := range idx.Objects {
		w.Objects[h.String()] = cid
	}
	return canonicalEncMode.Marshal(w)
}

// DecodeIndexV2 parses a v2-schema NIPIndex payload.
func DecodeIndexV2(payload []byte) (*Index, error) {
	var w wireIndexV2
	if err := cbor.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedIndex, err)
	}
	idx := &Index{
		Refs:          make(map[string]githash.Hash, len(w.Refs)),
		Objects:       make(map[githash.Hash]string, len(w.Objects)),
		PrevIndexHash: w.PrevIdxHash,
	}
	for ref, s := range w.Refs {
		h, err := githash.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: ref %q: %s", ErrMalformedIndex, ref, err)
		}
		idx.Refs[ref] = h
	}
	for s, cid := range w.Objects {
		h, err := githash.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: object key %q: %s", ErrMalformedIndex, s, err)
		}
		idx.Objects[h] = cid
	}
	return idx, nil
}
