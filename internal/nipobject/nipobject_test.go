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

package nipobject

import (
	"bytes"
	"testing"

	"lab.nexedi.com/kirr/git-backup/internal/githash"
)

func TestObjectRoundTrip(t *testing.T) {
	tree := githash.ObjectHash("tree", []byte("fake tree"))
	parent := githash.ObjectHash("commit", []byte("fake parent"))
	raw := []byte("tree " + tree.String() + "\nparent " + parent.String() + "\n\nmsg\n")
	gitHash := githash.ObjectHash("commit", raw)

	o := Object{
		RawDataIPFSHash: "QmFakeCID",
		GitHash:         gitHash,
		Metadata: Metadata{
			Kind:          KindCommit,
			CommitParents: []githash.Hash{parent},
			CommitTree:    tree,
		},
	}

	payload, err := EncodeV2(o)
	if err != nil {
		t.Fatalf("EncodeV2: %s", err)
	}
	got, err := DecodeV2(payload)
	if err != nil {
		t.Fatalf("DecodeV2: %s", err)
	}
	if got.GitHash != o.GitHash || got.RawDataIPFSHash != o.RawDataIPFSHash {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, o)
	}
	if len(got.Metadata.CommitParents) != 1 || got.Metadata.CommitParents[0] != parent {
		t.Fatalf("parents mismatch: %+v", got.Metadata)
	}
	if got.Metadata.CommitTree != tree {
		t.Fatalf("tree mismatch: %+v", got.Metadata)
	}
	if err := got.VerifyHash(raw); err != nil {
		t.Fatalf("VerifyHash: %s", err)
	}
}

func TestEncodeV2IsCanonical(t *testing.T) {
	o := Object{
		RawDataIPFSHash: "QmFakeCID",
		GitHash:         githash.ObjectHash("blob", []byte("hi")),
		Metadata:        Metadata{Kind: KindBlob},
	}
	a, err := EncodeV2(o)
	if err != nil {
		t.Fatalf("EncodeV2: %s", err)
	}
	b, err := EncodeV2(o)
	if err != nil {
		t.Fatalf("EncodeV2: %s", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("encoding the same object twice produced different bytes")
	}
}

func TestTreeEntrySubmoduleMarkerRoundTrips(t *testing.T) {
	child := githash.ObjectHash("blob", []byte("child"))
	o := Object{
		RawDataIPFSHash: "QmTree",
		GitHash:         githash.ObjectHash("tree", []byte("tree bytes")),
		Metadata: Metadata{
			Kind: KindTree,
			TreeEntries: []TreeEntry{
				{Hash: child},
				{Submodule: true},
			},
		},
	}
	payload, err := EncodeV2(o)
	if err != nil {
		t.Fatalf("EncodeV2: %s", err)
	}
	got, err := DecodeV2(payload)
	if err != nil {
		t.Fatalf("DecodeV2: %s", err)
	}
	if len(got.Metadata.TreeEntries) != 2 {
		t.Fatalf("entries = %d, want 2", len(got.Metadata.TreeEntries))
	}
	if got.Metadata.TreeEntries[0].Submodule {
		t.Fatalf("first entry should not be a submodule marker")
	}
	if !got.Metadata.TreeEntries[1].Submodule {
		t.Fatalf("second entry should be the submodule-tip marker")
	}
	edges := got.Metadata.Edges()
	if len(edges) != 1 || edges[0] != child {
		t.Fatalf("Edges() = %v, want [%s] (submodule edge excluded)", edges, child)
	}
}

func TestIndexRoundTrip(t *testing.T) {
	idx := NewIndex()
	h := githash.ObjectHash("commit", []byte("x"))
	idx.Refs["refs/heads/master"] = h
	idx.Objects[h] = "QmObjCID"
	idx.PrevIndexHash = "QmPrevCID"

	payload, err := EncodeIndexV2(idx)
	if err != nil {
		t.Fatalf("EncodeIndexV2: %s", err)
	}
	got, err := DecodeIndexV2(payload)
	if err != nil {
		t.Fatalf("DecodeIndexV2: %s", err)
	}
	if got.Refs["refs/heads/master"] != h {
		t.Fatalf("ref mismatch")
	}
	if got.Objects[h] != "QmObjCID" {
		t.Fatalf("object mismatch")
	}
	if got.PrevIndexHash != "QmPrevCID" {
		t.Fatalf("prev index hash mismatch")
	}
}

func TestVerifyHashDetectsMismatch(t *testing.T) {
	o := Object{GitHash: githash.ObjectHash("blob", []byte("a")), Metadata: Metadata{Kind: KindBlob}}
	if err := o.VerifyHash([]byte("b")); err == nil {
		t.Fatalf("expected hash mismatch error")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	idx := NewIndex()
	h := githash.ObjectHash("blob", []byte("x"))
	idx.Refs["refs/heads/master"] = h

	clone := idx.Clone()
	clone.Refs["refs/heads/master"] = githash.Hash{}

	if idx.Refs["refs/heads/master"] != h {
		t.Fatalf("mutating clone affected original")
	}
}
