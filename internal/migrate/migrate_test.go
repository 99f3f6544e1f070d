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

package migrate

import (
	"context"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"lab.nexedi.com/kirr/git-backup/internal/githash"
	"lab.nexedi.com/kirr/git-backup/internal/ipfsstore"
	"lab.nexedi.com/kirr/git-backup/internal/nipobject"
)

func TestDecodeObjectV2IsDirect(t *testing.T) {
	o := nipobject.Object{
		RawDataIPFSHash: "QmX",
		GitHash:         githash.ObjectHash("blob", []byte("hi")),
		Metadata:        nipobject.Metadata{Kind: nipobject.KindBlob},
	}
	payload, err := nipobject.EncodeV2(o)
	if err != nil {
		t.Fatalf("EncodeV2: %s", err)
	}
	got, err := DecodeObject(context.Background(), nil, 2, payload)
	if err != nil {
		t.Fatalf("DecodeObject: %s", err)
	}
	if got.GitHash != o.GitHash {
		t.Fatalf("GitHash mismatch")
	}
}

func TestDecodeObjectV1ComputesGitHash(t *testing.T) {
	raw := []byte("hello world")
	store := ipfsstore.NewMemStore()
	cid, err := store.Put(context.Background(), raw)
	if err != nil {
		t.Fatalf("Put: %s", err)
	}

	w := wireObjectV1{
		RawDataIPFSHash: cid,
		Metadata:        wireMetadataV1{Kind: "blob"},
	}
	payload, err := cbor.Marshal(w)
	if err != nil {
		t.Fatalf("marshal v1: %s", err)
	}

	got, err := DecodeObject(context.Background(), store, 1, payload)
	if err != nil {
		t.Fatalf("DecodeObject: %s", err)
	}
	want := githash.ObjectHash("blob", raw)
	if got.GitHash != want {
		t.Fatalf("GitHash = %s, want %s", got.GitHash, want)
	}
	if got.RawDataIPFSHash != cid {
		t.Fatalf("RawDataIPFSHash = %s, want %s", got.RawDataIPFSHash, cid)
	}
}

func TestDecodeObjectUnknownVersion(t *testing.T) {
	_, err := DecodeObject(context.Background(), nil, 99, nil)
	if err == nil {
		t.Fatalf("expected an error for an unknown envelope version")
	}
}

func TestDecodeIndexV1ToV2(t *testing.T) {
	h := githash.ObjectHash("commit", []byte("x"))
	w := wireIndexV1{
		Refs:    map[string]string{"refs/heads/master": h.String()},
		Objects: map[string]string{h.String(): "QmObj"},
	}
	payload, err := cbor.Marshal(w)
	if err != nil {
		t.Fatalf("marshal v1 index: %s", err)
	}
	idx, err := DecodeIndex(1, payload)
	if err != nil {
		t.Fatalf("DecodeIndex: %s", err)
	}
	if idx.Refs["refs/heads/master"] != h {
		t.Fatalf("ref not migrated correctly")
	}
	if idx.Objects[h] != "QmObj" {
		t.Fatalf("object not migrated correctly")
	}
}
