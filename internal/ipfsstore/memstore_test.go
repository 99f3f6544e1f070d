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

package ipfsstore

import (
	"context"
	"errors"
	"testing"
)

func TestMemStorePutIsContentAddressedAndIdempotent(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	cid1, err := s.Put(ctx, []byte("hello"))
	if err != nil {
		t.Fatalf("Put: %s", err)
	}
	cid2, err := s.Put(ctx, []byte("hello"))
	if err != nil {
		t.Fatalf("Put: %s", err)
	}
	if cid1 != cid2 {
		t.Fatalf("identical content produced different CIDs: %s vs %s", cid1, cid2)
	}
	if s.PutCount() != 1 {
		t.Fatalf("PutCount = %d, want 1 (no duplicate storage)", s.PutCount())
	}

	got, err := s.Get(ctx, cid1)
	if err != nil {
		t.Fatalf("Get: %s", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Get = %q, want %q", got, "hello")
	}
}

func TestMemStoreGetNotFound(t *testing.T) {
	s := NewMemStore()
	_, err := s.Get(context.Background(), "memfake:nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreResolve(t *testing.T) {
	s := NewMemStore()
	cid, err := s.Put(context.Background(), []byte("data"))
	if err != nil {
		t.Fatalf("Put: %s", err)
	}
	resolved, err := s.Resolve(context.Background(), "/ipfs/"+cid)
	if err != nil {
		t.Fatalf("Resolve: %s", err)
	}
	if resolved != cid {
		t.Fatalf("Resolve = %s, want %s", resolved, cid)
	}
}

func TestMemStoreSimulateUnreachable(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	cid, err := s.Put(ctx, []byte("x"))
	if err != nil {
		t.Fatalf("Put: %s", err)
	}
	s.SimulateUnreachable(cid)
	_, err = s.Get(ctx, cid)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}
