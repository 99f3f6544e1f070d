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

package localgit

import (
	"errors"
	"testing"

	"lab.nexedi.com/kirr/git-backup/internal/githash"
)

func TestMemStoreWriteObjectIsIdempotent(t *testing.T) {
	s := NewMemStore()
	h1, err := s.WriteObject(KindBlob, []byte("hi"))
	if err != nil {
		t.Fatalf("WriteObject: %s", err)
	}
	h2, err := s.WriteObject(KindBlob, []byte("hi"))
	if err != nil {
		t.Fatalf("WriteObject: %s", err)
	}
	if h1 != h2 {
		t.Fatalf("writing identical bytes twice produced different hashes")
	}
	if !s.HasObject(h1) {
		t.Fatalf("HasObject false after WriteObject")
	}
}

func TestMemStoreUpdateRefCompareAndSet(t *testing.T) {
	s := NewMemStore()
	h1, _ := s.WriteObject(KindCommit, []byte("commit-1"))
	h2, _ := s.WriteObject(KindCommit, []byte("commit-2"))

	if err := s.UpdateRef("refs/heads/master", h1, nil); err != nil {
		t.Fatalf("initial UpdateRef: %s", err)
	}
	if err := s.UpdateRef("refs/heads/master", h2, &h1); err != nil {
		t.Fatalf("fast-forward UpdateRef: %s", err)
	}

	var wrong githash.Hash
	wrong[0] = 1
	err := s.UpdateRef("refs/heads/master", h1, &wrong)
	if !errors.Is(err, ErrRefRaceLost) {
		t.Fatalf("expected ErrRefRaceLost, got %v", err)
	}
}

func TestMemStoreReadObjectNotFound(t *testing.T) {
	s := NewMemStore()
	_, _, err := s.ReadObject(githash.Hash{})
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}
