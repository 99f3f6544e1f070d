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

package githash

import (
	"sort"
	"testing"
)

func TestParseStringRoundTrip(t *testing.T) {
	h := ObjectHash("blob", []byte("hello"))
	s := h.String()
	got, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse: %s", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch")
	}
}

func TestParseInvalidLength(t *testing.T) {
	if _, err := Parse("deadbeef"); err == nil {
		t.Fatalf("expected an error for a short hex string")
	}
}

func TestObjectHashMatchesGitConvention(t *testing.T) {
	// `printf hello | git hash-object --stdin -t blob` = b6fc4c620b67d95f953a5c1c1230aaab5db5a1b0
	got := ObjectHash("blob", []byte("hello"))
	want := "b6fc4c620b67d95f953a5c1c1230aaab5db5a1b0"
	if got.String() != want {
		t.Fatalf("ObjectHash = %s, want %s", got.String(), want)
	}
}

func TestSet(t *testing.T) {
	s := NewSet()
	h := ObjectHash("blob", []byte("x"))
	if s.Contains(h) {
		t.Fatalf("empty set should not contain h")
	}
	s.Add(h)
	if !s.Contains(h) || s.Len() != 1 {
		t.Fatalf("Add/Contains/Len mismatch")
	}
	s.Remove(h)
	if s.Contains(h) || s.Len() != 0 {
		t.Fatalf("Remove did not clear h")
	}
}

func TestByHashSortsAscending(t *testing.T) {
	a := ObjectHash("blob", []byte("a"))
	b := ObjectHash("blob", []byte("b"))
	list := ByHash{b, a}
	sort.Sort(list)
	if list[0].String() > list[1].String() {
		t.Fatalf("ByHash did not sort ascending: %v", list)
	}
}
