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
	"testing"

	"lab.nexedi.com/kirr/git-backup/internal/githash"
)

func TestParseCommit(t *testing.T) {
	tree := githash.ObjectHash("tree", []byte("t"))
	p1 := githash.ObjectHash("commit", []byte("p1"))
	p2 := githash.ObjectHash("commit", []byte("p2"))
	raw := []byte("tree " + tree.String() + "\n" +
		"parent " + p1.String() + "\n" +
		"parent " + p2.String() + "\n" +
		"author a <a@example.com> 0 +0000\n\n" +
		"msg\n")

	pc, err := ParseCommit(raw)
	if err != nil {
		t.Fatalf("ParseCommit: %s", err)
	}
	if pc.Tree != tree {
		t.Fatalf("tree = %s, want %s", pc.Tree, tree)
	}
	if len(pc.Parents) != 2 || pc.Parents[0] != p1 || pc.Parents[1] != p2 {
		t.Fatalf("parents = %v", pc.Parents)
	}
}

func TestParseCommitMissingTree(t *testing.T) {
	_, err := ParseCommit([]byte("author a <a@example.com> 0 +0000\n\nmsg\n"))
	if err == nil {
		t.Fatalf("expected an error for a commit with no tree header")
	}
}

func TestParseTree(t *testing.T) {
	blobHash := githash.ObjectHash("blob", []byte("data"))
	subHash := githash.ObjectHash("commit", []byte("submodule tip"))

	var raw []byte
	raw = append(raw, []byte("100644 file.txt")...)
	raw = append(raw, 0)
	raw = append(raw, blobHash[:]...)
	raw = append(raw, []byte("160000 vendor/lib")...)
	raw = append(raw, 0)
	raw = append(raw, subHash[:]...)

	entries, err := ParseTree(raw)
	if err != nil {
		t.Fatalf("ParseTree: %s", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Name != "file.txt" || entries[0].Hash != blobHash || entries[0].Submodule {
		t.Fatalf("entry 0 = %+v", entries[0])
	}
	if entries[1].Name != "vendor/lib" || entries[1].Hash != subHash || !entries[1].Submodule {
		t.Fatalf("entry 1 = %+v", entries[1])
	}

	edges, err := parseTreeEdges(raw)
	if err != nil {
		t.Fatalf("parseTreeEdges: %s", err)
	}
	if len(edges) != 1 || edges[0] != blobHash {
		t.Fatalf("edges = %v, want [%s] (submodule excluded)", edges, blobHash)
	}
}

func TestParseTag(t *testing.T) {
	target := githash.ObjectHash("commit", []byte("target"))
	raw := []byte("object " + target.String() + "\n" +
		"type commit\n" +
		"tag v1.0\n" +
		"tagger t <t@example.com> 0 +0000\n\n" +
		"release\n")

	got, taggedType, err := ParseTag(raw)
	if err != nil {
		t.Fatalf("ParseTag: %s", err)
	}
	if got != target {
		t.Fatalf("target = %s, want %s", got, target)
	}
	if taggedType != "commit" {
		t.Fatalf("taggedType = %q, want commit", taggedType)
	}
}

func TestParseCommitEdgesOrdersParentsBeforeTree(t *testing.T) {
	tree := githash.ObjectHash("tree", []byte("t"))
	p1 := githash.ObjectHash("commit", []byte("p1"))
	raw := []byte("tree " + tree.String() + "\nparent " + p1.String() + "\n\nmsg\n")

	edges, err := parseCommitEdges(raw)
	if err != nil {
		t.Fatalf("parseCommitEdges: %s", err)
	}
	if len(edges) != 2 || edges[0] != p1 || edges[1] != tree {
		t.Fatalf("edges = %v, want [%s %s]", edges, p1, tree)
	}
}
