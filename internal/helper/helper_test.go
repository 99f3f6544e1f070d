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

package helper

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"lab.nexedi.com/kirr/git-backup/internal/githash"
	"lab.nexedi.com/kirr/git-backup/internal/ipfsstore"
	"lab.nexedi.com/kirr/git-backup/internal/localgit"
	"lab.nexedi.com/kirr/git-backup/internal/syncengine"
)

func writeBlob(t *testing.T, s *localgit.MemStore, content string) githash.Hash {
	t.Helper()
	h, err := s.WriteObject(localgit.KindBlob, []byte(content))
	if err != nil {
		t.Fatalf("write blob: %s", err)
	}
	return h
}

func writeTree(t *testing.T, s *localgit.MemStore, name string, blob githash.Hash) githash.Hash {
	t.Helper()
	var raw []byte
	raw = append(raw, []byte("100644 "+name)...)
	raw = append(raw, 0)
	raw = append(raw, blob[:]...)
	h, err := s.WriteObject(localgit.KindTree, raw)
	if err != nil {
		t.Fatalf("write tree: %s", err)
	}
	return h
}

func writeCommit(t *testing.T, s *localgit.MemStore, tree githash.Hash, parents ...githash.Hash) githash.Hash {
	t.Helper()
	raw := "tree " + tree.String() + "\n"
	for _, p := range parents {
		raw += "parent " + p.String() + "\n"
	}
	raw += "author test <test@example.com> 0 +0000\n"
	raw += "committer test <test@example.com> 0 +0000\n\ntest commit\n"
	h, err := s.WriteObject(localgit.KindCommit, []byte(raw))
	if err != nil {
		t.Fatalf("write commit: %s", err)
	}
	return h
}

func TestCapabilities(t *testing.T) {
	local := localgit.NewMemStore()
	engine := syncengine.New(ipfsstore.NewMemStore(), local, nil)
	s := New(engine, local, "", nil)

	var out bytes.Buffer
	if err := s.Run(context.Background(), strings.NewReader("capabilities\n"), &out); err != nil {
		t.Fatalf("Run: %s", err)
	}
	want := "fetch\npush\n\n"
	if out.String() != want {
		t.Fatalf("capabilities output = %q, want %q", out.String(), want)
	}
}

func TestListEmptyRemote(t *testing.T) {
	local := localgit.NewMemStore()
	engine := syncengine.New(ipfsstore.NewMemStore(), local, nil)
	s := New(engine, local, NewIPFSPlaceholder, nil)

	var out bytes.Buffer
	if err := s.Run(context.Background(), strings.NewReader("list for-push\n"), &out); err != nil {
		t.Fatalf("Run: %s", err)
	}
	if out.String() != "\n" {
		t.Fatalf("list output for an empty new-ipfs remote = %q, want just a blank line", out.String())
	}
}

func TestPushThenListThenFetch(t *testing.T) {
	ctx := context.Background()
	local := localgit.NewMemStore()
	blob := writeBlob(t, local, "hello world\n")
	tree := writeTree(t, local, "hello.txt", blob)
	commit := writeCommit(t, local, tree)

	ipfs := ipfsstore.NewMemStore()
	engine := syncengine.New(ipfs, local, nil)
	s := New(engine, local, NewIPFSPlaceholder, nil)

	var out bytes.Buffer
	pushDialogue := "push refs/heads/master:refs/heads/master\n\n"
	if err := s.Run(ctx, strings.NewReader(pushDialogue), &out); err != nil {
		t.Fatalf("Run(push): %s", err)
	}
	if !strings.Contains(out.String(), "ok refs/heads/master\n") {
		t.Fatalf("push output = %q, want an ok line", out.String())
	}
	if s.RemotePath == "" {
		t.Fatalf("RemotePath not updated after push")
	}

	out.Reset()
	if err := s.Run(ctx, strings.NewReader("list for-push\n"), &out); err != nil {
		t.Fatalf("Run(list): %s", err)
	}
	if !strings.Contains(out.String(), commit.String()+" refs/heads/master\n") {
		t.Fatalf("list output = %q, want the pushed commit advertised", out.String())
	}
	if !strings.Contains(out.String(), "@refs/heads/master HEAD\n") {
		t.Fatalf("list output = %q, want a symbolic HEAD line", out.String())
	}

	// Fetch into a fresh repository using the same remote path the push
	// just produced.
	dst := localgit.NewMemStore()
	fetchEngine := syncengine.New(ipfs, dst, nil)
	fetchSession := New(fetchEngine, dst, s.RemotePath, nil)

	out.Reset()
	fetchDialogue := "fetch " + commit.String() + " refs/heads/master\n\n"
	if err := fetchSession.Run(ctx, strings.NewReader(fetchDialogue), &out); err != nil {
		t.Fatalf("Run(fetch): %s", err)
	}
	if out.String() != "\n" {
		t.Fatalf("fetch output = %q, want just a blank line", out.String())
	}
	if !dst.HasObject(commit) {
		t.Fatalf("commit missing in destination after fetch")
	}
	refs, err := dst.ListRefs()
	if err != nil {
		t.Fatalf("list refs: %s", err)
	}
	if len(refs) != 0 {
		t.Fatalf("fetch must not write local refs, got %v", refs)
	}
}

func TestPushRejectsUnknownLocalRef(t *testing.T) {
	local := localgit.NewMemStore()
	engine := syncengine.New(ipfsstore.NewMemStore(), local, nil)
	s := New(engine, local, NewIPFSPlaceholder, nil)

	var out bytes.Buffer
	dialogue := "push refs/heads/nonexistent:refs/heads/master\n\n"
	if err := s.Run(context.Background(), strings.NewReader(dialogue), &out); err != nil {
		t.Fatalf("Run: %s", err)
	}
	if !strings.Contains(out.String(), "error refs/heads/master") {
		t.Fatalf("push output = %q, want an error line for the unresolvable src", out.String())
	}
}

func TestPushDelete(t *testing.T) {
	local := localgit.NewMemStore()
	engine := syncengine.New(ipfsstore.NewMemStore(), local, nil)
	s := New(engine, local, NewIPFSPlaceholder, nil)

	var out bytes.Buffer
	dialogue := "push :refs/heads/master\n\n"
	if err := s.Run(context.Background(), strings.NewReader(dialogue), &out); err != nil {
		t.Fatalf("Run: %s", err)
	}
	if !strings.Contains(out.String(), "error refs/heads/master") {
		t.Fatalf("push output = %q, want a not-supported error for a delete", out.String())
	}
}
