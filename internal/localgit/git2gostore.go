// Copyright (C) 2025  Nexedi SA and Contributors.
//                     Kirill Smelkov <kirr@nexedi.com>
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
	"fmt"
	"runtime"

	git2go "github.com/libgit2/git2go/v31"

	"lab.nexedi.com/kirr/git-backup/internal/githash"
)

// Git2goStore is the real Store, backed by libgit2 via git2go/v31.
//
// Like git-backup's own libgit2 wrapper before it, every method here copies
// bytes out of cgo-owned memory before returning, and calls
// runtime.KeepAlive on the git2go handle afterwards: a git2go.OdbObject's
// Data() aliases memory that can be freed out from under a []byte the
// instant the OdbObject becomes unreachable, and that is exactly the kind
// of bug that is invisible until it crashes in production.
type Git2goStore struct {
	repo *git2go.Repository
}

// OpenGit2goStore opens the bare (or non-bare) git repository at path.
func OpenGit2goStore(path string) (*Git2goStore, error) {
	repo, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, fmt.Errorf("localgit: open %s: %w", path, err)
	}
	return &Git2goStore{repo: repo}, nil
}

func toOid(h githash.Hash) *git2go.Oid {
	oid := git2go.Oid{}
	copy(oid[:], h[:])
	return &oid
}

func fromOid(oid *git2go.Oid) githash.Hash {
	var h githash.Hash
	copy(h[:], oid[:])
	return h
}

func kindToGit2go(kind ObjectKind) git2go.ObjectType {
	switch kind {
	case KindCommit:
		return git2go.ObjectCommit
	case KindTree:
		return git2go.ObjectTree
	case KindBlob:
		return git2go.ObjectBlob
	case KindTag:
		return git2go.ObjectTag
	default:
		return git2go.ObjectInvalid
	}
}

func kindFromGit2go(t git2go.ObjectType) ObjectKind {
	switch t {
	case git2go.ObjectCommit:
		return KindCommit
	case git2go.ObjectTree:
		return KindTree
	case git2go.ObjectBlob:
		return KindBlob
	case git2go.ObjectTag:
		return KindTag
	default:
		return ""
	}
}

func (s *Git2goStore) odb() (*git2go.Odb, error) {
	odb, err := s.repo.Odb()
	if err != nil {
		return nil, fmt.Errorf("localgit: odb not ready: %w", err)
	}
	return odb, nil
}

func (s *Git2goStore) HasObject(h githash.Hash) bool {
	odb, err := s.odb()
	if err != nil {
		return false
	}
	exists := odb.Exists(toOid(h))
	runtime.KeepAlive(s.repo)
	return exists
}

func (s *Git2goStore) ReadObject(h githash.Hash) (ObjectKind, []byte, error) {
	odb, err := s.odb()
	if err != nil {
		return "", nil, err
	}
	obj, err := odb.Read(toOid(h))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %s", ErrObjectNotFound, h, err)
	}
	kind := kindFromGit2go(obj.Type())
	data := obj.Data()
	raw := make([]byte, len(data))
	copy(raw, data)
	runtime.KeepAlive(obj)
	return kind, raw, nil
}

func (s *Git2goStore) WriteObject(kind ObjectKind, raw []byte) (githash.Hash, error) {
	odb, err := s.odb()
	if err != nil {
		return githash.Hash{}, err
	}
	oid, err := odb.Write(raw, kindToGit2go(kind))
	if err != nil {
		return githash.Hash{}, fmt.Errorf("localgit: write %s object: %w", kind, err)
	}
	h := fromOid(oid)
	runtime.KeepAlive(s.repo)
	return h, nil
}

func (s *Git2goStore) ListRefs() (map[string]githash.Hash, error) {
	iter, err := s.repo.NewReferenceIterator()
	if err != nil {
		return nil, fmt.Errorf("localgit: list refs: %w", err)
	}
	defer iter.Free()

	refs := map[string]githash.Hash{}
	for {
		ref, err := iter.Next()
		if err != nil {
			break // iterator exhausted
		}
		if ref.Type() != git2go.ReferenceOid {
			continue // skip symbolic refs (e.g. HEAD)
		}
		refs[ref.Name()] = fromOid(ref.Target())
	}
	return refs, nil
}

func (s *Git2goStore) UpdateRef(ref string, newHash githash.Hash, expectedOld *githash.Hash) error {
	if expectedOld != nil {
		current, err := s.repo.References.Lookup(ref)
		exists := err == nil
		switch {
		case !exists && !expectedOld.IsZero():
			return &RefRaceError{Ref: ref, Expected: *expectedOld}
		case exists:
			observed := fromOid(current.Target())
			if observed != *expectedOld {
				return &RefRaceError{Ref: ref, Expected: *expectedOld, Observed: observed}
			}
		}
	}
	_, err := s.repo.References.Create(ref, toOid(newHash), true, "nip: update-ref")
	if err != nil {
		return fmt.Errorf("localgit: update-ref %s: %w", ref, err)
	}
	return nil
}

func (s *Git2goStore) ParseObjectEdges(kind ObjectKind, raw []byte) ([]githash.Hash, error) {
	switch kind {
	case KindCommit:
		return parseCommitEdges(raw)
	case KindTree:
		return parseTreeEdges(raw)
	case KindTag:
		return parseTagEdges(raw)
	case KindBlob:
		return nil, nil
	default:
		return nil, fmt.Errorf("localgit: unknown object kind %q", kind)
	}
}
