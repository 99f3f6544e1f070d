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
	"sync"

	"lab.nexedi.com/kirr/git-backup/internal/githash"
)

type memObject struct {
	kind ObjectKind
	raw  []byte
}

// MemStore is an in-memory Store, used by internal/syncengine's test suite
// (and by tests in this package) so push/fetch algorithms can be exercised
// without a real repository or libgit2 present.
type MemStore struct {
	mu      sync.RWMutex
	objects map[githash.Hash]memObject
	refs    map[string]githash.Hash
}

// NewMemStore returns an empty in-memory git object store.
func NewMemStore() *MemStore {
	return &MemStore{
		objects: map[githash.Hash]memObject{},
		refs:    map[string]githash.Hash{},
	}
}

func (s *MemStore) HasObject(h githash.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[h]
	return ok
}

func (s *MemStore) ReadObject(h githash.Hash) (ObjectKind, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[h]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrObjectNotFound, h)
	}
	raw := make([]byte, len(obj.raw))
	copy(raw, obj.raw)
	return obj.kind, raw, nil
}

func (s *MemStore) WriteObject(kind ObjectKind, raw []byte) (githash.Hash, error) {
	h := githash.ObjectHash(string(kind), raw)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[h]; !ok {
		cp := make([]byte, len(raw))
		copy(cp, raw)
		s.objects[h] = memObject{kind: kind, raw: cp}
	}
	return h, nil
}

func (s *MemStore) ListRefs() (map[string]githash.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]githash.Hash, len(s.refs))
	for k, v := range s.refs {
		out[k] = v
	}
	return out, nil
}

func (s *MemStore) UpdateRef(ref string, newHash githash.Hash, expectedOld *githash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.refs[ref]
	if expectedOld != nil {
		switch {
		case !exists && !expectedOld.IsZero():
			return &RefRaceError{Ref: ref, Expected: *expectedOld}
		case exists && current != *expectedOld:
			return &RefRaceError{Ref: ref, Expected: *expectedOld, Observed: current}
		}
	}
	s.refs[ref] = newHash
	return nil
}

func (s *MemStore) ParseObjectEdges(kind ObjectKind, raw []byte) ([]githash.Hash, error) {
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

var _ Store = (*MemStore)(nil)
