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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// MemStore is an in-memory Store, content-addressed by the SHA-256 of the
// stored bytes (mirroring IPFS's own content-addressing, though the
// resulting identifiers are not valid IPFS CIDs). It exists so the sync
// engine and migration engine can be tested without a live IPFS daemon;
// do not use it in production - NewShellStore is the real adapter.
type MemStore struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	pinLog  []string // order blobs were Put in, for test introspection
	failGet map[string]bool
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{blobs: map[string][]byte{}}
}

func memCID(data []byte) string {
	sum := sha256.Sum256(data)
	return "memfake:" + hex.EncodeToString(sum[:])
}

func (s *MemStore) Put(_ context.Context, data []byte) (string, error) {
	cid := memCID(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[cid]; !ok {
		// copy, so the caller mutating data afterwards cannot corrupt us
		cp := make([]byte, len(data))
		copy(cp, data)
		s.blobs[cid] = cp
		s.pinLog = append(s.pinLog, cid)
	}
	return cid, nil
}

func (s *MemStore) Get(_ context.Context, cid string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failGet[cid] {
		return nil, WrapUnreachable("memfake", fmt.Errorf("forced failure for %s", cid))
	}
	data, ok := s.blobs[cid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cid)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *MemStore) Resolve(_ context.Context, path string) (string, error) {
	cid := strings.TrimPrefix(path, "/ipfs/")
	cid = strings.TrimPrefix(cid, "/ipns/")
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.blobs[cid]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return cid, nil
}

// SimulateUnreachable makes future Get calls for cid fail with
// ErrUnreachable, for exercising the daemon-down failure path in tests.
func (s *MemStore) SimulateUnreachable(cid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet == nil {
		s.failGet = map[string]bool{}
	}
	s.failGet[cid] = true
}

// PutCount returns the number of distinct blobs ever stored, used by
// deduplication tests to assert a repeated Put of identical content did
// not grow the store.
func (s *MemStore) PutCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pinLog)
}

var _ Store = (*MemStore)(nil)
