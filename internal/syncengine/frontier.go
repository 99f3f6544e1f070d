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

package syncengine

import (
	"fmt"

	"lab.nexedi.com/kirr/git-backup/internal/githash"
	"lab.nexedi.com/kirr/git-backup/internal/localgit"
)

// childrenFirstOrder walks the local object graph starting from roots,
// following edges via local.ParseObjectEdges, and returns every reachable
// object not already present in known, ordered so that every edge of an
// object appears before the object itself ("children-first"), plus each
// object's layer: the length of the longest edge chain below it among
// objects also being uploaded. Two objects in the same layer share no
// dependency and can be uploaded concurrently; an object's layer is always
// higher than the layer of each of its edges, though order itself may list
// a lower-layer object after a higher-layer one. A missing local object is a fatal
// ErrMissingObject - the local repository is expected to be a complete
// superset of what it asks to push.
func childrenFirstOrder(local localgit.Store, roots []githash.Hash, known githash.Set) ([]githash.Hash, map[githash.Hash]int, error) {
	visited := githash.NewSet()
	level := map[githash.Hash]int{}
	var order []githash.Hash

	var visit func(h githash.Hash) error
	visit = func(h githash.Hash) error {
		if known.Contains(h) || visited.Contains(h) {
			return nil
		}
		visited.Add(h)

		kind, raw, err := local.ReadObject(h)
		if err != nil {
			return fmt.Errorf("%w: %s: %s", ErrMissingObject, h, err)
		}
		edges, err := local.ParseObjectEdges(kind, raw)
		if err != nil {
			return fmt.Errorf("%w: parsing %s: %s", ErrLocalGitError, h, err)
		}
		lvl := 0
		for _, e := range edges {
			if e.IsZero() {
				continue // a root commit's parent list is simply empty, never a zero entry; zero only guards against a malformed edge
			}
			if err := visit(e); err != nil {
				return err
			}
			if l, ok := level[e]; ok && l+1 > lvl {
				lvl = l + 1
			}
		}
		level[h] = lvl
		order = append(order, h)
		return nil
	}

	for _, root := range sortedHashes(rootSet(roots)) {
		if err := visit(root); err != nil {
			return nil, nil, err
		}
	}
	return order, level, nil
}

// layerize groups order by level (0, 1, 2, ...) for level-by-level
// bounded-concurrent processing: every object's edges lie in a strictly
// lower level, so a layer's objects share no dependency on each other,
// though the layers of a traversal spanning several roots need not appear
// contiguously in order itself.
func layerize(order []githash.Hash, level map[githash.Hash]int) [][]githash.Hash {
	maxLevel := -1
	for _, h := range order {
		if l := level[h]; l > maxLevel {
			maxLevel = l
		}
	}
	if maxLevel < 0 {
		return nil
	}
	layers := make([][]githash.Hash, maxLevel+1)
	for _, h := range order {
		l := level[h]
		layers[l] = append(layers[l], h)
	}
	return layers
}

func rootSet(roots []githash.Hash) githash.Set {
	s := githash.NewSet()
	for _, h := range roots {
		s.Add(h)
	}
	return s
}
