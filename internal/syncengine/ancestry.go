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
	"lab.nexedi.com/kirr/git-backup/internal/githash"
	"lab.nexedi.com/kirr/git-backup/internal/localgit"
)

// isAncestor reports whether ancestor is reachable from descendant by
// following commit parent edges only (never descending into trees), used
// to decide whether a ref update is a fast-forward. Both hashes must name
// commits present in local; an object missing locally is reported as "not
// an ancestor" rather than an error, since the caller treats that the same
// way - reject the fast-forward and let the operator force if they mean it.
func isAncestor(local localgit.Store, ancestor, descendant githash.Hash) bool {
	if ancestor == descendant {
		return true
	}
	seen := githash.NewSet()
	queue := []githash.Hash{descendant}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if seen.Contains(h) {
			continue
		}
		seen.Add(h)

		kind, raw, err := local.ReadObject(h)
		if err != nil || kind != localgit.KindCommit {
			continue
		}
		pc, err := localgit.ParseCommit(raw)
		if err != nil {
			continue
		}
		for _, parent := range pc.Parents {
			if parent == ancestor {
				return true
			}
			if !seen.Contains(parent) {
				queue = append(queue, parent)
			}
		}
	}
	return false
}
