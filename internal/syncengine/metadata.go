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

	"lab.nexedi.com/kirr/git-backup/internal/localgit"
	"lab.nexedi.com/kirr/git-backup/internal/nipobject"
)

// buildMetadata re-parses raw into the precise NIPObject metadata shape,
// distinct from local.ParseObjectEdges (which only yields a flat edge list
// for traversal and cannot express the submodule-tip marker).
func buildMetadata(kind localgit.ObjectKind, raw []byte) (nipobject.Metadata, error) {
	switch kind {
	case localgit.KindCommit:
		pc, err := localgit.ParseCommit(raw)
		if err != nil {
			return nipobject.Metadata{}, err
		}
		return nipobject.Metadata{Kind: nipobject.KindCommit, CommitParents: pc.Parents, CommitTree: pc.Tree}, nil
	case localgit.KindTree:
		entries, err := localgit.ParseTree(raw)
		if err != nil {
			return nipobject.Metadata{}, err
		}
		out := make([]nipobject.TreeEntry, len(entries))
		for i, e := range entries {
			out[i] = nipobject.TreeEntry{Hash: e.Hash, Submodule: e.Submodule}
		}
		return nipobject.Metadata{Kind: nipobject.KindTree, TreeEntries: out}, nil
	case localgit.KindBlob:
		return nipobject.Metadata{Kind: nipobject.KindBlob}, nil
	case localgit.KindTag:
		target, _, err := localgit.ParseTag(raw)
		if err != nil {
			return nipobject.Metadata{}, err
		}
		return nipobject.Metadata{Kind: nipobject.KindTag, TagTarget: target}, nil
	default:
		return nipobject.Metadata{}, fmt.Errorf("syncengine: unknown local object kind %q", kind)
	}
}
