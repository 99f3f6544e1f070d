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
	"bytes"
	"fmt"

	"lab.nexedi.com/kirr/git-backup/internal/githash"
)

// parseCommitEdges extracts the tree and parent hashes from the raw,
// canonical bytes of a commit object:
//
//	tree <hex>\n
//	parent <hex>\n    (zero or more)
//	... (author/committer/gpgsig/message, ignored)
func parseCommitEdges(raw []byte) ([]githash.Hash, error) {
	pc, err := ParseCommit(raw)
	if err != nil {
		return nil, err
	}
	// NIPObject commit metadata lists parents before the tree, matching
	// the order buildMetadata and the CBOR wire struct expect.
	edges := make([]githash.Hash, 0, len(pc.Parents)+1)
	edges = append(edges, pc.Parents...)
	edges = append(edges, pc.Tree)
	return edges, nil
}

// ParsedCommit is the decomposed form of a commit object, used by the sync
// engine (parents ordered, tree separate) instead of the flat edge list
// ParseObjectEdges returns for generic traversal.
type ParsedCommit struct {
	Tree    githash.Hash
	Parents []githash.Hash
}

// ParseCommit parses a commit object's raw bytes into tree + ordered
// parents.
func ParseCommit(raw []byte) (ParsedCommit, error) {
	var pc ParsedCommit
	sawTree := false
	for _, line := range bytes.Split(raw, []byte("\n")) {
		if len(line) == 0 {
			break
		}
		switch {
		case bytes.HasPrefix(line, []byte("tree ")):
			h, err := githash.Parse(string(line[len("tree "):]))
			if err != nil {
				return ParsedCommit{}, fmt.Errorf("localgit: parse commit tree: %w", err)
			}
			pc.Tree = h
			sawTree = true
		case bytes.HasPrefix(line, []byte("parent ")):
			h, err := githash.Parse(string(line[len("parent "):]))
			if err != nil {
				return ParsedCommit{}, fmt.Errorf("localgit: parse commit parent: %w", err)
			}
			pc.Parents = append(pc.Parents, h)
		}
	}
	if !sawTree {
		return ParsedCommit{}, fmt.Errorf("localgit: commit object missing tree header")
	}
	return pc, nil
}

// parseTreeEdges extracts every child hash from the raw, canonical bytes of
// a tree object: a sequence of "<mode> <name>\0<20 raw bytes>" entries.
// Gitlink entries (mode 160000, submodules) are reported via
// ParsedTreeEntry.Submodule rather than followed.
func parseTreeEdges(raw []byte) ([]githash.Hash, error) {
	entries, err := ParseTree(raw)
	if err != nil {
		return nil, err
	}
	edges := make([]githash.Hash, 0, len(entries))
	for _, e := range entries {
		if e.Submodule {
			continue
		}
		edges = append(edges, e.Hash)
	}
	return edges, nil
}

// ParsedTreeEntry is one child of a tree object.
type ParsedTreeEntry struct {
	Mode      string
	Name      string
	Hash      githash.Hash
	Submodule bool
}

const gitlinkMode = "160000"

// ParseTree parses a tree object's raw bytes into its entries.
func ParseTree(raw []byte) ([]ParsedTreeEntry, error) {
	var entries []ParsedTreeEntry
	for len(raw) > 0 {
		sp := bytes.IndexByte(raw, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("localgit: malformed tree entry: missing mode separator")
		}
		mode := string(raw[:sp])
		rest := raw[sp+1:]

		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return nil, fmt.Errorf("localgit: malformed tree entry: missing name terminator")
		}
		name := string(rest[:nul])
		rest = rest[nul+1:]

		if len(rest) < githash.Size {
			return nil, fmt.Errorf("localgit: malformed tree entry: truncated hash")
		}
		var h githash.Hash
		copy(h[:], rest[:githash.Size])

		entries = append(entries, ParsedTreeEntry{
			Mode:      mode,
			Name:      name,
			Hash:      h,
			Submodule: mode == gitlinkMode,
		})
		raw = rest[githash.Size:]
	}
	return entries, nil
}

// parseTagEdges extracts the tagged object's hash from the raw, canonical
// bytes of a tag object:
//
//	object <hex>\n
//	type <type>\n
//	tag <name>\n
//	...
func parseTagEdges(raw []byte) ([]githash.Hash, error) {
	h, _, err := ParseTag(raw)
	if err != nil {
		return nil, err
	}
	return []githash.Hash{h}, nil
}

// ParseTag parses a tag object's raw bytes, returning the tagged object's
// hash and its declared type.
func ParseTag(raw []byte) (target githash.Hash, taggedType string, err error) {
	var sawObject, sawType bool
	for _, line := range bytes.Split(raw, []byte("\n")) {
		if len(line) == 0 {
			break
		}
		switch {
		case bytes.HasPrefix(line, []byte("object ")):
			target, err = githash.Parse(string(line[len("object "):]))
			if err != nil {
				return githash.Hash{}, "", fmt.Errorf("localgit: parse tag object: %w", err)
			}
			sawObject = true
		case bytes.HasPrefix(line, []byte("type ")):
			taggedType = string(line[len("type "):])
			sawType = true
		}
	}
	if !sawObject || !sawType {
		return githash.Hash{}, "", fmt.Errorf("localgit: tag object missing object/type header")
	}
	return target, taggedType, nil
}
