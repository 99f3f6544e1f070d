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

// Package remotemain holds the body shared by cmd/git-remote-nip and
// cmd/git-remote-nipdev: the two binaries differ only in which URL scheme
// prefix they recognize, so both mains reduce to a one-line call into Run
// with their own scheme name.
package remotemain

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mgutz/ansi"
	"github.com/sirupsen/logrus"

	"lab.nexedi.com/kirr/git-backup/internal/config"
	"lab.nexedi.com/kirr/git-backup/internal/helper"
	"lab.nexedi.com/kirr/git-backup/internal/ipfsstore"
	"lab.nexedi.com/kirr/git-backup/internal/localgit"
	"lab.nexedi.com/kirr/git-backup/internal/logging"
	"lab.nexedi.com/kirr/git-backup/internal/syncengine"
)

// Run is the whole body of a git remote helper process: git invokes it as
//
//	git-remote-<scheme> <remote-name> <scheme>::<ipfs-path>
//
// per gitremote-helpers(1). scheme is "nip" or "nipdev"; args is
// os.Args[1:]. stdin/stdout carry the helper dialogue, stderr carries
// logging and the human-readable push report - nothing but protocol lines
// may ever reach stdout.
func Run(ctx context.Context, scheme string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: git-remote-%s <remote-name> <url>", scheme)
	}
	url := args[1]

	remotePath, err := stripScheme(scheme, url)
	if err != nil {
		return err
	}

	cfg := config.FromEnvironment()
	log := logging.New(cfg.Verbosity)
	log.Out = stderr
	entry := logrus.NewEntry(log)

	gitDir := os.Getenv("GIT_DIR")
	if gitDir == "" {
		gitDir = "."
	}
	local, err := localgit.OpenGit2goStore(gitDir)
	if err != nil {
		return fmt.Errorf("git-remote-%s: opening %s: %w", scheme, gitDir, err)
	}

	ipfs := ipfsstore.NewShellStore(cfg.IPFSEndpoint, cfg.Timeout, entry)
	if err := ipfs.Ping(ctx); err != nil {
		return err
	}

	engine := syncengine.New(ipfs, local, entry)
	session := helper.New(engine, local, remotePath, entry)
	session.Report = func(oldPath, newPath string) {
		reportPush(stderr, oldPath, newPath)
	}

	return session.Run(ctx, stdin, stdout)
}

// stripScheme removes the "<scheme>::" prefix git prepends to the URL
// before invoking the helper, per gitremote-helpers(1), and translates the
// "new-ipfs" placeholder to the empty path helper.New expects.
func stripScheme(scheme, url string) (string, error) {
	prefix := scheme + "::"
	if !strings.HasPrefix(url, prefix) {
		return "", fmt.Errorf("git-remote-%s: url %q does not start with %q", scheme, url, prefix)
	}
	path := strings.TrimPrefix(url, prefix)
	if path == helper.NewIPFSPlaceholder {
		return "", nil
	}
	return path, nil
}

// reportPush prints the user-visible "pushed to <path>" line, colored when
// the push actually advanced the top-level path.
func reportPush(w io.Writer, oldPath, newPath string) {
	if oldPath == newPath {
		fmt.Fprintf(w, "nip: pushed, top-level path unchanged: %s\n", newPath)
		return
	}
	var msg string
	if oldPath == "" {
		msg = fmt.Sprintf("nip: pushed new repository to %s", newPath)
	} else {
		msg = fmt.Sprintf("nip: pushed %s -> %s", oldPath, newPath)
	}
	fmt.Fprintln(w, ansi.Color(msg, "green+b"))
}
