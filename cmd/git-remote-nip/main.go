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

// Command git-remote-nip is the git remote helper for "nip::" URLs: it
// lets git push/fetch/clone/pull against a repository whose object graph
// lives on IPFS.
package main

import (
	"context"
	"fmt"
	"os"

	"lab.nexedi.com/kirr/git-backup/internal/remotemain"
)

func main() {
	if err := remotemain.Run(context.Background(), "nip", os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
