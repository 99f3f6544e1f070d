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

// Package config resolves the handful of settings the helper binaries need
// before they can dial IPFS: the daemon's HTTP API endpoint and the
// requested logging verbosity. A git remote helper is invoked by git with a
// fixed argv ("git-remote-nip <remote> <url>"), so everything else is
// sourced from the environment rather than flags.
package config

import (
	"os"
	"strconv"
	"time"

	"lab.nexedi.com/kirr/git-backup/internal/ipfsstore"
	"lab.nexedi.com/kirr/git-backup/internal/logging"
)

// EnvIPFSAPI is the environment variable that overrides the default local
// daemon endpoint, the same name the pack's git-remote-ipfs prior art uses.
const EnvIPFSAPI = "IPFS_API"

// EnvVerbose, when set to a parseable integer, overrides the default
// logging verbosity (git gives a remote helper no flags of its own to
// receive -v/-q through).
const EnvVerbose = "NIP_VERBOSE"

// DefaultTimeout bounds every individual IPFS daemon request.
const DefaultTimeout = 30 * time.Second

// Config is the resolved runtime configuration for a helper invocation.
type Config struct {
	IPFSEndpoint string
	Timeout      time.Duration
	Verbosity    logging.Verbosity
}

// FromEnvironment resolves Config from the process environment, falling
// back to ipfsstore.DefaultEndpoint and Info-level logging.
func FromEnvironment() Config {
	endpoint := os.Getenv(EnvIPFSAPI)
	if endpoint == "" {
		endpoint = ipfsstore.DefaultEndpoint
	}
	return Config{
		IPFSEndpoint: endpoint,
		Timeout:      DefaultTimeout,
		Verbosity:    parseVerbosity(os.Getenv(EnvVerbose)),
	}
}

func parseVerbosity(s string) logging.Verbosity {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return logging.Verbosity(n)
}
