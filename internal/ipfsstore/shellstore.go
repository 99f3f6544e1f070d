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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/sirupsen/logrus"
)

// ShellStore talks to a local IPFS daemon's HTTP API via go-ipfs-api, the
// same client the pack's git-remote-ipfs prior art and virtengine's
// RealIPFSClient use.
type ShellStore struct {
	sh       *shell.Shell
	endpoint string
	log      *logrus.Entry
}

// DefaultEndpoint is the default local IPFS daemon HTTP API address, as
// assumed throughout the pack's IPFS-backed prior art.
const DefaultEndpoint = "localhost:5001"

// NewShellStore returns a store bound to the given daemon HTTP API
// endpoint (host:port, no scheme - e.g. "localhost:5001").
func NewShellStore(endpoint string, timeout time.Duration, log *logrus.Entry) *ShellStore {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	sh := shell.NewShell(endpoint)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}
	return &ShellStore{sh: sh, endpoint: endpoint, log: log}
}

func (s *ShellStore) Put(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cid, err := s.sh.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return "", s.wrap(err)
	}
	return cid, nil
}

func (s *ShellStore) Get(ctx context.Context, cid string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := s.sh.Cat(cid)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, cid)
		}
		return nil, s.wrap(err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, s.wrap(err)
	}
	return data, nil
}

func (s *ShellStore) Resolve(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resolved, err := s.sh.Resolve(path)
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", s.wrap(err)
	}
	return resolved, nil
}

// wrap classifies transport errors: a connection failure to the daemon
// becomes ErrUnreachable with an "IPFS not running" hint, since that is
// the most common operator error; anything else is passed through with
// context.
func (s *ShellStore) wrap(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || isConnRefused(err) {
		if s.log != nil {
			s.log.WithError(err).Warn("ipfs daemon unreachable")
		}
		return WrapUnreachable(s.endpoint, err)
	}
	return fmt.Errorf("ipfsstore: %w", err)
}

func isConnRefused(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "no such host") ||
		strings.Contains(err.Error(), "dial tcp")
}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "no link named") ||
		strings.Contains(err.Error(), "not found") ||
		strings.Contains(err.Error(), "invalid path")
}

var _ Store = (*ShellStore)(nil)

// pingTimeout bounds the connectivity probe used when constructing a store
// for the cmd/ mains so a dead daemon fails fast with ErrUnreachable rather
// than hanging on the first real Put/Get.
const pingTimeout = 3 * time.Second

// Ping verifies the daemon is reachable, for an early ErrUnreachable check
// at process startup rather than surprising the user mid-push.
func (s *ShellStore) Ping(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		_, _, err := s.sh.Version()
		errc <- err
	}()
	select {
	case err := <-errc:
		if err != nil {
			return s.wrap(err)
		}
		return nil
	case <-pctx.Done():
		return s.wrap(pctx.Err())
	}
}
