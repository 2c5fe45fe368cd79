// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package discovery

import "syscall"

// control is a no-op where port sharing is not available; only one
// discovery service per host can bind the well-known port there.
func control(network, address string, c syscall.RawConn) error {
	return nil
}
