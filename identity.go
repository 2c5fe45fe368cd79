// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package livelink

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LoadOrCreateID returns the node identifier stored at path, generating
// and persisting a fresh one when the file is missing or empty. A file
// holding anything other than a UUID is an error.
func LoadOrCreateID(path string) (uuid.UUID, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if s := strings.TrimSpace(string(data)); s != "" {
			id, err := uuid.Parse(s)
			if err != nil {
				return uuid.Nil, fmt.Errorf("livelink: invalid identifier in %q: %w", path, err)
			}
			if id == uuid.Nil {
				return uuid.Nil, fmt.Errorf("livelink: nil identifier in %q", path)
			}
			return id, nil
		}
	case !errors.Is(err, fs.ErrNotExist):
		return uuid.Nil, fmt.Errorf("livelink: could not read identifier: %w", err)
	}

	id := uuid.New()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return uuid.Nil, fmt.Errorf("livelink: could not create identifier dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o600); err != nil {
		return uuid.Nil, fmt.Errorf("livelink: could not store identifier: %w", err)
	}
	return id, nil
}
