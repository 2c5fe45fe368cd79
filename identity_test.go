// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package livelink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateID(t *testing.T) {
	t.Run("creates_then_reloads", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state", "node_id")

		id, err := LoadOrCreateID(path)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, id)

		again, err := LoadOrCreateID(path)
		require.NoError(t, err)
		assert.Equal(t, id, again)
	})

	t.Run("empty_file_is_replaced", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "node_id")
		require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))

		id, err := LoadOrCreateID(path)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, id)
	})

	t.Run("garbage_is_an_error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "node_id")
		require.NoError(t, os.WriteFile(path, []byte("not-a-uuid"), 0o600))

		_, err := LoadOrCreateID(path)
		assert.Error(t, err)
	})

	t.Run("nil_is_an_error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "node_id")
		require.NoError(t, os.WriteFile(path, []byte(uuid.Nil.String()), 0o600))

		_, err := LoadOrCreateID(path)
		assert.Error(t, err)
	})
}
