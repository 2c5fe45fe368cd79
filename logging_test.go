// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package livelink

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	t.Run("levels_filter_output", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLoggerWithWriter(&buf, LogLevelWarn)

		l.Info("hidden %d", 1)
		l.Warn("shown %d", 2)
		l.Error("shown %d", 3)
		_ = l.Sync()

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "shown 2")
		assert.Contains(t, out, "shown 3")
	})

	t.Run("trace_carries_field", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLoggerWithWriter(&buf, LogLevelTrace).Named("node").With("id", "abc")
		l.Trace("dropped datagram")
		_ = l.Sync()

		out := buf.String()
		assert.Contains(t, out, "dropped datagram")
		assert.Contains(t, out, "livelink.node")
		assert.Contains(t, out, `"trace": true`)
		assert.Contains(t, out, `"id": "abc"`)
	})

	t.Run("set_level", func(t *testing.T) {
		l := NewLoggerWithWriter(&bytes.Buffer{}, LogLevelError)
		assert.False(t, l.IsEnabled(LogLevelDebug))
		l.SetLevel(LogLevelDebug)
		assert.True(t, l.IsEnabled(LogLevelDebug))
		assert.Equal(t, LogLevelDebug, l.GetLevel())
	})

	t.Run("children_follow_parent_level", func(t *testing.T) {
		var buf bytes.Buffer
		parent := NewLoggerWithWriter(&buf, LogLevelInfo)
		child := parent.Named("session").With("peer", "10.0.0.2:5000")

		child.Debug("before %d", 1)
		parent.SetLevel(LogLevelDebug)
		child.Debug("after %d", 2)
		_ = child.Sync()

		assert.True(t, child.IsEnabled(LogLevelDebug))
		assert.NotContains(t, buf.String(), "before 1")
		assert.Contains(t, buf.String(), "after 2")

		child.SetLevel(LogLevelError)
		assert.Equal(t, LogLevelError, parent.GetLevel())
	})

	t.Run("from_zap", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		l := NewLoggerFromZap(zap.New(core), LogLevelDebug)
		l.Named("discovery").Warn("lost %s", "cam-1")
		l.Trace("not written")

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, "lost cam-1", entry.Message)
		assert.Equal(t, zapcore.WarnLevel, entry.Level)
		assert.Equal(t, "livelink.discovery", entry.LoggerName)
	})

	t.Run("parse_level", func(t *testing.T) {
		lvl, ok := ParseLogLevel("WARN")
		assert.True(t, ok)
		assert.Equal(t, LogLevelWarn, lvl)

		_, ok = ParseLogLevel("verbose")
		assert.False(t, ok)
	})
}
