// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package telemetry

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsHandler(t *testing.T) {
	SetBuildInfo("test", "1.0.0.0")
	MessagesSent.WithLabelValues("reliable-ordered").Add(3)
	Disconnects.WithLabelValues("timeout").Inc()
	DiscoveryPackets.WithLabelValues("out", "advertisement").Inc()

	body := scrape(t)
	assert.Contains(t, body, `livelink_messages_sent_total{channel="reliable-ordered"}`)
	assert.Contains(t, body, `livelink_disconnects_total{status="timeout"}`)
	assert.Contains(t, body, `livelink_discovery_packets_total{direction="out",kind="advertisement"}`)
	assert.Contains(t, body, `livelink_build_info{protocol="1.0.0.0",version="test"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
