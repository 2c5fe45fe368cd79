// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package telemetry holds the Prometheus collectors shared by the
// transport, the message pool and the discovery service.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livelink"

var (
	Registry = prometheus.NewRegistry()

	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Application messages written, by channel.",
		},
		[]string{"channel"},
	)

	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Application messages delivered, by channel.",
		},
		[]string{"channel"},
	)

	BytesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Payload bytes written, by channel.",
		},
		[]string{"channel"},
	)

	DatagramsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_dropped_total",
			Help:      "Incoming datagrams discarded, by reason.",
		},
		[]string{"reason"},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently in the connected state.",
		},
	)

	Disconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Sessions ended, by disconnect status.",
		},
		[]string{"status"},
	)

	HandshakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_duration_seconds",
			Help:      "Time from socket open to connected state.",
			// 1ms .. ~4s.
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
		},
	)

	PoolAcquires = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_acquires_total",
			Help:      "Message pool acquisitions, by result (hit or miss).",
		},
		[]string{"result"},
	)

	PoolFrees = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_frees_total",
			Help:      "Released messages whose oversized buffer was dropped.",
		},
	)

	DiscoveryPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_packets_total",
			Help:      "Discovery packets, by direction and kind.",
		},
		[]string{"direction", "kind"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Always 1; labels carry the program and transport protocol versions.",
		},
		[]string{"version", "protocol"},
	)
)

func init() {
	Registry.MustRegister(
		MessagesSent, MessagesReceived, BytesSent, DatagramsDropped,
		SessionsActive, Disconnects, HandshakeDuration,
		PoolAcquires, PoolFrees, DiscoveryPackets,
		buildInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
	)
}

// MetricsHandler serves Registry in the Prometheus exposition format. A
// collector that fails is reported in the response without hiding the
// others.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		Registry:      Registry,
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// SetBuildInfo records the running program version and the transport
// protocol version it speaks.
func SetBuildInfo(version, protocol string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, protocol).Set(1)
}
