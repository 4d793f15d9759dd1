// Copyright (c) 2012-2024 Eli Janssen
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package imgproxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace used for Prometheus metrics.
const MetricNamespace = "gateway"
const MetricSubsystem = "image_proxy"

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricNamespace,
			Subsystem: MetricSubsystem,
			Name:      "requests_total",
			Help:      "Image proxy requests, by outcome.",
		},
		[]string{"outcome"},
	)
	fetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricNamespace,
			Subsystem: MetricSubsystem,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent fetching images from upstream.",
			Buckets:   prometheus.ExponentialBuckets(0.025, 2, 10),
		},
	)
	bytesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricNamespace,
			Subsystem: MetricSubsystem,
			Name:      "relayed_bytes_total",
			Help:      "Image bytes written to clients.",
		},
	)
	fallbackFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricNamespace,
			Subsystem: MetricSubsystem,
			Name:      "fallback_failed_total",
			Help:      "The number of requests where the fallback asset could not be served.",
		},
	)
	responseFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricNamespace,
			Subsystem: MetricSubsystem,
			Name:      "responses_failed_total",
			Help:      "The number of responses that failed to send to the client.",
		},
	)
)
