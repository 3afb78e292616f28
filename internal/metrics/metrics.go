// Copyright 2026 The Armored Token authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes counters describing the token handshake.
//
// All methods are safe to call on a nil *Handshake, which records nothing.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aes_token"

// Handshake holds the metrics recorded by a token driver.
type Handshake struct {
	ChunksWritten *prometheus.CounterVec
	ChunksRead    prometheus.Counter
	Polls         *prometheus.CounterVec
	Timeouts      *prometheus.CounterVec
	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram
}

// New creates the handshake metrics and registers them with reg.
func New(reg prometheus.Registerer) *Handshake {
	h := &Handshake{
		ChunksWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_written_total",
			Help:      "Number of 16-bit chunks latched by the core, by vector.",
		}, []string{"vector"}),
		ChunksRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_read_total",
			Help:      "Number of 16-bit ciphertext chunks read back from the core.",
		}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_polls_total",
			Help:      "Number of status register samples taken while waiting, by signal.",
		}, []string{"signal"}),
		Timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wait_timeouts_total",
			Help:      "Number of waits abandoned because the signal never reached the expected level.",
		}, []string{"signal"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Number of encryption runs, by result.",
		}, []string{"result"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of complete encryption runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}

	reg.MustRegister(h.ChunksWritten, h.ChunksRead, h.Polls, h.Timeouts, h.Runs, h.RunDuration)

	return h
}

// ChunkWritten records a chunk handed over to the core.
func (h *Handshake) ChunkWritten(vector string) {
	if h == nil {
		return
	}
	h.ChunksWritten.WithLabelValues(vector).Inc()
}

// ChunkRead records a ciphertext chunk taken from the core.
func (h *Handshake) ChunkRead() {
	if h == nil {
		return
	}
	h.ChunksRead.Inc()
}

// Waited records the outcome of a wait on signal.
func (h *Handshake) Waited(signal string, polls uint64, timedOut bool) {
	if h == nil {
		return
	}
	h.Polls.WithLabelValues(signal).Add(float64(polls))
	if timedOut {
		h.Timeouts.WithLabelValues(signal).Inc()
	}
}

// Run records a completed (or abandoned) encryption run.
func (h *Handshake) Run(result string, d time.Duration) {
	if h == nil {
		return
	}
	h.Runs.WithLabelValues(result).Inc()
	h.RunDuration.Observe(d.Seconds())
}

// WriteFile writes every metric gathered by g to path in the Prometheus
// text exposition format, for collection by a node exporter textfile
// collector. Missing parent directories are created.
func WriteFile(g prometheus.Gatherer, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return prometheus.WriteToTextfile(path, g)
}
