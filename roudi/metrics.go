// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package roudi

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"code.hybscloud.com/shmipc/mempool"
)

// Metrics holds the introspection gauges/counters the spec keeps in scope
// as a data source, even though the publishing mechanism (an HTTP
// exporter, a separate introspection port, ...) is left to the embedding
// application.
type Metrics struct {
	MemPoolUsedChunks    *prometheus.GaugeVec
	MemPoolNumChunks     *prometheus.GaugeVec
	QueueDepth           *prometheus.GaugeVec
	LostChunksTotal      *prometheus.CounterVec
	FatalViolationsTotal prometheus.Counter
}

// NewMetrics creates and registers the daemon's Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		MemPoolUsedChunks: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shmipc_mempool_used_chunks",
				Help: "Chunks currently allocated, per mempool index",
			},
			[]string{"mempool_index"},
		),
		MemPoolNumChunks: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shmipc_mempool_num_chunks",
				Help: "Total chunk capacity, per mempool index",
			},
			[]string{"mempool_index"},
		),
		QueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "shmipc_queue_depth",
				Help: "Approximate occupancy of a port's queue",
			},
			[]string{"queue_id"},
		),
		LostChunksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shmipc_lost_chunks_total",
				Help: "Chunks evicted by DISCARD_OLDEST_DATA overflow, per queue",
			},
			[]string{"queue_id"},
		),
		FatalViolationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "shmipc_fatal_violations_total",
				Help: "Fatal CaPro contract violations observed by the PortManager",
			},
		),
	}
}

// ObserveMemPool samples one mempool's used/total chunk counts.
func (m *Metrics) ObserveMemPool(index uint32, p *mempool.Pool) {
	label := prometheus.Labels{"mempool_index": strconv.FormatUint(uint64(index), 10)}
	m.MemPoolUsedChunks.With(label).Set(float64(p.UsedChunks()))
	m.MemPoolNumChunks.With(label).Set(float64(p.Capacity()))
}

// ObserveQueue samples one queue's approximate depth.
func (m *Metrics) ObserveQueue(queueID uint64, depth int64) {
	m.QueueDepth.WithLabelValues(strconv.FormatUint(queueID, 10)).Set(float64(depth))
}

// RecordLostChunk increments the lost-chunk counter for a queue.
func (m *Metrics) RecordLostChunk(queueID uint64) {
	m.LostChunksTotal.WithLabelValues(strconv.FormatUint(queueID, 10)).Inc()
}

// RecordFatalViolation increments the fatal-violation counter. Called by
// DaemonContext.Fatal's handler, if the embedding application wires metrics
// in as its FatalHandler.
func (m *Metrics) RecordFatalViolation() { m.FatalViolationsTotal.Inc() }
