// Package linkstats tracks the process-wide link-quality counters
// (rssi_dbm, last_rssi_update_ts, total_packets_sent,
// total_packets_resent, derived error_rate/link_quality_score/
// is_connected) and exposes them as Prometheus metrics. The
// mutex-guarded struct implementing prometheus.Collector directly is
// grounded on runZeroInc-conniver/pkg/exporter/exporter.go's
// TCPInfoCollector (Describe enumerates descriptors, Collect computes
// metric values under lock).
package linkstats

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RSSITimeout is the staleness window after which the link is considered
// disconnected.
const RSSITimeout = 3000 * time.Millisecond

// Stats holds the link-quality counters for one engine instance. The
// zero value is not connected and has no traffic recorded yet.
type Stats struct {
	mu sync.Mutex

	rssiDBM         int
	lastRSSIUpdate  time.Time
	totalSent       uint64
	totalResent     uint64
	now             func() time.Time

	descSent       *prometheus.Desc
	descResent     *prometheus.Desc
	descRSSI       *prometheus.Desc
	descErrorRate  *prometheus.Desc
	descQuality    *prometheus.Desc
	descConnected  *prometheus.Desc
}

// New creates Stats with Prometheus descriptors labeled by engineID (the
// xid assigned to the owning engine instance).
func New(engineID string) *Stats {
	constLabels := prometheus.Labels{"engine_id": engineID}
	return &Stats{
		now:           time.Now,
		descSent:      prometheus.NewDesc("rdt_packets_sent_total", "Total packets transmitted, including retransmits.", nil, constLabels),
		descResent:    prometheus.NewDesc("rdt_packets_resent_total", "Total packets retransmitted (send-side timeout or receiver NACK).", nil, constLabels),
		descRSSI:      prometheus.NewDesc("rdt_rssi_dbm", "Last reported received signal strength in dBm.", nil, constLabels),
		descErrorRate: prometheus.NewDesc("rdt_error_rate", "Ratio of resent to sent packets.", nil, constLabels),
		descQuality:   prometheus.NewDesc("rdt_link_quality_score", "Link quality score, 0 (worst) to 5 (best).", nil, constLabels),
		descConnected: prometheus.NewDesc("rdt_is_connected", "1 if an RSSI update was seen within RSSITimeout, else 0.", nil, constLabels),
	}
}

// RecordSend increments the total-sent counter.
func (s *Stats) RecordSend() {
	s.mu.Lock()
	s.totalSent++
	s.mu.Unlock()
}

// RecordResend increments the total-resent counter (send-timeout retry
// or NACK-triggered retransmit).
func (s *Stats) RecordResend() {
	s.mu.Lock()
	s.totalResent++
	s.mu.Unlock()
}

// RecordRSSI stamps a fresh RSSI sample.
func (s *Stats) RecordRSSI(dbm int) {
	s.mu.Lock()
	s.rssiDBM = dbm
	s.lastRSSIUpdate = s.now()
	s.mu.Unlock()
}

// Snapshot is a point-in-time read of every derived counter.
type Snapshot struct {
	RSSIDBM           int
	TotalSent         uint64
	TotalResent       uint64
	ErrorRate         float64
	LinkQualityScore  int
	IsConnected       bool
}

// Snapshot computes the derived fields (error_rate, link_quality_score,
// is_connected) from the raw counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errRate float64
	if s.totalSent > 0 {
		errRate = float64(s.totalResent) / float64(s.totalSent)
	}

	connected := !s.lastRSSIUpdate.IsZero() && s.now().Sub(s.lastRSSIUpdate) <= RSSITimeout

	return Snapshot{
		RSSIDBM:          s.rssiDBM,
		TotalSent:        s.totalSent,
		TotalResent:      s.totalResent,
		ErrorRate:        errRate,
		LinkQualityScore: qualityScore(errRate, connected),
		IsConnected:      connected,
	}
}

// qualityScore maps an error rate (and liveness) onto a 0..5 scale:
// 0 means disconnected or unusable, 5 means clean.
func qualityScore(errRate float64, connected bool) int {
	if !connected {
		return 0
	}
	switch {
	case errRate <= 0:
		return 5
	case errRate < 0.02:
		return 4
	case errRate < 0.05:
		return 3
	case errRate < 0.15:
		return 2
	case errRate < 0.35:
		return 1
	default:
		return 0
	}
}

// Describe implements prometheus.Collector.
func (s *Stats) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.descSent
	ch <- s.descResent
	ch <- s.descRSSI
	ch <- s.descErrorRate
	ch <- s.descQuality
	ch <- s.descConnected
}

// Collect implements prometheus.Collector.
func (s *Stats) Collect(ch chan<- prometheus.Metric) {
	snap := s.Snapshot()

	ch <- prometheus.MustNewConstMetric(s.descSent, prometheus.CounterValue, float64(snap.TotalSent))
	ch <- prometheus.MustNewConstMetric(s.descResent, prometheus.CounterValue, float64(snap.TotalResent))
	ch <- prometheus.MustNewConstMetric(s.descRSSI, prometheus.GaugeValue, float64(snap.RSSIDBM))
	ch <- prometheus.MustNewConstMetric(s.descErrorRate, prometheus.GaugeValue, snap.ErrorRate)
	ch <- prometheus.MustNewConstMetric(s.descQuality, prometheus.GaugeValue, float64(snap.LinkQualityScore))
	connectedVal := 0.0
	if snap.IsConnected {
		connectedVal = 1.0
	}
	ch <- prometheus.MustNewConstMetric(s.descConnected, prometheus.GaugeValue, connectedVal)
}
