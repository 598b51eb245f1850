package kvstore

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Counters exposes the core's runtime counters both to Prometheus scraping
// and to the COUNTERS_GET command.
type Counters struct {
	KeysAdded        prometheus.Counter
	KeysUpdated      prometheus.Counter
	KeysExpired      prometheus.Counter
	KeysFiltered     prometheus.Counter
	FloodsSent       prometheus.Counter
	FloodsLooped     prometheus.Counter
	SyncsCompleted   prometheus.Counter
	SyncsFailed      prometheus.Counter
	MalformedCommands prometheus.Counter
	StoreSize        prometheus.Gauge
	PeerCount        prometheus.Gauge
}

// NewCounters registers a fresh counter set under reg. Callers should
// pass a dedicated *prometheus.Registry per node (rather than the global
// DefaultRegisterer) so that multiple in-process nodes, as the
// interactive demo runs, don't collide on metric names.
func NewCounters(reg *prometheus.Registry, nodeID NodeID) *Counters {
	labels := prometheus.Labels{"node_id": string(nodeID)}
	c := &Counters{
		KeysAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_keys_added_total", Help: "Keys newly inserted via merge.", ConstLabels: labels,
		}),
		KeysUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_keys_updated_total", Help: "Keys whose value was replaced via merge.", ConstLabels: labels,
		}),
		KeysExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_keys_expired_total", Help: "Keys removed by TTL expiry.", ConstLabels: labels,
		}),
		KeysFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_keys_filtered_total", Help: "Incoming records rejected by a configured filter.", ConstLabels: labels,
		}),
		FloodsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_floods_sent_total", Help: "Flood messages sent to peers.", ConstLabels: labels,
		}),
		FloodsLooped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_floods_looped_total", Help: "Flood messages suppressed by the node-id trail.", ConstLabels: labels,
		}),
		SyncsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_syncs_completed_total", Help: "Full syncs that completed successfully.", ConstLabels: labels,
		}),
		SyncsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_syncs_failed_total", Help: "Full syncs that failed or timed out.", ConstLabels: labels,
		}),
		MalformedCommands: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvstore_malformed_commands_total", Help: "Command requests rejected as malformed.", ConstLabels: labels,
		}),
		StoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kvstore_store_size", Help: "Current number of keys held.", ConstLabels: labels,
		}),
		PeerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kvstore_peer_count", Help: "Current number of registered peers.", ConstLabels: labels,
		}),
	}
	reg.MustRegister(c.KeysAdded, c.KeysUpdated, c.KeysExpired, c.KeysFiltered,
		c.FloodsSent, c.FloodsLooped, c.SyncsCompleted, c.SyncsFailed,
		c.MalformedCommands, c.StoreSize, c.PeerCount)
	return c
}

// Snapshot reads every counter/gauge's current value for a COUNTERS_GET
// reply (wire.Counters), since Prometheus collectors don't expose a plain
// "read the value back" accessor.
func (c *Counters) Snapshot() map[string]float64 {
	read := func(m prometheus.Metric) float64 {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			return 0
		}
		if pb.Counter != nil {
			return pb.Counter.GetValue()
		}
		if pb.Gauge != nil {
			return pb.Gauge.GetValue()
		}
		return 0
	}
	return map[string]float64{
		"keys_added":         read(c.KeysAdded),
		"keys_updated":       read(c.KeysUpdated),
		"keys_expired":       read(c.KeysExpired),
		"keys_filtered":      read(c.KeysFiltered),
		"floods_sent":        read(c.FloodsSent),
		"floods_looped":      read(c.FloodsLooped),
		"syncs_completed":    read(c.SyncsCompleted),
		"syncs_failed":       read(c.SyncsFailed),
		"malformed_commands": read(c.MalformedCommands),
		"store_size":         read(c.StoreSize),
		"peer_count":         read(c.PeerCount),
	}
}
