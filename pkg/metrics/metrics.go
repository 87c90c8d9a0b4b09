package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cortexmesh/corenet/pkg/congestion"
	"github.com/cortexmesh/corenet/pkg/gossip"
	"github.com/cortexmesh/corenet/pkg/routing"
	"github.com/cortexmesh/corenet/pkg/transport"
)

// Collector implements prometheus.Collector over a live set of
// Connections, the shared routing table, and the gossip node, the same
// register-a-live-object-and-scrape-on-demand shape as exporter.TCPInfoCollector.
type Collector struct {
	mu    sync.Mutex
	conns map[*transport.Connection]connEntry

	table *routing.Table
	node  *gossip.Node

	descs struct {
		connState        *prometheus.Desc
		droppedFrames    *prometheus.Desc
		streamCount      *prometheus.Desc
		congestionWindow *prometheus.Desc
		bytesInFlight    *prometheus.Desc
		routingTableSize *prometheus.Desc
		activeViewSize   *prometheus.Desc
		passiveViewSize  *prometheus.Desc
	}
}

type connEntry struct {
	labels []string
	cong   congestion.Controller
}

// NewCollector builds a Collector scraping table and node in addition to
// whatever Connections are registered with Add. Either may be nil if this
// process does not run that subsystem.
func NewCollector(constLabels prometheus.Labels, table *routing.Table, node *gossip.Node) *Collector {
	c := &Collector{
		conns: make(map[*transport.Connection]connEntry),
		table: table,
		node:  node,
	}
	c.descs.connState = prometheus.NewDesc("corenet_connection_state", "Connection FSM state (0=Closed,1=Init,2=Established,3=Closing).", []string{"peer"}, constLabels)
	c.descs.droppedFrames = prometheus.NewDesc("corenet_connection_dropped_frames_total", "Frames dropped for arriving in an unexpected state.", []string{"peer"}, constLabels)
	c.descs.streamCount = prometheus.NewDesc("corenet_connection_stream_count", "Number of streams currently tracked by a connection.", []string{"peer"}, constLabels)
	c.descs.congestionWindow = prometheus.NewDesc("corenet_congestion_window_bytes", "Current congestion window.", []string{"peer"}, constLabels)
	c.descs.bytesInFlight = prometheus.NewDesc("corenet_bytes_in_flight", "Bytes sent but not yet acknowledged.", []string{"peer"}, constLabels)
	c.descs.routingTableSize = prometheus.NewDesc("corenet_routing_table_entries", "Live entries in the semantic routing table.", nil, constLabels)
	c.descs.activeViewSize = prometheus.NewDesc("corenet_gossip_active_view_size", "HyParView active view size.", nil, constLabels)
	c.descs.passiveViewSize = prometheus.NewDesc("corenet_gossip_passive_view_size", "HyParView passive view size.", nil, constLabels)
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.descs.connState
	ch <- c.descs.droppedFrames
	ch <- c.descs.streamCount
	ch <- c.descs.congestionWindow
	ch <- c.descs.bytesInFlight
	ch <- c.descs.routingTableSize
	ch <- c.descs.activeViewSize
	ch <- c.descs.passiveViewSize
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for conn, entry := range c.conns {
		ch <- prometheus.MustNewConstMetric(c.descs.connState, prometheus.GaugeValue, float64(conn.State()), entry.labels...)
		ch <- prometheus.MustNewConstMetric(c.descs.droppedFrames, prometheus.CounterValue, float64(conn.DroppedFrames()), entry.labels...)
		ch <- prometheus.MustNewConstMetric(c.descs.streamCount, prometheus.GaugeValue, float64(conn.StreamCount()), entry.labels...)
		if entry.cong != nil {
			ch <- prometheus.MustNewConstMetric(c.descs.congestionWindow, prometheus.GaugeValue, float64(entry.cong.CongestionWindow()), entry.labels...)
			ch <- prometheus.MustNewConstMetric(c.descs.bytesInFlight, prometheus.GaugeValue, float64(entry.cong.BytesInFlight()), entry.labels...)
		}
	}

	if c.table != nil {
		ch <- prometheus.MustNewConstMetric(c.descs.routingTableSize, prometheus.GaugeValue, float64(c.table.Len()))
	}
	if c.node != nil {
		ch <- prometheus.MustNewConstMetric(c.descs.activeViewSize, prometheus.GaugeValue, float64(len(c.node.ActiveView())))
		ch <- prometheus.MustNewConstMetric(c.descs.passiveViewSize, prometheus.GaugeValue, float64(len(c.node.PassiveView())))
	}
}

// Add registers a Connection for scraping, labeled by peer address (or any
// caller-chosen label set matching the Desc's label names).
func (c *Collector) Add(conn *transport.Connection, peerLabel string, cong congestion.Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[conn] = connEntry{labels: []string{peerLabel}, cong: cong}
}

// Remove stops scraping a Connection, e.g. once it reaches StateClosed.
func (c *Collector) Remove(conn *transport.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, conn)
}
