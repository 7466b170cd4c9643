package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "messenger"

// Metrics messenger 指标集合
type Metrics struct {
	registry *prometheus.Registry

	rooms      prometheus.Gauge
	tunnels    prometheus.Gauge
	received   *prometheus.CounterVec
	sent       *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	operations *prometheus.CounterVec
}

// New 创建指标集合并注册到新的 Registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Number of open rooms",
		}),
		tunnels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tunnels_connected",
			Help:      "Number of connected tunnels across all rooms",
		}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Accepted inbound messages",
		}, []string{"kind"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Locally authored messages",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Inbound frames rejected before dispatch",
		}, []string{"reason"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Delayed operations by kind and outcome",
		}, []string{"kind", "result"}),
	}

	m.registry.MustRegister(m.rooms, m.tunnels, m.received, m.sent, m.dropped, m.operations)
	return m
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RoomOpened 房间数 +1
func (m *Metrics) RoomOpened() {
	if m != nil {
		m.rooms.Inc()
	}
}

// RoomClosed 房间数 -1
func (m *Metrics) RoomClosed() {
	if m != nil {
		m.rooms.Dec()
	}
}

// TunnelConnected 已连接隧道 +1
func (m *Metrics) TunnelConnected() {
	if m != nil {
		m.tunnels.Inc()
	}
}

// TunnelDisconnected 已连接隧道 -1
func (m *Metrics) TunnelDisconnected() {
	if m != nil {
		m.tunnels.Dec()
	}
}

// MessageReceived 记录一条被接受的入站消息
func (m *Metrics) MessageReceived(kind string) {
	if m != nil {
		m.received.WithLabelValues(kind).Inc()
	}
}

// MessageSent 记录一条本地发出的消息
func (m *Metrics) MessageSent(kind string) {
	if m != nil {
		m.sent.WithLabelValues(kind).Inc()
	}
}

// MessageDropped 记录一条被丢弃的入站帧
func (m *Metrics) MessageDropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

// Operation 记录延迟操作的结果（scheduled / expired / cancelled）
func (m *Metrics) Operation(kind, result string) {
	if m != nil {
		m.operations.WithLabelValues(kind, result).Inc()
	}
}
