package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-pxp/pkg/types"
)

const namespace = "pxp"

// 结果标签
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics PXP 指标集合
type Metrics struct {
	registry *prometheus.Registry

	sessions       prometheus.Gauge
	rpcs           *prometheus.CounterVec
	protocolErrors prometheus.Counter
	relays         *prometheus.GaugeVec
	relayBytes     prometheus.Counter
	upgrades       *prometheus.CounterVec
	discoveries    *prometheus.CounterVec
}

// New 创建指标集合并注册到新的注册表
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of ready peer sessions.",
		}),
		rpcs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_total",
			Help:      "Outbound control RPCs by command and result.",
		}, []string{"command", "result"}),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Sessions destroyed by protocol violations.",
		}),
		relays: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relays",
			Help:      "Active relays by mode.",
		}, []string{"mode"}),
		relayBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_bytes_total",
			Help:      "Bytes forwarded by closed relays.",
		}),
		upgrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upgrades_total",
			Help:      "Transport upgrade attempts by transport and result.",
		}, []string{"transport", "result"}),
		discoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discoveries_total",
			Help:      "getNewPeer calls by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.sessions,
		m.rpcs,
		m.protocolErrors,
		m.relays,
		m.relayBytes,
		m.upgrades,
		m.discoveries,
	)
	return m
}

// Registry 返回注册表
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler 返回暴露指标的 HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionReady 会话就绪
func (m *Metrics) SessionReady() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

// SessionClosed 就绪会话关闭
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

// ObserveRPC 记录一次出站 RPC
func (m *Metrics) ObserveRPC(command string, err error) {
	if m == nil {
		return
	}
	m.rpcs.WithLabelValues(command, result(err)).Inc()
}

// ProtocolError 记录一次协议违规
func (m *Metrics) ProtocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Inc()
}

// RelayOpened 中继建立
func (m *Metrics) RelayOpened(mode types.RelayMode) {
	if m == nil {
		return
	}
	m.relays.WithLabelValues(string(mode)).Inc()
}

// RelayClosed 中继关闭
func (m *Metrics) RelayClosed(mode types.RelayMode, bytes int64) {
	if m == nil {
		return
	}
	m.relays.WithLabelValues(string(mode)).Dec()
	m.relayBytes.Add(float64(bytes))
}

// Upgrade 记录一次升级尝试
func (m *Metrics) Upgrade(transport string, err error) {
	if m == nil {
		return
	}
	m.upgrades.WithLabelValues(transport, result(err)).Inc()
}

// Discovery 记录一次发现结果（relay / upgraded / error）
func (m *Metrics) Discovery(outcome string) {
	if m == nil {
		return
	}
	m.discoveries.WithLabelValues(outcome).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
