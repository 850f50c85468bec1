package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-pxp/pkg/types"
)

// TestMetrics_Counters 测试各收集器计数
func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.SessionReady()
	m.SessionReady()
	m.SessionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))

	m.ObserveRPC("getpeers", nil)
	m.ObserveRPC("getpeers", errors.New("boom"))
	m.ObserveRPC("getpeers", nil)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rpcs.WithLabelValues("getpeers", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rpcs.WithLabelValues("getpeers", ResultError)))

	m.RelayOpened(types.RelaySignaling)
	m.RelayClosed(types.RelaySignaling, 42)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.relays.WithLabelValues("signaling")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.relayBytes))

	m.Upgrade("webrtc", nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upgrades.WithLabelValues("webrtc", ResultOK)))

	m.ProtocolError()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.protocolErrors))
}

// TestMetrics_NilSafe 测试 nil 接收者
func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionReady()
		m.ObserveRPC("hello", nil)
		m.RelayOpened(types.RelayOrdinary)
		m.RelayClosed(types.RelayOrdinary, 1)
		m.Upgrade("direct", nil)
		m.Discovery("relay")
		m.ProtocolError()
	})
	assert.Nil(t, m.Registry())
}

// TestMetrics_Handler 测试 HTTP 暴露
func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Discovery("upgraded")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `pxp_discoveries_total{outcome="upgraded"} 1`))
}

// TestModule_Disabled 测试模块在禁用时提供 nil
func TestModule_Disabled(t *testing.T) {
	var got *Metrics
	app := fxtest.New(t,
		fx.Supply(&Config{Enabled: false}),
		Module,
		fx.Populate(&got),
	)
	app.RequireStart()
	app.RequireStop()
	assert.Nil(t, got)
}
