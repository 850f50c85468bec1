package pxp

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-pxp/config"
	"github.com/dep2p/go-pxp/internal/core/metrics"
	"github.com/dep2p/go-pxp/internal/core/peer"
	"github.com/dep2p/go-pxp/internal/core/swarm"
	"github.com/dep2p/go-pxp/internal/core/transport"
	"github.com/dep2p/go-pxp/internal/core/transport/quic"
	"github.com/dep2p/go-pxp/internal/core/transport/tcp"
	"github.com/dep2p/go-pxp/internal/core/transport/websocket"
	transportif "github.com/dep2p/go-pxp/pkg/interfaces/transport"
	"github.com/dep2p/go-pxp/pkg/lib/log"
	"github.com/dep2p/go-pxp/pkg/types"
)

var logger = log.Logger("pxp")

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 已创建，未启动
	StateIdle NodeState = iota

	// StateRunning 运行中
	StateRunning

	// StateStopped 已停止，不能再次启动
	StateStopped
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Node PXP 节点
type Node struct {
	cfg   *config.Config
	clock clock.Clock
	app   *fx.App

	// 由 Fx 注入
	swarm    *swarm.Swarm
	registry *transport.Registry
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       NodeState
	listenAddrs map[string]string
	stops       []func() error
}

// New 创建节点
func New(cfg *config.Config, opts ...Option) (*Node, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}

	n := &Node{
		cfg:         cfg,
		clock:       o.clock,
		listenAddrs: make(map[string]string),
	}
	n.ctx, n.cancel = context.WithCancel(context.Background())

	n.app = buildFxApp(cfg, o, n)
	if err := n.app.Err(); err != nil {
		return nil, fmt.Errorf("build node: %w", err)
	}
	return n, nil
}

// Swarm 返回会话群
func (n *Node) Swarm() *swarm.Swarm { return n.swarm }

// Registry 返回传输注册表
func (n *Node) Registry() *transport.Registry { return n.registry }

// Metrics 返回指标，未启用时为 nil
func (n *Node) Metrics() *metrics.Metrics { return n.metrics }

// MetricsHandler 返回 Prometheus 抓取端点
func (n *Node) MetricsHandler() http.Handler { return n.metrics.Handler() }

// State 返回节点状态
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// ListenAddrs 返回各传输的实际监听地址
func (n *Node) ListenAddrs() map[string]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return maps.Clone(n.listenAddrs)
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

// Start 启动节点
//
// 启动 Fx 应用，在每个已启用的传输上监听，连接种子节点，
// 并在配置了目标会话数时启动后台发现。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrNodeClosed
	}

	if err := n.app.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	for _, l := range n.registry.Listeners() {
		addr, stop, err := l.Listen(ctx, n.listenOptions(l.Name()), n.onInbound)
		if err != nil {
			_ = n.stopLocked(ctx)
			return fmt.Errorf("listen %s: %w", l.Name(), err)
		}
		n.listenAddrs[l.Name()] = addr
		n.stops = append(n.stops, stop)
	}
	n.state = StateRunning

	for _, seed := range n.cfg.Seeds {
		n.goTracked(func() { n.dialSeed(seed) })
	}
	if n.cfg.Discovery.TargetPeers > 0 {
		n.goTracked(n.discoveryLoop)
	}

	logger.Info("节点已启动",
		"network", n.cfg.NetworkID,
		"listen", n.listenAddrs,
		"seeds", len(n.cfg.Seeds))
	return nil
}

// Stop 停止节点
//
// 停止监听、关闭所有会话并停止 Fx 应用。重复调用返回 nil。
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateRunning {
		n.state = StateStopped
		n.cancel()
		return nil
	}
	return n.stopLocked(ctx)
}

func (n *Node) stopLocked(ctx context.Context) error {
	n.state = StateStopped
	n.cancel()

	var err error
	for _, stop := range n.stops {
		err = multierr.Append(err, stop())
	}
	n.stops = nil
	n.wg.Wait()

	err = multierr.Append(err, n.app.Stop(ctx))
	logger.Info("节点已停止", "network", n.cfg.NetworkID)
	return err
}

func (n *Node) goTracked(fn func()) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		fn()
	}()
}

func (n *Node) listenOptions(name string) transportif.ListenOptions {
	t := n.cfg.Transport
	opts := transportif.ListenOptions{Host: t.Host}
	switch name {
	case tcp.Name:
		opts.Port = t.TCP.Port
	case websocket.Name:
		opts.Port = t.WebSocket.Port
		opts.Path = t.WebSocket.Path
	case quic.Name:
		opts.Port = t.QUIC.Port
	}
	return opts
}

// onInbound 入站原始流交给 Swarm 握手
func (n *Node) onInbound(conn io.ReadWriteCloser) {
	if n.ctx.Err() != nil {
		_ = conn.Close()
		return
	}
	p, err := n.swarm.Accept(n.ctx, conn)
	if err != nil {
		logger.Debug("入站会话失败", "err", err)
		return
	}
	logger.Debug("入站会话", "peer", p)
}

// ════════════════════════════════════════════════════════════════════════════
//                              拨号
// ════════════════════════════════════════════════════════════════════════════

// Dial 经指定传输拨号并建立会话
//
// 返回会话与网络数据通道，数据通道归调用方所有。
// 传输层失败匹配 types.ErrTransport。
func (n *Node) Dial(ctx context.Context, transportName, addr string) (*peer.Peer, io.ReadWriteCloser, error) {
	if n.State() != StateRunning {
		return nil, nil, ErrNotStarted
	}
	return n.dial(ctx, transportName, addr)
}

func (n *Node) dial(ctx context.Context, transportName, addr string) (*peer.Peer, io.ReadWriteCloser, error) {
	t, ok := n.registry.Transport(transportName)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownTransport, transportName)
	}
	conn, err := t.Dial(ctx, addr)
	if err != nil {
		return nil, nil, err
	}
	p, ch, err := n.swarm.Connect(ctx, conn)
	if err != nil {
		return nil, nil, err
	}
	return p, ch, nil
}

// dialSeed 连接种子节点，数据通道交给应用
func (n *Node) dialSeed(seed config.Seed) {
	ctx, cancel := context.WithTimeout(n.ctx, n.cfg.Transport.DialTimeout.Duration())
	defer cancel()
	p, stream, err := n.dial(ctx, seed.Transport, seed.Address)
	if err != nil {
		logger.Warn("连接种子节点失败", "transport", seed.Transport, "addr", seed.Address, "err", err)
		return
	}
	logger.Info("已连接种子节点", "addr", seed.Address, "peer", p)
	n.swarm.Deliver(types.EvtConnect{Peer: p, Network: n.cfg.NetworkID, Stream: stream})
}
