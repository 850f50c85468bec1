package peer

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-pxp/internal/core/metrics"
	"github.com/dep2p/go-pxp/internal/core/muxer"
	"github.com/dep2p/go-pxp/internal/core/pxp"
	"github.com/dep2p/go-pxp/pkg/lib/log"
	"github.com/dep2p/go-pxp/pkg/types"
)

var logger = log.Logger("core/peer")

// 保留通道名
const (
	controlChannel = "pxp"
	relayPrefix    = "relay:"
	connectPrefix  = "connect:"
)

func relayChannel(id string) string { return relayPrefix + id }

func connectChannel(network string) string { return connectPrefix + network }

// State 会话状态
type State int

const (
	// StateConnecting 握手进行中
	StateConnecting State = iota
	// StateReady 握手完成
	StateReady
	// StateClosed 已关闭
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Peer 一条物理连接上的 PXP 会话
type Peer struct {
	id            string
	cfg           *Config
	version       int
	networks      []string
	connectInfo   *types.ConnectInfo
	incoming      bool
	relayed       bool
	allowIncoming bool
	handler       Handler
	clock         clock.Clock
	metrics       *metrics.Metrics

	conn       io.ReadWriteCloser
	mux        *muxer.Muxer
	codec      *pxp.Codec
	candidates *candidateRegistry

	ctx    context.Context
	cancel context.CancelFunc

	mu                sync.Mutex
	helloReceived     bool
	ackReceived       bool
	remoteNetworks    []string
	remoteConnectInfo *types.ConnectInfo
	connects          map[string]*muxer.Channel
	closed            bool
	err               error

	ready chan struct{}
	done  chan struct{}
}

var _ types.Session = (*Peer)(nil)

// New 在 conn 上创建会话并立即发送 hello
//
// conn 此后归会话所有，会话关闭时一并关闭。
func New(conn io.ReadWriteCloser, opts ...Option) (*Peer, error) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		id:            uuid.NewString(),
		cfg:           DefaultConfig(),
		version:       ProtocolVersion,
		allowIncoming: true,
		handler:       NopHandler{},
		clock:         clock.New(),
		conn:          conn,
		ctx:           ctx,
		cancel:        cancel,
		connects:      make(map[string]*muxer.Channel),
		ready:         make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			cancel()
			return nil, err
		}
	}
	if len(p.networks) == 0 {
		cancel()
		return nil, ErrNoNetworks
	}

	candidates, err := newCandidateRegistry(p.cfg.MaxCandidates, p.cfg.CandidateTTL, p.clock)
	if err != nil {
		cancel()
		return nil, err
	}
	p.candidates = candidates

	muxOpts := []muxer.Option{muxer.WithChannelHandler(p.onChannel)}
	if p.cfg.Muxer != nil {
		muxOpts = append(muxOpts, muxer.WithConfig(p.cfg.Muxer))
	}
	mux, err := muxer.New(conn, p.incoming, muxOpts...)
	if err != nil {
		cancel()
		return nil, err
	}
	p.mux = mux

	ctrl, err := mux.Channel(controlChannel)
	if err != nil {
		cancel()
		_ = mux.Close()
		return nil, err
	}
	codecOpts := []pxp.Option{pxp.WithErrorHandler(p.fail)}
	if p.cfg.RateLimit > 0 {
		codecOpts = append(codecOpts, pxp.WithRateLimit(p.cfg.limit(), p.cfg.RateBurst))
	}
	p.codec = pxp.New(ctrl, p.dispatch, codecOpts...)

	go p.watchMuxer()
	p.codec.Start()
	p.sendHello()

	logger.Debug("会话创建", "peer", log.TruncateID(p.id, 8), "incoming", p.incoming, "relayed", p.relayed)
	return p, nil
}

// ID 会话 ID（仅本地有效）
func (p *Peer) ID() string { return p.id }

// Incoming 是否为入站会话
func (p *Peer) Incoming() bool { return p.incoming }

// Relayed 是否经中继建立
func (p *Peer) Relayed() bool { return p.relayed }

// Networks 本地网络
func (p *Peer) Networks() []string { return slices.Clone(p.networks) }

// ConnectInfo 本地通告的可达性信息
func (p *Peer) ConnectInfo() *types.ConnectInfo { return p.connectInfo.Clone() }

// RemoteConnectInfo 对端通告的可达性信息，握手前为 nil
func (p *Peer) RemoteConnectInfo() *types.ConnectInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteConnectInfo.Clone()
}

// RemoteNetworks 对端声明的网络
func (p *Peer) RemoteNetworks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.remoteNetworks)
}

// TargetInfo 实现 Target
func (p *Peer) TargetInfo() *types.ConnectInfo {
	return p.RemoteConnectInfo()
}

// State 当前状态
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		return StateClosed
	case p.readyLocked():
		return StateReady
	default:
		return StateConnecting
	}
}

// Ready 是否已就绪且未关闭
func (p *Peer) Ready() bool {
	return p.State() == StateReady
}

// WaitReady 等待握手完成
func (p *Peer) WaitReady(ctx context.Context) error {
	select {
	case <-p.ready:
		if p.isClosed() {
			return p.closedErr()
		}
		return nil
	case <-p.done:
		return p.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done 会话关闭时关闭
func (p *Peer) Done() <-chan struct{} { return p.done }

// Err 关闭原因，正常关闭或对端正常断开时为 nil
func (p *Peer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close 关闭会话与底层连接
func (p *Peer) Close() error {
	p.fail(nil)
	return nil
}

// NumCandidates 当前有效候选数
func (p *Peer) NumCandidates() int {
	return p.candidates.len()
}

func (p *Peer) String() string {
	return "peer(" + log.TruncateID(p.id, 8) + ")"
}

// readyLocked 握手两个条件是否都已满足
func (p *Peer) readyLocked() bool {
	return p.helloReceived && p.ackReceived && p.remoteNetworks != nil
}

func (p *Peer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Peer) closedErr() error {
	if err := p.Err(); err != nil {
		return err
	}
	return ErrClosed
}

// memberOf 双方是否都加入了 network
func (p *Peer) memberOf(network string) bool {
	if !slices.Contains(p.networks, network) {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Contains(p.remoteNetworks, network)
}

// rpcContext 处理入站请求时下游调用使用的上下文
func (p *Peer) rpcContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(p.ctx, p.cfg.RPCTimeout)
}

func (p *Peer) onChannel(ch *muxer.Channel) {
	logger.Debug("对端打开通道", "peer", p, "channel", ch.ID())
}

// watchMuxer 连接终止时关闭会话
//
// 正常断开时先让控制通道读完已到达的记录，其中的协议错误优先作为关闭原因。
func (p *Peer) watchMuxer() {
	select {
	case <-p.mux.Done():
	case <-p.done:
		return
	}
	err := p.mux.Err()
	if isClean(err) {
		select {
		case <-p.codec.Done():
		case <-p.done:
		}
	}
	p.fail(err)
}

// fail 唯一的终止路径，err 为 nil 表示正常关闭
//
// 可重入：关闭过程中的回调再次调用 fail 直接返回。
func (p *Peer) fail(err error) {
	if isClean(err) {
		err = nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.err = err
	wasReady := p.readyLocked()
	p.connects = nil
	p.mu.Unlock()

	close(p.done)
	p.cancel()

	if err != nil {
		if errors.Is(err, types.ErrProtocolViolation) {
			p.metrics.ProtocolError()
		}
		logger.Warn("会话出错", "peer", p, "err", err)
	} else {
		logger.Debug("会话关闭", "peer", p)
	}

	p.candidates.close()
	_ = p.codec.Close()
	_ = p.mux.Close()
	if wasReady {
		p.metrics.SessionClosed()
	}
}

// isClean 是否为正常关闭
func isClean(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, pxp.ErrClosed) ||
		errors.Is(err, muxer.ErrMuxerClosed) ||
		errors.Is(err, muxer.ErrChannelClosed)
}
