package swarm

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dep2p/go-pxp/internal/core/eventbus"
	"github.com/dep2p/go-pxp/internal/core/metrics"
	"github.com/dep2p/go-pxp/internal/core/muxer"
	"github.com/dep2p/go-pxp/internal/core/peer"
	transportif "github.com/dep2p/go-pxp/pkg/interfaces/transport"
	"github.com/dep2p/go-pxp/pkg/lib/log"
	"github.com/dep2p/go-pxp/pkg/types"
)

var logger = log.Logger("core/swarm")

// Swarm 一个网络内的会话群
type Swarm struct {
	networkID string
	config    *Config
	clock     clock.Clock
	metrics   *metrics.Metrics
	upgraders []transportif.Upgrader

	bus       *eventbus.Bus
	ownBus    bool
	emitter   emitters
	onConnect ConnectHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	peers     []*peer.Peer
	acceptors map[string]*peer.AcceptorTarget
	closed    bool
}

type emitters struct {
	joined       *eventbus.Emitter
	disconnected *eventbus.Emitter
	peerError    *eventbus.Emitter
	discovery    *eventbus.Emitter
	connect      *eventbus.Emitter
	upgrade      *eventbus.Emitter
	incoming     *eventbus.Emitter
}

// NewSwarm 创建 Swarm
func NewSwarm(networkID string, opts ...Option) (*Swarm, error) {
	if networkID == "" {
		return nil, ErrEmptyNetworkID
	}

	s := &Swarm{
		networkID: networkID,
		config:    DefaultConfig(),
		acceptors: make(map[string]*peer.AcceptorTarget),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.config.Peer == nil {
		s.config.Peer = peer.DefaultConfig()
	}
	if s.bus == nil {
		s.bus = eventbus.NewBus()
		s.ownBus = true
	}
	if err := s.initEmitters(); err != nil {
		return nil, err
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

func (s *Swarm) initEmitters() error {
	targets := []struct {
		dst **eventbus.Emitter
		typ any
	}{
		{&s.emitter.joined, new(types.EvtPeerJoined)},
		{&s.emitter.disconnected, new(types.EvtPeerDisconnected)},
		{&s.emitter.peerError, new(types.EvtPeerError)},
		{&s.emitter.discovery, new(types.EvtDiscoveryError)},
		{&s.emitter.connect, new(types.EvtConnect)},
		{&s.emitter.upgrade, new(types.EvtUpgradeRequested)},
		{&s.emitter.incoming, new(types.EvtIncomingRelay)},
	}
	for _, t := range targets {
		em, err := s.bus.Emitter(t.typ)
		if err != nil {
			return fmt.Errorf("create emitter: %w", err)
		}
		*t.dst = em
	}
	return nil
}

func emit(em *eventbus.Emitter, event any) {
	if err := em.Emit(event); err != nil {
		logger.Debug("丢弃事件", "type", fmt.Sprintf("%T", event), "err", err)
	}
}

// NetworkID 返回网络 ID
func (s *Swarm) NetworkID() string { return s.networkID }

// Bus 返回事件总线
func (s *Swarm) Bus() *eventbus.Bus { return s.bus }

// Peers 返回已登记的会话
func (s *Swarm) Peers() []*peer.Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.peers)
}

// NumPeers 返回已登记的会话数
func (s *Swarm) NumPeers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// Peer 按 ID 查找已登记的会话
func (s *Swarm) Peer(id string) (*peer.Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.peers {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

// ConnectInfo 握手与发现时通告的可达性信息，不接受入站时为 nil
func (s *Swarm) ConnectInfo() *types.ConnectInfo {
	if !s.config.AllowIncoming {
		return nil
	}
	info := &types.ConnectInfo{PXP: true, Relay: true}
	for _, u := range s.upgraders {
		info.Upgrades = append(info.Upgrades, u.Transport())
	}
	return info
}

// AddAcceptor 登记一个裸中继端点，返回其 ID
//
// 该端点会出现在本节点应答的 getpeers 中，relay 时直接拼接。
func (s *Swarm) AddAcceptor(info *types.ConnectInfo, accept peer.Acceptor) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.acceptors[id] = &peer.AcceptorTarget{Info: info.Clone(), Accept: accept}
	s.mu.Unlock()
	return id
}

// RemoveAcceptor 注销裸中继端点
func (s *Swarm) RemoveAcceptor(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.acceptors[id]; !ok {
		return false
	}
	delete(s.acceptors, id)
	return true
}

// ============================================================================
//                              会话登记
// ============================================================================

// Connect 在出站原始流上建立会话
//
// 握手完成后会话被登记，并打开网络数据通道。数据通道归调用方所有。
func (s *Swarm) Connect(ctx context.Context, raw io.ReadWriteCloser, opts ...peer.Option) (*peer.Peer, *muxer.Channel, error) {
	return s.connect(ctx, raw, false, false, opts...)
}

// Accept 在入站原始流上建立会话
//
// 对端随后打开的数据通道经 Deliver 交付。
func (s *Swarm) Accept(ctx context.Context, raw io.ReadWriteCloser, opts ...peer.Option) (*peer.Peer, error) {
	p, _, err := s.connect(ctx, raw, true, false, opts...)
	return p, err
}

// connect 创建会话、握手并登记，返回出站会话的数据通道
func (s *Swarm) connect(ctx context.Context, raw io.ReadWriteCloser, incoming, relayed bool, opts ...peer.Option) (*peer.Peer, *muxer.Channel, error) {
	if s.isClosed() {
		_ = raw.Close()
		return nil, nil, ErrSwarmClosed
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.HandshakeTimeout)
	defer cancel()

	p, err := s.newPeer(raw, incoming, relayed, opts...)
	if err != nil {
		_ = raw.Close()
		return nil, nil, err
	}
	if err := s.handshake(ctx, p); err != nil {
		return nil, nil, err
	}
	ch, err := s.register(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	return p, ch, nil
}

func (s *Swarm) newPeer(raw io.ReadWriteCloser, incoming, relayed bool, opts ...peer.Option) (*peer.Peer, error) {
	base := []peer.Option{
		peer.WithConfig(s.config.Peer),
		peer.WithNetworks(s.networkID),
		peer.WithConnectInfo(s.ConnectInfo()),
		peer.WithAllowIncoming(s.config.AllowIncoming),
		peer.WithHandler(s),
		peer.WithClock(s.clock),
		peer.WithMetrics(s.metrics),
	}
	base = append(base, opts...)
	base = append(base, peer.WithIncoming(incoming), peer.WithRelayed(relayed))
	return peer.New(raw, base...)
}

// handshake 等待会话就绪，失败时关闭会话
func (s *Swarm) handshake(ctx context.Context, p *peer.Peer) error {
	if err := p.WaitReady(ctx); err != nil {
		_ = p.Close()
		return fmt.Errorf("handshake %s: %w", p, err)
	}
	return nil
}

// register 登记就绪的会话
//
// 出站会话随后打开网络数据通道，失败时关闭会话。
func (s *Swarm) register(ctx context.Context, p *peer.Peer) (*muxer.Channel, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = p.Close()
		return nil, ErrSwarmClosed
	}
	s.peers = append(s.peers, p)
	s.wg.Add(1)
	s.mu.Unlock()

	go s.watchPeer(p)

	logger.Info("会话加入",
		"peer", p,
		"incoming", p.Incoming(),
		"relayed", p.Relayed())
	emit(s.emitter.joined, types.EvtPeerJoined{Peer: p})

	if p.Incoming() {
		return nil, nil
	}
	ch, err := p.Connect(ctx, s.networkID)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("open data channel: %w", err)
	}
	return ch, nil
}

// Deliver 交付一个应用数据通道
//
// 设置了 ConnectHandler 时交给它处理；否则作为 EvtConnect 发出，
// 没有订阅者收到时关闭通道，释放对端的 connect 登记。
func (s *Swarm) Deliver(evt types.EvtConnect) {
	if s.onConnect != nil {
		if !s.goTracked(func() { s.onConnect(evt) }) {
			_ = evt.Stream.Close()
		}
		return
	}
	n, err := s.emitter.connect.Deliver(evt)
	if err != nil || n == 0 {
		logger.Warn("数据通道无人接收，已关闭", "network", evt.Network, "peer", evt.Peer, "err", err)
		_ = evt.Stream.Close()
	}
}

// watchPeer 会话关闭后移除并发出断开事件
func (s *Swarm) watchPeer(p *peer.Peer) {
	defer s.wg.Done()
	<-p.Done()

	s.mu.Lock()
	before := len(s.peers)
	s.peers = slices.DeleteFunc(s.peers, func(q *peer.Peer) bool { return q == p })
	removed := len(s.peers) != before
	s.mu.Unlock()
	if !removed {
		return
	}

	err := p.Err()
	if err != nil {
		logger.Debug("会话出错", "peer", p, "err", err)
		emit(s.emitter.peerError, types.EvtPeerError{Peer: p, Err: err})
	}
	logger.Info("会话断开", "peer", p)
	emit(s.emitter.disconnected, types.EvtPeerDisconnected{Peer: p, Err: err})
}

// goTracked 在 Swarm 未关闭时启动后台任务
func (s *Swarm) goTracked(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

func (s *Swarm) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Swarm) upgrader(transport string) (transportif.Upgrader, bool) {
	for _, u := range s.upgraders {
		if u.Transport() == transport {
			return u, true
		}
	}
	return nil, false
}

// Close 关闭所有会话，之后的 Connect / Accept / GetNewPeer 返回 ErrSwarmClosed
func (s *Swarm) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	peers := slices.Clone(s.peers)
	s.mu.Unlock()

	s.cancel()

	var err error
	for _, p := range peers {
		err = multierr.Append(err, p.Close())
	}
	s.wg.Wait()

	em := s.emitter
	for _, e := range []*eventbus.Emitter{em.joined, em.disconnected, em.peerError, em.discovery, em.connect, em.upgrade, em.incoming} {
		err = multierr.Append(err, e.Close())
	}
	if s.ownBus {
		err = multierr.Append(err, s.bus.Close())
	}
	logger.Info("Swarm 已关闭", "network", s.networkID, "peers", len(peers))
	return err
}
