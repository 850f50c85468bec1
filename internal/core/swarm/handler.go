package swarm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dep2p/go-pxp/internal/core/muxer"
	"github.com/dep2p/go-pxp/internal/core/peer"
	transportif "github.com/dep2p/go-pxp/pkg/interfaces/transport"
	"github.com/dep2p/go-pxp/pkg/types"
)

var _ peer.Handler = (*Swarm)(nil)

// PeersIn 实现 peer.Handler
//
// 返回除请求方外、通告了可达性信息的就绪会话，以及登记的裸端点。
func (s *Swarm) PeersIn(network string, requester *peer.Peer) []peer.Target {
	if network != s.networkID {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]peer.Target, 0, len(s.peers)+len(s.acceptors))
	for _, p := range s.peers {
		if p == requester || p.RemoteConnectInfo() == nil || !p.Ready() {
			continue
		}
		out = append(out, p)
	}
	for _, a := range s.acceptors {
		out = append(out, a)
	}
	return out
}

// HandleIncomingRelay 实现 peer.Handler
//
// 在后台把通道包装为入站、经中继的会话。
func (s *Swarm) HandleIncomingRelay(via *peer.Peer, ch *muxer.Channel) error {
	if !s.config.AllowIncoming {
		return types.ErrNotAccepting
	}
	ok := s.goTracked(func() {
		p, _, err := s.connect(s.ctx, ch, true, true)
		if err != nil {
			logger.Debug("入站中继握手失败", "via", via, "err", err)
			emit(s.emitter.discovery, types.EvtDiscoveryError{Err: fmt.Errorf("incoming relay: %w", err)})
			return
		}
		emit(s.emitter.incoming, types.EvtIncomingRelay{Via: via, Peer: p})
	})
	if !ok {
		return ErrSwarmClosed
	}
	return nil
}

// HandleUpgrade 实现 peer.Handler
//
// 交给同名 Upgrader 生成应答，新连接就绪后替换旧会话。
func (s *Swarm) HandleUpgrade(ctx context.Context, p *peer.Peer, transport string, payload json.RawMessage) (json.RawMessage, error) {
	emit(s.emitter.upgrade, types.EvtUpgradeRequested{Peer: p, Transport: transport})

	u, ok := s.upgrader(transport)
	if !ok {
		return nil, types.ErrUnknownTransport
	}
	answer, err := u.Accept(ctx, payload)
	if err != nil {
		s.metrics.Upgrade(transport, err)
		return nil, fmt.Errorf("%w: %s: %w", types.ErrUpgradeFailed, transport, err)
	}
	if !s.goTracked(func() { s.completeUpgrade(p, transport, answer) }) {
		_ = answer.Close()
		return nil, ErrSwarmClosed
	}
	return answer.Payload(), nil
}

// completeUpgrade 响应方等待新连接，接入后关闭旧会话
func (s *Swarm) completeUpgrade(old *peer.Peer, transport string, answer transportif.Answer) {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.UpgradeTimeout)
	defer cancel()

	conn, err := answer.Wait(ctx)
	if err != nil {
		_ = answer.Close()
		s.upgradeFailed(old, transport, err)
		return
	}
	np, _, err := s.connect(ctx, conn, true, false)
	if err != nil {
		s.upgradeFailed(old, transport, err)
		return
	}
	s.metrics.Upgrade(transport, nil)
	logger.Info("会话已升级", "old", old, "new", np, "transport", transport)
	_ = old.Close()
}

func (s *Swarm) upgradeFailed(p *peer.Peer, transport string, err error) {
	s.metrics.Upgrade(transport, err)
	logger.Warn("升级失败，保留中继会话", "peer", p, "transport", transport, "err", err)
	emit(s.emitter.discovery, types.EvtDiscoveryError{
		Err: fmt.Errorf("%w: %s: %w", types.ErrUpgradeFailed, transport, err),
	})
}

// HandleConnect 实现 peer.Handler
func (s *Swarm) HandleConnect(p *peer.Peer, network string, ch *muxer.Channel) {
	if network != s.networkID {
		_ = ch.Close()
		return
	}
	s.Deliver(types.EvtConnect{Peer: p, Network: network, Stream: ch})
}
