package swarm

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/dep2p/go-pxp/internal/core/muxer"
	"github.com/dep2p/go-pxp/internal/core/peer"
	"github.com/dep2p/go-pxp/pkg/types"
)

// 发现结果（指标标签）
const (
	outcomeUpgraded = "upgraded"
	outcomeRelayed  = "relayed"
	outcomeEndpoint = "endpoint"
	outcomeFailed   = "failed"
)

// Discovered 一次发现的结果
type Discovered struct {
	// Peer 新登记的会话；候选为裸端点时为 nil
	Peer *peer.Peer

	// Stream 网络数据通道，归调用方所有；候选为裸端点时是中继流本身
	Stream io.ReadWriteCloser

	// Upgraded 会话运行在升级后的新连接上
	Upgraded bool

	// Relayed 结果经由中继（升级失败或裸端点）
	Relayed bool
}

// GetNewPeer 经由一个随机会话发现并连接一个新节点
//
// 没有已登记会话时立即返回 types.ErrNoPeers，不产生任何 I/O。
// 候选运行控制协议时先建立信令中继并尝试升级，升级失败时
// 登记中继会话；候选为裸端点时建立普通中继并直接交出中继流。
func (s *Swarm) GetNewPeer(ctx context.Context) (*Discovered, error) {
	if s.isClosed() {
		return nil, ErrSwarmClosed
	}
	peers := s.Peers()
	if len(peers) == 0 {
		return nil, types.ErrNoPeers
	}

	via := peers[rand.IntN(len(peers))]
	found, err := s.discoverVia(ctx, via)
	if err != nil {
		s.metrics.Discovery(outcomeFailed)
		return nil, err
	}
	return found, nil
}

func (s *Swarm) discoverVia(ctx context.Context, via *peer.Peer) (*Discovered, error) {
	candidates, err := via.GetPeers(ctx, s.networkID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, types.ErrNoCandidates
	}

	c := candidates[rand.IntN(len(candidates))]
	logger.Debug("选中候选", "via", via, "candidate", c.ID, "pxp", c.ConnectInfo.SpeaksPXP())
	if c.ConnectInfo.SpeaksPXP() {
		return s.relayAndUpgrade(ctx, via, c)
	}
	return s.relayEndpoint(ctx, via, c)
}

// relayEndpoint 普通中继到裸端点
func (s *Swarm) relayEndpoint(ctx context.Context, via *peer.Peer, c types.Candidate) (*Discovered, error) {
	ch, err := via.Relay(ctx, s.networkID, c.ID, types.RelayOrdinary)
	if err != nil {
		return nil, err
	}
	s.metrics.Discovery(outcomeEndpoint)
	return &Discovered{Stream: ch, Relayed: true}, nil
}

// relayAndUpgrade 信令中继到候选会话并尝试升级
func (s *Swarm) relayAndUpgrade(ctx context.Context, via *peer.Peer, c types.Candidate) (*Discovered, error) {
	ch, err := via.Relay(ctx, s.networkID, c.ID, types.RelaySignaling)
	if err != nil {
		return nil, err
	}

	relayPeer, err := s.newPeer(ch, false, true)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	hsCtx, cancel := context.WithTimeout(ctx, s.config.HandshakeTimeout)
	err = s.handshake(hsCtx, relayPeer)
	cancel()
	if err != nil {
		return nil, err
	}

	np, stream, err := s.tryUpgrade(ctx, relayPeer)
	if err == nil {
		_ = relayPeer.Close()
		s.metrics.Discovery(outcomeUpgraded)
		return &Discovered{Peer: np, Stream: stream, Upgraded: true}, nil
	}
	logger.Warn("升级失败，保留中继会话", "peer", relayPeer, "err", err)

	// 升级可能耗尽了自己的时限，降级登记使用新的时限
	regCtx, cancel := context.WithTimeout(ctx, s.config.HandshakeTimeout)
	defer cancel()
	stream, err = s.register(regCtx, relayPeer)
	if err != nil {
		return nil, err
	}
	s.metrics.Discovery(outcomeRelayed)
	return &Discovered{Peer: relayPeer, Stream: stream, Relayed: true}, nil
}

// tryUpgrade 选择对端通告的第一个本地升级传输，经中继会话交换信令
func (s *Swarm) tryUpgrade(ctx context.Context, relayPeer *peer.Peer) (*peer.Peer, *muxer.Channel, error) {
	info := relayPeer.RemoteConnectInfo()
	var name string
	for _, u := range s.upgraders {
		if info.SupportsUpgrade(u.Transport()) {
			name = u.Transport()
			break
		}
	}
	if name == "" {
		return nil, nil, ErrNoCommonUpgrade
	}
	u, _ := s.upgrader(name)

	ctx, cancel := context.WithTimeout(ctx, s.config.UpgradeTimeout)
	defer cancel()

	np, ch, err := func() (*peer.Peer, *muxer.Channel, error) {
		offer, err := u.NewOffer(ctx)
		if err != nil {
			return nil, nil, err
		}
		answer, err := relayPeer.Upgrade(ctx, name, offer.Payload())
		if err != nil {
			_ = offer.Close()
			return nil, nil, err
		}
		conn, err := offer.Complete(ctx, answer)
		if err != nil {
			_ = offer.Close()
			return nil, nil, err
		}
		return s.connect(ctx, conn, false, false)
	}()
	s.metrics.Upgrade(name, err)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", types.ErrUpgradeFailed, name, err)
	}
	logger.Info("会话已升级", "old", relayPeer, "new", np, "transport", name)
	return np, ch, nil
}
