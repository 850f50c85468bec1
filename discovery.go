package pxp

import (
	"context"
	"errors"
	"time"

	"github.com/dep2p/go-pxp/pkg/types"
)

// discoveryLoop 按间隔发现新节点，直到会话数达到目标
func (n *Node) discoveryLoop() {
	ticker := n.clock.Ticker(n.cfg.Discovery.Interval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.discoverOnce()
		}
	}
}

// discoveryTimeout 一次 GetNewPeer 的时限
//
// 覆盖 getpeers 与 relay 两次往返、中继握手、升级，以及升级失败后
// 在中继会话上打开数据通道。
func (n *Node) discoveryTimeout() time.Duration {
	p := n.cfg.Protocol
	return 2*p.RPCTimeout.Duration() + 2*p.HandshakeTimeout.Duration() + p.UpgradeTimeout.Duration()
}

// discoverOnce 会话数不足时执行一次 GetNewPeer
func (n *Node) discoverOnce() {
	count := n.swarm.NumPeers()
	if count == 0 || count >= n.cfg.Discovery.TargetPeers {
		return
	}

	ctx, cancel := context.WithTimeout(n.ctx, n.discoveryTimeout())
	defer cancel()

	found, err := n.swarm.GetNewPeer(ctx)
	switch {
	case err == nil:
		logger.Debug("发现新节点", "upgraded", found.Upgraded, "relayed", found.Relayed)
		evt := types.EvtConnect{Network: n.cfg.NetworkID, Stream: found.Stream}
		if found.Peer != nil {
			evt.Peer = found.Peer
		}
		n.swarm.Deliver(evt)
	case errors.Is(err, types.ErrNotFound), errors.Is(err, context.Canceled):
		logger.Debug("本轮未发现新节点", "err", err)
	default:
		logger.Warn("发现失败", "err", err)
	}
}
