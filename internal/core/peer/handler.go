package peer

import (
	"context"
	"encoding/json"
	"io"

	"github.com/dep2p/go-pxp/internal/core/muxer"
	"github.com/dep2p/go-pxp/pkg/types"
)

// Target 可以作为候选提供给对端的目标
//
// 由 *Peer（另一条会话）和 *AcceptorTarget（裸端点）实现。
type Target interface {
	TargetInfo() *types.ConnectInfo
}

// Acceptor 打开一条通往裸端点的流
type Acceptor func(ctx context.Context) (io.ReadWriteCloser, error)

// AcceptorTarget 裸中继端点，relay 时直接拼接，不经过 incoming
type AcceptorTarget struct {
	Info   *types.ConnectInfo
	Accept Acceptor
}

// TargetInfo 实现 Target
func (a *AcceptorTarget) TargetInfo() *types.ConnectInfo {
	return a.Info
}

// Handler 会话命令的上层处理器，由 Swarm 实现
//
// PeersIn、HandleIncomingRelay 与 HandleConnect 在读循环中同步调用，不能阻塞。
type Handler interface {
	// PeersIn 返回 network 中可提供给 requester 的目标
	PeersIn(network string, requester *Peer) []Target

	// HandleIncomingRelay 接管 via 上新建的入站中继通道
	HandleIncomingRelay(via *Peer, ch *muxer.Channel) error

	// HandleUpgrade 处理升级信令，返回值作为应答负载
	HandleUpgrade(ctx context.Context, p *Peer, transport string, payload json.RawMessage) (json.RawMessage, error)

	// HandleConnect 对端建立了应用数据通道
	HandleConnect(p *Peer, network string, ch *muxer.Channel)
}

// NopHandler 不提供候选、拒绝中继与升级
type NopHandler struct{}

// PeersIn 实现 Handler
func (NopHandler) PeersIn(string, *Peer) []Target { return nil }

// HandleIncomingRelay 实现 Handler
func (NopHandler) HandleIncomingRelay(*Peer, *muxer.Channel) error { return types.ErrNotAccepting }

// HandleUpgrade 实现 Handler
func (NopHandler) HandleUpgrade(context.Context, *Peer, string, json.RawMessage) (json.RawMessage, error) {
	return nil, types.ErrUnknownTransport
}

// HandleConnect 实现 Handler
func (NopHandler) HandleConnect(*Peer, string, *muxer.Channel) {}
