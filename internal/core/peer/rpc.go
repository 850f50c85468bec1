package peer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/dep2p/go-pxp/internal/core/muxer"
	"github.com/dep2p/go-pxp/internal/core/pxp"
	"github.com/dep2p/go-pxp/pkg/types"
)

// call 等待就绪后发起 RPC 并记录指标
func (p *Peer) call(ctx context.Context, cmd pxp.Command, result any, args ...any) error {
	if err := p.WaitReady(ctx); err != nil {
		return err
	}
	err := p.codec.Call(ctx, cmd, result, args...)
	p.metrics.ObserveRPC(string(cmd), err)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

// GetPeers 向对端请求 network 中的候选
func (p *Peer) GetPeers(ctx context.Context, network string) ([]types.Candidate, error) {
	var out []types.Candidate
	if err := p.call(ctx, pxp.CmdGetPeers, &out, network); err != nil {
		return nil, err
	}
	return out, nil
}

// Relay 请求对端把本端接到候选，返回中继通道
//
// mode 为空时按普通中继处理。
func (p *Peer) Relay(ctx context.Context, network, candidateID string, mode types.RelayMode) (*muxer.Channel, error) {
	if mode == "" {
		mode = types.RelayOrdinary
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid relay mode %q", mode)
	}
	if err := p.call(ctx, pxp.CmdRelay, nil, network, candidateID, mode); err != nil {
		return nil, err
	}
	return p.mux.Channel(relayChannel(candidateID))
}

// OpenRelay 请求对端接受一条入站中继，返回本端的中继通道
func (p *Peer) OpenRelay(ctx context.Context) (*muxer.Channel, error) {
	id := uuid.NewString()
	if err := p.call(ctx, pxp.CmdIncoming, nil, id); err != nil {
		return nil, err
	}
	return p.mux.Channel(relayChannel(id))
}

// Upgrade 发送升级信令并返回对端的应答负载
func (p *Peer) Upgrade(ctx context.Context, transport string, payload json.RawMessage) (json.RawMessage, error) {
	var out json.RawMessage
	if err := p.call(ctx, pxp.CmdUpgrade, &out, transport, payload); err != nil {
		return nil, err
	}
	return out, nil
}

// Connect 建立 network 的应用数据通道
//
// 同一 network 的通道关闭之前再次调用返回 types.ErrDuplicateConnect。
func (p *Peer) Connect(ctx context.Context, network string) (*muxer.Channel, error) {
	if err := p.WaitReady(ctx); err != nil {
		return nil, err
	}
	if !p.memberOf(network) {
		return nil, fmt.Errorf("connect: %w: %q", types.ErrUnknownNetwork, network)
	}
	ch, err := p.reserveConnect(network)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := p.call(ctx, pxp.CmdConnect, nil, network); err != nil {
		p.releaseConnect(network, ch)
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}
