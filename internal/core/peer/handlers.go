package peer

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dep2p/go-pxp/internal/core/muxer"
	"github.com/dep2p/go-pxp/internal/core/pxp"
	"github.com/dep2p/go-pxp/internal/core/relay"
	"github.com/dep2p/go-pxp/pkg/types"
)

// ============================================================================
//                              getpeers
// ============================================================================

func (p *Peer) onGetPeers(msg *pxp.Message, res pxp.Responder) {
	var network string
	if err := msg.Decode(&network); err != nil {
		p.fail(err)
		return
	}
	if !p.memberOf(network) {
		_ = res(fmt.Errorf("%w: %q", types.ErrUnknownNetwork, network), nil)
		return
	}

	targets := p.handler.PeersIn(network, p)
	out := make([]types.Candidate, 0, len(targets))
	for _, t := range targets {
		if tp, ok := t.(*Peer); ok && tp == p {
			continue
		}
		out = append(out, types.Candidate{
			ID:          p.candidates.add(t),
			ConnectInfo: t.TargetInfo().Clone(),
		})
	}
	logger.Debug("返回候选", "peer", p, "network", network, "count", len(out))
	_ = res(nil, out)
}

// ============================================================================
//                              relay
// ============================================================================

func (p *Peer) onRelay(msg *pxp.Message, res pxp.Responder) {
	var (
		network string
		id      string
		mode    types.RelayMode
	)
	if err := msg.Decode(&network, &id, &mode); err != nil {
		p.fail(err)
		return
	}
	if mode == "" {
		mode = types.RelayOrdinary
	}
	if !mode.Valid() {
		p.fail(fmt.Errorf("%w: relay mode %q", types.ErrInvalidMessage, mode))
		return
	}
	if !p.memberOf(network) {
		_ = res(fmt.Errorf("%w: %q", types.ErrUnknownNetwork, network), nil)
		return
	}
	target, err := p.candidates.take(id)
	if err != nil {
		_ = res(err, nil)
		return
	}

	// 打开目标端需要一次往返，不能阻塞读循环
	go p.relayTo(id, mode, target, res)
}

func (p *Peer) relayTo(id string, mode types.RelayMode, target Target, res pxp.Responder) {
	ctx, cancel := p.rpcContext()
	defer cancel()

	var (
		dest io.ReadWriteCloser
		err  error
	)
	switch t := target.(type) {
	case *Peer:
		dest, err = t.OpenRelay(ctx)
	case *AcceptorTarget:
		dest, err = t.Accept(ctx)
	default:
		err = fmt.Errorf("%w: unsupported target %T", types.ErrUnknownCandidate, target)
	}
	if err != nil {
		_ = res(fmt.Errorf("open relay target: %w", err), nil)
		return
	}

	src, err := p.mux.Channel(relayChannel(id))
	if err != nil {
		_ = dest.Close()
		_ = res(err, nil)
		return
	}

	p.metrics.RelayOpened(mode)
	relay.Splice(src, dest,
		relay.WithID(id),
		relay.WithMode(mode),
		relay.WithTTL(p.cfg.RelayTTL),
		relay.WithClock(p.clock),
		relay.WithOnClose(func(r *relay.Relay) {
			p.metrics.RelayClosed(r.Mode(), r.Bytes())
		}),
	)
	logger.Debug("中继建立", "peer", p, "id", id, "mode", mode)
	_ = res(nil, nil)
}

// ============================================================================
//                              incoming
// ============================================================================

func (p *Peer) onIncoming(msg *pxp.Message, res pxp.Responder) {
	var id string
	if err := msg.Decode(&id); err != nil {
		p.fail(err)
		return
	}
	if !p.allowIncoming {
		_ = res(types.ErrNotAccepting, nil)
		return
	}

	ch, err := p.mux.Channel(relayChannel(id))
	if err != nil {
		_ = res(err, nil)
		return
	}
	if err := p.handler.HandleIncomingRelay(p, ch); err != nil {
		_ = ch.Close()
		_ = res(err, nil)
		return
	}
	_ = res(nil, nil)
}

// ============================================================================
//                              upgrade
// ============================================================================

func (p *Peer) onUpgrade(msg *pxp.Message, res pxp.Responder) {
	var (
		transport string
		payload   json.RawMessage
	)
	if err := msg.Decode(&transport, &payload); err != nil {
		p.fail(err)
		return
	}

	go func() {
		ctx, cancel := p.rpcContext()
		defer cancel()

		out, err := p.handler.HandleUpgrade(ctx, p, transport, payload)
		if err != nil {
			_ = res(err, nil)
			return
		}
		_ = res(nil, out)
	}()
}

// ============================================================================
//                              connect
// ============================================================================

func (p *Peer) onConnect(msg *pxp.Message, res pxp.Responder) {
	var network string
	if err := msg.Decode(&network); err != nil {
		p.fail(err)
		return
	}
	if !p.memberOf(network) {
		_ = res(fmt.Errorf("%w: %q", types.ErrUnknownNetwork, network), nil)
		return
	}

	ch, err := p.reserveConnect(network)
	if err != nil {
		_ = res(err, nil)
		return
	}
	if err := res(nil, nil); err != nil {
		return
	}
	p.handler.HandleConnect(p, network, ch)
}

// reserveConnect 登记 network 的数据通道，重复登记返回冲突
func (p *Peer) reserveConnect(network string) (*muxer.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if _, dup := p.connects[network]; dup {
		return nil, fmt.Errorf("%w: %q", types.ErrDuplicateConnect, network)
	}
	ch, err := p.mux.Channel(connectChannel(network))
	if err != nil {
		return nil, err
	}
	p.connects[network] = ch

	go func() {
		select {
		case <-ch.Done():
			p.releaseConnect(network, ch)
		case <-p.done:
		}
	}()
	return ch, nil
}

// releaseConnect 通道关闭后释放登记
func (p *Peer) releaseConnect(network string, ch *muxer.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connects != nil && p.connects[network] == ch {
		delete(p.connects, network)
	}
}
