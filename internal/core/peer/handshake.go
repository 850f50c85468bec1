package peer

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dep2p/go-pxp/internal/core/pxp"
	"github.com/dep2p/go-pxp/pkg/types"
)

// sendHello 发送 hello，其应答即为 helloack
func (p *Peer) sendHello() {
	err := p.codec.Go(pxp.CmdHello, p.onHelloAck, p.version, p.connectInfo, p.networks)
	if err != nil {
		p.fail(err)
	}
}

func (p *Peer) onHelloAck(_ json.RawMessage, err error) {
	if err != nil {
		p.fail(err)
		return
	}
	p.mu.Lock()
	p.ackReceived = true
	p.mu.Unlock()
	p.checkReady()
}

func (p *Peer) onHello(msg *pxp.Message, res pxp.Responder) {
	var (
		version  int
		info     *types.ConnectInfo
		networks []string
	)
	if err := msg.Decode(&version, &info, &networks); err != nil {
		p.fail(err)
		return
	}

	p.mu.Lock()
	if p.helloReceived {
		p.mu.Unlock()
		p.fail(fmt.Errorf("%w: hello", types.ErrDuplicateMessage))
		return
	}
	p.helloReceived = true
	p.mu.Unlock()

	if version != p.version {
		err := fmt.Errorf("%w: theirs=%d, ours=%d", types.ErrVersionMismatch, version, p.version)
		_ = res(err, nil)
		p.fail(err)
		return
	}
	if !slices.ContainsFunc(networks, func(n string) bool { return slices.Contains(p.networks, n) }) {
		err := fmt.Errorf("%w: theirs=%v, ours=%v", types.ErrNetworkMismatch, networks, p.networks)
		_ = res(err, nil)
		p.fail(err)
		return
	}

	p.mu.Lock()
	p.remoteNetworks = networks
	p.remoteConnectInfo = info
	p.mu.Unlock()

	if err := res(nil, nil); err != nil {
		p.fail(err)
		return
	}
	p.checkReady()
}

// checkReady 两个握手条件都满足时进入就绪
func (p *Peer) checkReady() {
	p.mu.Lock()
	ok := !p.closed && p.readyLocked()
	if ok {
		select {
		case <-p.ready:
			ok = false
		default:
			close(p.ready)
		}
	}
	p.mu.Unlock()

	if ok {
		p.metrics.SessionReady()
		logger.Info("会话就绪", "peer", p, "incoming", p.incoming, "relayed", p.relayed)
	}
}

// dispatch 读循环中的命令分发
func (p *Peer) dispatch(msg *pxp.Message, res pxp.Responder) {
	if msg.Command == pxp.CmdHello {
		p.onHello(msg, res)
		return
	}
	if !p.Ready() {
		p.fail(fmt.Errorf("%w: %s", types.ErrNotReady, msg.Command))
		return
	}

	switch msg.Command {
	case pxp.CmdGetPeers:
		p.onGetPeers(msg, res)
	case pxp.CmdRelay:
		p.onRelay(msg, res)
	case pxp.CmdIncoming:
		p.onIncoming(msg, res)
	case pxp.CmdUpgrade:
		p.onUpgrade(msg, res)
	case pxp.CmdConnect:
		p.onConnect(msg, res)
	default:
		p.fail(fmt.Errorf("%w: %s", types.ErrUnknownCommand, msg.Command))
	}
}
