package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/pion/datachannel"
	"github.com/pion/webrtc/v4"

	transportif "github.com/dep2p/go-pxp/pkg/interfaces/transport"
	"github.com/dep2p/go-pxp/pkg/lib/log"
	"github.com/dep2p/go-pxp/pkg/types"
)

var logger = log.Logger("core/transport/webrtc")

// Name 升级传输名称
const Name = "webrtc"

// channelLabel 数据通道标签
const channelLabel = "pxp"

// ErrConnectionFailed ICE 或 DTLS 建立失败
var ErrConnectionFailed = fmt.Errorf("%w: webrtc connection failed", types.ErrTransport)

// Config WebRTC 升级器配置
type Config struct {
	// ICEServers STUN/TURN 服务器 URL
	ICEServers []string
}

// Upgrader WebRTC 升级器
type Upgrader struct {
	api    *webrtc.API
	config webrtc.Configuration
}

var _ transportif.Upgrader = (*Upgrader)(nil)

// New 创建升级器
func New(config Config) *Upgrader {
	var se webrtc.SettingEngine
	se.DetachDataChannels()

	rc := webrtc.Configuration{}
	if len(config.ICEServers) > 0 {
		rc.ICEServers = []webrtc.ICEServer{{URLs: config.ICEServers}}
	}
	return &Upgrader{
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		config: rc,
	}
}

// Transport 实现 transportif.Upgrader
func (u *Upgrader) Transport() string { return Name }

// NewOffer 实现 transportif.Upgrader
func (u *Upgrader) NewOffer(ctx context.Context) (transportif.Offer, error) {
	pc, err := u.api.NewPeerConnection(u.config)
	if err != nil {
		return nil, fmt.Errorf("%w: new peer connection: %w", types.ErrTransport, err)
	}
	s := newSession(pc)

	dc, err := pc.CreateDataChannel(channelLabel, nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	s.attach(dc)

	sdp, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	payload, err := s.setLocal(ctx, sdp)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	return &offer{session: s, payload: payload}, nil
}

// Accept 实现 transportif.Upgrader
func (u *Upgrader) Accept(ctx context.Context, raw json.RawMessage) (transportif.Answer, error) {
	var remote webrtc.SessionDescription
	if err := json.Unmarshal(raw, &remote); err != nil {
		return nil, fmt.Errorf("webrtc offer: %w", err)
	}
	if remote.Type != webrtc.SDPTypeOffer {
		return nil, fmt.Errorf("webrtc offer: unexpected sdp type %s", remote.Type)
	}

	pc, err := u.api.NewPeerConnection(u.config)
	if err != nil {
		return nil, fmt.Errorf("%w: new peer connection: %w", types.ErrTransport, err)
	}
	s := newSession(pc)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() == channelLabel {
			s.attach(dc)
		}
	})

	if err := pc.SetRemoteDescription(remote); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("set remote description: %w", err)
	}
	sdp, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create answer: %w", err)
	}
	payload, err := s.setLocal(ctx, sdp)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	return &answer{session: s, payload: payload}, nil
}

// ============================================================================
//                              session
// ============================================================================

// session 一次升级尝试中的 PeerConnection 与数据通道
type session struct {
	pc *webrtc.PeerConnection

	opened chan datachannel.ReadWriteCloser
	failed chan struct{}

	failOnce sync.Once
}

func newSession(pc *webrtc.PeerConnection) *session {
	s := &session{
		pc:     pc,
		opened: make(chan datachannel.ReadWriteCloser, 1),
		failed: make(chan struct{}),
	}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("连接状态变化", "state", state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			s.failOnce.Do(func() { close(s.failed) })
		}
	})
	return s
}

// attach 数据通道打开后分离为字节流
func (s *session) attach(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		raw, err := dc.Detach()
		if err != nil {
			logger.Debug("分离数据通道失败", "err", err)
			s.failOnce.Do(func() { close(s.failed) })
			return
		}
		s.opened <- raw
	})
}

// setLocal 应用本地描述并等待 ICE 收集完成，返回完整 SDP
func (s *session) setLocal(ctx context.Context, sdp webrtc.SessionDescription) (json.RawMessage, error) {
	gathered := webrtc.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(sdp); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return json.Marshal(s.pc.LocalDescription())
}

// wait 等待数据通道打开
func (s *session) wait(ctx context.Context) (io.ReadWriteCloser, error) {
	select {
	case dc := <-s.opened:
		return newConn(dc, s.pc), nil
	case <-s.failed:
		return nil, ErrConnectionFailed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ============================================================================
//                              Offer / Answer
// ============================================================================

type offer struct {
	session *session
	payload json.RawMessage
}

func (o *offer) Payload() json.RawMessage { return o.payload }

// Complete 应用对端 Answer 并等待数据通道打开
func (o *offer) Complete(ctx context.Context, raw json.RawMessage) (io.ReadWriteCloser, error) {
	var remote webrtc.SessionDescription
	if err := json.Unmarshal(raw, &remote); err != nil {
		return nil, fmt.Errorf("webrtc answer: %w", err)
	}
	if err := o.session.pc.SetRemoteDescription(remote); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}
	return o.session.wait(ctx)
}

func (o *offer) Close() error { return o.session.pc.Close() }

type answer struct {
	session *session
	payload json.RawMessage
}

func (a *answer) Payload() json.RawMessage { return a.payload }

func (a *answer) Wait(ctx context.Context) (io.ReadWriteCloser, error) {
	return a.session.wait(ctx)
}

func (a *answer) Close() error { return a.session.pc.Close() }
