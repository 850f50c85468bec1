package transport

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-pxp/config"
	"github.com/dep2p/go-pxp/internal/core/transport/direct"
	"github.com/dep2p/go-pxp/internal/core/transport/quic"
	"github.com/dep2p/go-pxp/internal/core/transport/tcp"
	"github.com/dep2p/go-pxp/internal/core/transport/webrtc"
	"github.com/dep2p/go-pxp/internal/core/transport/websocket"
	transportif "github.com/dep2p/go-pxp/pkg/interfaces/transport"
)

// Module 传输层 Fx 模块
//
// 提供 *Registry，并把升级器放入 "upgraders" 值组。
var Module = fx.Module("transport",
	fx.Provide(
		provideTransports,
		provideUpgraders,
		NewRegistryFromParams,
	),
)

// TransportsOutput 已启用的传输
type TransportsOutput struct {
	fx.Out

	Transports []transportif.Transport `group:"transports,flatten"`
}

// UpgradersOutput 已配置的升级器
type UpgradersOutput struct {
	fx.Out

	Upgraders []transportif.Upgrader `group:"upgraders,flatten"`
}

// RegistryParams 注册表依赖参数
type RegistryParams struct {
	fx.In

	Transports []transportif.Transport `group:"transports"`
	Upgraders  []transportif.Upgrader  `group:"upgraders"`
}

func provideTransports(cfg *config.Config) (TransportsOutput, error) {
	ts, err := NewTransports(cfg.Transport)
	if err != nil {
		return TransportsOutput{}, err
	}
	return TransportsOutput{Transports: ts}, nil
}

func provideUpgraders(cfg *config.Config) (UpgradersOutput, error) {
	us, err := NewUpgraders(cfg.Upgrade)
	if err != nil {
		return UpgradersOutput{}, err
	}
	return UpgradersOutput{Upgraders: us}, nil
}

// NewTransports 按配置创建已启用的传输
func NewTransports(cfg config.TransportConfig) ([]transportif.Transport, error) {
	var out []transportif.Transport
	if cfg.TCP.Enable {
		out = append(out, tcp.New(tcp.Config{
			DialTimeout: cfg.DialTimeout.Duration(),
			KeepAlive:   cfg.TCP.KeepAlivePeriod.Duration(),
		}))
	}
	if cfg.WebSocket.Enable {
		out = append(out, websocket.New(websocket.Config{
			Path:             cfg.WebSocket.Path,
			HandshakeTimeout: cfg.WebSocket.HandshakeTimeout.Duration(),
			ReadBufferSize:   cfg.WebSocket.ReadBufferSize,
			WriteBufferSize:  cfg.WebSocket.WriteBufferSize,
		}))
	}
	if cfg.QUIC.Enable {
		qcfg := quic.DefaultConfig()
		qcfg.MaxIdleTimeout = cfg.QUIC.MaxIdleTimeout.Duration()
		qcfg.KeepAlivePeriod = cfg.QUIC.KeepAlivePeriod.Duration()
		q, err := quic.New(qcfg)
		if err != nil {
			return nil, fmt.Errorf("create quic transport: %w", err)
		}
		out = append(out, q)
	}
	logger.Debug("创建传输", "count", len(out))
	return out, nil
}

// NewUpgraders 按配置中的顺序创建升级器
func NewUpgraders(cfg config.UpgradeConfig) ([]transportif.Upgrader, error) {
	var out []transportif.Upgrader
	for _, name := range cfg.Transports {
		switch name {
		case config.UpgradeDirect:
			out = append(out, direct.New(cfg.Direct.Host))
		case config.UpgradeWebRTC:
			out = append(out, webrtc.New(webrtc.Config{ICEServers: cfg.WebRTC.ICEServers}))
		default:
			return nil, fmt.Errorf("unknown upgrade transport %q", name)
		}
	}
	return out, nil
}

// NewRegistryFromParams 从参数创建注册表
func NewRegistryFromParams(params RegistryParams) (*Registry, error) {
	r := NewRegistry()
	for _, t := range params.Transports {
		if err := r.AddTransport(t); err != nil {
			return nil, err
		}
	}
	for _, u := range params.Upgraders {
		if err := r.AddUpgrader(u); err != nil {
			return nil, err
		}
	}
	return r, nil
}
