package swarm

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-pxp/config"
	"github.com/dep2p/go-pxp/internal/core/eventbus"
	"github.com/dep2p/go-pxp/internal/core/metrics"
	"github.com/dep2p/go-pxp/internal/core/peer"
	transportif "github.com/dep2p/go-pxp/pkg/interfaces/transport"
)

// Module Swarm Fx 模块
var Module = fx.Module("swarm",
	fx.Provide(NewSwarmFromParams),
	fx.Invoke(registerLifecycle),
)

// SwarmParams Swarm 依赖参数
type SwarmParams struct {
	fx.In

	UnifiedCfg *config.Config

	// 可选依赖
	EventBus       *eventbus.Bus          `optional:"true"`
	Clock          clock.Clock            `optional:"true"`
	Metrics        *metrics.Metrics       `optional:"true"`
	ConnectHandler ConnectHandler         `optional:"true"`
	Upgrades       []transportif.Upgrader `group:"upgraders"` // value groups 不能设置 optional
}

// ConfigFromUnified 从统一配置创建 Swarm 配置
func ConfigFromUnified(cfg *config.Config) *Config {
	if cfg == nil {
		return DefaultConfig()
	}
	p := cfg.Protocol
	return &Config{
		AllowIncoming:    cfg.AllowIncoming,
		HandshakeTimeout: p.HandshakeTimeout.Duration(),
		UpgradeTimeout:   p.UpgradeTimeout.Duration(),
		Peer: &peer.Config{
			CandidateTTL:  p.CandidateTTL.Duration(),
			RelayTTL:      p.RelayTTL.Duration(),
			MaxCandidates: p.MaxCandidates,
			RPCTimeout:    p.RPCTimeout.Duration(),
			RateLimit:     p.RateLimit,
			RateBurst:     p.RateBurst,
		},
	}
}

// NewSwarmFromParams 从参数创建 Swarm
func NewSwarmFromParams(params SwarmParams) (*Swarm, error) {
	opts := []Option{
		WithConfig(ConfigFromUnified(params.UnifiedCfg)),
		WithMetrics(params.Metrics),
		WithUpgraders(orderUpgraders(params.UnifiedCfg, params.Upgrades)...),
	}
	if params.EventBus != nil {
		opts = append(opts, WithEventBus(params.EventBus))
	}
	if params.Clock != nil {
		opts = append(opts, WithClock(params.Clock))
	}
	if params.ConnectHandler != nil {
		opts = append(opts, WithConnectHandler(params.ConnectHandler))
	}
	return NewSwarm(params.UnifiedCfg.NetworkID, opts...)
}

// orderUpgraders 按配置中的优先级排列升级器，未列出的不启用
func orderUpgraders(cfg *config.Config, upgraders []transportif.Upgrader) []transportif.Upgrader {
	byName := make(map[string]transportif.Upgrader, len(upgraders))
	for _, u := range upgraders {
		if u != nil {
			byName[u.Transport()] = u
		}
	}
	var out []transportif.Upgrader
	for _, name := range cfg.Upgrade.Transports {
		if u, ok := byName[name]; ok {
			out = append(out, u)
		}
	}
	return out
}

type lifecycleInput struct {
	fx.In
	LC    fx.Lifecycle
	Swarm *Swarm
}

// registerLifecycle 停止时关闭 Swarm
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return input.Swarm.Close()
		},
	})
}
