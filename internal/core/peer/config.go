package peer

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-pxp/internal/core/metrics"
	"github.com/dep2p/go-pxp/internal/core/muxer"
	"github.com/dep2p/go-pxp/pkg/types"
)

// ProtocolVersion 控制协议版本，要求双方严格相等
const ProtocolVersion = 1

// Config 会话配置
type Config struct {
	// CandidateTTL 候选有效期
	CandidateTTL time.Duration

	// RelayTTL 普通中继存活时间
	RelayTTL time.Duration

	// MaxCandidates 每个会话最多保留的候选数，超出时淘汰最旧的
	MaxCandidates int

	// RPCTimeout 处理入站请求时发起的下游调用超时（incoming、升级应答）
	RPCTimeout time.Duration

	// RateLimit 入站请求速率（条/秒），0 表示不限速
	RateLimit float64

	// RateBurst 入站请求突发量
	RateBurst int

	// Muxer 多路复用器配置，nil 使用默认值
	Muxer *muxer.Config
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		CandidateTTL:  15 * time.Second,
		RelayTTL:      30 * time.Second,
		MaxCandidates: 1024,
		RPCTimeout:    30 * time.Second,
		RateLimit:     100,
		RateBurst:     200,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.CandidateTTL <= 0 {
		return fmt.Errorf("%w: candidate ttl must be positive", ErrInvalidConfig)
	}
	if c.RelayTTL <= 0 {
		return fmt.Errorf("%w: relay ttl must be positive", ErrInvalidConfig)
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("%w: max candidates must be positive", ErrInvalidConfig)
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("%w: rpc timeout must be positive", ErrInvalidConfig)
	}
	if c.RateLimit < 0 || (c.RateLimit > 0 && c.RateBurst <= 0) {
		return fmt.Errorf("%w: rate limit", ErrInvalidConfig)
	}
	if c.Muxer != nil {
		if err := c.Muxer.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) limit() rate.Limit {
	return rate.Limit(c.RateLimit)
}

// Option 会话选项
type Option func(*Peer) error

// WithConfig 设置配置
func WithConfig(cfg *Config) Option {
	return func(p *Peer) error {
		if cfg == nil {
			return ErrInvalidConfig
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		p.cfg = cfg
		return nil
	}
}

// WithNetworks 设置本地加入的网络
func WithNetworks(networks ...string) Option {
	return func(p *Peer) error {
		p.networks = append([]string(nil), networks...)
		return nil
	}
}

// WithConnectInfo 设置握手时通告的可达性信息
func WithConnectInfo(info *types.ConnectInfo) Option {
	return func(p *Peer) error {
		p.connectInfo = info.Clone()
		return nil
	}
}

// WithIncoming 标记为入站会话（多路复用器取服务端角色）
func WithIncoming(incoming bool) Option {
	return func(p *Peer) error {
		p.incoming = incoming
		return nil
	}
}

// WithRelayed 标记为经中继建立的会话
func WithRelayed(relayed bool) Option {
	return func(p *Peer) error {
		p.relayed = relayed
		return nil
	}
}

// WithAllowIncoming 是否接受 incoming 中继请求
func WithAllowIncoming(allow bool) Option {
	return func(p *Peer) error {
		p.allowIncoming = allow
		return nil
	}
}

// WithHandler 设置命令处理器
func WithHandler(h Handler) Option {
	return func(p *Peer) error {
		if h == nil {
			return fmt.Errorf("%w: nil handler", ErrInvalidConfig)
		}
		p.handler = h
		return nil
	}
}

// WithClock 设置定时器时钟
func WithClock(c clock.Clock) Option {
	return func(p *Peer) error {
		p.clock = c
		return nil
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Peer) error {
		p.metrics = m
		return nil
	}
}

// withVersion 覆盖协议版本（测试用）
func withVersion(v int) Option {
	return func(p *Peer) error {
		p.version = v
		return nil
	}
}
