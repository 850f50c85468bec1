package swarm

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-pxp/internal/core/eventbus"
	"github.com/dep2p/go-pxp/internal/core/metrics"
	"github.com/dep2p/go-pxp/internal/core/peer"
	transportif "github.com/dep2p/go-pxp/pkg/interfaces/transport"
	"github.com/dep2p/go-pxp/pkg/types"
)

// Config Swarm 配置
type Config struct {
	// AllowIncoming 是否接受入站中继
	// 为 false 时不通告可达性信息，也不会出现在其他节点的候选中
	AllowIncoming bool

	// HandshakeTimeout 等待会话就绪（含打开数据通道）的超时
	HandshakeTimeout time.Duration

	// UpgradeTimeout 一次升级（信令与新连接握手）的超时
	UpgradeTimeout time.Duration

	// Peer 会话配置，nil 使用默认值
	Peer *peer.Config
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		AllowIncoming:    true,
		HandshakeTimeout: 30 * time.Second,
		UpgradeTimeout:   30 * time.Second,
		Peer:             peer.DefaultConfig(),
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: handshake timeout must be positive", ErrInvalidConfig)
	}
	if c.UpgradeTimeout <= 0 {
		return fmt.Errorf("%w: upgrade timeout must be positive", ErrInvalidConfig)
	}
	if c.Peer != nil {
		if err := c.Peer.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Option Swarm 选项函数
type Option func(*Swarm) error

// WithConfig 设置配置
func WithConfig(config *Config) Option {
	return func(s *Swarm) error {
		if config == nil {
			return ErrInvalidConfig
		}
		if err := config.Validate(); err != nil {
			return err
		}
		s.config = config
		return nil
	}
}

// WithEventBus 使用外部事件总线，Close 时不关闭它
func WithEventBus(bus *eventbus.Bus) Option {
	return func(s *Swarm) error {
		if bus == nil {
			return fmt.Errorf("%w: nil event bus", ErrInvalidConfig)
		}
		s.bus = bus
		return nil
	}
}

// WithClock 设置候选与中继定时器使用的时钟
func WithClock(c clock.Clock) Option {
	return func(s *Swarm) error {
		s.clock = c
		return nil
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Swarm) error {
		s.metrics = m
		return nil
	}
}

// ConnectHandler 处理对端打开的应用数据通道，通道归处理器所有
type ConnectHandler func(types.EvtConnect)

// WithConnectHandler 设置数据通道处理器，设置后不再发出 EvtConnect
func WithConnectHandler(h ConnectHandler) Option {
	return func(s *Swarm) error {
		s.onConnect = h
		return nil
	}
}

// WithUpgraders 按优先级添加升级器，同名升级器只保留第一个
func WithUpgraders(upgraders ...transportif.Upgrader) Option {
	return func(s *Swarm) error {
		for _, u := range upgraders {
			if u == nil {
				continue
			}
			if _, ok := s.upgrader(u.Transport()); ok {
				continue
			}
			s.upgraders = append(s.upgraders, u)
		}
		return nil
	}
}
