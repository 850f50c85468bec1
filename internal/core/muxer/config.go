package muxer

import (
	"io"
	"time"

	"github.com/hashicorp/yamux"
)

// Config 多路复用器配置
type Config struct {
	// AcceptBacklog 未处理入站流上限
	AcceptBacklog int

	// EnableKeepAlive 启用 yamux 心跳
	EnableKeepAlive bool

	// KeepAliveInterval 心跳间隔
	KeepAliveInterval time.Duration

	// ConnectionWriteTimeout 单次写超时
	ConnectionWriteTimeout time.Duration

	// MaxStreamWindowSize 单条流最大接收窗口
	MaxStreamWindowSize uint32

	// HeaderTimeout 读取入站流首部的超时
	HeaderTimeout time.Duration

	// MaxChannelIDLen 通道名称最大长度
	MaxChannelIDLen int
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		AcceptBacklog:          256,
		EnableKeepAlive:        true,
		KeepAliveInterval:      30 * time.Second,
		ConnectionWriteTimeout: 10 * time.Second,
		MaxStreamWindowSize:    256 * 1024,
		HeaderTimeout:          10 * time.Second,
		MaxChannelIDLen:        256,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.AcceptBacklog <= 0 || c.HeaderTimeout <= 0 || c.MaxChannelIDLen <= 0 {
		return ErrInvalidConfig
	}
	if c.ConnectionWriteTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.EnableKeepAlive && c.KeepAliveInterval <= 0 {
		return ErrInvalidConfig
	}
	// yamux 的初始窗口为 256KB，不允许更小
	if c.MaxStreamWindowSize < 256*1024 {
		return ErrInvalidConfig
	}
	return nil
}

// yamuxConfig 转换为 yamux.Config
func (c *Config) yamuxConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.AcceptBacklog = c.AcceptBacklog
	cfg.EnableKeepAlive = c.EnableKeepAlive
	cfg.KeepAliveInterval = c.KeepAliveInterval
	cfg.ConnectionWriteTimeout = c.ConnectionWriteTimeout
	cfg.MaxStreamWindowSize = c.MaxStreamWindowSize
	cfg.LogOutput = io.Discard
	return cfg
}

// Option 多路复用器选项
type Option func(*Muxer) error

// WithConfig 设置配置
func WithConfig(cfg *Config) Option {
	return func(m *Muxer) error {
		if cfg == nil {
			return ErrInvalidConfig
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		m.cfg = cfg
		return nil
	}
}

// WithChannelHandler 设置对端打开未知通道时的回调
func WithChannelHandler(fn func(*Channel)) Option {
	return func(m *Muxer) error {
		m.onChannel = fn
		return nil
	}
}
