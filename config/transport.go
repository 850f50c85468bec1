package config

import (
	"errors"
	"time"
)

// TransportConfig 传输层配置
//
//   - TCP: 原始 TCP 连接
//   - WebSocket: 二进制消息承载的 WebSocket 连接
//   - QUIC: 单条双向流，自签名 TLS
type TransportConfig struct {
	// Host 监听主机，空值表示所有接口
	Host string `json:"host,omitempty"`

	// TCP 配置
	TCP TCPConfig `json:"tcp"`

	// WebSocket 配置
	WebSocket WebSocketConfig `json:"websocket"`

	// QUIC 配置
	QUIC QUICConfig `json:"quic"`

	// DialTimeout 拨号超时
	DialTimeout Duration `json:"dial_timeout"`
}

// TCPConfig TCP 传输配置
type TCPConfig struct {
	// Enable 是否启用
	Enable bool `json:"enable"`

	// Port 监听端口，0 表示随机端口
	Port int `json:"port"`

	// KeepAlivePeriod TCP KeepAlive 周期，0 表示系统默认
	KeepAlivePeriod Duration `json:"keep_alive_period"`
}

// WebSocketConfig WebSocket 传输配置
type WebSocketConfig struct {
	// Enable 是否启用
	Enable bool `json:"enable"`

	// Port 监听端口
	Port int `json:"port"`

	// Path HTTP 升级路径
	Path string `json:"path"`

	// ReadBufferSize 读缓冲区大小
	ReadBufferSize int `json:"read_buffer_size,omitempty"`

	// WriteBufferSize 写缓冲区大小
	WriteBufferSize int `json:"write_buffer_size,omitempty"`

	// HandshakeTimeout 握手超时
	HandshakeTimeout Duration `json:"handshake_timeout"`
}

// QUICConfig QUIC 传输配置
type QUICConfig struct {
	// Enable 是否启用
	Enable bool `json:"enable"`

	// Port 监听端口（UDP）
	Port int `json:"port"`

	// MaxIdleTimeout 最大空闲超时
	MaxIdleTimeout Duration `json:"max_idle_timeout"`

	// KeepAlivePeriod KeepAlive 周期
	KeepAlivePeriod Duration `json:"keep_alive_period"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		TCP: TCPConfig{
			Enable:          true,
			KeepAlivePeriod: Duration(15 * time.Second),
		},
		WebSocket: WebSocketConfig{
			Enable:           false,
			Path:             "/pxp",
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: Duration(10 * time.Second),
		},
		QUIC: QUICConfig{
			Enable:          false,
			MaxIdleTimeout:  Duration(30 * time.Second),
			KeepAlivePeriod: Duration(15 * time.Second),
		},
		DialTimeout: Duration(30 * time.Second),
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	for _, port := range []int{c.TCP.Port, c.WebSocket.Port, c.QUIC.Port} {
		if port < 0 || port > 65535 {
			return errors.New("port out of range")
		}
	}
	if c.WebSocket.Enable {
		if c.WebSocket.Path == "" || c.WebSocket.Path[0] != '/' {
			return errors.New("websocket path must start with /")
		}
		if c.WebSocket.HandshakeTimeout <= 0 {
			return errors.New("websocket handshake timeout must be positive")
		}
	}
	if c.QUIC.Enable && c.QUIC.MaxIdleTimeout <= 0 {
		return errors.New("quic max idle timeout must be positive")
	}
	if c.DialTimeout <= 0 {
		return errors.New("dial timeout must be positive")
	}
	return nil
}

// Enabled 返回已启用的传输名称
func (c TransportConfig) Enabled() []string {
	var out []string
	if c.TCP.Enable {
		out = append(out, "tcp")
	}
	if c.WebSocket.Enable {
		out = append(out, "websocket")
	}
	if c.QUIC.Enable {
		out = append(out, "quic")
	}
	return out
}
