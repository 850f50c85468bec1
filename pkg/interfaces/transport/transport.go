// Package transport 定义传输提供者接口
//
// 核心协议只把传输返回的流当作字节流处理，从不解释传输相关的地址格式。
// 具体实现位于 internal/core/transport/{tcp,websocket,quic}；
// 基于信令的升级传输实现位于 internal/core/transport/{direct,webrtc}。
package transport

import (
	"context"
	"encoding/json"
	"io"
)

// ============================================================================
//                              Transport 接口
// ============================================================================

// Transport 可拨号的传输
type Transport interface {
	// Name 传输名称，例如 "tcp"、"websocket"、"quic"
	Name() string

	// Dial 建立出站连接，返回原始双工字节流
	Dial(ctx context.Context, addr string) (io.ReadWriteCloser, error)
}

// ListenOptions 监听选项
type ListenOptions struct {
	// Host 监听主机，空值表示所有接口
	Host string

	// Port 监听端口，0 表示随机端口
	Port int

	// Path 仅 websocket 使用的 HTTP 路径
	Path string
}

// ConnHandler 入站原始流回调
type ConnHandler func(conn io.ReadWriteCloser)

// Listener 可监听的传输
type Listener interface {
	Transport

	// Listen 开始监听，每个入站连接回调一次 onConn
	//
	// 返回实际监听地址与停止函数。
	Listen(ctx context.Context, opts ListenOptions, onConn ConnHandler) (addr string, stop func() error, err error)
}

// ============================================================================
//                              Upgrader 接口
// ============================================================================

// Upgrader 通过带内信令建立更优传输的能力对象
//
// 信令负载对协议引擎不透明：发起方的 Offer 负载经中继会话的 upgrade
// 命令送达对端，对端的 Answer 负载作为该命令的响应返回。
type Upgrader interface {
	// Transport 升级传输名称
	Transport() string

	// NewOffer 发起方：创建新的出站连接尝试
	NewOffer(ctx context.Context) (Offer, error)

	// Accept 响应方：处理对端的 Offer 负载
	Accept(ctx context.Context, offer json.RawMessage) (Answer, error)
}

// Offer 发起方的一次升级尝试
type Offer interface {
	// Payload 自描述的信令负载
	Payload() json.RawMessage

	// Complete 应用对端应答并等待新传输连通
	Complete(ctx context.Context, answer json.RawMessage) (io.ReadWriteCloser, error)

	// Close 放弃本次尝试并释放资源
	Close() error
}

// Answer 响应方的一次升级尝试
type Answer interface {
	// Payload 返回给发起方的信令负载
	Payload() json.RawMessage

	// Wait 等待新传输连通
	Wait(ctx context.Context) (io.ReadWriteCloser, error)

	// Close 放弃本次尝试并释放资源
	Close() error
}
