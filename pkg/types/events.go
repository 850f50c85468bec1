package types

import (
	"io"
)

// Session 事件中引用的对端会话
//
// 由 internal/core/peer.Peer 实现；事件只暴露只读视图与关闭能力。
type Session interface {
	ID() string
	Incoming() bool
	Relayed() bool
	RemoteConnectInfo() *ConnectInfo
	Close() error
}

// ============================================================================
//                              Swarm 事件
// ============================================================================

// EvtPeerJoined 会话完成握手并加入 Swarm
type EvtPeerJoined struct {
	Peer Session
}

// EvtPeerDisconnected 会话断开并从 Swarm 移除
type EvtPeerDisconnected struct {
	Peer Session
	// Err 断开原因，正常关闭时为 nil
	Err error
}

// EvtPeerError 会话因错误被销毁
type EvtPeerError struct {
	Peer Session
	Err  error
}

// EvtDiscoveryError 后台发现或升级处理失败
type EvtDiscoveryError struct {
	Err error
}

// EvtConnect 新的应用数据通道交付给应用
//
// 对端打开的通道，或节点后台（种子、发现）建立的通道。
// 收到事件的一方拥有 Stream；裸中继端点没有会话，此时 Peer 为 nil。
type EvtConnect struct {
	Peer    Session
	Network string
	Stream  io.ReadWriteCloser
}

// EvtUpgradeRequested 对端请求升级传输
type EvtUpgradeRequested struct {
	Peer      Session
	Transport string
}

// EvtIncomingRelay 对端经中继接入
type EvtIncomingRelay struct {
	// Via 提供中继的会话
	Via Session
	// Peer 在中继通道上新建的会话
	Peer Session
}
