// Package swarm 实现一个网络内的会话群与发现编排
//
// Swarm 持有某个网络 ID 下所有已就绪的会话，负责把原始流包装成会话、
// 完成握手并登记，同时作为每个会话的命令处理器（peer.Handler）。
//
// # 核心功能
//
// 会话登记：
//   - Connect / Accept 包装原始流，握手超时受 HandshakeTimeout 约束
//   - 出站会话登记后立即打开网络数据通道，由 Connect 返回给调用方
//   - 对端打开的数据通道交给 ConnectHandler，未设置时作为 EvtConnect 发出；
//     无人接收的通道被关闭
//   - 会话断开后自动移除（EvtPeerDisconnected）
//
// 发现（GetNewPeer）：
//   - 随机选一个会话，向它索取候选
//   - 候选运行控制协议时：信令中继 → 握手 → 尝试升级传输
//   - 升级失败时保留中继会话作为结果
//   - 候选为裸端点时：普通中继，直接交出中继流
//
// 入站中继与升级：
//   - 对端经 incoming 打开的通道被包装为入站、经中继的会话
//   - 升级请求交给对应的 Upgrader 应答，新连接就绪后关闭旧会话
//
// # 使用示例
//
//	s, err := swarm.NewSwarm("chat")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	p, stream, err := s.Connect(ctx, conn)
//	found, err := s.GetNewPeer(ctx)
package swarm
