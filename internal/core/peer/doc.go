// Package peer 实现一条物理连接上的 PXP 会话
//
// Peer 在连接上建立多路复用器，在保留的 "pxp" 通道上运行控制协议，
// 构造后立即发送 hello。会话就绪需要同时满足：
//
//   - 收到版本一致、且与本地至少共享一个网络的 hello（随即回复 helloack）
//   - 收到对本端 hello 的 helloack
//
// 两者到达顺序无关，任何一个重复出现都是致命错误。
//
// 就绪后的命令：
//
//	getpeers(network)                返回候选列表，不包含请求方
//	relay(network, candidate, mode)  把请求方的 relay:<candidate> 通道拼接到候选
//	incoming(id)                     在 relay:<id> 通道上接受一条入站中继
//	upgrade(transport, payload)      升级信令透传给 Handler
//	connect(network)                 建立 connect:<network> 应用数据通道
//
// 协议违规统一走一条错误路径：记录原因并销毁连接，不做自动重连。
package peer
