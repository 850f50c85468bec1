// Package muxer 把一条物理双工连接拆分为按名称寻址的逻辑通道
//
// 底层使用 hashicorp/yamux。一个 Channel 由两条 yamux 流组成：本端打开、
// 只由本端写入的出站流，以及对端打开、只由对端写入的入站流。每条流的
// 首部是 varint 长度前缀的通道名称，接收端据此把入站流挂到同名 Channel 上。
//
// 因此 Channel(id) 在同一连接内按名称幂等，两端各自调用 Channel("pxp")
// 即得到同一条逻辑通道，无需协商谁先打开。
//
// # 流控
//
// 每条 yamux 流有独立的接收窗口：某个 Channel 的读取方停止读取只会暂停
// 该通道的对端写入，不会阻塞兄弟通道。
//
// # 角色
//
// yamux 要求两端角色互补：incoming=true 的一端为 server，另一端为 client。
//
// # 错误传播
//
// 物理连接出错时，所有派生 Channel 以同一错误终止。
package muxer
