// Package websocket 实现 WebSocket 传输提供者
//
// 每个 WebSocket 连接承载一条字节流：写入被编码为二进制消息，
// 读取跨消息边界连续进行。地址格式为 ws://host:port/path。
package websocket
