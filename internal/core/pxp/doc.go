// Package pxp 实现对等交换控制协议的编解码与请求/响应关联
//
// 线上格式：保留通道上的一条记录占一行 JSON 数组
//
//	[command, nonce, args]
//
// nonce 是每个 Codec 实例单调递增计数器的 36 进制字符串。args 在只有一个逻辑
// 参数时折叠为单值，没有参数时省略。res 记录用于应答，其 args 固定为
// [error|null, result]，error 为 {"code","message"} 对象。
//
// 违规（字段不足、未知命令、res 指向未发出或已应答的 nonce）一律视为致命
// 协议错误：Codec 停止读取并通过错误回调通知所有者销毁连接。
package pxp
