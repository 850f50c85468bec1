// Package quic 实现 QUIC 传输提供者
//
// 每个 QUIC 连接只使用一条双向流，流的关闭同时关闭连接。
// 证书为进程内生成的自签名证书，不做对端身份校验。
//
// 拨号方打开的流在写入首个字节前对端不可见；控制协议的出站方
// 握手时会立即写入，因此 Accept 不会因此阻塞。
package quic
