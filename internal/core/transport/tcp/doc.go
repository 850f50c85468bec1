// Package tcp 实现 TCP 传输提供者
//
// 地址格式为 host:port。Accept 循环通过 go-temp-err-catcher 对临时错误退避重试。
//
// # 使用示例
//
//	t := tcp.New(tcp.DefaultConfig())
//
//	addr, stop, err := t.Listen(ctx, transportif.ListenOptions{Port: 4001}, onConn)
//	defer stop()
//
//	conn, err := t.Dial(ctx, "1.2.3.4:4001")
package tcp
