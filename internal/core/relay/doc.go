// Package relay 把两个双工流逐字节拼接在一起
//
// 拼接双向复制数据，单向结束时向另一端传播半关闭，任意一端出错或两个方向
// 都结束时同时关闭两端。
//
// 生命周期由模式决定：
//
//	ordinary   到达 TTL（默认 30s）后自动关闭
//	signaling  一直保持，直到任一端点断开
//
// 定时器注册在共享的 clock.Clock 上，不会阻止进程退出。
package relay
