// Package direct 实现直连 TCP 升级器
//
// 发起方在本地开启一个临时 TCP 监听，Offer 负载携带监听地址与一次性令牌；
// 响应方拨号该地址并先写入令牌，发起方校验令牌后把连接交给 Swarm。
// 适用于双方可直接互通、只是最初经由中继发现彼此的场景。
package direct
