// Package transport 管理传输提供者与升级器
//
// Registry 按名称登记可拨号的传输（tcp / websocket / quic）与基于信令的
// 升级器（direct / webrtc）。Module 根据统一配置创建已启用的传输，
// 并把升级器以 "upgraders" 值组交给 Swarm。
//
// 核心协议只把传输返回的流当作字节流处理；地址格式由各传输自行解释：
//
//	tcp        127.0.0.1:4001
//	websocket  ws://127.0.0.1:8080/pxp
//	quic       127.0.0.1:4002
package transport
