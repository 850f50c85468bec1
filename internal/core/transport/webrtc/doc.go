// Package webrtc 实现 WebRTC 升级器
//
// 发起方创建 PeerConnection 与一条有序数据通道，等待 ICE 收集完成后把完整的
// SDP Offer 作为升级负载；响应方应用 Offer 并返回完整的 SDP Answer。
// 数据通道打开后被分离（detach）为字节流，成为新的连接。
//
// 数据通道按消息收发：写入按最大消息长度切分，读取保留未读完的消息。
package webrtc
