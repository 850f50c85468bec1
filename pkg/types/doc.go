// Package types 定义 PXP 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - connectinfo.go - ConnectInfo 可达性描述、Candidate 候选节点、RelayMode
//   - errors.go      - 错误分类（协议违规 / 资源不存在 / 传输错误 / 升级失败）
//   - events.go      - Swarm 向应用层发出的事件
package types
