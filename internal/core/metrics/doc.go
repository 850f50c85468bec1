// Package metrics 提供 PXP 节点的 Prometheus 指标
//
// 所有收集器注册在独立的 prometheus.Registry 上，不污染全局默认注册表。
// 方法对 nil 接收者安全，未启用指标时组件可以直接传 nil。
package metrics
