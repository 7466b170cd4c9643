// Package metrics 提供 messenger 的 Prometheus 指标
//
// 每个节点持有独立的 prometheus.Registry，同一进程内的多个节点互不干扰。
// 所有记录方法对 nil *Metrics 安全，未启用指标时调用方无需判空。
//
//	m := metrics.New()
//	m.MessageReceived("TEXT")
//	m.MessageDropped("invalid")
//
// 配置 metrics.listen_addr 后，Fx 模块会在该地址暴露 /metrics。
package metrics
