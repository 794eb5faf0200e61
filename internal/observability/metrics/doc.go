// Package metrics 通过 Prometheus 暴露 keeper 的轮次、余额与交易指标。
package metrics
