// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的代理指标采集能力。

# 概述

Collector 使用 promauto 注册到默认 Registry，所有指标按 namespace
隔离，由 /metrics 端点通过 promhttp 暴露。

# 指标分组

  - HTTP：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - Provider：每次路由尝试的计数与延迟，失败按错误类别计数。
    Collector 实现 usage.Recorder，可直接组合进用量链路。
  - 熔断器：状态转换计数与当前状态 Gauge，挂在
    circuitbreaker.Config.OnStateChange 上。
  - 会话：活跃数、累计数、按终态计数与状态转换计数，挂在
    session.Config.OnStateChange 上。
  - 用量 sink：异步写入队列满时的丢弃计数。
  - 存储：Redis 与数据库的可用性 Gauge（storage_up）。
*/
package metrics
