// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 voicebridge 实时语音代理的程序入口。

# 概述

cmd/voicebridge 组装 provider 注册表、熔断器、路由器、会话管理器与
用量存储，对外提供 websocket 实时会话、一次性 TTS/STT 以及 provider
状态查询接口。配置来自 YAML 文件与 VOICEBRIDGE_* 环境变量。

# 核心类型

  - Server：组件装配，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、version、health（--ready 探测就绪）、
    check（离线校验配置并打印各路由链 provider 状态）
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    MetricsMiddleware、RequestLogger、CORS、RateLimiter（基于 IP）、
    APIKeyAuth（X-API-Key，/v1/realtime 额外接受 api_key 查询参数）
  - 用量持久化：Redis 计数与 SQL 失败记录均为可选，不可用时降级运行
  - 优雅关闭：信号 → 关闭监听 → 关闭活跃会话 → 排空用量队列 → 刷新遥测 → 关闭存储
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
