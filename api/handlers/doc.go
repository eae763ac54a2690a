// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供语音代理 HTTP API 的请求处理器实现。

# 概述

所有 Handler 均遵循标准 net/http 接口，由 cmd/voicebridge 注册到
http.ServeMux。请求经 router 在主 provider 与降级列表之间路由，失败
统一通过 WriteError 映射为 JSON 错误响应。

# 核心类型

  - RealtimeHandler：GET /v1/realtime 升级为 websocket 会话，GET /v1/sessions 列出活跃会话
  - SpeechHandler：一次性 TTS（/v1/audio/speech）与 STT（/v1/audio/transcriptions）
  - ProvidersHandler：provider 描述、熔断快照、用量统计与失败历史
  - HealthHandler：/health、/healthz、/ready、/version
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter：捕获状态码，同时保留 Hijack 以支持 websocket 升级

# 错误映射

AllProvidersFailedError 返回全部尝试记录，状态码取自最后一次失败
的类别；没有任何 provider 可用（熔断器全部打开）时返回 503。
上游鉴权失败对客户端而言属于网关错误，映射为 502。
*/
package handlers
