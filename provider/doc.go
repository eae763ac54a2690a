// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package provider 定义语音 provider 的能力接口、归一化实时事件模型和只读注册表。

# 核心接口

  - RealtimeAdapter / RealtimeConn：双向流式语音连接
  - Synthesizer：一次性 TTS
  - Transcriber：一次性 STT
  - Unsupported：未实现 provider 的显式占位，注册时暴露

具体适配器位于子包：openai（实时）、speech（TTS/STT），
熔断、退避与路由位于 circuitbreaker、retry、router。
*/
package provider
