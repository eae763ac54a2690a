// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 VoiceBridge 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 provider、session、api
等上层模块提供统一的错误契约，以避免循环依赖。

# 核心类型

  - ErrorKind：封闭的错误分类（AUTHENTICATION ... UNKNOWN）
  - Error：结构化错误，含 HTTP 状态码、Retryable、Provider 标记
  - ErrorRecord：每次失败调用产生的记录，供熔断器与统计使用
  - AllProvidersFailedError：所有 provider 均失败时的终止错误，携带完整尝试历史

# 主要能力

  - 错误分类：Classify / ClassifyHTTPStatus / ClassifyMessage
  - 错误工具链：AsError / KindOf / IsRetryable
  - 适配器边界辅助：NewHTTPError
*/
package types
