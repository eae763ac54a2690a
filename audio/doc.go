// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package audio 提供实时会话使用的音频线格式编解码与输出缓冲。

# 概述

上游 provider 以 base64 文本传输小端 16 位 PCM。输出音频以若干
base64 片段陆续到达，必须先按到达顺序拼接，再整体解码；逐片解码
会破坏采样边界。

# 核心类型

  - EncodePCM16 / DecodePCM16：int16 采样与 base64 文本互转
  - Buffer：有界、仅追加的片段缓冲，Flush 为唯一解码边界
*/
package audio
