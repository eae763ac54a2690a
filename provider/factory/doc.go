// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package factory 根据 config.ProvidersConfig 构建 provider.Registry。

openai 以 provider.Suite 形式同时注册 realtime、tts、stt 三种能力；
elevenlabs、deepgram、polly 按 Enabled 开关注册；Unsupported 列表中的 id
（默认 azure、google）注册为不可用占位，查找时返回 NOT_FOUND。
*/
package factory
