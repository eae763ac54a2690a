// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package speech 实现一次性语音合成与转写的 provider 适配器。

OpenAI（tts/whisper）、ElevenLabs、Deepgram 通过 HTTP 调用，
Amazon Polly 通过 aws-sdk-go-v2 调用。所有适配器在调用内完整读取响应体，
并把传输与 HTTP 失败归类为 types.Error，供 router 判定重试与熔断。
*/
package speech
