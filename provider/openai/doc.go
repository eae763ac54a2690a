// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package openai 实现 OpenAI Realtime 流式语音适配器。

连接通过 github.com/coder/websocket 建立，上游事件被归一化为 provider.Event：

	session.created                                        -> ready
	session.updated                                        -> configured
	input_audio_buffer.speech_started / speech_stopped     -> speech_started / speech_stopped
	conversation.item.input_audio_transcription.completed  -> transcript_input
	response.audio.delta / response.output_audio.delta     -> audio_delta
	response.audio.done / response.output_audio.done       -> audio_done
	response.done                                          -> response_done
	error                                                  -> error

写操作通过互斥锁串行化，websocket 不支持并发写。
*/
package openai
