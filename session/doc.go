// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package session 实现客户端与实时语音 provider 之间的双向代理会话。

每个 Session 独占一条客户端连接（Transport）与一条上游连接
（provider.RealtimeConn）。客户端消息、上游事件以及 SubmitAudio 等
外部调用都在 Run 的同一个 goroutine 中串行处理，状态迁移不会交错。

状态机：

	INIT -> CONNECTING -> CONFIGURED -> LISTENING -> PROCESSING -> RESPONDING -> IDLE
	                                        ^                                    |
	                                        +------------------------------------+

任意状态下上游错误或断开进入 ERROR，客户端断开进入 CLOSED。
两种情况都会关闭上游连接与客户端连接。

输出音频片段先写入有界的 audio.Buffer，只在 audio_done（或携带未刷新
片段的 response_done）时整体解码，向客户端发送一条 audio_output。

Manager 跟踪活跃会话，限制并发数量，并在进程退出时统一关闭。
*/
package session
