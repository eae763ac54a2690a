// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 server 提供 HTTP/HTTPS 监听端口的生命周期管理。

Manager 封装 net/http.Server：Start 非阻塞监听，Run 阻塞到 ctx
结束后优雅关闭，便于放进 errgroup 与其他监听端口一起管理。
Config.TLSConfig 非空时以 HTTPS 监听。

websocket 连接升级后脱离 http.Server 的连接跟踪，Shutdown 不会等待。
OnDrain 注册的收尾函数在监听关闭后按顺序执行，与 Shutdown 共用
ShutdownTimeout，实时会话的关闭与等待挂在这里。ConnState 维护
普通连接与已升级连接的计数，关闭时写入日志。
*/
package server
