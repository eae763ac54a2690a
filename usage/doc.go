// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package usage 定义 provider 调用的用量统计接收端。

Recorder 是只写、fire-and-forget 的接口，router 在每次尝试结束时写入一条 Event。
本包提供进程内 Stats 与扇出组合 Multi；持久化实现位于 usage/redisstore
（计数器）与 usage/sqlstore（失败记录）。
*/
package usage
