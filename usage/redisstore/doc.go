// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package redisstore 把 provider 调用统计写入 Redis，多个代理实例共享同一组计数器。

每个 provider 一个 hash（<prefix>provider:<id>），字段包括 successes、failures、
latency_us 以及 kind:<KIND>；最近的失败记录以 JSON 保存在一个定长 list 中。
Store 实现 usage.Sink，通常经 usage.NewAsync 包装后挂到 router 上。
*/
package redisstore
