// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 cache 管理进程共享的 Redis 客户端。

Manager 创建时同步 Ping，不可达直接返回错误，由调用方决定降级。
后台按 HealthCheckInterval 探测，仅在可用性翻转时记录日志并回调
OnHealthChange（服务端接到 storage_up 指标上）。
用量计数器（usage/redisstore）通过 Client 取得底层 go-redis 客户端。
*/
package cache
