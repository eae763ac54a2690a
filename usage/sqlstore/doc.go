// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package sqlstore 把每次失败调用的 ErrorRecord 持久化到关系数据库，
供事后排查与按错误类型聚合。

Store 实现 usage.Sink，只写入失败事件；成功事件由进程内 usage.Stats
或 redisstore 计数。表结构由 Migrate 通过 GORM AutoMigrate 创建。
*/
package sqlstore
