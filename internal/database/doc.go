// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 database 负责打开 GORM 连接并管理连接池。

Open 按驱动名选择方言：postgres、mysql 或纯 Go 的 sqlite。
PoolManager 设置连接池上限，后台定时 Ping，只在可用性翻转时记录日志
并回调 OnHealthChange。失败记录存储（usage/sqlstore）基于它工作。
*/
package database
