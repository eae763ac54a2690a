// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package telemetry 封装 OpenTelemetry SDK 初始化，为路由层与 HTTP 中间件的
// span 以及路由计数器提供全局 TracerProvider 和 MeterProvider。资源属性包含
// 服务名、版本、部署环境与主机名；Insecure 决定 OTLP gRPC 是否走明文。
// 遥测禁用时保持 noop 实现，不连接任何外部服务。
package telemetry
