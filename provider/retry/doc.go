// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package retry 提供带随机抖动的指数退避策略与可取消的等待。
package retry
