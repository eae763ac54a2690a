// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package circuitbreaker 提供按 provider 隔离的熔断器及其进程级注册表。

# 状态转换

	CLOSED    失败且计数 < 阈值      -> CLOSED    计数 +1
	CLOSED    失败且计数 >= 阈值     -> OPEN      openedAt = now
	OPEN      冷却期内检查可用性     -> OPEN      拒绝
	OPEN      冷却期后检查可用性     -> HALF_OPEN 允许且仅允许一次试探
	HALF_OPEN 试探成功               -> CLOSED    计数清零
	HALF_OPEN 试探失败               -> OPEN      重新计时冷却

任何成功都会将连续失败计数清零。默认阈值 5 次，冷却 30 秒。
*/
package circuitbreaker
