// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package router 提供带重试、熔断与有序降级的一次性 provider 调用执行器。

	r := router.New(router.DefaultConfig(), breakers, stats, logger)
	res, err := router.Do(ctx, r, "openai", func(ctx context.Context, p string) (*provider.SynthesisResult, error) {
		s, err := registry.Synthesizer(p)
		if err != nil {
			return nil, err
		}
		return s.Synthesize(ctx, req)
	}, router.WithFallbacks("elevenlabs", "polly"))

所有 provider 都失败时返回 *types.AllProvidersFailedError，携带完整尝试历史。
*/
package router
