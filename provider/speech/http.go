package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BaSui01/voicebridge/internal/tlsutil"
	"github.com/BaSui01/voicebridge/types"
)

// maxResponseBytes 单次响应体上限
const maxResponseBytes = 64 << 20

func newHTTPClient(timeout time.Duration, fallback time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = fallback
	}
	return tlsutil.SpeechHTTPClient(timeout)
}

func missingKey(id string) error {
	return types.NewError(types.KindAuthentication, "api key is not configured").WithProvider(id)
}

// do 发送请求并读取完整响应体，非 2xx 状态转为分类错误
func do(ctx context.Context, client *http.Client, id string, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(ctx, id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(ctx, id, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode >= 400 {
		return nil, types.NewHTTPError(id, resp.StatusCode, body)
	}
	return body, nil
}

func transportError(ctx context.Context, id string, err error) *types.Error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return types.Classify(ctxErr, id).WithCause(err)
	}
	e := types.Classify(err, id)
	if e.Kind == types.KindUnknown {
		e.Kind, e.Retryable = types.KindNetwork, true
	}
	return e
}

func parseError(id string, err error) error {
	return types.NewError(types.KindParseError, "decode provider response").WithProvider(id).WithCause(err)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
