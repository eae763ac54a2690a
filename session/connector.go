package session

import (
	"context"
	"time"

	"github.com/BaSui01/voicebridge/provider"
	"github.com/BaSui01/voicebridge/provider/router"
)

// Connector 为会话建立上游实时连接
type Connector interface {
	Connect(ctx context.Context, cfg provider.SessionConfig) (provider.RealtimeConn, error)
}

// ConnectorFunc 函数适配为 Connector
type ConnectorFunc func(ctx context.Context, cfg provider.SessionConfig) (provider.RealtimeConn, error)

func (f ConnectorFunc) Connect(ctx context.Context, cfg provider.SessionConfig) (provider.RealtimeConn, error) {
	return f(ctx, cfg)
}

// Direct 直接使用单个适配器建立连接，不经过重试与熔断
func Direct(adapter provider.RealtimeAdapter) Connector {
	return ConnectorFunc(adapter.Connect)
}

// Route 上游连接的路由参数
type Route struct {
	Primary   string
	Fallbacks []string
	// Timeout 单次拨号超时，<=0 使用路由器默认值
	Timeout time.Duration
	// Retries 主 provider 重试次数，<0 使用路由器默认值
	Retries int
}

// RoutedConnector 通过 router 建立连接：拨号失败会重试与降级，并计入熔断。
// 只有建连这一步经过路由，会话开始后不会重连。
type RoutedConnector struct {
	router   *router.Router
	registry *provider.Registry
	route    Route
}

// NewRoutedConnector 创建经路由的连接器
func NewRoutedConnector(r *router.Router, registry *provider.Registry, route Route) *RoutedConnector {
	return &RoutedConnector{router: r, registry: registry, route: route}
}

// Connect 依次尝试 Primary 与 Fallbacks。被放弃的拨号若迟到成功，连接会被关闭。
func (c *RoutedConnector) Connect(ctx context.Context, cfg provider.SessionConfig) (provider.RealtimeConn, error) {
	opts := []router.Option{
		router.WithOperation("realtime.connect"),
		router.WithFallbacks(c.route.Fallbacks...),
		router.WithTimeout(c.route.Timeout),
		router.WithRetries(c.route.Retries),
		router.WithDiscard(closeLateConn),
		router.WithEligibility(func(id string) error {
			_, err := c.registry.Realtime(id)
			return err
		}),
	}
	return router.Do(ctx, c.router, c.route.Primary, func(ctx context.Context, id string) (provider.RealtimeConn, error) {
		adapter, err := c.registry.Realtime(id)
		if err != nil {
			return nil, err
		}
		return adapter.Connect(ctx, cfg)
	}, opts...)
}

func closeLateConn(v any) {
	if conn, ok := v.(provider.RealtimeConn); ok && conn != nil {
		_ = conn.Close()
	}
}
