package tlsutil

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// DefaultTLSConfig TLS 1.2 起，仅 AEAD 密码套件
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

func dialer() *net.Dialer {
	return &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
}

var (
	speechOnce      sync.Once
	speechTransport *http.Transport
)

// SpeechTransport 一次性 TTS/STT 调用共用的 Transport，
// 同一 provider 的并发请求复用连接池
func SpeechTransport() *http.Transport {
	speechOnce.Do(func() {
		speechTransport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			TLSClientConfig:       DefaultTLSConfig(),
			DialContext:           dialer().DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	})
	return speechTransport
}

// SpeechHTTPClient 返回共享连接池的客户端，timeout 覆盖整个请求与响应体读取
func SpeechHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: SpeechTransport()}
}

// WebSocketHTTPClient 用于上游 realtime 拨号。
// websocket 升级只能走 HTTP/1.1，ALPN 固定为 http/1.1；不设 Timeout，
// 否则会作用到握手之后的长连接，握手超时由拨号 ctx 控制。
func WebSocketHTTPClient() *http.Client {
	tlsCfg := DefaultTLSConfig()
	tlsCfg.NextProtos = []string{"http/1.1"}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			TLSClientConfig:     tlsCfg,
			DialContext:         dialer().DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			// 非 nil 的空 map 关闭 HTTP/2
			TLSNextProto: map[string]func(string, *tls.Conn) http.RoundTripper{},
		},
	}
}

// ServerConfig 加载证书并返回对外 HTTPS 配置，同时支持 h2 与 websocket 所需的 http/1.1
func ServerConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	cfg := DefaultTLSConfig()
	cfg.Certificates = []tls.Certificate{cert}
	cfg.NextProtos = []string{"h2", "http/1.1"}
	return cfg, nil
}
