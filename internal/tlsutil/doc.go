// Package tlsutil 集中管理 TLS 与出站 HTTP 客户端设置：一次性语音调用共享的
// 连接池、仅 HTTP/1.1 的 websocket 拨号客户端，以及对外 HTTPS 服务端配置
// （TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
