package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ErrMalformedMessage 客户端消息无法解析。会话收到后回复 error 并继续。
var ErrMalformedMessage = errors.New("session: malformed client message")

// maxCloseReason websocket 关闭帧原因字段的上限
const maxCloseReason = 123

// Transport 面向客户端的消息通道。
// Read 只会被一个 goroutine 调用，Write 也只会被一个 goroutine 调用，二者可并发。
type Transport interface {
	Read(ctx context.Context) (ClientMessage, error)
	Write(ctx context.Context, msg ServerMessage) error
	// Close 关闭通道；cause 非空表示异常结束
	Close(cause error) error
}

type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWebSocketTransport 基于已升级的 websocket 连接创建 Transport
func NewWebSocketTransport(conn *websocket.Conn, writeTimeout time.Duration) Transport {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &wsTransport{conn: conn, writeTimeout: writeTimeout}
}

func (t *wsTransport) Read(ctx context.Context) (ClientMessage, error) {
	typ, data, err := t.conn.Read(ctx)
	if err != nil {
		return ClientMessage{}, err
	}
	if typ != websocket.MessageText {
		return ClientMessage{}, fmt.Errorf("%w: expected text frame", ErrMalformedMessage)
	}
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return ClientMessage{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return msg, nil
}

func (t *wsTransport) Write(ctx context.Context, msg ServerMessage) error {
	wctx, cancel := context.WithTimeout(ctx, t.writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, t.conn, msg)
}

func (t *wsTransport) Close(cause error) error {
	if cause == nil {
		return t.conn.Close(websocket.StatusNormalClosure, "session closed")
	}
	reason := cause.Error()
	if len(reason) > maxCloseReason {
		reason = strings.ToValidUTF8(reason[:maxCloseReason], "")
	}
	return t.conn.Close(websocket.StatusInternalError, reason)
}
