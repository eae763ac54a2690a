package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/voicebridge/audio"
	"github.com/BaSui01/voicebridge/provider"
	"github.com/BaSui01/voicebridge/session"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// upstreamConn 模拟上游实时连接：建立即 ready，请求响应后回放一段音频
type upstreamConn struct {
	events chan provider.Event
	reply  []int16

	mu     sync.Mutex
	calls  []string
	closed bool
}

func newUpstreamConn(reply []int16) *upstreamConn {
	c := &upstreamConn{events: make(chan provider.Event, 16), reply: reply}
	c.events <- provider.Event{Type: provider.EventReady}
	return c
}

func (c *upstreamConn) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *upstreamConn) Provider() string              { return "openai" }
func (c *upstreamConn) Events() <-chan provider.Event { return c.events }
func (c *upstreamConn) Err() error                    { return nil }

func (c *upstreamConn) Configure(context.Context, provider.SessionConfig) error {
	c.record("configure")
	return nil
}

func (c *upstreamConn) AppendAudio(context.Context, string) error {
	c.record("append")
	return nil
}

func (c *upstreamConn) Commit(context.Context) error {
	c.record("commit")
	return nil
}

func (c *upstreamConn) RequestResponse(context.Context) error {
	c.record("response")
	c.events <- provider.Event{Type: provider.EventAudioDelta, Audio: audio.EncodePCM16(c.reply)}
	c.events <- provider.Event{Type: provider.EventResponseDone}
	return nil
}

func (c *upstreamConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *upstreamConn) snapshot() ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...), c.closed
}

type realtimeFixture struct {
	server  *httptest.Server
	manager *session.Manager
	conn    *upstreamConn

	mu  sync.Mutex
	cfg provider.SessionConfig
}

func newRealtimeFixture(t *testing.T, maxSessions int) *realtimeFixture {
	t.Helper()
	f := &realtimeFixture{
		manager: session.NewManager(maxSessions, zap.NewNop()),
		conn:    newUpstreamConn([]int16{7, -7, 300}),
	}
	connector := session.ConnectorFunc(func(_ context.Context, cfg provider.SessionConfig) (provider.RealtimeConn, error) {
		f.mu.Lock()
		f.cfg = cfg
		f.mu.Unlock()
		return f.conn, nil
	})

	h := NewRealtimeHandler(f.manager, connector, RealtimeConfig{
		Session:      session.Config{Session: provider.DefaultSessionConfig()},
		WriteTimeout: time.Second,
	}, zap.NewNop())

	mux := http.NewServeMux()
	mux.Handle("/v1/realtime", h)
	mux.HandleFunc("/v1/sessions", h.HandleListSessions)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *realtimeFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/v1/realtime" + query
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

func readServer(t *testing.T, c *websocket.Conn) session.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg session.ServerMessage
	require.NoError(t, wsjson.Read(ctx, c, &msg))
	return msg
}

func TestRealtimeHandler_RoundTrip(t *testing.T) {
	f := newRealtimeFixture(t, 4)
	c := f.dial(t, "?voice=shimmer")

	assert.Equal(t, session.TypeConnected, readServer(t, c).Type)
	assert.Equal(t, 1, f.manager.Count())

	f.mu.Lock()
	assert.Equal(t, "shimmer", f.cfg.Voice)
	f.mu.Unlock()

	ctx := context.Background()
	require.NoError(t, wsjson.Write(ctx, c, session.ClientMessage{Type: session.TypeAudioInput, Data: []int16{1, 2, 3}}))
	require.NoError(t, wsjson.Write(ctx, c, session.ClientMessage{Type: session.TypeCommitAudio}))

	out := readServer(t, c)
	require.Equal(t, session.TypeAudioOutput, out.Type)
	assert.Equal(t, []int16{7, -7, 300}, out.Data)
	assert.Equal(t, session.TypeResponseComplete, readServer(t, c).Type)

	calls, _ := f.conn.snapshot()
	assert.Equal(t, []string{"configure", "append", "commit", "response"}, calls)

	require.NoError(t, c.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return f.manager.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		_, closed := f.conn.snapshot()
		return closed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRealtimeHandler_UnknownMessageKeepsSession(t *testing.T) {
	f := newRealtimeFixture(t, 0)
	c := f.dial(t, "")
	require.Equal(t, session.TypeConnected, readServer(t, c).Type)

	require.NoError(t, c.Write(context.Background(), websocket.MessageText, []byte(`{"type":"dance"}`)))
	msg := readServer(t, c)
	assert.Equal(t, session.TypeError, msg.Type)
	assert.Contains(t, msg.Message, "dance")
	assert.Equal(t, 1, f.manager.Count())
}

func TestRealtimeHandler_SessionLimit(t *testing.T) {
	f := newRealtimeFixture(t, 1)
	placeholder := session.New(session.Config{}, session.ConnectorFunc(nil), nil)
	unregister, err := f.manager.Register(placeholder)
	require.NoError(t, err)
	defer unregister()

	resp, err := http.Get(f.server.URL + "/v1/realtime")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	var body Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, CodeSessionLimit, body.Error.Code)
}

func TestRealtimeHandler_RejectsPost(t *testing.T) {
	f := newRealtimeFixture(t, 1)
	resp, err := http.Post(f.server.URL+"/v1/realtime", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRealtimeHandler_ListSessions(t *testing.T) {
	f := newRealtimeFixture(t, 2)
	c := f.dial(t, "")
	require.Equal(t, session.TypeConnected, readServer(t, c).Type)

	resp, err := http.Get(f.server.URL + "/v1/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Count    int              `json:"count"`
			Sessions []map[string]any `json:"sessions"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Data.Count)
	require.Len(t, body.Data.Sessions, 1)
	assert.Equal(t, "openai", body.Data.Sessions[0]["provider"])
	assert.Equal(t, "CONFIGURED", body.Data.Sessions[0]["state"])
}
