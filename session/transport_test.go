package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketTransport(t *testing.T) {
	type result struct {
		msg ClientMessage
		err error
	}
	results := make(chan result, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		tr := NewWebSocketTransport(conn, time.Second)
		for i := 0; i < 3; i++ {
			msg, err := tr.Read(r.Context())
			results <- result{msg, err}
		}
		_ = tr.Write(r.Context(), ServerMessage{Type: TypeAudioOutput, Data: []int16{1, -1}})
		_ = tr.Close(nil)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.CloseNow()

	require.NoError(t, client.Write(ctx, websocket.MessageText, []byte(`{"type":"audio_input","data":[1,2,-3]}`)))
	require.NoError(t, client.Write(ctx, websocket.MessageText, []byte(`{not json`)))
	require.NoError(t, client.Write(ctx, websocket.MessageBinary, []byte{1, 2}))

	first := <-results
	require.NoError(t, first.err)
	assert.Equal(t, ClientMessage{Type: TypeAudioInput, Data: []int16{1, 2, -3}}, first.msg)
	assert.ErrorIs(t, (<-results).err, ErrMalformedMessage)
	assert.ErrorIs(t, (<-results).err, ErrMalformedMessage)

	var out map[string]any
	require.NoError(t, wsjson.Read(ctx, client, &out))
	assert.Equal(t, "audio_output", out["type"])
	assert.Equal(t, []any{float64(1), float64(-1)}, out["data"])

	_, _, err = client.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}
