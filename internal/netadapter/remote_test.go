package netadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmcore.ai/internal/protocol"
)

// echoRelay answers HELLO with WELCOME and turns every INPUT into a BUNDLE
// for the same tick.
func echoRelay(t *testing.T) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var hello protocol.HelloMsg
		if err := conn.ReadJSON(&hello); err != nil || hello.Type != protocol.TypeHello {
			return
		}
		if hello.ProtocolVersion != protocol.Version {
			_ = conn.WriteJSON(protocol.NewErrorMsg(protocol.ErrProtoVersion, "bad protocol_version"))
			return
		}
		_ = conn.WriteJSON(protocol.WelcomeMsg{
			Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version,
			SessionID: "s-1", TickRateHz: 20, SendDelayTicks: 3, StartTick: 0,
		})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var in protocol.InputMsg
			if err := json.Unmarshal(msg, &in); err != nil {
				return
			}
			b := protocol.TickBundle{Tick: in.Tick, Commands: in.Commands}
			if err := conn.WriteJSON(protocol.NewBundleMsg(b)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRemote_RoundTrip(t *testing.T) {
	srv := echoRelay(t)
	r := NewRemote(RemoteConfig{URL: wsURL(srv)}, nil)
	rec := &recorder{}
	r.OnInputBundle(rec.handle)

	require.NoError(t, r.Connect(context.Background()))
	defer r.Disconnect()
	assert.Equal(t, "s-1", r.Welcome().SessionID)
	assert.Equal(t, KindRemote, r.Kind())

	require.NoError(t, r.SendInput(3, []protocol.InputCommand{move(7)}))
	require.Eventually(t, func() bool {
		r.Poll(time.Now())
		return len(rec.got) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(3), rec.got[0].Tick)
	assert.Equal(t, []protocol.InputCommand{move(7)}, rec.got[0].Commands)
}

func TestRemote_NothingAfterDisconnect(t *testing.T) {
	srv := echoRelay(t)
	r := NewRemote(RemoteConfig{URL: wsURL(srv)}, nil)
	rec := &recorder{}
	r.OnInputBundle(rec.handle)
	require.NoError(t, r.Connect(context.Background()))

	require.NoError(t, r.SendInput(1, nil))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, r.Disconnect())
	require.NoError(t, r.Disconnect())

	r.Poll(time.Now())
	assert.Empty(t, rec.got)
	assert.ErrorIs(t, r.SendInput(2, nil), ErrDisconnected)
	assert.ErrorIs(t, r.Connect(context.Background()), ErrDisconnected)
}

func TestRemote_SendBeforeConnect(t *testing.T) {
	r := NewRemote(RemoteConfig{URL: "ws://127.0.0.1:1/v1/ws"}, nil)
	assert.ErrorIs(t, r.SendInput(0, nil), ErrNotConnected)
}

func TestRemote_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	r := NewRemote(RemoteConfig{URL: wsURL(srv)}, nil)
	assert.Error(t, r.Connect(context.Background()))
}
