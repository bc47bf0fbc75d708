package gap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebsocketTransport(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan models.UnifiedCommand, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		cmd, _ := models.ParseUnifiedCommand(data)
		received <- cmd

		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteMessage(websocket.TextMessage, models.UnifiedCommand{
			Action:  models.EventTyping,
			Payload: models.TypingEvent{EventChannel: models.EventChannel{Channel: general}, UserID: "u2", Typing: true},
		}.Marshal())

		// Wait for the client to hang up.
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := (&WebsocketTransport{Endpoint: endpoint}).Dial(ctx)
	assert.Error(t, err)

	link, err := (&WebsocketTransport{Endpoint: endpoint, AccessToken: "secret"}).Dial(ctx)
	require.NoError(t, err)
	defer link.Close()

	require.NoError(t, link.Write(models.UnifiedCommand{
		Action:  models.CommandSubscribe,
		Payload: models.SubscribePayload{Channel: general},
	}))
	assert.Equal(t, models.CommandSubscribe, (<-received).Action)

	cmd, err := link.Read()
	require.NoError(t, err)
	assert.Equal(t, models.EventTyping, cmd.Action)

	event, err := models.DecodeEvent(cmd)
	require.NoError(t, err)
	assert.Equal(t, "u2", event.(*models.TypingEvent).UserID)

	require.NoError(t, link.Close())
	_, err = link.Read()
	assert.Error(t, err)
}
