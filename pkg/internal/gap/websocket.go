package gap

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/chatsync/pkg/internal/models"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 20
)

// WebsocketTransport connects to the gateway's websocket endpoint.
type WebsocketTransport struct {
	Endpoint    string
	AccessToken string
	Dialer      *websocket.Dialer
}

func (v *WebsocketTransport) Dial(ctx context.Context) (Link, error) {
	dialer := v.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := http.Header{}
	if len(v.AccessToken) > 0 {
		header.Set("Authorization", "Bearer "+v.AccessToken)
	}

	conn, resp, err := dialer.DialContext(ctx, v.Endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("unable dial %s: %v (status %d)", v.Endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("unable dial %s: %v", v.Endpoint, err)
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	link := &websocketLink{conn: conn, done: make(chan struct{})}
	go link.keepalive()
	return link, nil
}

type websocketLink struct {
	conn      *websocket.Conn
	writeLock sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (v *websocketLink) keepalive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			v.writeLock.Lock()
			err := v.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			v.writeLock.Unlock()
			if err != nil {
				_ = v.Close()
				return
			}
		case <-v.done:
			return
		}
	}
}

func (v *websocketLink) Read() (models.UnifiedCommand, error) {
	for {
		kind, data, err := v.conn.ReadMessage()
		if err != nil {
			return models.UnifiedCommand{}, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		cmd, err := models.ParseUnifiedCommand(data)
		if err != nil {
			log.Warn().Err(err).Msg("An error occurred when parsing frame, skipped...")
			continue
		}
		return cmd, nil
	}
}

func (v *websocketLink) Write(cmd models.UnifiedCommand) error {
	v.writeLock.Lock()
	defer v.writeLock.Unlock()
	_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return v.conn.WriteMessage(websocket.TextMessage, cmd.Marshal())
}

func (v *websocketLink) Close() error {
	var err error
	v.closeOnce.Do(func() {
		close(v.done)
		v.writeLock.Lock()
		_ = v.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		v.writeLock.Unlock()
		err = v.conn.Close()
	})
	return err
}
