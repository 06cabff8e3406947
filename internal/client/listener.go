// Package client mirrors a backend's todo tree over a WebSocket and creates
// todos through its HTTP API.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"livetodo/internal/patch"
	"livetodo/internal/tree"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

type ListenerSettings struct {
	HandshakeTimeout time.Duration
	// ReadTimeout bounds the wait for the next frame. Zero waits forever.
	ReadTimeout time.Duration
	// ReadLimit caps the size of one frame in bytes. Zero means no limit.
	ReadLimit int64
}

func DefaultListenerSettings() ListenerSettings {
	return ListenerSettings{
		HandshakeTimeout: 5 * time.Second,
		ReadLimit:        1 << 20,
	}
}

// Listener applies patch frames from a WebSocket endpoint to a store. It is
// the store's only writer while it runs.
type Listener struct {
	URL      string
	Store    *tree.Store
	Log      *log.Logger
	Settings ListenerSettings
	Header   http.Header

	// OnApplied is called after each successfully applied message.
	OnApplied func(m patch.Message)
	// OnError is called for frames that fail to decode or apply. The
	// listener keeps reading after calling it.
	OnError func(err error)
	// OnConnect is called once the handshake succeeds.
	OnConnect func()
}

func NewListener(url string, store *tree.Store, logger *log.Logger) *Listener {
	return &Listener{
		URL:      url,
		Store:    store,
		Log:      logger,
		Settings: DefaultListenerSettings(),
	}
}

// Run dials the endpoint and applies frames until ctx is done or the socket
// fails. It does not reconnect. A cancelled context yields ctx.Err().
func (l *Listener) Run(ctx context.Context) error {
	if l.Store == nil {
		return errors.New("listener: nil store")
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: l.Settings.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, l.URL, l.Header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", l.URL, err)
	}
	defer ws.Close()

	l.logger().Info("connected", "url", l.URL)
	if l.OnConnect != nil {
		l.OnConnect()
	}

	if l.Settings.ReadLimit > 0 {
		ws.SetReadLimit(l.Settings.ReadLimit)
	}

	// Unblock ReadMessage when ctx ends. deadlineMu keeps the loop from
	// re-arming the read deadline after the cancel has expired it.
	var deadlineMu sync.Mutex
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-readCtx.Done()
		deadlineMu.Lock()
		_ = ws.SetReadDeadline(time.Now())
		deadlineMu.Unlock()
	}()

	for {
		if l.Settings.ReadTimeout > 0 {
			deadlineMu.Lock()
			if readCtx.Err() == nil {
				_ = ws.SetReadDeadline(time.Now().Add(l.Settings.ReadTimeout))
			}
			deadlineMu.Unlock()
		}
		messageType, frame, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.logger().Info("closed by server")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if messageType != websocket.TextMessage {
			l.logger().Debug("ignoring non-text frame", "type", messageType)
			continue
		}
		l.handle(frame)
	}
}

func (l *Listener) handle(frame []byte) {
	m, err := patch.Decode(frame)
	if err == nil {
		err = patch.ApplyTo(l.Store, m)
	}
	if err != nil {
		l.logger().Warn("dropped patch", "err", err)
		if l.OnError != nil {
			l.OnError(err)
		}
		return
	}
	l.logger().Debug("applied patch", "patch", patch.Describe(m), "rev", l.Store.Revision())
	if l.OnApplied != nil {
		l.OnApplied(m)
	}
}

func (l *Listener) logger() *log.Logger {
	if l.Log == nil {
		return log.Default()
	}
	return l.Log
}
