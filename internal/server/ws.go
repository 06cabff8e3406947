package server

import (
	"net/http"
	"sync"
	"time"

	"livetodo/internal/live"
	"livetodo/internal/model"
	"livetodo/internal/patch"
	"livetodo/internal/tree"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 16 * 1024,
	// The API is open to any origin, so the socket is too.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// entryPath is the patch path an entry is published under.
func entryPath(e model.Entry) tree.Path {
	return tree.Path{e.Key}
}

// loadFrame keys every entry at the root of the client's tree.
func loadFrame(entries []model.Entry) patch.Load {
	data := make(map[string]any, len(entries))
	for _, e := range entries {
		data[e.Key] = e.Data
	}
	return patch.Load{Data: data}
}

// conn is one socket. Frames are queued on send and written by a single
// goroutine; a full queue drops the client.
type conn struct {
	id      string
	ws      *websocket.Conn
	log     *log.Logger
	timeout time.Duration

	send chan []byte
	done chan struct{}

	once   sync.Once
	reason string
}

func newConn(ws *websocket.Conn, buffer int, timeout time.Duration, logger *log.Logger) *conn {
	id := ulid.Make().String()
	return &conn{
		id:      id,
		ws:      ws,
		log:     logger.With("conn", id),
		timeout: timeout,
		send:    make(chan []byte, buffer),
		done:    make(chan struct{}),
	}
}

// enqueue never blocks; it runs inside table publication.
func (c *conn) enqueue(m patch.Message) {
	frame, err := patch.Encode(m)
	if err != nil {
		c.log.Error("encode frame", "patch", patch.Describe(m), "err", err)
		return
	}
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		c.stop("slow consumer")
	}
}

func (c *conn) stop(reason string) {
	c.once.Do(func() {
		c.reason = reason
		close(c.done)
	})
}

func (c *conn) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.timeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.stop("write failed")
				c.log.Debug("write failed", "err", err)
				return
			}
		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.timeout)); err != nil {
				c.stop("ping failed")
				return
			}
		case <-c.done:
			code := websocket.CloseNormalClosure
			if c.reason == "slow consumer" {
				code = websocket.ClosePolicyViolation
			}
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, c.reason),
				time.Now().Add(time.Second))
			return
		}
	}
}

// readLoop discards client frames; it only notices when the peer goes away.
func (c *conn) readLoop() {
	c.ws.SetReadLimit(64 * 1024)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read failed", "err", err)
			}
			c.stop("client closed")
			return
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newConn(ws, s.cfg.SendBuffer, s.cfg.WriteTimeout, s.log)
	s.track(c)
	defer s.untrack(c)

	sub := live.Funcs[model.Entry]{
		Add:    func(e model.Entry) { c.enqueue(patch.Add{Path: entryPath(e), Data: e.Data}) },
		Remove: func(e model.Entry) { c.enqueue(patch.Remove{Path: entryPath(e), Data: e.Data}) },
		Update: func(_, e model.Entry) { c.enqueue(patch.Update{Path: entryPath(e), Data: e.Data}) },
	}
	var loaded int
	cancel := live.Follow(s.table, live.Source[model.Entry](s.entries), func(entries []model.Entry) {
		loaded = len(entries)
		c.enqueue(loadFrame(entries))
	}, sub)
	defer cancel()

	c.log.Info("socket open", "remote", r.RemoteAddr, "rows", loaded)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()
	go func() {
		defer wg.Done()
		c.readLoop()
	}()

	select {
	case <-c.done:
	case <-r.Context().Done():
		c.stop("server closing")
	}
	cancel()
	wg.Wait()
	c.log.Info("socket closed", "reason", c.reason)
}
