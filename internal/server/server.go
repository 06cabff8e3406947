// Package server is the todo backend: an HTTP API over a live table and a
// WebSocket endpoint that streams the live query as patch frames.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"livetodo/internal/live"
	"livetodo/internal/model"

	"github.com/charmbracelet/log"
)

const (
	defaultSendBuffer   = 64
	defaultWriteTimeout = 10 * time.Second
)

type Config struct {
	Addr string
	// User restricts the live query to one user's todos when >= 0.
	User int
	// Pending drops completed todos from the live query.
	Pending bool
	Log     *log.Logger

	// SendBuffer is the number of frames queued per socket before it is dropped.
	SendBuffer   int
	WriteTimeout time.Duration
}

type Server struct {
	cfg     Config
	table   *live.Table
	index   *live.Index[int]
	pending *live.Filter[model.Todo]
	query   live.Source[model.Todo]
	entries *live.Mapper[model.Todo, model.Entry]
	log     *log.Logger

	mu    sync.Mutex
	conns map[string]*conn
}

func New(table *live.Table, cfg Config) *Server {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	logger := cfg.Log
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		cfg:   cfg,
		table: table,
		query: table,
		log:   logger,
		conns: map[string]*conn{},
	}
	if cfg.User >= 0 {
		s.index = live.ByUser(table)
		s.query = s.index.Channel(cfg.User)
	}
	if cfg.Pending {
		s.pending = live.NewFilter(s.query, func(t model.Todo) bool { return !t.Completed })
		s.query = s.pending
	}
	s.entries = live.Map(s.query, model.Todo.Entry)
	return s
}

// Entries is the live query projected into the entries clients mirror.
func (s *Server) Entries() live.Source[model.Entry] { return s.entries }

// Register adds the API and socket routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /todos/{user_id}/{todo_title}", s.handleCreate)
	mux.HandleFunc("PATCH /todos/{id}/complete", s.handleComplete)
	mux.HandleFunc("DELETE /todos/{id}", s.handleDelete)
	mux.HandleFunc("GET /ws", s.handleWS)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return WithCORS(mux)
}

// ListenAndServe serves h until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, h http.Handler) error {
	hs := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.cfg.Addr, "query", s.QueryName())
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Close()
	err := hs.Shutdown(shutdownCtx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close drops every socket and detaches the live query from the table.
func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.stop("server closing")
	}
	s.entries.Close()
	if s.pending != nil {
		s.pending.Close()
	}
	if s.index != nil {
		s.index.Close()
	}
}

// Conns reports the number of open sockets.
func (s *Server) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(c *conn) {
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
}

// QueryName describes the live query, e.g. "pending todos where userId=3".
func (s *Server) QueryName() string {
	name := "all todos"
	if s.pending != nil {
		name = "pending todos"
	}
	if s.index != nil {
		name += fmt.Sprintf(" where %s=%d", s.index.Name(), s.cfg.User)
	}
	return name
}

// WithCORS allows any origin, method and header.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		origin := r.Header.Get("Origin")
		if origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		} else {
			h.Set("Access-Control-Allow-Origin", "*")
		}
		h.Set("Access-Control-Expose-Headers", "Access-Control-Allow-Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
				h.Set("Access-Control-Allow-Headers", req)
			} else {
				h.Set("Access-Control-Allow-Headers", "*")
			}
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
