// Package web serves a browser version of the todo client. The page is a
// Datastar app: the tree paragraph is a signal patched over SSE, and the
// form posts its signals back.
package web

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"livetodo/internal/live"
	"livetodo/internal/model"

	"github.com/charmbracelet/log"
	"github.com/starfederation/datastar-go/datastar"
)

//go:embed templates/*.html
var assetsFS embed.FS

const keepAliveEvery = 25 * time.Second

type ServerConfig struct {
	DatastarJS string
	// QueryName labels the live query in the page header.
	QueryName string
	Log       *log.Logger
}

// Server renders the entries of a live query over table. entries must be
// published from table.
type Server struct {
	cfg     ServerConfig
	tmpl    *template.Template
	table   *live.Table
	entries live.Source[model.Entry]
	log     *log.Logger

	hub    *resourceHub
	cancel func()
	// owned is the projection built when the caller passed none.
	owned *live.Mapper[model.Todo, model.Entry]

	mu  sync.Mutex
	rev uint64
}

// NewServer serves entries, or the whole table when entries is nil.
func NewServer(table *live.Table, entries live.Source[model.Entry], cfg ServerConfig) (*Server, error) {
	tmpl, err := template.New("").ParseFS(assetsFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	logger := cfg.Log
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		cfg:   cfg,
		tmpl:  tmpl,
		table: table,
		log:   logger,
		hub:   newResourceHub(),
	}
	if entries == nil {
		s.owned = live.Map(live.Source[model.Todo](table), model.Todo.Entry)
		entries = s.owned
	}
	s.entries = entries
	bump := func() {
		s.mu.Lock()
		s.rev++
		s.mu.Unlock()
		s.hub.broadcast()
	}
	s.cancel = entries.Subscribe(live.Funcs[model.Entry]{
		Add:    func(model.Entry) { bump() },
		Remove: func(model.Entry) { bump() },
		Update: func(_, _ model.Entry) { bump() },
	})
	return s, nil
}

func (s *Server) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.owned != nil {
		s.owned.Close()
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /ui/stream", s.handleStream)
	mux.HandleFunc("POST /ui/todos", s.handleCreate)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// treeSignal is the live query keyed by id, the shape clients mirror.
func (s *Server) treeSignal() map[string]any {
	entries := s.entries.Pull()
	out := make(map[string]any, len(entries))
	for _, e := range entries {
		out[e.Key] = e.Data
	}
	return out
}

func (s *Server) revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev
}

type pageData struct {
	DatastarJS string
	Query      string
	Signals    string
	TreeJSON   string
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	tree := s.treeSignal()
	signals, err := json.Marshal(map[string]any{
		"title":       "",
		"userId":      "",
		"status":      "",
		"statusError": false,
		"rev":         s.revision(),
		"tree":        tree,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	treeJSON, _ := json.MarshalIndent(tree, "", "  ")

	query := strings.TrimSpace(s.cfg.QueryName)
	if query == "" {
		query = "all todos"
	}
	var b strings.Builder
	if err := s.tmpl.ExecuteTemplate(&b, "index", pageData{
		DatastarJS: s.cfg.DatastarJS,
		Query:      query,
		Signals:    string(signals),
		TreeJSON:   string(treeJSON),
	}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, b.String())
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ch, cancel := s.hub.subscribe()
	defer cancel()

	sse := datastar.NewSSE(w, r)
	_ = sse.MarshalAndPatchSignals(map[string]any{"tree": s.treeSignal(), "rev": s.revision()})

	keepAlive := time.NewTicker(keepAliveEvery)
	defer keepAlive.Stop()

	for {
		select {
		case <-sse.Context().Done():
			return
		case <-keepAlive.C:
			_ = sse.PatchSignals([]byte(`{}`))
		case <-ch:
			// tree is replaced whole; a null first clears keys that were removed.
			_ = sse.PatchSignals([]byte(`{"tree":null}`))
			if err := sse.MarshalAndPatchSignals(map[string]any{"tree": s.treeSignal(), "rev": s.revision()}); err != nil {
				s.log.Debug("stream closed", "err", err)
				return
			}
		}
	}
}

type todoSignals struct {
	Title  string `json:"title"`
	UserID any    `json:"userId"`
}

// userID accepts the number input's value as a JSON number or string.
func (sig todoSignals) userID() (int, error) {
	switch v := sig.UserID.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("user id %v is not an integer", v)
		}
		return int(v), nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, errors.New("user id is required")
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("user id %q is not an integer", v)
		}
		return n, nil
	case nil:
		return 0, errors.New("user id is required")
	default:
		return 0, fmt.Errorf("user id has unsupported type %T", v)
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var sig todoSignals
	if err := datastar.ReadSignals(r, &sig); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fail := func(err error) {
		sse := datastar.NewSSE(w, r)
		_ = sse.MarshalAndPatchSignals(map[string]any{"status": err.Error(), "statusError": true})
	}

	if strings.TrimSpace(sig.Title) == "" {
		fail(errors.New("title is required"))
		return
	}
	userID, err := sig.userID()
	if err != nil {
		fail(err)
		return
	}
	todo, err := s.table.Insert(r.Context(), userID, sig.Title)
	if err != nil {
		s.log.Warn("ui create rejected", "user", userID, "err", err)
		fail(err)
		return
	}
	s.log.Info("todo added", "id", todo.ID, "user", todo.UserID, "via", "ui")

	sse := datastar.NewSSE(w, r)
	_ = sse.MarshalAndPatchSignals(map[string]any{
		"status":      fmt.Sprintf("Todo added: %q for user %d", todo.Title, todo.UserID),
		"statusError": false,
		"title":       "",
	})
}

type resourceHub struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newResourceHub() *resourceHub {
	return &resourceHub{subs: map[chan struct{}]struct{}{}}
}

func (h *resourceHub) subscribe() (ch chan struct{}, cancel func()) {
	ch = make(chan struct{}, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *resourceHub) broadcast() {
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *resourceHub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
