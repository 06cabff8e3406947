package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"livetodo/internal/live"
	"livetodo/internal/logging"
	"livetodo/internal/model"
	"livetodo/internal/patch"
	"livetodo/internal/tree"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, seed []model.Todo, user int) (*Server, *httptest.Server) {
	t.Helper()
	return newConfiguredServer(t, seed, Config{User: user})
}

func newConfiguredServer(t *testing.T, seed []model.Todo, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	cfg.Log = logging.Discard()
	s := New(live.NewTable(seed), cfg)
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		hs.Close()
	})
	return s, hs
}

func dial(t *testing.T, hs *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readPatch(t *testing.T, ws *websocket.Conn) patch.Message {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, frame, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	m, err := patch.Decode(frame)
	if err != nil {
		t.Fatalf("decode %s: %v", frame, err)
	}
	return m
}

func post(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestWS_FirstFrameIsLoadThenAdd(t *testing.T) {
	_, hs := newTestServer(t, []model.Todo{{ID: 0, UserID: 1, Title: "buy milk"}}, -1)
	ws := dial(t, hs)

	first, ok := readPatch(t, ws).(patch.Load)
	if !ok {
		t.Fatalf("expected load frame first, got %T", first)
	}
	row, ok := first.Data["0"].(map[string]any)
	if !ok || row["title"] != "buy milk" {
		t.Fatalf("unexpected load data: %#v", first.Data)
	}

	resp := post(t, hs.URL+"/todos/3/walk%20dog")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["message"] != "Todo added" {
		t.Fatalf("unexpected body: %#v", body)
	}

	add, ok := readPatch(t, ws).(patch.Add)
	if !ok {
		t.Fatalf("expected add frame, got %T", add)
	}
	if add.Path.String() != ".1" {
		t.Fatalf("unexpected path %q", add.Path.String())
	}
	data := add.Data.(map[string]any)
	if data["title"] != "walk dog" || data["userId"] != 3.0 || data["completed"] != false {
		t.Fatalf("unexpected add data: %#v", data)
	}
}

func TestWS_FramesApplyToClientTree(t *testing.T) {
	_, hs := newTestServer(t, nil, -1)
	ws := dial(t, hs)
	store := tree.NewStore()

	apply := func() {
		t.Helper()
		if err := patch.ApplyTo(store, readPatch(t, ws)); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	apply() // load

	post(t, hs.URL+"/todos/1/a")
	apply()
	post(t, hs.URL+"/todos/1/b")
	apply()

	req, _ := http.NewRequest(http.MethodPatch, hs.URL+"/todos/1/complete", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("complete: %v %v", resp, err)
	}
	resp.Body.Close()
	apply()

	req, _ = http.NewRequest(http.MethodDelete, hs.URL+"/todos/0", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: %v %v", resp, err)
	}
	resp.Body.Close()
	apply()

	snap := store.Snapshot()
	if _, ok := snap["0"]; ok {
		t.Fatalf("removed todo still present: %#v", snap)
	}
	b, ok := snap["1"].(map[string]any)
	if !ok || b["title"] != "b" || b["completed"] != true {
		t.Fatalf("unexpected tree: %#v", snap)
	}
}

func TestWS_UserQueryOnlyStreamsThatUser(t *testing.T) {
	_, hs := newTestServer(t, []model.Todo{
		{ID: 0, UserID: 1, Title: "mine"},
		{ID: 1, UserID: 2, Title: "theirs"},
	}, 1)
	ws := dial(t, hs)

	load := readPatch(t, ws).(patch.Load)
	if len(load.Data) != 1 || load.Data["0"] == nil {
		t.Fatalf("expected only user 1 rows, got %#v", load.Data)
	}

	post(t, hs.URL+"/todos/2/other")
	post(t, hs.URL+"/todos/1/next")

	add := readPatch(t, ws).(patch.Add)
	if add.Data.(map[string]any)["title"] != "next" {
		t.Fatalf("expected user 1 add, got %#v", add.Data)
	}
}

func TestCreate_RejectsNonIntegerUser(t *testing.T) {
	s, hs := newTestServer(t, nil, -1)

	resp := post(t, hs.URL+"/todos/bob/x")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || !strings.Contains(body.Detail, "user_id") {
		t.Fatalf("unexpected error body %+v (%v)", body, err)
	}
	if s.table.Len() != 0 {
		t.Fatalf("nothing should be inserted")
	}
}

func TestCreate_RejectsBlankTitle(t *testing.T) {
	_, hs := newTestServer(t, nil, -1)
	resp := post(t, hs.URL+"/todos/1/%20")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestDelete_UnknownIDIs404(t *testing.T) {
	_, hs := newTestServer(t, nil, -1)
	req, _ := http.NewRequest(http.MethodDelete, hs.URL+"/todos/9", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCORS_Preflight(t *testing.T) {
	_, hs := newTestServer(t, nil, -1)
	req, _ := http.NewRequest(http.MethodOptions, hs.URL+"/todos/1/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow-origin = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Headers"); got != "content-type" {
		t.Fatalf("allow-headers = %q", got)
	}
}

func TestConn_FullQueueDropsClient(t *testing.T) {
	c := newConn(nil, 1, time.Second, logging.Discard())
	row := model.Todo{ID: 1, Title: "x"}

	c.enqueue(patch.Add{Path: entryPath(row.Entry()), Data: row.Wire()})
	select {
	case <-c.done:
		t.Fatalf("first frame should fit")
	default:
	}

	c.enqueue(patch.Add{Path: entryPath(row.Entry()), Data: row.Wire()})
	select {
	case <-c.done:
	default:
		t.Fatalf("overflow should stop the connection")
	}
	if c.reason != "slow consumer" {
		t.Fatalf("reason = %q", c.reason)
	}
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	s := New(live.NewTable(nil), Config{Addr: "127.0.0.1:0", Log: logging.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx, s.Handler()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
}

func TestWS_PendingQueryDropsCompletedTodos(t *testing.T) {
	_, hs := newConfiguredServer(t, []model.Todo{
		{ID: 0, UserID: 1, Title: "open"},
		{ID: 1, UserID: 1, Title: "done", Completed: true},
	}, Config{User: -1, Pending: true})
	ws := dial(t, hs)

	load := readPatch(t, ws).(patch.Load)
	if len(load.Data) != 1 || load.Data["0"] == nil {
		t.Fatalf("expected only the open todo, got %#v", load.Data)
	}

	req, _ := http.NewRequest(http.MethodPatch, hs.URL+"/todos/0/complete", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("complete: %v %v", resp, err)
	}
	resp.Body.Close()

	rm, ok := readPatch(t, ws).(patch.Remove)
	if !ok || rm.Path.String() != ".0" {
		t.Fatalf("expected remove of .0, got %#v", rm)
	}

	post(t, hs.URL+"/todos/2/next")
	add, ok := readPatch(t, ws).(patch.Add)
	if !ok || add.Path.String() != ".2" {
		t.Fatalf("expected add of .2, got %#v", add)
	}
}

func TestServer_QueryName(t *testing.T) {
	cases := []struct {
		cfg  Config
		want string
	}{
		{Config{User: -1}, "all todos"},
		{Config{User: 3}, "todos where userId=3"},
		{Config{User: -1, Pending: true}, "pending todos"},
		{Config{User: 3, Pending: true}, "pending todos where userId=3"},
	}
	for _, tc := range cases {
		tc.cfg.Log = logging.Discard()
		s := New(live.NewTable(nil), tc.cfg)
		if got := s.QueryName(); got != tc.want {
			t.Fatalf("QueryName(%+v) = %q, want %q", tc.cfg, got, tc.want)
		}
		s.Close()
	}
}

func TestHealthz_ReportsSubscribers(t *testing.T) {
	_, hs := newTestServer(t, nil, -1)
	resp, err := http.Get(hs.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// The todo projection subscribes to the table.
	if body["ok"] != true || body["subscribers"] != 1.0 {
		t.Fatalf("unexpected healthz body: %#v", body)
	}
}
