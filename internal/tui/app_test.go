package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"livetodo/internal/client"
	"livetodo/internal/logging"
	"livetodo/internal/tree"

	tea "github.com/charmbracelet/bubbletea"
	xansi "github.com/charmbracelet/x/ansi"
)

type fakeCreator struct {
	mu    sync.Mutex
	calls []client.TodoRequest
	err   error
}

func (f *fakeCreator) CreateTodo(_ context.Context, req client.TodoRequest) (client.CreateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return client.CreateResult{}, f.err
	}
	return client.CreateResult{Message: "Todo added", Details: "live"}, nil
}

func (f *fakeCreator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestModel(c client.TodoCreator) appModel {
	return newAppModel(context.Background(), Options{
		Store:   tree.NewStore(),
		Creator: c,
		Log:     logging.Discard(),
	})
}

func press(m appModel, msg tea.KeyMsg) (appModel, tea.Cmd) {
	mm, cmd := m.Update(msg)
	return mm.(appModel), cmd
}

func typeText(m appModel, s string) appModel {
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func TestForm_ValueScansByID(t *testing.T) {
	f := newForm()
	f.inputs[0].input.SetValue("buy milk")

	got, err := f.value(inputTitle)
	if err != nil || got != "buy milk" {
		t.Fatalf("value(title) = %q, %v", got, err)
	}

	f.inputs = f.inputs[:1]
	if _, err := f.value(inputUser); !errors.Is(err, errInputNotFound) {
		t.Fatalf("expected errInputNotFound, got %v", err)
	}
	if _, err := f.request(); !errors.Is(err, errInputNotFound) {
		t.Fatalf("request should fail on missing input, got %v", err)
	}
}

func TestSubmit_BothFieldsIssuesOneCreate(t *testing.T) {
	fc := &fakeCreator{}
	m := newTestModel(fc)

	m = typeText(m, "walk dog")
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(m, "42")

	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("expected a create command")
	}
	if !m.submitting {
		t.Fatalf("expected submitting state")
	}

	// A second enter while the request is in flight is ignored.
	if _, again := press(m, tea.KeyMsg{Type: tea.KeyEnter}); again != nil {
		t.Fatalf("expected no second command while submitting")
	}

	msg := cmd()
	if fc.count() != 1 {
		t.Fatalf("expected exactly one create call, got %d", fc.count())
	}
	if got := fc.calls[0]; got.Title != "walk dog" || got.UserID != 42 {
		t.Fatalf("unexpected request: %+v", got)
	}

	mm, _ := m.Update(msg)
	m = mm.(appModel)
	if m.statusIsErr || !strings.Contains(m.status, "Todo added") {
		t.Fatalf("unexpected status %q (err=%v)", m.status, m.statusIsErr)
	}
	if v, _ := m.form.value(inputTitle); v != "" {
		t.Fatalf("expected form reset after success, title=%q", v)
	}
}

func TestSubmit_MissingFieldMakesNoCall(t *testing.T) {
	fc := &fakeCreator{}
	m := newTestModel(fc)

	m = typeText(m, "walk dog")
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatalf("expected no command without a user id")
	}
	if fc.count() != 0 {
		t.Fatalf("expected no create calls, got %d", fc.count())
	}
	if !m.statusIsErr || !strings.Contains(m.status, "user id") {
		t.Fatalf("unexpected status %q", m.status)
	}
}

func TestUserIDInput_RejectsNonDigits(t *testing.T) {
	m := newTestModel(&fakeCreator{})
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(m, "x")
	m = typeText(m, "7")

	if v, _ := m.form.value(inputUser); v != "7" {
		t.Fatalf("expected only digits to be accepted, got %q", v)
	}
}

func TestSubmit_ErrorShownInStatus(t *testing.T) {
	fc := &fakeCreator{err: &client.StatusError{Code: 500, Body: "boom"}}
	m := newTestModel(fc)
	m = typeText(m, "x")
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(m, "1")

	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("expected a create command")
	}
	mm, _ := m.Update(cmd())
	m = mm.(appModel)
	if !m.statusIsErr || !strings.Contains(m.status, "boom") {
		t.Fatalf("unexpected status %q", m.status)
	}
	if m.submitting {
		t.Fatalf("submitting should clear after failure")
	}
	if v, _ := m.form.value(inputTitle); v != "x" {
		t.Fatalf("form should keep values after failure, got %q", v)
	}
}

func TestView_ShowsSerializedTree(t *testing.T) {
	m := newTestModel(nil)
	if err := m.store.Update(func(tr *tree.Tree) error {
		return tr.Set(tree.At("todos"), map[string]any{"2": "walk dog"})
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	m.width, m.height = 100, 40

	v := m.View()
	if !strings.Contains(v, `"walk dog"`) {
		t.Fatalf("expected tree JSON in view:\n%s", v)
	}
}

func TestFocus_WrapsAroundSubmitButton(t *testing.T) {
	m := newTestModel(nil)
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyShiftTab})
	if !m.form.onSubmit() {
		t.Fatalf("shift+tab from the first input should land on submit, focus=%d", m.form.focus)
	}
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyTab})
	if m.form.focus != 0 {
		t.Fatalf("tab from submit should wrap to the first input, focus=%d", m.form.focus)
	}
}

func TestFieldLine_FitsWidth(t *testing.T) {
	cases := []struct {
		name string
		view string
	}{
		{"short", "walk dog"},
		{"long", strings.Repeat("x", 200)},
		{"multiline", "walk\ndog\r"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line := fieldLine("Title", 7, true, tc.view, 40)
			if strings.ContainsAny(line, "\n\r") {
				t.Fatalf("field line spans lines: %q", line)
			}
			if w := xansi.StringWidth(line); w != 40 {
				t.Fatalf("width = %d, want 40: %q", w, line)
			}
		})
	}
}
