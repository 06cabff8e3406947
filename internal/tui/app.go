// Package tui is the interactive todo client: a live view of the mirrored
// tree and a form that creates todos on the backend.
package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"livetodo/internal/client"
	"livetodo/internal/tree"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

const createTimeout = 10 * time.Second

type Options struct {
	Store   *tree.Store
	Creator client.TodoCreator
	// Listener feeds Store. Nil shows the store as it is.
	Listener *client.Listener
	Backend  string
	Log      *log.Logger
}

type connState int

const (
	connIdle connState = iota
	connConnecting
	connOpen
	connClosed
)

type (
	treeChangedMsg  struct{}
	storeClosedMsg  struct{}
	connectedMsg    struct{}
	listenerDoneMsg struct{ err error }
	patchErrorMsg   struct{ err error }
	createdMsg      struct {
		req client.TodoRequest
		res client.CreateResult
	}
	createFailedMsg struct{ err error }
)

type appModel struct {
	ctx     context.Context
	store   *tree.Store
	creator client.TodoCreator
	backend string
	log     *log.Logger

	changes <-chan struct{}

	form       form
	submitting bool

	conn    connState
	connErr error

	status      string
	statusIsErr bool
	lastPatch   error

	width  int
	height int
}

func newAppModel(ctx context.Context, opts Options) appModel {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Log
	if logger == nil {
		logger = log.Default()
	}
	st := opts.Store
	if st == nil {
		st = tree.NewStore()
	}
	m := appModel{
		ctx:     ctx,
		store:   st,
		creator: opts.Creator,
		backend: opts.Backend,
		log:     logger,
		form:    newForm(),
	}
	if opts.Listener != nil {
		m.conn = connConnecting
	}
	return m
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return storeClosedMsg{}
		}
		return treeChangedMsg{}
	}
}

func (m appModel) Init() tea.Cmd {
	return tea.Batch(waitForChange(m.changes), textinput.Blink)
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case treeChangedMsg:
		return m, waitForChange(m.changes)

	case storeClosedMsg:
		m.changes = nil
		return m, nil

	case connectedMsg:
		m.conn = connOpen
		m.connErr = nil
		return m, nil

	case listenerDoneMsg:
		m.conn = connClosed
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.connErr = msg.err
		}
		return m, nil

	case patchErrorMsg:
		m.lastPatch = msg.err
		return m, nil

	case createdMsg:
		m.submitting = false
		text := strings.TrimSpace(msg.res.Message)
		if text == "" {
			text = "Todo added"
		}
		if d := strings.TrimSpace(msg.res.Details); d != "" {
			text += ": " + d
		}
		m.setStatus(fmt.Sprintf("%s (%q for user %d)", text, msg.req.Title, msg.req.UserID), false)
		return m, m.form.reset()

	case createFailedMsg:
		m.submitting = false
		m.setStatus(msg.err.Error(), true)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "down":
			return m, m.form.next()
		case "shift+tab", "up":
			return m, m.form.prev()
		case "enter":
			return m.submit()
		}
	}

	return m, m.form.update(msg)
}

func (m *appModel) setStatus(text string, isErr bool) {
	m.status = text
	m.statusIsErr = isErr
}

// submit validates the form and, when valid, returns a command issuing the
// single create request.
func (m appModel) submit() (tea.Model, tea.Cmd) {
	if m.submitting {
		return m, nil
	}
	req, err := m.form.request()
	if err != nil {
		m.setStatus(err.Error(), true)
		return m, nil
	}
	if m.creator == nil {
		m.setStatus("no backend configured", true)
		return m, nil
	}
	m.submitting = true
	m.setStatus("adding…", false)

	ctx, creator, logger := m.ctx, m.creator, m.log
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, createTimeout)
		defer cancel()
		res, err := creator.CreateTodo(ctx, req)
		if err != nil {
			logger.Warn("create todo failed", "title", req.Title, "user", req.UserID, "err", err)
			return createFailedMsg{err: err}
		}
		logger.Info("created todo", "title", req.Title, "user", req.UserID)
		return createdMsg{req: req, res: res}
	}
}

func (m appModel) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	bodyW := width - 2
	if bodyW < 20 {
		bodyW = 20
	}

	var b strings.Builder
	b.WriteString(styleHeader().Render("livetodo"))
	b.WriteString("  ")
	b.WriteString(styleMuted().Render(m.connLine()))
	if m.backend != "" {
		b.WriteString(styleMuted().Render("  → " + m.backend))
	}
	b.WriteString("\n\n")

	b.WriteString(m.viewTree(bodyW))
	b.WriteString("\n")
	if m.lastPatch != nil {
		b.WriteString(styleStatus(true).Render(wrapBlock("last patch rejected: "+m.lastPatch.Error(), bodyW)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.viewForm(bodyW))
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(styleStatus(m.statusIsErr).Render(wrapBlock(m.status, bodyW)))
		b.WriteString("\n")
	}
	b.WriteString(styleMuted().Render("tab/shift+tab move • enter add • esc quit"))
	return b.String()
}

func (m appModel) connLine() string {
	switch m.conn {
	case connConnecting:
		return "connecting…"
	case connOpen:
		return fmt.Sprintf("live • rev %d", m.store.Revision())
	case connClosed:
		if m.connErr != nil {
			return "disconnected: " + m.connErr.Error()
		}
		return "disconnected"
	default:
		return "offline"
	}
}

// viewTree renders the serialized tree, trimmed to the rows left after the form.
func (m appModel) viewTree(bodyW int) string {
	raw, err := json.MarshalIndent(m.store.Snapshot(), "", "  ")
	text := string(raw)
	if err != nil {
		text = "error: " + err.Error()
	}
	innerW := bodyW - 4
	text = wrapBlock(text, innerW)

	if m.height > 0 {
		maxLines := m.height - 14
		if maxLines < 3 {
			maxLines = 3
		}
		lines := strings.Split(text, "\n")
		if len(lines) > maxLines {
			hidden := len(lines) - maxLines + 1
			lines = append(lines[:maxLines-1], styleMuted().Render(fmt.Sprintf("… %d more lines", hidden)))
			text = strings.Join(lines, "\n")
		}
	}
	return styleTreeBox(bodyW - 2).Render(text)
}

func (m appModel) viewForm(bodyW int) string {
	labelW := 0
	for _, in := range m.form.inputs {
		if w := lipgloss.Width(in.label); w > labelW {
			labelW = w
		}
	}

	rows := make([]string, 0, len(m.form.inputs)+1)
	for i, in := range m.form.inputs {
		rows = append(rows, fieldLine(in.label, labelW, i == m.form.focus, in.input.View(), bodyW))
	}
	btn := "Add todo"
	if m.submitting {
		btn = "Adding…"
	}
	rows = append(rows, strings.Repeat(" ", labelW+len(fieldGap))+styleSubmit(m.form.onSubmit()).Render(btn))
	return strings.Join(rows, "\n")
}

// Run starts the listener, if any, and blocks until the user quits.
func Run(ctx context.Context, opts Options) error {
	applyThemePreference()
	applyColorProfilePreference()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newAppModel(ctx, opts)
	changes, unsubscribe := m.store.Subscribe()
	defer unsubscribe()
	m.changes = changes

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	done := make(chan struct{})
	if l := opts.Listener; l != nil {
		l.Store = m.store
		l.OnConnect = func() { p.Send(connectedMsg{}) }
		l.OnError = func(err error) { p.Send(patchErrorMsg{err: err}) }
		go func() {
			defer close(done)
			p.Send(listenerDoneMsg{err: l.Run(ctx)})
		}()
	} else {
		close(done)
	}

	_, err := p.Run()
	cancel()
	<-done
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
