package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"livetodo/internal/client"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	inputTitle = "todo-title"
	inputUser  = "user-id"
)

var errInputNotFound = errors.New("input not found")

type formInput struct {
	id    string
	label string
	input textinput.Model
}

// form is the todo entry form. Focus runs over the inputs and then the
// submit button at index len(inputs).
type form struct {
	inputs []formInput
	focus  int
}

func newForm() form {
	title := textinput.New()
	title.Placeholder = "Title"
	title.CharLimit = 200
	title.Width = 40

	user := textinput.New()
	user.Placeholder = "User id"
	user.CharLimit = 9
	user.Width = 12

	f := form{inputs: []formInput{
		{id: inputTitle, label: "Title", input: title},
		{id: inputUser, label: "User id", input: user},
	}}
	f.inputs[0].input.Focus()
	return f
}

// value returns the current text of the input with the given id.
func (f form) value(id string) (string, error) {
	for _, in := range f.inputs {
		if in.id == id {
			return in.input.Value(), nil
		}
	}
	return "", fmt.Errorf("%w: %s", errInputNotFound, id)
}

// request reads both fields before validating either.
func (f form) request() (client.TodoRequest, error) {
	title, err := f.value(inputTitle)
	if err != nil {
		return client.TodoRequest{}, err
	}
	rawUser, err := f.value(inputUser)
	if err != nil {
		return client.TodoRequest{}, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return client.TodoRequest{}, errors.New("title is required")
	}
	rawUser = strings.TrimSpace(rawUser)
	if rawUser == "" {
		return client.TodoRequest{}, errors.New("user id is required")
	}
	userID, err := strconv.Atoi(rawUser)
	if err != nil {
		return client.TodoRequest{}, fmt.Errorf("user id %q is not a number", rawUser)
	}
	req := client.TodoRequest{Title: title, UserID: userID}
	if err := req.Validate(); err != nil {
		return client.TodoRequest{}, err
	}
	return req, nil
}

func (f form) onSubmit() bool { return f.focus == len(f.inputs) }

func (f *form) setFocus(i int) tea.Cmd {
	n := len(f.inputs) + 1
	f.focus = ((i % n) + n) % n
	var cmd tea.Cmd
	for j := range f.inputs {
		if j == f.focus {
			cmd = f.inputs[j].input.Focus()
		} else {
			f.inputs[j].input.Blur()
		}
	}
	return cmd
}

func (f *form) next() tea.Cmd { return f.setFocus(f.focus + 1) }
func (f *form) prev() tea.Cmd { return f.setFocus(f.focus - 1) }

func (f *form) reset() tea.Cmd {
	for i := range f.inputs {
		f.inputs[i].input.Reset()
	}
	return f.setFocus(0)
}

// update forwards msg to the focused input. The user id only accepts digits.
func (f *form) update(msg tea.Msg) tea.Cmd {
	if f.onSubmit() {
		return nil
	}
	in := &f.inputs[f.focus]
	if km, ok := msg.(tea.KeyMsg); ok && in.id == inputUser && km.Type == tea.KeyRunes {
		for _, r := range km.Runes {
			if r < '0' || r > '9' {
				return nil
			}
		}
	}
	var cmd tea.Cmd
	in.input, cmd = in.input.Update(msg)
	return cmd
}
