package live

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"livetodo/internal/model"
)

var (
	ErrTodoNotFound = errors.New("todo not found")
	ErrInvalidTodo  = errors.New("invalid todo")
)

// Persister is written through before the in-memory table changes.
type Persister interface {
	SaveTodo(ctx context.Context, t model.Todo) error
	DeleteTodo(ctx context.Context, id int) error
}

// Table is the observable set of todos.
//
// Mutations are serialized and subscribers are notified before the mutating
// call returns. Subscribers may call Pull, but must not mutate the table.
type Table struct {
	Observable[model.Todo]

	writeMu sync.Mutex // serializes mutation + publish

	rowsMu sync.RWMutex
	rows   []model.Todo
	nextID int

	persist Persister
	now     func() time.Time
}

type TableOption func(*Table)

func WithPersister(p Persister) TableOption {
	return func(t *Table) { t.persist = p }
}

func withClock(now func() time.Time) TableOption {
	return func(t *Table) { t.now = now }
}

// NewTable returns a table seeded with rows. Ids of new rows continue after
// the largest seeded id.
func NewTable(seed []model.Todo, opts ...TableOption) *Table {
	t := &Table{now: func() time.Time { return time.Now().UTC() }}
	for _, o := range opts {
		o(t)
	}
	t.rows = append([]model.Todo(nil), seed...)
	sort.Slice(t.rows, func(i, j int) bool { return t.rows[i].ID < t.rows[j].ID })
	for _, r := range t.rows {
		if r.ID >= t.nextID {
			t.nextID = r.ID + 1
		}
	}
	return t
}

// Insert validates and appends a new todo, then publishes it.
func (t *Table) Insert(ctx context.Context, userID int, title string) (model.Todo, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Todo{}, fmt.Errorf("%w: empty title", ErrInvalidTodo)
	}
	if userID < 0 {
		return model.Todo{}, fmt.Errorf("%w: negative user id %d", ErrInvalidTodo, userID)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.rowsMu.RLock()
	row := model.Todo{ID: t.nextID, UserID: userID, Title: title, CreatedAt: t.now()}
	t.rowsMu.RUnlock()

	if t.persist != nil {
		if err := t.persist.SaveTodo(ctx, row); err != nil {
			return model.Todo{}, fmt.Errorf("persist todo: %w", err)
		}
	}

	t.rowsMu.Lock()
	t.rows = append(t.rows, row)
	t.nextID++
	t.rowsMu.Unlock()

	t.PublishAdd(row)
	return row, nil
}

// SetCompleted flips the completed flag of a todo and publishes the update.
// Setting the current value is a no-op that publishes nothing.
func (t *Table) SetCompleted(ctx context.Context, id int, done bool) (model.Todo, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.rowsMu.RLock()
	i := t.indexOf(id)
	var old model.Todo
	if i >= 0 {
		old = t.rows[i]
	}
	t.rowsMu.RUnlock()
	if i < 0 {
		return model.Todo{}, fmt.Errorf("%w: %d", ErrTodoNotFound, id)
	}
	if old.Completed == done {
		return old, nil
	}

	next := old
	next.Completed = done
	if t.persist != nil {
		if err := t.persist.SaveTodo(ctx, next); err != nil {
			return model.Todo{}, fmt.Errorf("persist todo: %w", err)
		}
	}

	t.rowsMu.Lock()
	t.rows[i] = next
	t.rowsMu.Unlock()

	t.PublishUpdate(old, next)
	return next, nil
}

// Remove deletes a todo and publishes the removed row.
func (t *Table) Remove(ctx context.Context, id int) (model.Todo, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.rowsMu.RLock()
	i := t.indexOf(id)
	t.rowsMu.RUnlock()
	if i < 0 {
		return model.Todo{}, fmt.Errorf("%w: %d", ErrTodoNotFound, id)
	}

	if t.persist != nil {
		if err := t.persist.DeleteTodo(ctx, id); err != nil {
			return model.Todo{}, fmt.Errorf("persist delete: %w", err)
		}
	}

	t.rowsMu.Lock()
	row := t.rows[i]
	t.rows = append(t.rows[:i:i], t.rows[i+1:]...)
	t.rowsMu.Unlock()

	t.PublishRemove(row)
	return row, nil
}

func (t *Table) Find(id int) (model.Todo, bool) {
	t.rowsMu.RLock()
	defer t.rowsMu.RUnlock()
	if i := t.indexOf(id); i >= 0 {
		return t.rows[i], true
	}
	return model.Todo{}, false
}

// Pull returns a copy of all rows ordered by id.
func (t *Table) Pull() []model.Todo {
	t.rowsMu.RLock()
	defer t.rowsMu.RUnlock()
	return append([]model.Todo(nil), t.rows...)
}

func (t *Table) Len() int {
	t.rowsMu.RLock()
	defer t.rowsMu.RUnlock()
	return len(t.rows)
}

// indexOf assumes rowsMu is held. Rows stay sorted by id because ids only grow.
func (t *Table) indexOf(id int) int {
	i := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].ID >= id })
	if i < len(t.rows) && t.rows[i].ID == id {
		return i
	}
	return -1
}

// Follow hands the current rows of src to snapshot and then subscribes sub,
// with no mutation of t in between, so sub sees exactly the changes after
// those rows. src must be t or a view published from t, such as an index
// channel or a map over one. snapshot must not mutate the table.
func Follow[T any](t *Table, src Source[T], snapshot func(rows []T), sub Subscriber[T]) (cancel func()) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if snapshot != nil {
		snapshot(src.Pull())
	}
	return src.Subscribe(sub)
}
