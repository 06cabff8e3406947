package live

import (
	"sort"
	"sync"

	"livetodo/internal/model"
)

// Index partitions a table's rows by a key. Each key value gets a Channel.
type Index[K comparable] struct {
	name  string
	key   func(model.Todo) K
	table *Table

	mu       sync.Mutex
	channels map[K]*Channel[K]
	cancel   func()
}

// IndexOn builds an index over t keyed by key and keeps it current.
func IndexOn[K comparable](t *Table, name string, key func(model.Todo) K) *Index[K] {
	idx := &Index[K]{
		name:     name,
		key:      key,
		table:    t,
		channels: map[K]*Channel[K]{},
	}
	t.writeMu.Lock()
	for _, row := range t.Pull() {
		idx.channelFor(key(row)).hit(row.ID)
	}
	idx.cancel = t.Subscribe(idx)
	t.writeMu.Unlock()
	return idx
}

// ByUser indexes todos on their owning user id.
func ByUser(t *Table) *Index[int] {
	return IndexOn(t, "userId", func(r model.Todo) int { return r.UserID })
}

func (idx *Index[K]) Name() string { return idx.name }

// Channel returns the observable rows whose key equals k. Channels are
// created on first use and persist for the life of the index.
func (idx *Index[K]) Channel(k K) *Channel[K] {
	return idx.channelFor(k)
}

func (idx *Index[K]) channelFor(k K) *Channel[K] {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	ch := idx.channels[k]
	if ch == nil {
		ch = &Channel[K]{key: k, table: idx.table}
		idx.channels[k] = ch
	}
	return ch
}

func (idx *Index[K]) OnAdd(row model.Todo) {
	ch := idx.channelFor(idx.key(row))
	ch.hit(row.ID)
	ch.PublishAdd(row)
}

func (idx *Index[K]) OnRemove(row model.Todo) {
	ch := idx.channelFor(idx.key(row))
	ch.miss(row.ID)
	ch.PublishRemove(row)
}

// OnUpdate keeps the row in its channel when the key is unchanged and moves
// it between channels otherwise.
func (idx *Index[K]) OnUpdate(old, new model.Todo) {
	oldKey, newKey := idx.key(old), idx.key(new)
	if oldKey == newKey {
		idx.channelFor(oldKey).PublishUpdate(old, new)
		return
	}
	from := idx.channelFor(oldKey)
	from.miss(old.ID)
	from.PublishRemove(old)

	to := idx.channelFor(newKey)
	to.hit(new.ID)
	to.PublishAdd(new)
}

// Pull returns every indexed row.
func (idx *Index[K]) Pull() []model.Todo {
	return idx.table.Pull()
}

func (idx *Index[K]) Close() {
	if idx.cancel != nil {
		idx.cancel()
	}
}

// Channel is the slice of an index holding one key value.
type Channel[K comparable] struct {
	Observable[model.Todo]

	key   K
	table *Table

	mu  sync.Mutex
	ids map[int]struct{}
}

func (c *Channel[K]) hit(id int) {
	c.mu.Lock()
	if c.ids == nil {
		c.ids = map[int]struct{}{}
	}
	c.ids[id] = struct{}{}
	c.mu.Unlock()
}

func (c *Channel[K]) miss(id int) {
	c.mu.Lock()
	delete(c.ids, id)
	c.mu.Unlock()
}

// Pull returns the channel's rows ordered by id.
func (c *Channel[K]) Pull() []model.Todo {
	c.mu.Lock()
	ids := make([]int, 0, len(c.ids))
	for id := range c.ids {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Ints(ids)

	out := make([]model.Todo, 0, len(ids))
	for _, id := range ids {
		if row, ok := c.table.Find(id); ok {
			out = append(out, row)
		}
	}
	return out
}
