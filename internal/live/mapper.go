package live

// Mapper is a source's rows passed through a transform. It keeps no rows of
// its own: Pull maps the source on every call.
type Mapper[T, U any] struct {
	Observable[U]

	source Source[T]
	fn     func(T) U
	cancel func()
}

// Map subscribes to source and republishes every change with fn applied to
// the rows. fn must be pure; removals are mapped again rather than recalled.
func Map[T, U any](source Source[T], fn func(T) U) *Mapper[T, U] {
	m := &Mapper[T, U]{source: source, fn: fn}
	m.cancel = source.Subscribe(Funcs[T]{
		Add:    func(row T) { m.PublishAdd(m.fn(row)) },
		Remove: func(row T) { m.PublishRemove(m.fn(row)) },
		Update: func(old, new T) { m.PublishUpdate(m.fn(old), m.fn(new)) },
	})
	return m
}

func (m *Mapper[T, U]) Pull() []U {
	rows := m.source.Pull()
	out := make([]U, len(rows))
	for i, row := range rows {
		out[i] = m.fn(row)
	}
	return out
}

// Close detaches the mapper from its source.
func (m *Mapper[T, U]) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}
