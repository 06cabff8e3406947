package live

// Filter is the subset of a source's rows matching a predicate.
type Filter[T any] struct {
	Observable[T]

	source    Source[T]
	predicate func(T) bool
	cancel    func()
}

// NewFilter subscribes to source and republishes changes of matching rows.
// An update is republished as a removal of the old row (when it matched)
// followed by an addition of the new row (when it matches).
func NewFilter[T any](source Source[T], predicate func(T) bool) *Filter[T] {
	f := &Filter[T]{source: source, predicate: predicate}
	f.cancel = source.Subscribe(f)
	return f
}

func (f *Filter[T]) OnAdd(row T) {
	if f.predicate(row) {
		f.PublishAdd(row)
	}
}

func (f *Filter[T]) OnRemove(row T) {
	if f.predicate(row) {
		f.PublishRemove(row)
	}
}

func (f *Filter[T]) OnUpdate(old, new T) {
	if f.predicate(old) {
		f.PublishRemove(old)
	}
	if f.predicate(new) {
		f.PublishAdd(new)
	}
}

func (f *Filter[T]) Pull() []T {
	var out []T
	for _, row := range f.source.Pull() {
		if f.predicate(row) {
			out = append(out, row)
		}
	}
	return out
}

// Close detaches the filter from its source.
func (f *Filter[T]) Close() {
	if f.cancel != nil {
		f.cancel()
	}
}
