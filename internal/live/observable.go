// Package live implements reactive collections: observable row sets whose
// additions, removals and updates are pushed to subscribers as they happen.
package live

import "sync"

// Subscriber receives row-level changes from an observable.
type Subscriber[T any] interface {
	OnAdd(row T)
	OnRemove(row T)
	OnUpdate(old, new T)
}

// Source is an observable row set that can also be read in full.
type Source[T any] interface {
	Subscribe(sub Subscriber[T]) (cancel func())
	Pull() []T
}

// Funcs adapts plain functions to Subscriber. Nil funcs are skipped.
type Funcs[T any] struct {
	Add    func(row T)
	Remove func(row T)
	Update func(old, new T)
}

func (f Funcs[T]) OnAdd(row T) {
	if f.Add != nil {
		f.Add(row)
	}
}

func (f Funcs[T]) OnRemove(row T) {
	if f.Remove != nil {
		f.Remove(row)
	}
}

func (f Funcs[T]) OnUpdate(old, new T) {
	if f.Update != nil {
		f.Update(old, new)
	}
}

// Observable fans changes out to its subscribers in subscription order.
// The zero value is ready to use.
type Observable[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription[T]
}

type subscription[T any] struct {
	id  int
	sub Subscriber[T]
}

func (o *Observable[T]) Subscribe(sub Subscriber[T]) (cancel func()) {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, subscription[T]{id: id, sub: sub})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { o.unsubscribe(id) })
	}
}

func (o *Observable[T]) unsubscribe(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.subs {
		if s.id == id {
			o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
			return
		}
	}
}

func (o *Observable[T]) Subscribers() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

// snapshot is taken so callbacks may subscribe or cancel without deadlocking.
func (o *Observable[T]) snapshot() []Subscriber[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Subscriber[T], len(o.subs))
	for i, s := range o.subs {
		out[i] = s.sub
	}
	return out
}

func (o *Observable[T]) PublishAdd(row T) {
	for _, s := range o.snapshot() {
		s.OnAdd(row)
	}
}

func (o *Observable[T]) PublishRemove(row T) {
	for _, s := range o.snapshot() {
		s.OnRemove(row)
	}
}

func (o *Observable[T]) PublishUpdate(old, new T) {
	for _, s := range o.snapshot() {
		s.OnUpdate(old, new)
	}
}
