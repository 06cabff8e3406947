package tree

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_FailedUpdateLeavesTreeUntouched(t *testing.T) {
	s := NewStore()
	s.Replace(map[string]any{"todos": map[string]any{"1": "a"}})
	rev := s.Revision()

	err := s.Update(func(tr *Tree) error {
		tr.Merge(map[string]any{"junk": true})
		return tr.Set(At("missing", "x"), 1)
	})
	require.Error(t, err)
	assert.Equal(t, map[string]any{"todos": map[string]any{"1": "a"}}, s.Snapshot())
	assert.Equal(t, rev, s.Revision())
}

func TestStore_SubscribeNotifiesAfterCommit(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Update(func(tr *Tree) error { return tr.Set(At("k"), "v") }))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("expected change notification")
	}
	got, err := s.Get(At("k"))
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestStore_NoNotificationOnFailure(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe()
	defer cancel()

	_ = s.Update(func(tr *Tree) error { return errors.New("boom") })
	select {
	case <-ch:
		t.Fatalf("unexpected notification for a failed update")
	default:
	}
}

func TestStore_NotificationsCoalesce(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe()
	defer cancel()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Update(func(tr *Tree) error { tr.Merge(map[string]any{"n": float64(i)}); return nil }))
	}
	n := 0
	for {
		select {
		case <-ch:
			n++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, uint64(10), s.Revision())
}

func TestStore_CancelIsIdempotent(t *testing.T) {
	s := NewStore()
	_, cancel := s.Subscribe()
	cancel()
	cancel()
	require.NoError(t, s.Update(func(tr *Tree) error { return nil }))
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Snapshot()
				_, _ = s.MarshalJSON()
			}
		}()
	}
	for j := 0; j < 100; j++ {
		require.NoError(t, s.Update(func(tr *Tree) error { tr.Merge(map[string]any{"j": float64(j)}); return nil }))
	}
	wg.Wait()
}
