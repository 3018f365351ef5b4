package presence

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handle struct{ name string }

type recorder struct {
	mu    sync.Mutex
	calls [][]uuid.UUID
}

func (r *recorder) record(online []uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, online)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestRegisterTwiceKeepsLatestHandle(t *testing.T) {
	rec := &recorder{}
	m := NewMap[*handle](rec.record)
	user := uuid.New()
	first, second := &handle{"first"}, &handle{"second"}

	m.Register(user, first)
	m.Register(user, second)

	assert.Equal(t, []uuid.UUID{user}, m.ListOnline())
	h, ok := m.Handle(user)
	require.True(t, ok)
	assert.Same(t, second, h)
	assert.Equal(t, 2, rec.count())
}

func TestUnregisterStaleHandleIsNoop(t *testing.T) {
	rec := &recorder{}
	m := NewMap[*handle](rec.record)
	user := uuid.New()
	first, second := &handle{"first"}, &handle{"second"}

	m.Register(user, first)
	m.Register(user, second)
	calls := rec.count()

	m.Unregister(first)
	assert.Equal(t, []uuid.UUID{user}, m.ListOnline())
	assert.Equal(t, calls, rec.count())

	m.Unregister(&handle{"never registered"})
	assert.Equal(t, calls, rec.count())

	m.Unregister(second)
	assert.Empty(t, m.ListOnline())
	assert.Equal(t, calls+1, rec.count())
}

func TestRegisterSameHandleAgainDoesNotBroadcast(t *testing.T) {
	rec := &recorder{}
	m := NewMap[*handle](rec.record)
	user := uuid.New()
	h := &handle{"h"}

	m.Register(user, h)
	m.Register(user, h)
	assert.Equal(t, 1, rec.count())
}

func TestListOnlineConcurrent(t *testing.T) {
	m := NewMap[*handle](nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := &handle{}
			m.Register(uuid.New(), h)
			m.ListOnline()
			m.Unregister(h)
		}()
	}
	wg.Wait()
	assert.Empty(t, m.ListOnline())
}

func TestConcurrentRegistrationsDeliverLatestSet(t *testing.T) {
	for round := 0; round < 50; round++ {
		var mu sync.Mutex
		var last []uuid.UUID
		m := NewMap[int](func(online []uuid.UUID) {
			// encoding and fan-out take a while
			time.Sleep(time.Duration(rand.Intn(100)) * time.Microsecond)
			mu.Lock()
			last = online
			mu.Unlock()
		})

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				m.Register(uuid.New(), i)
			}(i)
		}
		wg.Wait()

		mu.Lock()
		require.Equal(t, m.ListOnline(), last, "round %d", round)
		mu.Unlock()
	}
}

func TestStaleSnapshotIsDropped(t *testing.T) {
	rec := &recorder{}
	m := NewMap[*handle](rec.record)
	user := uuid.New()
	m.Register(user, &handle{"h"})
	require.Equal(t, 1, rec.count())

	m.notify(1, nil)
	assert.Equal(t, 1, rec.count())
}
