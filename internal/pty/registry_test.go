package pty

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeSession(id string, started time.Time) *Session {
	return &Session{ID: id, StartedAt: started}
}

func TestRegistryInsertGetRemove(t *testing.T) {
	r := NewRegistry()
	s := fakeSession("a", time.Now())

	require.NoError(t, r.Insert(s))
	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())

	removed, ok := r.Remove("a")
	require.True(t, ok)
	assert.Same(t, s, removed)

	_, ok = r.Get("a")
	assert.False(t, ok)
	_, ok = r.Remove("a")
	assert.False(t, ok, "second remove finds nothing")
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Insert(fakeSession("a", time.Now())))
	assert.ErrorIs(t, r.Insert(fakeSession("a", time.Now())), ErrSessionExists)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRemoveSessionChecksIdentity(t *testing.T) {
	r := NewRegistry()
	first := fakeSession("a", time.Now())
	second := fakeSession("a", time.Now())
	require.NoError(t, r.Insert(first))

	assert.False(t, r.RemoveSession("a", second))
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.RemoveSession("a", first))
	assert.Zero(t, r.Len())
}

func TestRegistrySessionsOrderedByStart(t *testing.T) {
	r := NewRegistry()
	base := time.Now()
	require.NoError(t, r.Insert(fakeSession("late", base.Add(2*time.Second))))
	require.NoError(t, r.Insert(fakeSession("early", base)))
	require.NoError(t, r.Insert(fakeSession("mid", base.Add(time.Second))))

	var ids []string
	for _, s := range r.Sessions() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"early", "mid", "late"}, ids)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			assert.NoError(t, r.Insert(fakeSession(id, time.Now())))
			_, ok := r.Get(id)
			assert.True(t, ok)
			_, ok = r.Remove(id)
			assert.True(t, ok)
		}(i)
	}
	wg.Wait()
	assert.Zero(t, r.Len())
}
