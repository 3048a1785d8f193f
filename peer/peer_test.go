package peer

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRegistryAddGet(t *testing.T) {
	r := NewRegistry()
	p := Peer{ID: uuid.New(), Name: "alice", Addr: "192.168.1.10:9876"}

	r.Add(p)

	got, ok := r.Get(p.ID)
	assert.True(t, ok)
	assert.Equal(t, p, got)

	_, ok = r.Get(uuid.New())
	assert.False(t, ok)
}

func TestRegistryAddRefreshes(t *testing.T) {
	r := NewRegistry()
	id := uuid.New()

	r.Add(Peer{ID: id, Name: "alice", Addr: "192.168.1.10:9876"})
	r.Add(Peer{ID: id, Name: "alice", Addr: "192.168.1.77:9876"})

	assert.Equal(t, 1, r.Len())

	got, _ := r.Get(id)
	assert.Equal(t, "192.168.1.77:9876", got.Addr)
}

func TestRegistryRemoveByName(t *testing.T) {
	r := NewRegistry()
	r.Add(Peer{ID: uuid.New(), Name: "alice", Addr: "192.168.1.10:9876"})
	r.Add(Peer{ID: uuid.New(), Name: "alice", Addr: "192.168.1.11:9876"})
	r.Add(Peer{ID: uuid.New(), Name: "bob", Addr: "192.168.1.12:9876"})

	r.RemoveByName("alice")

	assert.Equal(t, 1, r.Len())
	for _, p := range r.List() {
		assert.NotEqual(t, "alice", p.Name)
	}
}

func TestRegistryListIsSnapshot(t *testing.T) {
	r := NewRegistry()
	p := Peer{ID: uuid.New(), Name: "alice", Addr: "192.168.1.10:9876"}
	r.Add(p)

	snapshot := r.List()
	r.RemoveByName("alice")

	assert.Len(t, snapshot, 1)
	assert.Equal(t, p, snapshot[0])
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Add(Peer{ID: uuid.New(), Name: "peer", Addr: "127.0.0.1:1"})
		}()
		go func() {
			defer wg.Done()
			r.List()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, r.Len())
}
