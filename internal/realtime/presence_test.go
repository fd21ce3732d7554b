package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresence_LatestConnectionWins(t *testing.T) {
	p := NewPresence(nil)

	p.SetOnline("u-alice", "c1")
	p.SetOnline("u-alice", "c2")

	connID, ok := p.ConnectionOf("u-alice")
	require.True(t, ok)
	assert.Equal(t, "c2", connID)
	assert.Equal(t, 1, p.Len())
}

func TestPresence_StaleDisconnectKeepsNewerConnection(t *testing.T) {
	p := NewPresence(nil)

	p.SetOnline("u-alice", "c1")
	p.SetOnline("u-alice", "c2")

	assert.False(t, p.RemoveIfCurrent("u-alice", "c1"))
	assert.True(t, p.IsOnline("u-alice"))
	connID, _ := p.ConnectionOf("u-alice")
	assert.Equal(t, "c2", connID)

	assert.True(t, p.RemoveIfCurrent("u-alice", "c2"))
	assert.False(t, p.IsOnline("u-alice"))
}

func TestPresence_RemoveUnknownUser(t *testing.T) {
	p := NewPresence(nil)
	assert.False(t, p.RemoveIfCurrent("nobody", "c1"))
}

func TestPresence_NotifiesFullSnapshot(t *testing.T) {
	var got [][]string
	p := NewPresence(func(online []string) {
		got = append(got, online)
	})

	p.SetOnline("u-bob", "c1")
	p.SetOnline("u-alice", "c2")
	p.RemoveIfCurrent("u-bob", "stale")
	p.RemoveIfCurrent("u-bob", "c1")

	require.Len(t, got, 3, "stale removal must not notify")
	assert.Equal(t, []string{"u-bob"}, got[0])
	assert.Equal(t, []string{"u-alice", "u-bob"}, got[1])
	assert.Equal(t, []string{"u-alice"}, got[2])
	assert.Equal(t, []string{"u-alice"}, p.Snapshot())
}

func TestPresence_ConcurrentAccess(t *testing.T) {
	p := NewPresence(func([]string) {})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u-%d", i%5)
			conn := fmt.Sprintf("c-%d", i)
			p.SetOnline(user, conn)
			p.Snapshot()
			p.RemoveIfCurrent(user, conn)
		}(i)
	}
	wg.Wait()

	// Every user's last SetOnline is followed by its own removal.
	assert.Zero(t, p.Len())
	assert.Empty(t, p.Snapshot())
}
