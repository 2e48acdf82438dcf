package audio

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestBell_BlockedWhenNotTerminal(t *testing.T) {
	b := NewBell(&bytes.Buffer{}, time.Millisecond)

	assert.ErrorIs(t, b.Play(), ErrPlaybackBlocked)
	assert.False(t, b.Playing())
	b.Stop()
}

func TestBell_LoopsUntilStopped(t *testing.T) {
	out := &syncBuffer{}
	b := NewBell(out, 5*time.Millisecond)
	b.canPlay = func() bool { return true }

	require.NoError(t, b.Play())
	assert.Eventually(t, func() bool { return b.Position() >= 3 }, 2*time.Second, time.Millisecond)

	// a second Play does not restart the loop
	before := b.Position()
	require.NoError(t, b.Play())
	assert.GreaterOrEqual(t, b.Position(), before)

	b.Stop()
	assert.False(t, b.Playing())
	assert.Equal(t, 0, b.Position())

	rings := strings.Count(out.String(), bell)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, rings, strings.Count(out.String(), bell))

	b.Stop()
}

func TestBell_RestartKeepsItsOwnPosition(t *testing.T) {
	b := NewBell(&syncBuffer{}, time.Hour)
	b.canPlay = func() bool { return true }

	require.NoError(t, b.Play())
	require.Eventually(t, func() bool { return b.Position() == 1 }, 2*time.Second, time.Millisecond)

	b.mu.Lock()
	previous := b.stop
	b.mu.Unlock()

	b.Stop()
	assert.Equal(t, 0, b.Position())

	require.NoError(t, b.Play())
	require.Eventually(t, func() bool { return b.Position() == 1 }, 2*time.Second, time.Millisecond)

	// a late ring from the stopped loop does not count toward the new one
	b.ring(previous)
	assert.Equal(t, 1, b.Position())

	b.Stop()
	assert.Equal(t, 0, b.Position())
}
