package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndReload(t *testing.T) {
	ws := t.TempDir()
	m := NewManager(ws)

	s := m.GetOrCreate("chat:alice")
	s.Add("user", "remember to water the plants")
	s.Add("assistant", "Noted.")
	require.NoError(t, m.Save(s))

	// Fresh manager forces a disk load.
	m2 := NewManager(ws)
	got := m2.GetOrCreate("chat:alice")
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "Noted.", got.Messages[1].Content)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestHistory_Window(t *testing.T) {
	s := &Session{Key: "k"}
	for i := 0; i < 10; i++ {
		s.Add("user", "msg")
	}

	assert.Len(t, s.History(4), 4)
	assert.Len(t, s.History(0), 10, "zero window means everything")
	assert.Len(t, s.History(50), 10)

	h := s.History(1)
	assert.Equal(t, "user", h[0]["role"])
}

func TestGetOrCreate_CachesInstance(t *testing.T) {
	m := NewManager(t.TempDir())
	a := m.GetOrCreate("chat:a")
	b := m.GetOrCreate("chat:a")
	assert.Same(t, a, b)
}
