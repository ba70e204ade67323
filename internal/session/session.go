// Package session persists per-group conversation history as JSONL files.
package session

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Message is a single conversation turn.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Session holds one group's message history.
type Session struct {
	Key       string    `json:"key"`
	Messages  []Message `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Add appends a turn to the session.
func (s *Session) Add(role, content string) {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	s.UpdatedAt = time.Now()
}

// History returns the last maxTurns messages as LLM-shaped maps.
func (s *Session) History(maxTurns int) []map[string]any {
	start := 0
	if maxTurns > 0 && len(s.Messages) > maxTurns {
		start = len(s.Messages) - maxTurns
	}
	out := make([]map[string]any, 0, len(s.Messages)-start)
	for _, m := range s.Messages[start:] {
		out = append(out, map[string]any{"role": m.Role, "content": m.Content})
	}
	return out
}

// Manager loads and saves sessions under <workspace>/sessions.
type Manager struct {
	dir   string
	mu    sync.Mutex
	cache map[string]*Session
}

// NewManager creates a session manager rooted at the workspace.
func NewManager(workspace string) *Manager {
	dir := filepath.Join(workspace, "sessions")
	os.MkdirAll(dir, 0o755)
	return &Manager{dir: dir, cache: make(map[string]*Session)}
}

// GetOrCreate returns the session for a group key, loading it from disk the
// first time it is seen.
func (m *Manager) GetOrCreate(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.cache[key]; ok {
		return s
	}
	s := m.load(key)
	if s == nil {
		now := time.Now()
		s = &Session{Key: key, CreatedAt: now, UpdatedAt: now}
	}
	m.cache[key] = s
	return s
}

// Save writes a session to disk, one JSON message per line after a metadata
// header line.
func (m *Manager) Save(s *Session) error {
	f, err := os.Create(m.path(s.Key))
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	meta, _ := json.Marshal(map[string]any{
		"_type":      "metadata",
		"key":        s.Key,
		"created_at": s.CreatedAt.Format(time.RFC3339),
		"updated_at": s.UpdatedAt.Format(time.RFC3339),
	})
	w.Write(meta)
	w.WriteByte('\n')
	for _, msg := range s.Messages {
		line, _ := json.Marshal(msg)
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return err
	}

	m.mu.Lock()
	m.cache[s.Key] = s
	m.mu.Unlock()
	return nil
}

func (m *Manager) path(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case ':', '/', '\\', ' ':
			return '_'
		}
		return r
	}, key)
	return filepath.Join(m.dir, safe+".jsonl")
}

func (m *Manager) load(key string) *Session {
	f, err := os.Open(m.path(key))
	if err != nil {
		return nil
	}
	defer f.Close()

	s := &Session{Key: key}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var raw map[string]any
		if json.Unmarshal([]byte(line), &raw) == nil && raw["_type"] == "metadata" {
			if v, ok := raw["created_at"].(string); ok {
				s.CreatedAt, _ = time.Parse(time.RFC3339, v)
			}
			if v, ok := raw["updated_at"].(string); ok {
				s.UpdatedAt, _ = time.Parse(time.RFC3339, v)
			}
			continue
		}
		var msg Message
		if json.Unmarshal([]byte(line), &msg) == nil && msg.Role != "" {
			s.Messages = append(s.Messages, msg)
		}
	}

	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	return s
}
