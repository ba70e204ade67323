// Package agent implements the assistant core — memory, prompt context, and
// the tool-calling runner.
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// MemoryStore provides two-layer memory: MEMORY.md (long-term, curated) plus
// HISTORY.md (append-only, grep-searchable log). Updates are serialized: the
// host handles envelopes concurrently, and Apply is a read-modify-write.
type MemoryStore struct {
	MemoryDir   string
	MemoryFile  string
	HistoryFile string

	mu sync.Mutex
}

// NewMemoryStore creates a MemoryStore rooted at workspace/memory.
func NewMemoryStore(workspace string) *MemoryStore {
	dir := filepath.Join(workspace, "memory")
	os.MkdirAll(dir, 0o755)
	return &MemoryStore{
		MemoryDir:   dir,
		MemoryFile:  filepath.Join(dir, "MEMORY.md"),
		HistoryFile: filepath.Join(dir, "HISTORY.md"),
	}
}

// ReadLongTerm reads MEMORY.md.
func (m *MemoryStore) ReadLongTerm() string {
	data, err := os.ReadFile(m.MemoryFile)
	if err != nil {
		return ""
	}
	return string(data)
}

// WriteLongTerm writes MEMORY.md.
func (m *MemoryStore) WriteLongTerm(content string) error {
	return os.WriteFile(m.MemoryFile, []byte(content), 0o644)
}

// AppendHistory appends an entry to HISTORY.md.
func (m *MemoryStore) AppendHistory(entry string) error {
	f, err := os.OpenFile(m.HistoryFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(strings.TrimRight(entry, "\n") + "\n\n")
	return err
}

// Apply records a memory update. When section is non-empty the content
// replaces that "## section" block in MEMORY.md (the block is appended if it
// does not exist yet); otherwise the content is appended to the end of the
// file. Every update is also logged to HISTORY.md. Apply is safe for
// concurrent use; overlapping updates are applied one after the other.
func (m *MemoryStore) Apply(content, section, author string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.ReadLongTerm()

	var updated string
	if section != "" {
		updated = replaceSection(existing, section, content)
	} else if existing == "" {
		updated = content + "\n"
	} else {
		updated = strings.TrimRight(existing, "\n") + "\n\n" + content + "\n"
	}
	if err := m.WriteLongTerm(updated); err != nil {
		return err
	}

	stamp := time.Now().Format("2006-01-02 15:04")
	if author == "" {
		author = "assistant"
	}
	label := section
	if label == "" {
		label = "general"
	}
	return m.AppendHistory(fmt.Sprintf("[%s] (%s / %s) %s", stamp, author, label, content))
}

// replaceSection replaces the body of the "## name" heading in doc, keeping
// everything up to the next "## " heading intact. Missing sections are
// appended at the end.
func replaceSection(doc, name, body string) string {
	heading := "## " + name
	block := heading + "\n\n" + strings.TrimRight(body, "\n") + "\n"

	lines := strings.Split(doc, "\n")
	start := -1
	for i, line := range lines {
		if strings.TrimRight(line, " ") == heading {
			start = i
			break
		}
	}
	if start == -1 {
		if strings.TrimSpace(doc) == "" {
			return block
		}
		return strings.TrimRight(doc, "\n") + "\n\n" + block
	}

	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], "## ") {
			end = i
			break
		}
	}

	var out []string
	out = append(out, lines[:start]...)
	out = append(out, strings.Split(strings.TrimRight(block, "\n"), "\n")...)
	if end < len(lines) {
		out = append(out, "")
		out = append(out, lines[end:]...)
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n"
}

// GetMemoryContext returns formatted memory for inclusion in prompts.
func (m *MemoryStore) GetMemoryContext() string {
	lt := m.ReadLongTerm()
	if lt != "" {
		return fmt.Sprintf("## Long-term Memory\n%s", lt)
	}
	return ""
}
