package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	envelopeSuffix = ".json"
	tempSuffix     = ".json.tmp"
	responseSuffix = ".response.json"

	defaultPollInterval = 500 * time.Millisecond
	defaultSettleDelay  = 50 * time.Millisecond
	defaultReplyPoll    = 250 * time.Millisecond
)

// Handler consumes one envelope. The transport invokes it at most once per
// envelope; the backing file is already gone by the time it runs.
type Handler func(ctx context.Context, env Envelope)

// Producer is the side of the mailbox that agent tools see.
type Producer interface {
	Send(env Envelope) error
	Request(ctx context.Context, env Envelope, timeout time.Duration) Outcome
}

// Responder is the side the host uses to answer request envelopes.
type Responder interface {
	Respond(correlationID string, payload any) error
}

// Options configures a FileMailbox.
type Options struct {
	Dir          string
	PollInterval time.Duration // discovery poll fallback
	SettleDelay  time.Duration // wait before reading a newly observed file
	ReplyPoll    time.Duration // correlator poll interval
}

// FileMailbox is a directory-scoped envelope channel. Producers write
// envelopes with a temp-write-then-rename so the consumer never observes a
// partial file; the consumer discovers them via fsnotify events with a
// fixed-interval poll as a fallback for filesystems where notifications are
// unreliable. Both paths funnel into one dispatch routine guarded by an
// in-flight set.
//
// An envelope file is deleted after it decodes and before the handler runs:
// consumption is crash-safe from the transport's perspective, at the cost of
// at-most-once delivery if the process dies inside the handler.
type FileMailbox struct {
	dir          string
	pollInterval time.Duration
	settleDelay  time.Duration
	replyPoll    time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFileMailbox creates a mailbox over the given directory, creating it if
// needed.
func NewFileMailbox(opts Options) (*FileMailbox, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("mailbox: directory not set")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("mailbox: create dir: %w", err)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	} else if opts.SettleDelay == 0 {
		opts.SettleDelay = defaultSettleDelay
	}
	if opts.ReplyPoll <= 0 {
		opts.ReplyPoll = defaultReplyPoll
	}
	return &FileMailbox{
		dir:          opts.Dir,
		pollInterval: opts.PollInterval,
		settleDelay:  opts.SettleDelay,
		replyPoll:    opts.ReplyPoll,
		inflight:     make(map[string]struct{}),
	}, nil
}

// Dir returns the watched directory.
func (m *FileMailbox) Dir() string { return m.dir }

// Send writes an envelope into the watched directory atomically.
func (m *FileMailbox) Send(env Envelope) error {
	if env.ID == "" {
		return fmt.Errorf("mailbox: envelope without id")
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("mailbox: marshal envelope: %w", err)
	}
	return m.atomicWrite(env.ID+envelopeSuffix, data)
}

// Respond writes the response artifact for a request envelope.
func (m *FileMailbox) Respond(correlationID string, payload any) error {
	if correlationID == "" {
		return fmt.Errorf("mailbox: respond without correlation id")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mailbox: marshal response: %w", err)
	}
	return m.atomicWrite(correlationID+responseSuffix, data)
}

// atomicWrite writes to a sibling temp name and renames into place, so a
// reader never sees a half-written file.
func (m *FileMailbox) atomicWrite(name string, data []byte) error {
	final := filepath.Join(m.dir, name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("mailbox: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("mailbox: publish %s: %w", name, err)
	}
	return nil
}

// Start begins dispatching envelopes from the directory to handler. Any
// envelopes already present (written while the consumer was down) are picked
// up by the first poll.
func (m *FileMailbox) Start(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("mailbox: nil handler")
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Notifications unavailable; the poll loop alone still delivers.
		log.Printf("[Mailbox] fsnotify unavailable, poll only: %v", err)
		watcher = nil
	} else if err := watcher.Add(m.dir); err != nil {
		log.Printf("[Mailbox] watch %s failed, poll only: %v", m.dir, err)
		watcher.Close()
		watcher = nil
	}

	if watcher != nil {
		m.wg.Add(1)
		go m.watchLoop(ctx, watcher, handler)
	}
	m.wg.Add(1)
	go m.pollLoop(ctx, handler)

	log.Printf("[Mailbox] watching %s (poll %s)", m.dir, m.pollInterval)
	return nil
}

// Stop ceases dispatch and waits for the discovery loops to exit.
func (m *FileMailbox) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *FileMailbox) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, handler Handler) {
	defer m.wg.Done()
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
				m.maybeDispatch(ctx, handler, ev.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Mailbox] watcher error: %v", err)
		}
	}
}

func (m *FileMailbox) pollLoop(ctx context.Context, handler Handler) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entries, err := os.ReadDir(m.dir)
			if err != nil {
				log.Printf("[Mailbox] read dir: %v", err)
				continue
			}
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				m.maybeDispatch(ctx, handler, filepath.Join(m.dir, entry.Name()))
			}
		}
	}
}

// maybeDispatch delivers one envelope file, at most once even when the
// watcher and the poll observe it simultaneously.
func (m *FileMailbox) maybeDispatch(ctx context.Context, handler Handler, path string) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, envelopeSuffix) ||
		strings.HasSuffix(name, tempSuffix) ||
		strings.HasSuffix(name, responseSuffix) ||
		strings.HasSuffix(name, ".tmp") {
		return
	}

	m.mu.Lock()
	if _, busy := m.inflight[name]; busy {
		m.mu.Unlock()
		return
	}
	m.inflight[name] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.inflight, name)
		m.mu.Unlock()
	}()

	// Let a rename that is not atomic end-to-end settle before reading.
	if m.settleDelay > 0 {
		select {
		case <-time.After(m.settleDelay):
		case <-ctx.Done():
			return
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Mailbox] read %s: %v", name, err)
		}
		return
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		// Poison message: discard, never block the mailbox on it.
		log.Printf("[Mailbox] malformed envelope %s: %v", name, err)
		os.Remove(path)
		return
	}

	// Consume before handling. A crash inside the handler loses this
	// envelope; see the type comment.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("[Mailbox] remove %s: %v", name, err)
		return
	}

	handler(ctx, env)
}
