package alert

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const maxTelegramMessageLen = 4096

type DigestEntry struct {
	Message   string
	Level     slog.Level
	Timestamp time.Time
}

// DigestBuffer collects messages and hands them to flush as one text.
type DigestBuffer struct {
	mu       sync.Mutex
	entries  []DigestEntry
	interval time.Duration
	flush    func(text string)
	now      func() time.Time
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
	started  bool
}

func NewDigestBuffer(flush func(text string), interval time.Duration) *DigestBuffer {
	return &DigestBuffer{
		interval: interval,
		flush:    flush,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (d *DigestBuffer) Add(msg string, level slog.Level) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, DigestEntry{
		Message:   msg,
		Level:     level,
		Timestamp: d.now(),
	})
}

func (d *DigestBuffer) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *DigestBuffer) StartTicker() {
	d.mu.Lock()
	d.started = true
	d.mu.Unlock()
	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.Flush()
			case <-d.stopCh:
				d.Flush()
				return
			}
		}
	}()
}

func (d *DigestBuffer) Flush() {
	d.mu.Lock()
	snapshot := d.entries
	d.entries = nil
	d.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}
	d.flush(formatDigest(snapshot))
}

// Stop flushes what is left. Safe to call without StartTicker.
func (d *DigestBuffer) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		d.mu.Lock()
		started := d.started
		d.mu.Unlock()
		if started {
			<-d.done
			return
		}
		d.Flush()
	})
}

func formatDigest(entries []DigestEntry) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Digest* \\(%d messages\\)\n\n", len(entries)))
	for _, e := range entries {
		ts := e.Timestamp.Format("15:04")
		sb.WriteString(fmt.Sprintf("`%s` %s\n%s\n\n", ts, e.Level.String(), e.Message))
	}
	return sb.String()
}
