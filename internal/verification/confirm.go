package verification

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skylinesee/reeQute/lib/clock"
)

// CancelReason says why a prompt closed without confirmation.
type CancelReason int

const (
	CancelTimeout CancelReason = iota
	CancelReplaced
)

type pendingConfirm struct {
	id        string
	timer     clock.Timer
	onConfirm func()
	onCancel  func(CancelReason)
}

// Confirmations tracks interactive "type confirm" prompts. At most one
// prompt is open per key; opening another replaces it.
type Confirmations struct {
	clock   clock.Clock
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingConfirm
}

func NewConfirmations(clk clock.Clock, timeout time.Duration) *Confirmations {
	return &Confirmations{
		clock:   clk,
		timeout: timeout,
		pending: make(map[string]*pendingConfirm),
	}
}

func confirmKey(actorID, channelID string) string {
	return actorID + "/" + channelID
}

// Await opens a prompt for key. onCancel runs with CancelTimeout on the
// clock's goroutine if Resolve is not called for key within the timeout. A
// prompt already open for key is closed first and its onCancel runs with
// CancelReplaced in the caller's goroutine.
func (c *Confirmations) Await(key string, onConfirm func(), onCancel func(CancelReason)) string {
	p := &pendingConfirm{
		id:        uuid.NewString(),
		onConfirm: onConfirm,
		onCancel:  onCancel,
	}

	c.mu.Lock()
	prev, replaced := c.pending[key]
	c.pending[key] = p
	c.mu.Unlock()

	if replaced {
		if prev.timer != nil {
			prev.timer.Stop()
		}
		prev.onCancel(CancelReplaced)
	}

	timer := c.clock.AfterFunc(c.timeout, func() {
		c.mu.Lock()
		cur, ok := c.pending[key]
		if !ok || cur != p {
			c.mu.Unlock()
			return
		}
		delete(c.pending, key)
		c.mu.Unlock()
		onCancel(CancelTimeout)
	})

	c.mu.Lock()
	p.timer = timer
	c.mu.Unlock()
	return p.id
}

// Resolve closes the prompt for key and runs its onConfirm in the caller's
// goroutine. It reports false when no prompt is open.
func (c *Confirmations) Resolve(key string) bool {
	c.mu.Lock()
	p, ok := c.pending[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.pending, key)
	timer := p.timer
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	p.onConfirm()
	return true
}

func (c *Confirmations) Open(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}
