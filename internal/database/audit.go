package database

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/skylinesee/reeQute/entity"
	"github.com/skylinesee/reeQute/lib/sl"
)

type AuditStore interface {
	SaveAuditEvent(ev *entity.AuditEvent) error
}

// AuditLog writes events to the store from a single goroutine so Record
// never waits on the database. Events that do not fit the buffer are
// dropped and counted.
type AuditLog struct {
	store   AuditStore
	log     *slog.Logger
	events  chan *entity.AuditEvent
	dropped atomic.Int64
	done    chan struct{}
}

func NewAuditLog(store AuditStore, log *slog.Logger, size int) *AuditLog {
	if size <= 0 {
		size = 128
	}
	return &AuditLog{
		store:  store,
		log:    log.With(sl.Module("audit")),
		events: make(chan *entity.AuditEvent, size),
		done:   make(chan struct{}),
	}
}

func (a *AuditLog) Record(ev *entity.AuditEvent) {
	select {
	case a.events <- ev:
	default:
		if n := a.dropped.Add(1); n == 1 || n%100 == 0 {
			a.log.With(slog.Int64("dropped", n)).Warn("audit buffer full")
		}
	}
}

func (a *AuditLog) Dropped() int64 {
	return a.dropped.Load()
}

// Run saves events until ctx is done, then writes what is still buffered.
func (a *AuditLog) Run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case ev := <-a.events:
			a.save(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-a.events:
					a.save(ev)
				default:
					return
				}
			}
		}
	}
}

func (a *AuditLog) Done() <-chan struct{} {
	return a.done
}

func (a *AuditLog) save(ev *entity.AuditEvent) {
	if err := a.store.SaveAuditEvent(ev); err != nil {
		a.log.With(
			slog.String("kind", string(ev.Kind)),
			slog.String("id", ev.ID),
		).Debug("audit event not saved", sl.Err(err))
	}
}
