// Package activity implements the asynchronous activity ledger. Instead of
// inferring metadata through reflection over an intercepted call, callers
// describe the operation explicitly with an Entry value at the call site;
// a background writer persists entries without ever blocking or failing the
// wrapped operation.
package activity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/agoranet/go-messenger-backend/internal/domain"
	"github.com/agoranet/go-messenger-backend/internal/repo"
)

// Outcome values for an Entry.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Entry describes one auditable operation. All fields are supplied by the
// caller; nothing is inferred.
type Entry struct {
	Actor      string
	Action     string
	EntityKind string
	EntityID   string
	Detail     string
	Outcome    string
}

// Sink accepts ledger entries. Services depend on this narrow interface so
// tests can capture entries without a database.
type Sink interface {
	Record(e Entry)
}

// Recorder buffers entries on a channel and writes them from a single
// background goroutine. When the buffer is full the entry is dropped with a
// warning log; the ledger is an observability aid, not a system of record,
// and must never apply backpressure to request handling.
type Recorder struct {
	db     *gorm.DB
	ch     chan Entry
	done   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once
}

// NewRecorder starts a Recorder with the given buffer size (values <= 0 are
// coerced to 256).
func NewRecorder(db *gorm.DB, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		db:   db,
		ch:   make(chan Entry, buffer),
		done: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record enqueues an entry without blocking. Entries with an empty Outcome
// default to OutcomeOK.
func (r *Recorder) Record(e Entry) {
	if e.Outcome == "" {
		e.Outcome = OutcomeOK
	}
	select {
	case r.ch <- e:
	default:
		log.Warn().
			Str("action", e.Action).
			Str("actor", e.Actor).
			Msg("activity buffer full, entry dropped")
	}
}

// Close flushes buffered entries and stops the writer. Safe to call more
// than once.
func (r *Recorder) Close() {
	r.closed.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case e := <-r.ch:
			r.write(e)
		case <-r.done:
			// Drain whatever is still buffered before exiting.
			for {
				select {
				case e := <-r.ch:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := &domain.ActivityRecord{
		Actor:      e.Actor,
		Action:     e.Action,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Detail:     e.Detail,
		Outcome:    e.Outcome,
	}
	if err := repo.CreateActivityRecord(ctx, r.db, rec); err != nil {
		log.Error().Err(err).
			Str("action", e.Action).
			Str("actor", e.Actor).
			Msg("activity write failed")
	}
}
