// Package resume coordinates resume-data persistence: requesting saves on
// state transitions, writing completed saves to disk, and draining every
// outstanding save before the orchestrator exits.
package resume

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/liut/kedge/internal/codec"
	"github.com/liut/kedge/internal/engine"
	"github.com/liut/kedge/internal/store"
)

// DrainWait is how long DrainOnShutdown waits for an alert on each polling
// pass while draining outstanding resume-data requests.
const DrainWait = 6 * time.Second

// AlertPumpBatch is how many queued alerts DrainOnShutdown consumes per pass
// before checking whether draining is complete, so a large backlog of
// unrelated alerts can't starve the shutdown sequence indefinitely.
const AlertPumpBatch = 32

// Pipeline tracks in-flight resume-data save requests and persists completed
// saves via the store.
type Pipeline struct {
	mu          sync.Mutex
	outstanding int

	st *store.Store
}

// New returns a Pipeline that writes completed resume data under st.
func New(st *store.Store) *Pipeline {
	return &Pipeline{st: st}
}

// Outstanding returns the number of resume-data saves currently in flight.
func (p *Pipeline) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

// Request asks the engine to save resume data for h and marks one save as
// outstanding. It logs and returns without incrementing if the engine
// rejects the request outright.
func (p *Pipeline) Request(sess engine.Session, h engine.Handle) {
	if err := sess.RequestSaveResumeData(h); err != nil {
		log.Printf("[resume] request save for %s failed: %v", h.InfoHash(), err)
		return
	}
	p.mu.Lock()
	p.outstanding++
	p.mu.Unlock()
}

// ConsumeSaved handles an AlertSaveResumeData: writes the resume blob to
// disk and decrements outstanding. A write failure is logged but still
// counts the request as resolved — an unwritten resume file just means a
// clean re-download on next restart, not a stuck shutdown.
func (p *Pipeline) ConsumeSaved(a engine.Alert) {
	p.decrement()
	if len(a.ResumeData) == 0 {
		return
	}
	if err := store.SaveFile(p.st.ResumeFile(a.InfoHash), a.ResumeData); err != nil {
		log.Printf("[resume] failed to write resume file for %s: %v", a.InfoHash, err)
	}
}

// ConsumeFailed handles an AlertSaveResumeDataFailed and decrements
// outstanding. A NotModified failure is expected (the engine skips writing
// when nothing changed) and is not logged as an error.
func (p *Pipeline) ConsumeFailed(a engine.Alert) {
	p.decrement()
	if a.NotModified {
		return
	}
	log.Printf("[resume] save failed for %s: %v", a.InfoHash, a.Err)
}

func (p *Pipeline) decrement() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outstanding > 0 {
		p.outstanding--
	}
}

// RemoveFile deletes the on-disk resume blob for ih, e.g. when a torrent is
// dropped from the session.
func (p *Pipeline) RemoveFile(ih codec.InfoHash) error {
	return p.st.RemoveResumeFile(ih)
}

// DrainOnShutdown requests a final resume-data save for every torrent the
// engine reports as needing one, then blocks — pumping and dispatching
// alerts in batches of AlertPumpBatch — until every outstanding save has
// resolved or ctx is done.
func (p *Pipeline) DrainOnShutdown(ctx context.Context, sess engine.Session, dispatch func(engine.Alert)) {
	for _, h := range sess.TorrentsNeedingResume() {
		p.Request(sess, h)
	}

	for p.Outstanding() > 0 {
		select {
		case <-ctx.Done():
			log.Printf("[resume] shutdown drain cancelled with %d save(s) outstanding", p.Outstanding())
			return
		default:
		}

		waitCtx, cancel := context.WithTimeout(ctx, DrainWait)
		ok := sess.WaitForAlert(waitCtx)
		cancel()
		if !ok {
			log.Printf("[resume] timed out waiting for resume saves, %d still outstanding", p.Outstanding())
			continue
		}

		alerts := sess.PopAlerts()
		for i, a := range alerts {
			dispatch(a)
			if i > 0 && i%AlertPumpBatch == 0 && p.Outstanding() == 0 {
				break
			}
		}
	}
}
