package journal

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrQueueFull   = errors.New("journal queue is full")
	ErrQueueClosed = errors.New("journal queue is closed")
)

const recordTimeout = 30 * time.Second

// Queue hands entries to a pool of workers so recording never blocks a scan.
type Queue struct {
	ch     chan Entry
	rec    Recorder
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewQueue(rec Recorder, workers int, size int) *Queue {
	if workers < 1 {
		workers = 1
	}
	q := &Queue{ch: make(chan Entry, size), rec: rec}
	q.wg.Add(workers)
	for id := 0; id < workers; id++ {
		go q.work(id)
	}
	return q
}

func (q *Queue) work(id int) {
	defer q.wg.Done()
	for e := range q.ch {
		log.Debugf("[W%d]: recording %s", id, e.SessionId)
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := q.rec.Record(ctx, e); err != nil {
			log.Errorf("[W%d]: session %s cannot be recorded: %v", id, e.SessionId, err)
		}
		cancel()
	}
}

// Record enqueues e. The context is not used, entries outlive the caller.
func (q *Queue) Record(_ context.Context, e Entry) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close waits for the queued entries to be recorded.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

var _ Recorder = (*Queue)(nil)
