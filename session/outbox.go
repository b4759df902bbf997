package session

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"flowboard-api/domain"
	"flowboard-api/storage"
)

// The outbox is the write-behind half of the optimistic mutation contract:
// in-memory state is already updated by the time a job lands here, jobs are
// delivered at least once, and a failed write never rolls the state back.
// Remote writes are idempotent overwrites by key, so redelivery is safe.

type opKind int

const (
	opBoards opKind = iota
	opCommentUpsert
	opCommentDelete
	opCommentBulk
)

func (k opKind) String() string {
	switch k {
	case opBoards:
		return "boards"
	case opCommentUpsert:
		return "comment-upsert"
	case opCommentDelete:
		return "comment-delete"
	case opCommentBulk:
		return "comment-bulk"
	}
	return "unknown"
}

// writeJob captures everything needed to replay one persistence write. The
// target backend is pinned at enqueue time so a sign-out does not redirect
// writes that were already scheduled.
type writeJob struct {
	backend   storage.Backend
	kind      opKind
	boards    domain.UserBoards
	boardID   string
	comment   domain.Comment
	commentID int
	comments  []domain.Comment
	attempt   int
	enqueued  time.Time
}

// OutboxConfig tunes the write-behind queue.
type OutboxConfig struct {
	BufferSize     int
	WorkerCount    int
	WriteTimeout   time.Duration
	HandoffTimeout time.Duration
	RetryInitial   time.Duration
	RetryMax       time.Duration
}

func (c OutboxConfig) withDefaults() OutboxConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 2
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.HandoffTimeout <= 0 {
		c.HandoffTimeout = 25 * time.Millisecond
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 250 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 30 * time.Second
	}
	return c
}

type outbox struct {
	cfg      OutboxConfig
	logger   *log.Logger
	workCh   chan *writeJob
	stopCh   chan struct{}
	workerWG sync.WaitGroup
	retryWG  sync.WaitGroup
	inflight sync.WaitGroup

	delivered atomic.Uint64
	started   time.Time

	mu      sync.Mutex
	closing bool
}

func newOutbox(cfg OutboxConfig, logger *log.Logger) *outbox {
	if logger == nil {
		panic("outbox logger is required")
	}
	o := &outbox{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		stopCh:  make(chan struct{}),
		started: time.Now().UTC(),
	}
	o.workCh = make(chan *writeJob, o.cfg.BufferSize)
	for i := 0; i < o.cfg.WorkerCount; i++ {
		o.workerWG.Add(1)
		go o.worker()
	}
	return o
}

// enqueue hands the job to a worker, falling back to an inline write when
// the buffer stays saturated past the handoff timeout. The caller never
// sees an error: failures are logged and retried.
func (o *outbox) enqueue(job *writeJob) {
	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		o.logger.Warnf("outbox closed, dropping %s write", job.kind)
		return
	}
	job.enqueued = time.Now()
	o.inflight.Add(1)
	o.mu.Unlock()

	select {
	case o.workCh <- job:
		return
	default:
	}

	timer := time.NewTimer(o.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case o.workCh <- job:
	case <-timer.C:
		o.logger.Warnf("outbox buffer saturated, writing %s inline", job.kind)
		o.perform(job)
	case <-o.stopCh:
		o.perform(job)
	}
}

func (o *outbox) worker() {
	defer o.workerWG.Done()
	for job := range o.workCh {
		o.perform(job)
	}
}

func (o *outbox) perform(job *writeJob) {
	err := o.execute(job)
	if err == nil {
		o.delivered.Add(1)
		o.inflight.Done()
		return
	}

	job.attempt++
	o.logger.WithError(err).Errorf("%s write to %s storage failed, attempt=%d",
		job.kind, job.backend.Source(), job.attempt)
	o.scheduleRetry(job)
}

func (o *outbox) execute(job *writeJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.WriteTimeout)
	defer cancel()

	switch job.kind {
	case opBoards:
		return job.backend.StoreUserBoards(ctx, job.boards)
	case opCommentUpsert:
		return job.backend.StoreComment(ctx, job.boardID, job.comment)
	case opCommentDelete:
		return job.backend.DeleteComment(ctx, job.commentID)
	case opCommentBulk:
		return job.backend.StoreComments(ctx, job.boardID, job.comments)
	}
	return nil
}

func (o *outbox) scheduleRetry(job *writeJob) {
	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		o.abandon(job)
		return
	}
	delay := exponentialBackoff(job.attempt, o.cfg.RetryInitial, o.cfg.RetryMax)
	o.retryWG.Add(1)
	o.mu.Unlock()
	timer := time.NewTimer(delay)
	go func() {
		defer o.retryWG.Done()
		defer timer.Stop()
		select {
		case <-timer.C:
			select {
			case o.workCh <- job:
			case <-o.stopCh:
				o.abandon(job)
			}
		case <-o.stopCh:
			o.abandon(job)
		}
	}()
}

func (o *outbox) abandon(job *writeJob) {
	o.logger.Errorf("outbox shutting down, abandoning %s write after %d attempts", job.kind, job.attempt)
	o.inflight.Done()
}

// flush blocks until every enqueued job has been delivered or abandoned.
func (o *outbox) flush() {
	o.inflight.Wait()
}

// close drains buffered jobs and stops the workers. Jobs waiting on a retry
// timer are abandoned.
func (o *outbox) close() {
	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		return
	}
	o.closing = true
	o.mu.Unlock()

	close(o.stopCh)
	o.retryWG.Wait()
	close(o.workCh)
	o.workerWG.Wait()
}

// OutboxStats is a point-in-time view of the write-behind queue.
type OutboxStats struct {
	Buffered  int       `json:"buffered"`
	Delivered uint64    `json:"delivered"`
	StartedAt time.Time `json:"startedAt"`
	DrainRate float64   `json:"drainRatePerSecond"`
}

func (o *outbox) stats() OutboxStats {
	delivered := o.delivered.Load()
	elapsed := time.Since(o.started)
	rps := 0.0
	if elapsed > 0 {
		rps = float64(delivered) / elapsed.Seconds()
	}
	return OutboxStats{
		Buffered:  len(o.workCh),
		Delivered: delivered,
		StartedAt: o.started,
		DrainRate: rps,
	}
}

func exponentialBackoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 0 {
		if initial <= 0 {
			return time.Second
		}
		return initial
	}
	if initial <= 0 {
		initial = time.Second
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	backoff := float64(initial) * math.Pow(2, float64(attempt-1))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	jitter := 0.2 * backoff
	return time.Duration(backoff + (rand.Float64()-0.5)*2*jitter)
}
