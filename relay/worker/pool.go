// Package worker provides an asynchronous worker pool for running memory
// compactions off the relay's streaming hot path.
//
// The pool decouples compaction from the HTTP response so the terminal SSE
// event never waits on a summarization call. A per-conversation single-flight
// guard prevents duplicate concurrent compactions of the same conversation.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/papercompute/fable/pkg/memory"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Compactor runs a compaction for one conversation. Satisfied by
// *memory.Service.
type Compactor interface {
	CompactConversation(ctx context.Context, conversationID string) (*memory.CompactionResult, error)
}

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	ConversationID string

	// Reason records why the compaction was scheduled ("cadence",
	// "overdue", "manual"), for logging only.
	Reason string
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Compactor runs the actual compaction.
	Compactor Compactor

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes compaction jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger

	// mu guards inflight, the per-conversation single-flight set.
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	wp := &Pool{
		config:   c,
		queue:    make(chan Job, c.QueueSize),
		logger:   c.Logger,
		inflight: make(map[string]struct{}),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := uint(0); i < c.NumWorkers; i++ {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a compaction job. Returns false when the conversation
// already has a compaction in flight, or the queue is full and the job is
// dropped. Dropped jobs are safe: the overdue rule re-triggers on a later
// turn.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.Lock()
	if _, busy := p.inflight[job.ConversationID]; busy {
		p.mu.Unlock()
		p.logger.Debug("compaction already in flight, skipping",
			zap.String("conversation_id", job.ConversationID),
			zap.String("reason", job.Reason),
		)
		return false
	}
	p.inflight[job.ConversationID] = struct{}{}
	p.mu.Unlock()

	select {
	case p.queue <- job:
		p.logger.Debug("compaction queued",
			zap.String("conversation_id", job.ConversationID),
			zap.String("reason", job.Reason),
		)
		return true
	default:
		p.release(job.ConversationID)
		p.logger.Error("compaction not queued, queue full, job dropped",
			zap.String("conversation_id", job.ConversationID),
			zap.String("reason", job.Reason),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

func (p *Pool) release(conversationID string) {
	p.mu.Lock()
	delete(p.inflight, conversationID)
	p.mu.Unlock()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("compaction worker stopped", zap.Uint("worker_id", id))
}

func (p *Pool) processJob(job Job) {
	defer p.release(job.ConversationID)

	result, err := p.config.Compactor.CompactConversation(context.Background(), job.ConversationID)
	if err != nil {
		p.logger.Error("async compaction failed",
			zap.String("conversation_id", job.ConversationID),
			zap.String("reason", job.Reason),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("compaction complete",
		zap.String("conversation_id", job.ConversationID),
		zap.String("reason", job.Reason),
		zap.Int("turns_compacted", result.TurnsCompacted),
	)
}
