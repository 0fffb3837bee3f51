package interview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/krshsl/nora/models"
)

// FeedbackEvent is the observable outcome of one background feedback job
type FeedbackEvent struct {
	InterviewID string
	UserID      string
	Feedback    *models.Feedback
	Err         error
	Duration    time.Duration
}

// FeedbackListener receives every FeedbackEvent. Listeners run on the worker goroutine
// and must not block.
type FeedbackListener func(FeedbackEvent)

type feedbackJob struct {
	interviewID string
	userID      string
}

type generateFunc func(ctx context.Context, interviewID string) (*models.Feedback, error)

// FeedbackQueue runs feedback generation off the request path. Jobs that do not fit the
// bounded buffer are dropped and left for the sweeper.
type FeedbackQueue struct {
	generate    generateFunc
	jobs        chan feedbackJob
	logger      *slog.Logger
	workerCount int
	jobTimeout  time.Duration

	mu        sync.Mutex
	pending   map[string]struct{}
	listeners []FeedbackListener
	started   bool
	closed    bool

	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newFeedbackQueue(generate generateFunc, logger *slog.Logger, workerCount, size int, jobTimeout time.Duration) *FeedbackQueue {
	if workerCount <= 0 {
		workerCount = 2
	}
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedbackQueue{
		generate:    generate,
		jobs:        make(chan feedbackJob, size),
		logger:      logger,
		workerCount: workerCount,
		jobTimeout:  jobTimeout,
		pending:     make(map[string]struct{}),
		stop:        make(chan struct{}),
	}
}

// Subscribe registers a listener for subsequent events
func (q *FeedbackQueue) Subscribe(l FeedbackListener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, l)
}

// Start launches the worker goroutines
func (q *FeedbackQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Stop signals workers to stop, cancels in-flight jobs and waits for them
func (q *FeedbackQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.stop)
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue schedules feedback generation for an interview. It never blocks and reports
// whether the job is queued.
func (q *FeedbackQueue) Enqueue(interviewID, userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if _, ok := q.pending[interviewID]; ok {
		return true
	}
	select {
	case q.jobs <- feedbackJob{interviewID: interviewID, userID: userID}:
		q.pending[interviewID] = struct{}{}
		return true
	default:
		q.logger.Warn("Feedback queue full, dropping job", "interview_id", interviewID)
		return false
	}
}

// Pending returns the number of queued or running jobs
func (q *FeedbackQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *FeedbackQueue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			q.logger.Debug("Feedback worker stopping", "worker", id)
			return
		case job := <-q.jobs:
			q.run(ctx, job)
		}
	}
}

func (q *FeedbackQueue) run(ctx context.Context, job feedbackJob) {
	if q.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.jobTimeout)
		defer cancel()
	}

	started := time.Now()
	fb, err := q.generate(ctx, job.interviewID)
	event := FeedbackEvent{
		InterviewID: job.interviewID,
		UserID:      job.userID,
		Feedback:    fb,
		Err:         err,
		Duration:    time.Since(started),
	}
	if err != nil {
		q.logger.Error("Background feedback generation failed", "interview_id", job.interviewID, "error", err)
	} else {
		q.logger.Info("Background feedback generated", "interview_id", job.interviewID, "duration", event.Duration)
	}

	q.mu.Lock()
	delete(q.pending, job.interviewID)
	listeners := append([]FeedbackListener(nil), q.listeners...)
	q.mu.Unlock()

	for _, l := range listeners {
		l(event)
	}
}
