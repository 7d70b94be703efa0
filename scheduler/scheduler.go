package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/inscription-bridge/errs"
	"github.com/TEENet-io/inscription-bridge/metrics"
)

// Appender is what a task handler gets to queue follow-up work.
type Appender interface {
	Append(ctx context.Context, t *Task) (uint32, error)
	AppendMany(ctx context.Context, ts []*Task) ([]uint32, error)
}

// Handler executes one task. Returning an error marked with errs.Permanent
// fails the task for good regardless of its retry policy.
type Handler func(ctx context.Context, t *Task, appender Appender) error

// CompletionCallback observes terminal failures and every timeout or panic.
type CompletionCallback func(t *Task, err error)

type Clock func() time.Time

type Config struct {
	// A handler running longer than this is recorded as TimeoutOrPanic.
	ExecutionTimeout time.Duration
}

// Scheduler runs durable tasks one at a time. The mutex only covers store
// writes, it is never held while a handler runs, so handlers can append.
type Scheduler struct {
	cfg      *Config
	store    *TaskSQLiteStorage
	handler  Handler
	callback CompletionCallback
	clock    Clock

	mu sync.Mutex
}

func New(cfg *Config, store *TaskSQLiteStorage, handler Handler) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		handler:  handler,
		callback: LogCompletion,
		clock:    time.Now,
	}
}

func (s *Scheduler) WithClock(c Clock) *Scheduler {
	s.clock = c
	return s
}

// WithCallback replaces the default logging callback. nil disables it.
func (s *Scheduler) WithCallback(cb CompletionCallback) *Scheduler {
	s.callback = cb
	return s
}

// LogCompletion is the default completion callback.
func LogCompletion(t *Task, err error) {
	ts := time.Now().UTC().Format(time.RFC3339)
	if t.Status == TimeoutOrPanic || errors.Is(err, errs.TimeoutOrPanic) {
		logger.Errorf("task #%d panicked at %s: %v", t.ID, ts, err)
		return
	}
	logger.Errorf("task #%d execution failed: %v at %s", t.ID, err, ts)
}

// Recover puts tasks left running by a previous process back in the queue.
func (s *Scheduler) Recover(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.store.ResetRunning(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.WithField("count", n).Warn("re-queued tasks interrupted by a restart")
	}
	return nil
}

func (s *Scheduler) Append(ctx context.Context, t *Task) (uint32, error) {
	ids, err := s.AppendMany(ctx, []*Task{t})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func (s *Scheduler) AppendMany(ctx context.Context, ts []*Task) ([]uint32, error) {
	if len(ts) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	for _, t := range ts {
		if t.ScheduledAt.IsZero() {
			t.ScheduledAt = now
		}
	}
	ids, err := s.store.Insert(ctx, ts)
	if err != nil {
		return nil, err
	}
	metrics.TaskQueueSize.Add(float64(len(ids)))
	return ids, nil
}

func (s *Scheduler) Get(ctx context.Context, id uint32) (*Task, bool, error) {
	return s.store.Get(ctx, id)
}

// Pending returns the tasks not yet in a terminal state.
func (s *Scheduler) Pending(ctx context.Context) ([]*Task, error) {
	return s.store.Unfinished(ctx)
}

func (s *Scheduler) HasUnfinished(ctx context.Context, kind Kind) (bool, error) {
	n, err := s.store.CountUnfinished(ctx, kind)
	return n > 0, err
}

// Run executes the tasks that are due at the start of the call, in id order.
// Handler failures only change the task state; the returned error collects
// storage failures and corrupt records.
func (s *Scheduler) Run(ctx context.Context) error {
	due, runErr := s.store.Due(ctx, s.clock())
	if runErr != nil {
		if !errors.Is(runErr, errs.CorruptRecord) {
			return runErr
		}
		metrics.CorruptRecords.WithLabelValues("task").Inc()
		logger.Errorf("skipping corrupt tasks: err=%v", runErr)
	}

	for _, t := range due {
		if err := ctx.Err(); err != nil {
			return errors.CombineErrors(runErr, err)
		}
		if err := s.runOne(ctx, t); err != nil {
			runErr = errors.CombineErrors(runErr, err)
		}
	}

	if unfinished, err := s.store.Unfinished(ctx); err == nil {
		metrics.TaskQueueSize.Set(float64(len(unfinished)))
	}
	return runErr
}

// Loop calls Run every interval until ctx is done. prepare, if set, runs
// before each Run.
func (s *Scheduler) Loop(ctx context.Context, interval time.Duration, prepare func(context.Context) error) error {
	logger.Debug("starting task scheduler")
	defer logger.Debug("stopping task scheduler")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if prepare != nil {
				if err := prepare(ctx); err != nil {
					logger.Errorf("failed to prepare scheduler run: err=%v", err)
				}
			}
			if err := s.Run(ctx); err != nil {
				logger.Errorf("scheduler run finished with errors: err=%v", err)
			}
		}
	}
}

func (s *Scheduler) runOne(ctx context.Context, t *Task) error {
	t.Status = Running
	if err := s.update(ctx, t); err != nil {
		return err
	}

	start := time.Now()
	aborted, execErr := s.execute(ctx, t)
	metrics.TaskExecutionTime.WithLabelValues(string(t.Payload.Kind)).Observe(time.Since(start).Seconds())

	if aborted {
		// shutting down, not the task's fault
		t.Status = Pending
		return errors.CombineErrors(ctx.Err(), s.update(context.WithoutCancel(ctx), t))
	}

	if execErr == nil {
		t.Status = Completed
		metrics.TasksExecuted.WithLabelValues(string(t.Payload.Kind), string(Completed)).Inc()
		return s.delete(ctx, t.ID)
	}

	t.Failures = saturatingInc(t.Failures)
	t.LastError = execErr.Error()
	timeoutOrPanic := errors.Is(execErr, errs.TimeoutOrPanic)
	retry := !errs.IsPermanent(execErr) && t.Retry.CanRetry(t.Failures)

	logger.WithFields(logger.Fields{
		"task":     t.ID,
		"kind":     t.Payload.Kind,
		"failures": t.Failures,
		"retry":    retry,
	}).Warnf("task failed: %v", execErr)

	switch {
	case retry:
		t.Status = Pending
		t.ScheduledAt = s.clock().Add(t.Backoff.Delay(t.Failures))
		status := Failed
		if timeoutOrPanic {
			status = TimeoutOrPanic
			observed := *t
			observed.Status = TimeoutOrPanic
			s.notify(&observed, execErr)
		}
		metrics.TasksExecuted.WithLabelValues(string(t.Payload.Kind), string(status)).Inc()
		return s.update(ctx, t)
	case timeoutOrPanic:
		t.Status = TimeoutOrPanic
	default:
		t.Status = Failed
	}

	metrics.TasksExecuted.WithLabelValues(string(t.Payload.Kind), string(t.Status)).Inc()
	s.notify(t, execErr)
	return s.delete(ctx, t.ID)
}

// execute runs the handler with the execution timeout and turns a panic or a
// timeout into an errs.TimeoutOrPanic error. aborted is set when ctx itself
// was cancelled. A timed out handler gets a cancelled context and execute
// waits for it to return.
func (s *Scheduler) execute(ctx context.Context, t *Task) (aborted bool, err error) {
	execCtx := ctx
	if s.cfg.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, s.cfg.ExecutionTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Debugf("task #%d panic stack: %s", t.ID, debug.Stack())
				done <- errors.Mark(errors.Newf("task #%d panicked: %v", t.ID, r), errs.TimeoutOrPanic)
			}
		}()
		tc := *t
		err := s.handler(execCtx, &tc, s)
		if err != nil {
			err = errors.Mark(errors.Wrapf(err, "task #%d", t.ID), errs.TaskExecutionFailed)
		}
		done <- err
	}()

	select {
	case err := <-done:
		switch {
		case err == nil:
			return false, nil
		case ctx.Err() != nil:
			return true, ctx.Err()
		case execCtx.Err() != nil:
			return false, errors.Mark(err, errs.TimeoutOrPanic)
		}
		return false, err
	case <-execCtx.Done():
		// tasks run one at a time, so the handler has to exit before the
		// next task or a retry of this one can start
		late := <-done
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		if late != nil {
			logger.Warnf("task #%d returned after its timeout: err=%v", t.ID, late)
		}
		return false, errors.Mark(errors.Newf("task #%d exceeded %s", t.ID, s.cfg.ExecutionTimeout), errs.TimeoutOrPanic)
	}
}

func (s *Scheduler) notify(t *Task, err error) {
	if s.callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("completion callback panicked on task #%d: %v", t.ID, r)
		}
	}()
	s.callback(t, err)
}

func (s *Scheduler) update(ctx context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Update(ctx, t)
}

func (s *Scheduler) delete(ctx context.Context, id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(ctx, id)
}

func saturatingInc(n uint32) uint32 {
	if n == ^uint32(0) {
		return n
	}
	return n + 1
}
