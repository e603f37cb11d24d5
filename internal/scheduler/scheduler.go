// Package scheduler runs the background maintenance loop: hot-to-
// durable reconciliation, expired-entry cleanup, transaction pruning
// and catalog reloads.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// tick is the scheduler's base resolution. Task intervals round up to
// a multiple of it.
const tick = 5 * time.Second

// Task is one registered unit of background work.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives registered tasks off a single ticker. Each task
// keeps its own countdown, starting at zero so every task runs on the
// first tick after Start. A failing or panicking task is logged and
// rescheduled; it never stops the loop or its neighbors.
type Scheduler struct {
	tasks []Task
	res   time.Duration
	log   *logrus.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New creates an empty scheduler.
func New(log *logrus.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		res:    tick,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Register adds a task. Must be called before Start.
func (s *Scheduler) Register(name string, interval time.Duration, run func(ctx context.Context) error) {
	s.tasks = append(s.tasks, Task{Name: name, Interval: interval, Run: run})
}

// Start launches the loop.
func (s *Scheduler) Start() {
	go s.run()
	s.log.WithField("tasks", len(s.tasks)).Info("[Scheduler] Started")
}

// Stop cancels the task context, halts the loop and waits for an
// in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		close(s.stopCh)
		<-s.doneCh
		s.log.Info("[Scheduler] Stopped")
	})
}

func (s *Scheduler) run() {
	defer close(s.doneCh)

	remaining := make([]time.Duration, len(s.tasks))

	ticker := time.NewTicker(s.res)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for i := range s.tasks {
				remaining[i] -= s.res
				if remaining[i] > 0 {
					continue
				}
				remaining[i] = s.tasks[i].Interval
				s.runTask(s.tasks[i])
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) runTask(t Task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{
				"task":  t.Name,
				"panic": r,
			}).Error("[Scheduler] Task panicked")
		}
	}()

	start := time.Now()
	if err := t.Run(s.ctx); err != nil {
		s.log.WithField("task", t.Name).WithError(err).Error("[Scheduler] Task failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"task":    t.Name,
		"elapsed": time.Since(start),
	}).Debug("[Scheduler] Task completed")
}
