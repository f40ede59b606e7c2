// Package scheduler fairly interleaves archive-task dispatch across
// priority levels so a backlog of low-priority work never starves
// higher-priority catch-up tasks, and vice versa.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marketdata/ingestpipe/internal/logging"
	"github.com/marketdata/ingestpipe/internal/model"
)

// DispatchInterval is the pause between dispatching individual tasks
// within a round, spreading fetch-worker load instead of bursting.
const DispatchInterval = 200 * time.Millisecond

// RoundInterval is the pause between dispatch rounds once every priority
// level has been served.
const RoundInterval = 2 * time.Second

// DispatchFunc hands a task off to a worker. It should not block for
// long; the scheduler's pacing assumes dispatch is effectively async.
type DispatchFunc func(model.ArchiveTask)

// FairScheduler holds one FIFO queue per priority level and serves one
// task from each non-empty level per round, round robin, so low-priority
// time frames still make progress alongside high-priority ones.
type FairScheduler struct {
	mu       sync.Mutex
	queues   map[int][]model.ArchiveTask
	inFlight map[string]bool
}

// NewFairScheduler creates an empty scheduler.
func NewFairScheduler() *FairScheduler {
	return &FairScheduler{
		queues:   make(map[int][]model.ArchiveTask),
		inFlight: make(map[string]bool),
	}
}

// Enqueue adds a task to its priority level's queue. It returns false
// without enqueuing if a task with the same key is already queued or
// dispatched and not yet marked done, preventing duplicate concurrent
// work on the same symbol/time-frame/direction.
func (s *FairScheduler) Enqueue(task model.ArchiveTask, priority int) bool {
	key := task.Key()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[key] {
		return false
	}
	s.inFlight[key] = true
	s.queues[priority] = append(s.queues[priority], task)
	return true
}

// Done releases a task's key so a future task for the same series can be
// enqueued again. Callers must call this exactly once per dispatched
// task, on both success and failure.
func (s *FairScheduler) Done(task model.ArchiveTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, task.Key())
}

// Run dispatches queued tasks in priority-fair round-robin order until
// ctx is cancelled or a round dispatches nothing, at which point the
// queues are empty and the scheduler returns.
func (s *FairScheduler) Run(ctx context.Context, dispatch DispatchFunc) {
	log := logging.Default().WithComponent("scheduler")

	for {
		dispatched := s.runRound(ctx, dispatch)
		if dispatched == 0 {
			log.Debug("dispatch round produced no work, terminating")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(RoundInterval):
		}
	}
}

func (s *FairScheduler) runRound(ctx context.Context, dispatch DispatchFunc) int {
	dispatched := 0
	for _, priority := range s.activePriorities() {
		task, ok := s.pop(priority)
		if !ok {
			continue
		}
		dispatch(task)
		dispatched++

		select {
		case <-ctx.Done():
			return dispatched
		case <-time.After(DispatchInterval):
		}
	}
	return dispatched
}

func (s *FairScheduler) activePriorities() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	priorities := make([]int, 0, len(s.queues))
	for p, q := range s.queues {
		if len(q) > 0 {
			priorities = append(priorities, p)
		}
	}
	sort.Ints(priorities)
	return priorities
}

func (s *FairScheduler) pop(priority int) (model.ArchiveTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[priority]
	if len(q) == 0 {
		return model.ArchiveTask{}, false
	}
	task := q[0]
	s.queues[priority] = q[1:]
	return task, true
}

// QueueDepth reports how many tasks are waiting across all priority
// levels, for admin-API status reporting.
func (s *FairScheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, q := range s.queues {
		total += len(q)
	}
	return total
}
