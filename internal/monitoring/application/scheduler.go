package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task is a unit of periodic work.
type Task struct {
	Name   string
	Period time.Duration
	Run    func(ctx context.Context) error
}

// Scheduler runs each task in its own loop until the context is cancelled.
// A task runs once immediately and then on every tick; a failing or panicking
// run is logged and the loop continues.
type Scheduler struct {
	tasks  []Task
	logger *slog.Logger
}

// NewScheduler constructs a scheduler.
func NewScheduler(tasks []Task, logger *slog.Logger) (*Scheduler, error) {
	if len(tasks) == 0 {
		return nil, errors.New("scheduler: no tasks")
	}
	for _, task := range tasks {
		if task.Run == nil {
			return nil, fmt.Errorf("scheduler: task %q has no run func", task.Name)
		}
		if task.Period <= 0 {
			return nil, fmt.Errorf("scheduler: task %q has non-positive period", task.Name)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{tasks: tasks, logger: logger}, nil
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, task := range s.tasks {
		task := task
		g.Go(func() error {
			s.loop(ctx, task)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, task Task) {
	s.logger.Debug("task started", "task", task.Name, "period", task.Period)
	s.runOnce(ctx, task)

	ticker := time.NewTicker(task.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, task)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, task Task) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked", "task", task.Name, "panic", r)
		}
	}()
	if err := task.Run(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("task failed", "task", task.Name, "error", err)
	}
}
