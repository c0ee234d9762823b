package application

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsImmediatelyAndRepeats(t *testing.T) {
	var fast, failing, panicking atomic.Int32
	tasks := []Task{
		{Name: "fast", Period: 10 * time.Millisecond, Run: func(context.Context) error {
			fast.Add(1)
			return nil
		}},
		{Name: "failing", Period: 10 * time.Millisecond, Run: func(context.Context) error {
			failing.Add(1)
			return errBoom
		}},
		{Name: "panicking", Period: 10 * time.Millisecond, Run: func(context.Context) error {
			panicking.Add(1)
			panic("kaboom")
		}},
	}
	s, err := NewScheduler(tasks, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		return fast.Load() >= 3 && failing.Load() >= 3 && panicking.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerFirstRunIsImmediate(t *testing.T) {
	ran := make(chan struct{}, 1)
	s, err := NewScheduler([]Task{{Name: "slow", Period: time.Hour, Run: func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}}}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task did not run before first tick")
	}
}

func TestNewSchedulerValidates(t *testing.T) {
	_, err := NewScheduler(nil, nil)
	assert.Error(t, err)
	_, err = NewScheduler([]Task{{Name: "x", Period: time.Second}}, nil)
	assert.Error(t, err)
	_, err = NewScheduler([]Task{{Name: "x", Run: func(context.Context) error { return nil }}}, nil)
	assert.Error(t, err)
}

func TestChannelTaskDefaultsPeriod(t *testing.T) {
	m, _ := newTestMonitor(t, &fakeTelemetry{}, newFakeRegistry(), nil)
	task := m.ChannelTask(shutterChannel())
	assert.Equal(t, "channel:dome-shutter", task.Name)
	assert.Equal(t, time.Minute, task.Period)
	require.NoError(t, task.Run(context.Background()))
}
