package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
	err     error

	mu        sync.Mutex
	olderThan time.Duration
	limit     int
}

func (f *fakeSweeper) SweepStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.olderThan, f.limit = olderThan, limit
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 3, f.err
}

func TestRunPassesSettings(t *testing.T) {
	s := &fakeSweeper{}
	NewPaymentSweepJob(s, 15*time.Minute).Run()

	assert.Equal(t, int32(1), s.calls.Load())
	assert.Equal(t, 15*time.Minute, s.olderThan)
	assert.Equal(t, sweepBatch, s.limit)
}

func TestRunLogsErrors(t *testing.T) {
	s := &fakeSweeper{err: errors.New("store down")}
	job := NewPaymentSweepJob(s, time.Minute)

	job.Run()
	job.Run()
	assert.Equal(t, int32(2), s.calls.Load(), "a failed run does not block the next")
}

func TestScheduledRunsDoNotOverlap(t *testing.T) {
	s := &fakeSweeper{release: make(chan struct{}), started: make(chan struct{}, 1)}
	c, err := Schedule("@every 1h", NewPaymentSweepJob(s, time.Minute))
	require.NoError(t, err)
	defer c.Stop()

	entries := c.Entries()
	require.Len(t, entries, 1)
	wrapped := entries[0].WrappedJob

	done := make(chan struct{})
	go func() {
		wrapped.Run()
		close(done)
	}()
	<-s.started

	wrapped.Run()
	assert.Equal(t, int32(1), s.calls.Load(), "tick during a running sweep is skipped")

	close(s.release)
	<-done

	s.release = nil
	wrapped.Run()
	assert.Equal(t, int32(2), s.calls.Load(), "next tick runs once the sweep finished")
}

func TestSchedule(t *testing.T) {
	job := NewPaymentSweepJob(&fakeSweeper{}, time.Minute)

	c, err := Schedule("@every 1h", job)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
	<-c.Stop().Done()

	_, err = Schedule("not a cron spec", job)
	assert.Error(t, err)
}
