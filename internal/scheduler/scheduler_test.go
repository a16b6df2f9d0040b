package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEveryRunsPerTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(nil)
	tk := NewManualTicker()
	var runs atomic.Int32
	done := make(chan struct{}, 10)

	s.Every(ctx, "count", tk, true, func(context.Context) error {
		runs.Add(1)
		done <- struct{}{}
		return nil
	})

	<-done
	tk.Tick(time.Now())
	<-done
	tk.Tick(time.Now())
	<-done

	cancel()
	s.Wait()
	assert.EqualValues(t, 3, runs.Load())
}

func TestEverySurvivesErrorsAndPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(nil)
	tk := NewManualTicker()
	var runs atomic.Int32
	done := make(chan struct{}, 10)

	s.Every(ctx, "flaky", tk, false, func(context.Context) error {
		n := runs.Add(1)
		defer func() { done <- struct{}{} }()
		if n == 1 {
			panic("boom")
		}
		return errors.New("fail")
	})

	tk.Tick(time.Now())
	<-done
	tk.Tick(time.Now())
	<-done

	cancel()
	s.Wait()
	assert.EqualValues(t, 2, runs.Load())
}

func TestManualTickerStopUnblocks(t *testing.T) {
	tk := NewManualTicker()
	tk.Stop()
	tk.Stop()
	tk.Tick(time.Now())
}
