// Package reftimer provides a reference transport.PeriodicTimer backed by
// time.Ticker. The teacher's warming/cron.go drives scheduled jobs off
// Encore's cron package, which only supports wall-clock cron expressions,
// not arbitrary millisecond intervals; its shape (a named job owning a
// stop channel and a WaitGroup'd goroutine) is carried over here without
// the Encore dependency.
package reftimer

import (
	"sync"
	"time"

	"github.com/o-tero/service-control-client/transport"
)

// Factory implements transport.PeriodicTimer using time.Ticker.
type Factory struct{}

// New returns a ticker-backed PeriodicTimer factory.
func New() Factory {
	return Factory{}
}

// Start implements transport.PeriodicTimer.
func (Factory) Start(intervalMillis int, callback func()) transport.StoppableTimer {
	t := &tickerTimer{
		ticker: time.NewTicker(time.Duration(intervalMillis) * time.Millisecond),
		stop:   make(chan struct{}),
	}
	t.wg.Add(1)
	go t.run(callback)
	return t
}

type tickerTimer struct {
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func (t *tickerTimer) run(callback func()) {
	defer t.wg.Done()
	for {
		select {
		case <-t.ticker.C:
			callback()
		case <-t.stop:
			return
		}
	}
}

// Stop implements transport.StoppableTimer. It blocks until the
// background goroutine has exited, so a caller that calls Stop followed
// by a resource teardown never races the final callback invocation.
func (t *tickerTimer) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.stop)
	})
	t.wg.Wait()
}
