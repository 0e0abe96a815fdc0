package util

import (
	"sync"
	"time"

	"github.com/formpulse/automate/logger"
	"go.uber.org/zap"
)

// TickWorker runs fn on a fixed interval until stopped.
type TickWorker struct {
	name         string
	tickInterval time.Duration
	stop         chan struct{}
	wg           *sync.WaitGroup
	fn           func()
	running      bool
}

func NewTickWorker(name string, interval time.Duration, fn func(), wg *sync.WaitGroup) *TickWorker {
	return &TickWorker{
		name:         name,
		tickInterval: interval,
		stop:         make(chan struct{}),
		fn:           fn,
		wg:           wg,
	}
}

func (tw *TickWorker) Start() {
	ticker := time.NewTicker(tw.tickInterval)
	tw.wg.Add(1)
	go func() {
		defer tw.wg.Done()
		for {
			select {
			case <-ticker.C:
				tw.fn()
			case <-tw.stop:
				logger.Info("stopping tick worker", zap.String("worker", tw.name))
				ticker.Stop()
				return
			}
		}
	}()
	tw.running = true
	logger.Info("tick worker started", zap.String("worker", tw.name))
}

func (tw *TickWorker) Stop() {
	if !tw.running {
		return
	}
	tw.running = false
	close(tw.stop)
}

func (tw *TickWorker) IsRunning() bool {
	return tw.running
}
