package sweeper

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/formpulse/automate/config"
	"github.com/formpulse/automate/logger"
	"github.com/formpulse/automate/model"
	"github.com/formpulse/automate/persistence"
	"github.com/formpulse/automate/util"
	"go.uber.org/zap"
)

// Retrier re-runs one due execution. Satisfied by *engine.Engine.
type Retrier interface {
	RetryExecution(ctx context.Context, execution *model.Execution) error
}

// Sweeper periodically picks up executions due for retry and feeds them back
// into the orchestrator. Overlapping sweeps are refused by an atomic flag; a
// sweep that finds another one in flight is a silent no-op.
type Sweeper struct {
	executions persistence.ExecutionDao
	retrier    Retrier
	interval   time.Duration
	batchSize  int
	maxRetries int
	running    atomic.Bool
	ticker     *util.TickWorker
	stop       chan struct{}
	wg         sync.WaitGroup
}

func NewSweeper(executions persistence.ExecutionDao, retrier Retrier, interval time.Duration, batchSize int) *Sweeper {
	if interval <= 0 {
		interval = config.RETRY_SWEEP_INTERVAL
	}
	if batchSize <= 0 {
		batchSize = config.RETRY_SWEEP_BATCH_SIZE
	}
	return &Sweeper{
		executions: executions,
		retrier:    retrier,
		interval:   interval,
		batchSize:  batchSize,
		maxRetries: config.MAX_RETRY_COUNT,
		stop:       make(chan struct{}),
	}
}

// Start launches the periodic sweep and runs one sweep shortly after startup
// to pick up work left over from a previous process.
func (s *Sweeper) Start() {
	s.ticker = util.NewTickWorker("retry-sweeper", s.interval, func() {
		s.ProcessRetries(context.Background())
	}, &s.wg)
	s.ticker.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-time.After(10 * time.Second):
			s.ProcessRetries(context.Background())
		case <-s.stop:
		}
	}()
}

func (s *Sweeper) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stop)
	s.wg.Wait()
}

// ProcessRetries runs one sweep: select due executions oldest first and retry
// each one, isolating per-execution failures from the rest of the batch.
// Returns the number of executions processed; 0 with no side effects when a
// previous sweep is still running.
func (s *Sweeper) ProcessRetries(ctx context.Context) int {
	if !s.running.CompareAndSwap(false, true) {
		return 0
	}
	defer s.running.Store(false)

	due, err := s.executions.GetDueRetries(ctx, time.Now(), s.maxRetries, s.batchSize)
	if err != nil {
		logger.Error("retry sweep query failed", zap.Error(err))
		return 0
	}
	if len(due) == 0 {
		return 0
	}
	logger.Info("retry sweep started", zap.Int("due", len(due)))

	processed := 0
	for i := range due {
		execution := due[i]
		if err := s.retrier.RetryExecution(ctx, &execution); err != nil {
			logger.Warn("retry attempt failed",
				zap.String("execution", execution.Id),
				zap.Int("retryCount", execution.RetryCount), zap.Error(err))
		}
		processed++
	}
	logger.Info("retry sweep finished", zap.Int("processed", processed))
	return processed
}
