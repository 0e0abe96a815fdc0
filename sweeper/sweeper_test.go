package sweeper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/formpulse/automate/model"
	"github.com/stretchr/testify/require"
)

type stubExecutionDao struct {
	mu      sync.Mutex
	due     []model.Execution
	queries int32
}

func (d *stubExecutionDao) GetDueRetries(ctx context.Context, now time.Time, maxRetries int, limit int) ([]model.Execution, error) {
	atomic.AddInt32(&d.queries, 1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.due) > limit {
		return d.due[:limit], nil
	}
	return d.due, nil
}

func (d *stubExecutionDao) Create(ctx context.Context, execution *model.Execution) error { return nil }
func (d *stubExecutionDao) Get(ctx context.Context, id string) (*model.Execution, error) {
	return nil, nil
}
func (d *stubExecutionDao) ListByWorkflow(ctx context.Context, workflowId string, limit int) ([]model.Execution, error) {
	return nil, nil
}
func (d *stubExecutionDao) MarkCompleted(ctx context.Context, id string, result map[string]any, completedAt time.Time, durationMs int64) error {
	return nil
}
func (d *stubExecutionDao) MarkFailed(ctx context.Context, id string, errMsg string, errStack string, completedAt time.Time, durationMs int64) error {
	return nil
}
func (d *stubExecutionDao) MarkExhausted(ctx context.Context, id string, errMsg string, errStack string, completedAt time.Time, durationMs int64, retryCount int) error {
	return nil
}
func (d *stubExecutionDao) ScheduleRetry(ctx context.Context, id string, retryCount int, nextRetryAt time.Time) error {
	return nil
}
func (d *stubExecutionDao) ClaimRetry(ctx context.Context, id string) (bool, error) {
	return true, nil
}

type recordingRetrier struct {
	mu      sync.Mutex
	retried []string
	block   chan struct{}
	fail    map[string]error
}

func (r *recordingRetrier) RetryExecution(ctx context.Context, execution *model.Execution) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.retried = append(r.retried, execution.Id)
	r.mu.Unlock()
	if err, ok := r.fail[execution.Id]; ok {
		return err
	}
	return nil
}

func dueExecutions(ids ...string) []model.Execution {
	due := time.Now().Add(-time.Minute)
	executions := make([]model.Execution, len(ids))
	for i, id := range ids {
		executions[i] = model.Execution{
			Id:          id,
			Status:      model.EXECUTION_RETRYING,
			RetryCount:  1,
			NextRetryAt: &due,
		}
	}
	return executions
}

func TestProcessRetriesBatch(t *testing.T) {
	dao := &stubExecutionDao{due: dueExecutions("ex-1", "ex-2", "ex-3")}
	retrier := &recordingRetrier{}
	s := NewSweeper(dao, retrier, time.Hour, 50)

	processed := s.ProcessRetries(context.Background())
	require.Equal(t, 3, processed)
	require.Equal(t, []string{"ex-1", "ex-2", "ex-3"}, retrier.retried)
}

func TestOverlappingSweepIsNoOp(t *testing.T) {
	dao := &stubExecutionDao{due: dueExecutions("ex-1")}
	retrier := &recordingRetrier{block: make(chan struct{})}
	s := NewSweeper(dao, retrier, time.Hour, 50)

	done := make(chan int)
	go func() {
		done <- s.ProcessRetries(context.Background())
	}()

	// wait for the first sweep to be inside the batch
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&dao.queries) == 1
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 0, s.ProcessRetries(context.Background()))
	require.EqualValues(t, 1, atomic.LoadInt32(&dao.queries))

	close(retrier.block)
	require.Equal(t, 1, <-done)
}

func TestFailedRetryDoesNotStopBatch(t *testing.T) {
	dao := &stubExecutionDao{due: dueExecutions("ex-1", "ex-2")}
	retrier := &recordingRetrier{fail: map[string]error{"ex-1": errors.New("still broken")}}
	s := NewSweeper(dao, retrier, time.Hour, 50)

	processed := s.ProcessRetries(context.Background())
	require.Equal(t, 2, processed)
	require.Equal(t, []string{"ex-1", "ex-2"}, retrier.retried)
}

func TestBatchSizeLimit(t *testing.T) {
	dao := &stubExecutionDao{due: dueExecutions("ex-1", "ex-2", "ex-3")}
	retrier := &recordingRetrier{}
	s := NewSweeper(dao, retrier, time.Hour, 2)

	processed := s.ProcessRetries(context.Background())
	require.Equal(t, 2, processed)
}
