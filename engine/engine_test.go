package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/formpulse/automate/action"
	"github.com/formpulse/automate/model"
	"github.com/formpulse/automate/persistence"
	"github.com/stretchr/testify/require"
)

type fakeWorkflowDao struct {
	mu        sync.Mutex
	workflows map[string]*model.Workflow
	successes int
	failures  int
}

func newFakeWorkflowDao(workflows ...*model.Workflow) *fakeWorkflowDao {
	dao := &fakeWorkflowDao{workflows: make(map[string]*model.Workflow)}
	for _, wf := range workflows {
		dao.workflows[wf.Id] = wf
	}
	return dao
}

func (d *fakeWorkflowDao) Get(ctx context.Context, id string) (*model.Workflow, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	wf, ok := d.workflows[id]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "workflow", Id: id}
	}
	copied := *wf
	return &copied, nil
}

func (d *fakeWorkflowDao) GetActiveByTrigger(ctx context.Context, tenantId string, triggerEvent string) ([]model.Workflow, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []model.Workflow
	for _, wf := range d.workflows {
		if wf.TenantId == tenantId && wf.TriggerEvent == triggerEvent && wf.IsActive {
			result = append(result, *wf)
		}
	}
	return result, nil
}

func (d *fakeWorkflowDao) RecordSuccess(ctx context.Context, id string, durationMs int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.successes++
	return nil
}

func (d *fakeWorkflowDao) RecordFailure(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures++
	return nil
}

type fakeExecutionDao struct {
	mu         sync.Mutex
	executions map[string]*model.Execution
}

func newFakeExecutionDao() *fakeExecutionDao {
	return &fakeExecutionDao{executions: make(map[string]*model.Execution)}
}

func (d *fakeExecutionDao) Create(ctx context.Context, execution *model.Execution) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := *execution
	d.executions[execution.Id] = &copied
	return nil
}

func (d *fakeExecutionDao) Get(ctx context.Context, id string) (*model.Execution, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ex, ok := d.executions[id]
	if !ok {
		return nil, persistence.NotFoundError{Kind: "execution", Id: id}
	}
	copied := *ex
	return &copied, nil
}

func (d *fakeExecutionDao) ListByWorkflow(ctx context.Context, workflowId string, limit int) ([]model.Execution, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []model.Execution
	for _, ex := range d.executions {
		if ex.WorkflowId == workflowId {
			result = append(result, *ex)
		}
	}
	return result, nil
}

func (d *fakeExecutionDao) MarkCompleted(ctx context.Context, id string, result map[string]any, completedAt time.Time, durationMs int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ex := d.executions[id]
	ex.Status = model.EXECUTION_COMPLETED
	ex.Result = result
	ex.Error = ""
	ex.NextRetryAt = nil
	ex.CompletedAt = &completedAt
	ex.DurationMs = durationMs
	return nil
}

func (d *fakeExecutionDao) MarkFailed(ctx context.Context, id string, errMsg string, errStack string, completedAt time.Time, durationMs int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ex := d.executions[id]
	ex.Status = model.EXECUTION_FAILED
	ex.Error = errMsg
	ex.ErrorStack = errStack
	ex.NextRetryAt = nil
	ex.CompletedAt = &completedAt
	ex.DurationMs = durationMs
	return nil
}

func (d *fakeExecutionDao) MarkExhausted(ctx context.Context, id string, errMsg string, errStack string, completedAt time.Time, durationMs int64, retryCount int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ex := d.executions[id]
	ex.Status = model.EXECUTION_FAILED
	ex.Error = errMsg
	ex.ErrorStack = errStack
	ex.RetryCount = retryCount
	ex.NextRetryAt = nil
	ex.CompletedAt = &completedAt
	ex.DurationMs = durationMs
	return nil
}

func (d *fakeExecutionDao) ScheduleRetry(ctx context.Context, id string, retryCount int, nextRetryAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ex := d.executions[id]
	ex.Status = model.EXECUTION_RETRYING
	ex.RetryCount = retryCount
	ex.NextRetryAt = &nextRetryAt
	return nil
}

func (d *fakeExecutionDao) GetDueRetries(ctx context.Context, now time.Time, maxRetries int, limit int) ([]model.Execution, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var due []model.Execution
	for _, ex := range d.executions {
		if ex.Status == model.EXECUTION_RETRYING && ex.NextRetryAt != nil &&
			!ex.NextRetryAt.After(now) && ex.RetryCount < maxRetries {
			due = append(due, *ex)
		}
	}
	return due, nil
}

func (d *fakeExecutionDao) ClaimRetry(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ex, ok := d.executions[id]
	if !ok || ex.Status != model.EXECUTION_RETRYING {
		return false, nil
	}
	ex.Status = model.EXECUTION_RUNNING
	return true, nil
}

type fakeStepDao struct {
	mu    sync.Mutex
	steps []model.StepLog
}

func (d *fakeStepDao) Append(ctx context.Context, step *model.StepLog) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.steps = append(d.steps, *step)
	return nil
}

func (d *fakeStepDao) ListByExecution(ctx context.Context, executionId string) ([]model.StepLog, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var result []model.StepLog
	for _, step := range d.steps {
		if step.ExecutionId == executionId {
			result = append(result, step)
		}
	}
	return result, nil
}

// scriptDispatcher runs a scripted outcome per action type and records the
// dispatch order.
type scriptDispatcher struct {
	mu       sync.Mutex
	failures map[model.ActionType]error
	calls    []model.ActionType
}

func (d *scriptDispatcher) Execute(ctx context.Context, act model.Action, triggerData map[string]any, tenantId string) (map[string]any, error) {
	d.mu.Lock()
	d.calls = append(d.calls, act.Type)
	d.mu.Unlock()
	if err, ok := d.failures[act.Type]; ok {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func testWorkflow(actions ...model.Action) *model.Workflow {
	return &model.Workflow{
		Id:           "wf-1",
		TenantId:     "tenant-1",
		Name:         "test workflow",
		TriggerEvent: "submission_completed",
		IsActive:     true,
		Actions:      actions,
	}
}

func newTestEngine(workflows persistence.WorkflowDao, dispatcher ActionDispatcher) (*Engine, *fakeExecutionDao, *fakeStepDao) {
	executions := newFakeExecutionDao()
	steps := &fakeStepDao{}
	return NewEngine(workflows, executions, steps, dispatcher), executions, steps
}

func TestConditionShortCircuit(t *testing.T) {
	wf := testWorkflow(model.Action{Type: model.ACTION_SEND_EMAIL})
	wf.Conditions = []model.Condition{
		{Field: "score", Operator: model.OP_GREATER_THAN, Value: 9},
	}
	dispatcher := &scriptDispatcher{}
	eng, executions, steps := newTestEngine(newFakeWorkflowDao(wf), dispatcher)

	id, err := eng.ExecuteWorkflow(context.Background(), wf, map[string]any{"score": float64(5)})
	require.NoError(t, err)

	ex, err := executions.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, model.EXECUTION_COMPLETED, ex.Status)
	require.Equal(t, false, ex.Result["conditionsPassed"])
	require.Empty(t, dispatcher.calls)

	logged, _ := steps.ListByExecution(context.Background(), id)
	require.Len(t, logged, 1)
	require.Equal(t, model.STEP_CONDITION, logged[0].StepType)
}

func TestNonCriticalFailureContinues(t *testing.T) {
	wf := testWorkflow(
		model.Action{Type: model.ACTION_SEND_EMAIL},
		model.Action{Type: model.ACTION_WEBHOOK},
		model.Action{Type: model.ACTION_ADD_TAG},
	)
	dispatcher := &scriptDispatcher{failures: map[model.ActionType]error{
		model.ACTION_WEBHOOK: errors.New("connection refused"),
	}}
	eng, executions, _ := newTestEngine(newFakeWorkflowDao(wf), dispatcher)

	id, err := eng.ExecuteWorkflow(context.Background(), wf, map[string]any{})
	require.NoError(t, err)

	ex, _ := executions.Get(context.Background(), id)
	require.Equal(t, model.EXECUTION_COMPLETED, ex.Status)
	require.Equal(t, []model.ActionType{model.ACTION_SEND_EMAIL, model.ACTION_WEBHOOK, model.ACTION_ADD_TAG}, dispatcher.calls)

	results := ex.Result["actionResults"].([]model.ActionResult)
	require.Len(t, results, 3)
	require.True(t, results[0].Success)
	require.False(t, results[1].Success)
	require.Contains(t, results[1].Error, "connection refused")
	require.True(t, results[2].Success)
}

func TestCriticalFailureAborts(t *testing.T) {
	wf := testWorkflow(
		model.Action{Type: model.ACTION_SEND_EMAIL},
		model.Action{Type: model.ACTION_WEBHOOK, Critical: true},
		model.Action{Type: model.ACTION_ADD_TAG},
	)
	dispatcher := &scriptDispatcher{failures: map[model.ActionType]error{
		model.ACTION_WEBHOOK: errors.New("connection refused"),
	}}
	eng, executions, _ := newTestEngine(newFakeWorkflowDao(wf), dispatcher)

	id, err := eng.ExecuteWorkflow(context.Background(), wf, map[string]any{})
	require.Error(t, err)
	require.NotContains(t, dispatcher.calls, model.ACTION_ADD_TAG)

	ex, _ := executions.Get(context.Background(), id)
	require.Contains(t, ex.Error, "connection refused")
	// first failure schedules a retry
	require.Equal(t, model.EXECUTION_RETRYING, ex.Status)
	require.Equal(t, 1, ex.RetryCount)
}

func TestRetrySchedulingFirstFailure(t *testing.T) {
	wf := testWorkflow(model.Action{Type: model.ACTION_SEND_EMAIL, Critical: true})
	dispatcher := &scriptDispatcher{failures: map[model.ActionType]error{
		model.ACTION_SEND_EMAIL: errors.New("smtp down"),
	}}
	eng, executions, _ := newTestEngine(newFakeWorkflowDao(wf), dispatcher)

	before := time.Now()
	id, err := eng.ExecuteWorkflow(context.Background(), wf, map[string]any{})
	require.Error(t, err)

	ex, _ := executions.Get(context.Background(), id)
	require.Equal(t, model.EXECUTION_RETRYING, ex.Status)
	require.Equal(t, 1, ex.RetryCount)
	require.NotNil(t, ex.NextRetryAt)
	require.WithinDuration(t, before.Add(1*time.Minute), *ex.NextRetryAt, 5*time.Second)
}

func TestRetryExhaustion(t *testing.T) {
	wf := testWorkflow(model.Action{Type: model.ACTION_SEND_EMAIL, Critical: true})
	dispatcher := &scriptDispatcher{failures: map[model.ActionType]error{
		model.ACTION_SEND_EMAIL: errors.New("smtp down"),
	}}
	eng, executions, _ := newTestEngine(newFakeWorkflowDao(wf), dispatcher)

	due := time.Now().Add(-time.Minute)
	execution := &model.Execution{
		Id:           "ex-1",
		TenantId:     wf.TenantId,
		WorkflowId:   wf.Id,
		TriggerEvent: wf.TriggerEvent,
		TriggerData:  map[string]any{},
		Status:       model.EXECUTION_RETRYING,
		RetryCount:   2,
		NextRetryAt:  &due,
		StartedAt:    time.Now().Add(-time.Hour),
	}
	require.NoError(t, executions.Create(context.Background(), execution))

	err := eng.RetryExecution(context.Background(), execution)
	require.Error(t, err)

	ex, _ := executions.Get(context.Background(), "ex-1")
	require.Equal(t, model.EXECUTION_FAILED, ex.Status)
	require.Nil(t, ex.NextRetryAt)
	require.Contains(t, ex.Error, "max retries (3) reached")
}

func TestRetryClaimLostIsNoOp(t *testing.T) {
	wf := testWorkflow(model.Action{Type: model.ACTION_SEND_EMAIL})
	dispatcher := &scriptDispatcher{}
	eng, executions, _ := newTestEngine(newFakeWorkflowDao(wf), dispatcher)

	execution := &model.Execution{
		Id:         "ex-1",
		WorkflowId: wf.Id,
		Status:     model.EXECUTION_COMPLETED,
		StartedAt:  time.Now(),
	}
	require.NoError(t, executions.Create(context.Background(), execution))

	require.NoError(t, eng.RetryExecution(context.Background(), execution))
	require.Empty(t, dispatcher.calls)
}

func TestTriggeredWorkflowsAreIsolated(t *testing.T) {
	good := testWorkflow(model.Action{Type: model.ACTION_SEND_EMAIL})
	bad := testWorkflow(model.Action{Type: model.ACTION_WEBHOOK, Critical: true})
	bad.Id = "wf-2"
	dispatcher := &scriptDispatcher{failures: map[model.ActionType]error{
		model.ACTION_WEBHOOK: errors.New("boom"),
	}}
	eng, executions, _ := newTestEngine(newFakeWorkflowDao(good, bad), dispatcher)

	ids, err := eng.ExecuteTriggeredWorkflows(context.Background(), "submission_completed", map[string]any{}, "tenant-1")
	require.NoError(t, err)
	require.Len(t, ids, 2)

	statuses := map[model.ExecutionStatus]int{}
	for _, id := range ids {
		ex, _ := executions.Get(context.Background(), id)
		statuses[ex.Status]++
	}
	require.Equal(t, 1, statuses[model.EXECUTION_COMPLETED])
	require.Equal(t, 1, statuses[model.EXECUTION_RETRYING])
}

type memoryRecordStore struct {
	mu            sync.Mutex
	notifications []map[string]any
	tickets       []map[string]any
}

func (s *memoryRecordStore) InsertTicket(ctx context.Context, tenantId string, fields map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets = append(s.tickets, fields)
	return fmt.Sprintf("ticket-%d", len(s.tickets)), nil
}

func (s *memoryRecordStore) InsertNotification(ctx context.Context, tenantId string, userId string, title string, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, map[string]any{
		"tenantId": tenantId, "userId": userId, "title": title, "message": message,
	})
	return fmt.Sprintf("notif-%d", len(s.notifications)), nil
}

func (s *memoryRecordStore) UpdateColumn(ctx context.Context, table, column string, id any, value any) error {
	return nil
}

func (s *memoryRecordStore) UpdateColumns(ctx context.Context, table string, id any, values map[string]any) error {
	return nil
}

func (s *memoryRecordStore) AppendTag(ctx context.Context, table, column string, id any, tag string) error {
	return nil
}

type noopMailer struct{}

func (noopMailer) SendTransactionalEmail(ctx context.Context, email action.Email) error {
	return nil
}

func TestNotificationWorkflowEndToEnd(t *testing.T) {
	wf := testWorkflow(model.Action{
		Type:   model.ACTION_SEND_NOTIFICATION,
		Config: map[string]any{"userId": float64(1), "title": "Hi", "message": "{{name}}"},
	})
	records := &memoryRecordStore{}
	dispatcher := action.NewDispatcher(records, noopMailer{}, time.Second)
	eng, executions, steps := newTestEngine(newFakeWorkflowDao(wf), dispatcher)

	id, err := eng.ExecuteWorkflow(context.Background(), wf, map[string]any{"name": "Ada"})
	require.NoError(t, err)

	ex, _ := executions.Get(context.Background(), id)
	require.Equal(t, model.EXECUTION_COMPLETED, ex.Status)
	require.Equal(t, true, ex.Result["conditionsPassed"])

	require.Len(t, records.notifications, 1)
	require.Equal(t, "Ada", records.notifications[0]["message"])
	require.Equal(t, "1", records.notifications[0]["userId"])

	logged, _ := steps.ListByExecution(context.Background(), id)
	require.Len(t, logged, 2)
	require.Equal(t, model.STEP_CONDITION, logged[0].StepType)
	require.Equal(t, 1, logged[0].StepNumber)
	require.Equal(t, model.STEP_ACTION, logged[1].StepType)
	require.Equal(t, 2, logged[1].StepNumber)
}

func TestUnknownActionTypeFailsExecution(t *testing.T) {
	wf := testWorkflow(model.Action{Type: "unknown_action"})
	records := &memoryRecordStore{}
	dispatcher := action.NewDispatcher(records, noopMailer{}, time.Second)
	eng, executions, _ := newTestEngine(newFakeWorkflowDao(wf), dispatcher)

	id, err := eng.ExecuteWorkflow(context.Background(), wf, map[string]any{})
	require.Error(t, err)

	ex, _ := executions.Get(context.Background(), id)
	require.Contains(t, ex.Error, "unknown action type")
	require.Equal(t, model.EXECUTION_RETRYING, ex.Status)
	require.Equal(t, 1, ex.RetryCount)
}
