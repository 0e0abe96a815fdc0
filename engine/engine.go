package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/formpulse/automate/action"
	"github.com/formpulse/automate/condition"
	"github.com/formpulse/automate/config"
	"github.com/formpulse/automate/logger"
	"github.com/formpulse/automate/model"
	"github.com/formpulse/automate/persistence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActionDispatcher runs one action descriptor against the trigger data.
// Satisfied by *action.Dispatcher.
type ActionDispatcher interface {
	Execute(ctx context.Context, act model.Action, triggerData map[string]any, tenantId string) (map[string]any, error)
}

// Engine owns the lifecycle of workflow executions: it creates the execution
// row, evaluates conditions, dispatches actions in order with step-level
// logging, finalizes the status, maintains workflow statistics and schedules
// retries on failure.
type Engine struct {
	workflows  persistence.WorkflowDao
	executions persistence.ExecutionDao
	steps      persistence.StepLogDao
	dispatcher ActionDispatcher
	maxRetries int
	backoff    []time.Duration
}

func NewEngine(workflows persistence.WorkflowDao, executions persistence.ExecutionDao,
	steps persistence.StepLogDao, dispatcher ActionDispatcher) *Engine {
	return &Engine{
		workflows:  workflows,
		executions: executions,
		steps:      steps,
		dispatcher: dispatcher,
		maxRetries: config.MAX_RETRY_COUNT,
		backoff:    config.RetryBackoff,
	}
}

// ExecuteTriggeredWorkflows runs every active workflow subscribed to the
// trigger event, each in its own goroutine. One workflow's failure never
// affects its siblings; per-workflow errors end up on the execution row, not
// here. Returns ids of the executions that were created.
func (e *Engine) ExecuteTriggeredWorkflows(ctx context.Context, triggerEvent string, triggerData map[string]any, tenantId string) ([]string, error) {
	workflows, err := e.workflows.GetActiveByTrigger(ctx, tenantId, triggerEvent)
	if err != nil {
		return nil, fmt.Errorf("loading workflows for trigger %s: %w", triggerEvent, err)
	}
	if len(workflows) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	executionIds := make([]string, 0, len(workflows))
	for _, wf := range workflows {
		wf := wf
		wg.Add(1)
		go func() {
			defer wg.Done()
			executionId, err := e.ExecuteWorkflow(ctx, &wf, triggerData)
			if err != nil {
				logger.Error("workflow execution failed",
					zap.String("workflow", wf.Id), zap.String("trigger", triggerEvent), zap.Error(err))
			}
			if executionId != "" {
				mu.Lock()
				executionIds = append(executionIds, executionId)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return executionIds, nil
}

// ExecuteWorkflow creates a new execution row for the workflow and runs it to
// a terminal status. Returns the execution id even when the run failed.
func (e *Engine) ExecuteWorkflow(ctx context.Context, wf *model.Workflow, triggerData map[string]any) (string, error) {
	execution := &model.Execution{
		Id:           uuid.New().String(),
		TenantId:     wf.TenantId,
		WorkflowId:   wf.Id,
		TriggerEvent: wf.TriggerEvent,
		TriggerData:  triggerData,
		Status:       model.EXECUTION_RUNNING,
		StartedAt:    time.Now(),
	}
	if err := e.executions.Create(ctx, execution); err != nil {
		return "", fmt.Errorf("creating execution: %w", err)
	}
	logger.Info("workflow execution started",
		zap.String("workflow", wf.Id), zap.String("execution", execution.Id),
		zap.String("trigger", wf.TriggerEvent))

	if err := e.run(ctx, wf, execution); err != nil {
		e.handleFailure(ctx, wf, execution, err)
		return execution.Id, err
	}
	return execution.Id, nil
}

// RetryExecution re-runs a previously failed execution against the same row.
// The row is claimed with a conditional update first so a concurrent sweep
// and a manual retry cannot both run it; losing the claim is a silent no-op.
func (e *Engine) RetryExecution(ctx context.Context, execution *model.Execution) error {
	claimed, err := e.executions.ClaimRetry(ctx, execution.Id)
	if err != nil {
		return fmt.Errorf("claiming execution %s: %w", execution.Id, err)
	}
	if !claimed {
		logger.Debug("execution already claimed, skipping retry", zap.String("execution", execution.Id))
		return nil
	}
	wf, err := e.workflows.Get(ctx, execution.WorkflowId)
	if err != nil {
		failErr := fmt.Errorf("loading workflow %s: %w", execution.WorkflowId, err)
		e.handleFailure(ctx, nil, execution, failErr)
		return failErr
	}
	logger.Info("retrying workflow execution",
		zap.String("workflow", wf.Id), zap.String("execution", execution.Id),
		zap.Int("attempt", execution.RetryCount+1))

	if err := e.run(ctx, wf, execution); err != nil {
		e.handleFailure(ctx, wf, execution, err)
		return err
	}
	return nil
}

// run executes the condition phase then the action phase. Step 1 is always
// the condition batch, even when the workflow has no conditions; action steps
// are logged only when the conditions pass.
func (e *Engine) run(ctx context.Context, wf *model.Workflow, execution *model.Execution) error {
	passed := e.runConditionStep(ctx, wf, execution)
	if !passed {
		result := map[string]any{"conditionsPassed": false}
		return e.finalize(ctx, wf, execution, result)
	}

	actionResults := make([]model.ActionResult, 0, len(wf.Actions))
	for i, act := range wf.Actions {
		stepNumber := i + 2
		result, err := e.runActionStep(ctx, wf, execution, act, stepNumber)
		if err != nil {
			if act.Critical {
				return fmt.Errorf("critical action %s failed: %w", act.Type, err)
			}
			// An unknown action type is a configuration error, not an action
			// failure; it aborts the batch even for non-critical actions.
			var unknownType action.UnknownActionTypeError
			if errors.As(err, &unknownType) {
				return err
			}
			actionResults = append(actionResults, model.ActionResult{
				Action: act.Type, Success: false, Error: err.Error(),
			})
			continue
		}
		actionResults = append(actionResults, model.ActionResult{
			Action: act.Type, Success: true, Result: result,
		})
	}

	result := map[string]any{
		"conditionsPassed": true,
		"actionsExecuted":  len(actionResults),
		"actionResults":    actionResults,
	}
	return e.finalize(ctx, wf, execution, result)
}

func (e *Engine) runConditionStep(ctx context.Context, wf *model.Workflow, execution *model.Execution) bool {
	started := time.Now()
	passed := condition.Evaluate(wf.Conditions, execution.TriggerData)
	completed := time.Now()

	step := &model.StepLog{
		Id:          uuid.New().String(),
		ExecutionId: execution.Id,
		StepNumber:  1,
		StepType:    model.STEP_CONDITION,
		StepName:    "conditions",
		Status:      model.STEP_COMPLETED,
		InputData:   map[string]any{"conditionCount": len(wf.Conditions)},
		OutputData:  map[string]any{"passed": passed},
		StartedAt:   started,
		CompletedAt: &completed,
		DurationMs:  completed.Sub(started).Milliseconds(),
	}
	if err := e.steps.Append(ctx, step); err != nil {
		logger.Error("failed to append condition step log",
			zap.String("execution", execution.Id), zap.Error(err))
	}
	return passed
}

func (e *Engine) runActionStep(ctx context.Context, wf *model.Workflow, execution *model.Execution, act model.Action, stepNumber int) (map[string]any, error) {
	started := time.Now()
	result, actErr := e.dispatcher.Execute(ctx, act, execution.TriggerData, execution.TenantId)
	completed := time.Now()

	step := &model.StepLog{
		Id:          uuid.New().String(),
		ExecutionId: execution.Id,
		StepNumber:  stepNumber,
		StepType:    model.STEP_ACTION,
		StepName:    string(act.Type),
		Status:      model.STEP_COMPLETED,
		InputData:   map[string]any{"type": act.Type, "config": act.Config, "critical": act.Critical},
		OutputData:  result,
		StartedAt:   started,
		CompletedAt: &completed,
		DurationMs:  completed.Sub(started).Milliseconds(),
	}
	if actErr != nil {
		step.Status = model.STEP_FAILED
		step.Error = actErr.Error()
	}
	if err := e.steps.Append(ctx, step); err != nil {
		logger.Error("failed to append action step log",
			zap.String("execution", execution.Id), zap.Error(err))
	}
	return result, actErr
}

func (e *Engine) finalize(ctx context.Context, wf *model.Workflow, execution *model.Execution, result map[string]any) error {
	completed := time.Now()
	durationMs := completed.Sub(execution.StartedAt).Milliseconds()
	if err := e.executions.MarkCompleted(ctx, execution.Id, result, completed, durationMs); err != nil {
		return fmt.Errorf("finalizing execution %s: %w", execution.Id, err)
	}
	if err := e.workflows.RecordSuccess(ctx, wf.Id, durationMs); err != nil {
		logger.Error("failed to update workflow statistics", zap.String("workflow", wf.Id), zap.Error(err))
	}
	logger.Info("workflow execution completed",
		zap.String("workflow", wf.Id), zap.String("execution", execution.Id),
		zap.Int64("durationMs", durationMs))
	return nil
}

// handleFailure writes the failed status and either schedules a retry with
// the configured backoff or, when attempts are exhausted, pins the row as
// permanently failed.
func (e *Engine) handleFailure(ctx context.Context, wf *model.Workflow, execution *model.Execution, cause error) {
	completed := time.Now()
	durationMs := completed.Sub(execution.StartedAt).Milliseconds()
	stack := string(debug.Stack())

	retryCount := execution.RetryCount
	if current, err := e.executions.Get(ctx, execution.Id); err == nil {
		retryCount = current.RetryCount
	}

	if retryCount+1 < e.maxRetries {
		if err := e.executions.MarkFailed(ctx, execution.Id, cause.Error(), stack, completed, durationMs); err != nil {
			logger.Error("failed to mark execution failed", zap.String("execution", execution.Id), zap.Error(err))
		}
		nextRetryAt := completed.Add(e.backoffFor(retryCount))
		if err := e.executions.ScheduleRetry(ctx, execution.Id, retryCount+1, nextRetryAt); err != nil {
			logger.Error("failed to schedule retry", zap.String("execution", execution.Id), zap.Error(err))
		} else {
			logger.Warn("workflow execution failed, retry scheduled",
				zap.String("execution", execution.Id), zap.Int("retryCount", retryCount+1),
				zap.Time("nextRetryAt", nextRetryAt), zap.Error(cause))
		}
	} else {
		errMsg := fmt.Sprintf("max retries (%d) reached: %v", e.maxRetries, cause)
		if err := e.executions.MarkExhausted(ctx, execution.Id, errMsg, stack, completed, durationMs, e.maxRetries); err != nil {
			logger.Error("failed to mark execution exhausted", zap.String("execution", execution.Id), zap.Error(err))
		}
		logger.Error("workflow execution permanently failed",
			zap.String("execution", execution.Id), zap.Int("retryCount", retryCount), zap.Error(cause))
	}

	if wf != nil {
		if err := e.workflows.RecordFailure(ctx, wf.Id); err != nil {
			logger.Error("failed to update workflow statistics", zap.String("workflow", wf.Id), zap.Error(err))
		}
	}
}

func (e *Engine) backoffFor(retryCount int) time.Duration {
	if retryCount >= len(e.backoff) {
		return e.backoff[len(e.backoff)-1]
	}
	return e.backoff[retryCount]
}
