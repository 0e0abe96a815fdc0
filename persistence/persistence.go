package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/formpulse/automate/model"
)

type StorageLayerError struct {
	Message string
}

func (e StorageLayerError) Error() string {
	return fmt.Sprintf("storage layer error %s", e.Message)
}

type NotFoundError struct {
	Kind string
	Id   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Id)
}

type WorkflowDao interface {
	Get(ctx context.Context, id string) (*model.Workflow, error)
	GetActiveByTrigger(ctx context.Context, tenantId string, triggerEvent string) ([]model.Workflow, error)
	// RecordSuccess bumps execution/success counters and folds durationMs
	// into the rolling average.
	RecordSuccess(ctx context.Context, id string, durationMs int64) error
	RecordFailure(ctx context.Context, id string) error
}

type ExecutionDao interface {
	Create(ctx context.Context, execution *model.Execution) error
	Get(ctx context.Context, id string) (*model.Execution, error)
	ListByWorkflow(ctx context.Context, workflowId string, limit int) ([]model.Execution, error)
	MarkCompleted(ctx context.Context, id string, result map[string]any, completedAt time.Time, durationMs int64) error
	MarkFailed(ctx context.Context, id string, errMsg string, errStack string, completedAt time.Time, durationMs int64) error
	// MarkExhausted writes the terminal failed state after the last permitted
	// attempt: failed status, pinned retry count, no further due time.
	MarkExhausted(ctx context.Context, id string, errMsg string, errStack string, completedAt time.Time, durationMs int64, retryCount int) error
	// ScheduleRetry transitions the row to retrying with the given attempt
	// count and due time.
	ScheduleRetry(ctx context.Context, id string, retryCount int, nextRetryAt time.Time) error
	// GetDueRetries returns executions in retrying state whose due time has
	// passed, oldest first.
	GetDueRetries(ctx context.Context, now time.Time, maxRetries int, limit int) ([]model.Execution, error)
	// ClaimRetry conditionally moves a retrying execution back to running.
	// Returns false when another writer claimed the row first.
	ClaimRetry(ctx context.Context, id string) (bool, error)
}

type StepLogDao interface {
	Append(ctx context.Context, step *model.StepLog) error
	ListByExecution(ctx context.Context, executionId string) ([]model.StepLog, error)
}

// RecordStore covers the row-level side effects of workflow actions. Table
// and column names handed to it are already validated against the action
// allowlist; implementations must still quote them as identifiers, never
// splice them raw into SQL.
type RecordStore interface {
	InsertTicket(ctx context.Context, tenantId string, fields map[string]any) (string, error)
	InsertNotification(ctx context.Context, tenantId string, userId string, title string, message string) (string, error)
	UpdateColumn(ctx context.Context, table string, column string, id any, value any) error
	UpdateColumns(ctx context.Context, table string, id any, values map[string]any) error
	// AppendTag appends to a text-array column, skipping duplicates.
	AppendTag(ctx context.Context, table string, column string, id any, tag string) error
}
