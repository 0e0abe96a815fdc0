package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/formpulse/automate/model"
	"github.com/formpulse/automate/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type executionDao struct {
	db *pgxpool.Pool
}

func NewExecutionDao(db *pgxpool.Pool) persistence.ExecutionDao {
	return &executionDao{db: db}
}

const executionColumns = `id, tenant_id, workflow_id, trigger_event, trigger_data, status,
	result, error, error_stack, retry_count, next_retry_at, started_at, completed_at, duration_ms`

func (d *executionDao) Create(ctx context.Context, execution *model.Execution) error {
	triggerData, err := json.Marshal(execution.TriggerData)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(ctx, `INSERT INTO workflow_executions
		(id, tenant_id, workflow_id, trigger_event, trigger_data, status, retry_count, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		execution.Id, execution.TenantId, execution.WorkflowId, execution.TriggerEvent,
		triggerData, execution.Status, execution.RetryCount, execution.StartedAt)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *executionDao) Get(ctx context.Context, id string) (*model.Execution, error) {
	row := d.db.QueryRow(ctx, `SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1`, id)
	ex, err := scanExecution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, persistence.NotFoundError{Kind: "execution", Id: id}
	}
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return ex, nil
}

func (d *executionDao) ListByWorkflow(ctx context.Context, workflowId string, limit int) ([]model.Execution, error) {
	rows, err := d.db.Query(ctx, `SELECT `+executionColumns+` FROM workflow_executions
		WHERE workflow_id = $1 ORDER BY started_at DESC LIMIT $2`, workflowId, limit)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()
	return collectExecutions(rows)
}

func (d *executionDao) MarkCompleted(ctx context.Context, id string, result map[string]any, completedAt time.Time, durationMs int64) error {
	resultJson, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(ctx, `UPDATE workflow_executions SET
		status = $2, result = $3, error = NULL, error_stack = NULL,
		next_retry_at = NULL, completed_at = $4, duration_ms = $5
		WHERE id = $1`, id, model.EXECUTION_COMPLETED, resultJson, completedAt, durationMs)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *executionDao) MarkFailed(ctx context.Context, id string, errMsg string, errStack string, completedAt time.Time, durationMs int64) error {
	_, err := d.db.Exec(ctx, `UPDATE workflow_executions SET
		status = $2, error = $3, error_stack = $4, next_retry_at = NULL,
		completed_at = $5, duration_ms = $6
		WHERE id = $1`, id, model.EXECUTION_FAILED, errMsg, errStack, completedAt, durationMs)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *executionDao) MarkExhausted(ctx context.Context, id string, errMsg string, errStack string, completedAt time.Time, durationMs int64, retryCount int) error {
	_, err := d.db.Exec(ctx, `UPDATE workflow_executions SET
		status = $2, error = $3, error_stack = $4, retry_count = $5,
		next_retry_at = NULL, completed_at = $6, duration_ms = $7
		WHERE id = $1`, id, model.EXECUTION_FAILED, errMsg, errStack, retryCount, completedAt, durationMs)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *executionDao) ScheduleRetry(ctx context.Context, id string, retryCount int, nextRetryAt time.Time) error {
	_, err := d.db.Exec(ctx, `UPDATE workflow_executions SET
		status = $2, retry_count = $3, next_retry_at = $4
		WHERE id = $1`, id, model.EXECUTION_RETRYING, retryCount, nextRetryAt)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *executionDao) GetDueRetries(ctx context.Context, now time.Time, maxRetries int, limit int) ([]model.Execution, error) {
	rows, err := d.db.Query(ctx, `SELECT `+executionColumns+` FROM workflow_executions
		WHERE status = $1 AND next_retry_at <= $2 AND retry_count < $3
		ORDER BY next_retry_at ASC LIMIT $4`,
		model.EXECUTION_RETRYING, now, maxRetries, limit)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()
	return collectExecutions(rows)
}

func (d *executionDao) ClaimRetry(ctx context.Context, id string) (bool, error) {
	tag, err := d.db.Exec(ctx, `UPDATE workflow_executions SET status = $2
		WHERE id = $1 AND status = $3`,
		id, model.EXECUTION_RUNNING, model.EXECUTION_RETRYING)
	if err != nil {
		return false, persistence.StorageLayerError{Message: err.Error()}
	}
	return tag.RowsAffected() == 1, nil
}

func collectExecutions(rows pgx.Rows) ([]model.Execution, error) {
	var executions []model.Execution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		executions = append(executions, *ex)
	}
	return executions, rows.Err()
}

func scanExecution(row pgx.Row) (*model.Execution, error) {
	var ex model.Execution
	var triggerData, result []byte
	var errMsg, errStack *string
	err := row.Scan(&ex.Id, &ex.TenantId, &ex.WorkflowId, &ex.TriggerEvent, &triggerData,
		&ex.Status, &result, &errMsg, &errStack, &ex.RetryCount, &ex.NextRetryAt,
		&ex.StartedAt, &ex.CompletedAt, &ex.DurationMs)
	if err != nil {
		return nil, err
	}
	if len(triggerData) > 0 {
		if err := json.Unmarshal(triggerData, &ex.TriggerData); err != nil {
			return nil, err
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &ex.Result); err != nil {
			return nil, err
		}
	}
	if errMsg != nil {
		ex.Error = *errMsg
	}
	if errStack != nil {
		ex.ErrorStack = *errStack
	}
	return &ex, nil
}
