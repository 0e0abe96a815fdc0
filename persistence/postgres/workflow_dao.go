package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/formpulse/automate/model"
	"github.com/formpulse/automate/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type workflowDao struct {
	db *pgxpool.Pool
}

func NewWorkflowDao(db *pgxpool.Pool) persistence.WorkflowDao {
	return &workflowDao{db: db}
}

const workflowColumns = `id, tenant_id, name, trigger_event, conditions, actions, is_active,
	execution_count, success_count, failure_count, average_duration_ms, last_executed_at`

func (d *workflowDao) Get(ctx context.Context, id string) (*model.Workflow, error) {
	row := d.db.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, persistence.NotFoundError{Kind: "workflow", Id: id}
	}
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return wf, nil
}

func (d *workflowDao) GetActiveByTrigger(ctx context.Context, tenantId string, triggerEvent string) ([]model.Workflow, error) {
	rows, err := d.db.Query(ctx, `SELECT `+workflowColumns+` FROM workflows
		WHERE tenant_id = $1 AND trigger_event = $2 AND is_active = true
		ORDER BY name`, tenantId, triggerEvent)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()

	var workflows []model.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		workflows = append(workflows, *wf)
	}
	return workflows, rows.Err()
}

func (d *workflowDao) RecordSuccess(ctx context.Context, id string, durationMs int64) error {
	_, err := d.db.Exec(ctx, `UPDATE workflows SET
		execution_count = execution_count + 1,
		success_count = success_count + 1,
		average_duration_ms = (average_duration_ms * success_count + $2) / (success_count + 1),
		last_executed_at = now()
		WHERE id = $1`, id, durationMs)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *workflowDao) RecordFailure(ctx context.Context, id string) error {
	_, err := d.db.Exec(ctx, `UPDATE workflows SET
		execution_count = execution_count + 1,
		failure_count = failure_count + 1,
		last_executed_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func scanWorkflow(row pgx.Row) (*model.Workflow, error) {
	var wf model.Workflow
	var conditions, actions []byte
	err := row.Scan(&wf.Id, &wf.TenantId, &wf.Name, &wf.TriggerEvent, &conditions, &actions,
		&wf.IsActive, &wf.ExecutionCount, &wf.SuccessCount, &wf.FailureCount,
		&wf.AverageDurationMs, &wf.LastExecutedAt)
	if err != nil {
		return nil, err
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &wf.Conditions); err != nil {
			return nil, err
		}
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &wf.Actions); err != nil {
			return nil, err
		}
	}
	return &wf, nil
}
