package postgres

import (
	"context"
	"encoding/json"

	"github.com/formpulse/automate/model"
	"github.com/formpulse/automate/persistence"
	"github.com/jackc/pgx/v5/pgxpool"
)

type stepLogDao struct {
	db *pgxpool.Pool
}

func NewStepLogDao(db *pgxpool.Pool) persistence.StepLogDao {
	return &stepLogDao{db: db}
}

func (d *stepLogDao) Append(ctx context.Context, step *model.StepLog) error {
	input, err := json.Marshal(step.InputData)
	if err != nil {
		return err
	}
	output, err := json.Marshal(step.OutputData)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(ctx, `INSERT INTO workflow_execution_logs
		(id, execution_id, step_number, step_type, step_name, status, input_data, output_data,
		error, started_at, completed_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		step.Id, step.ExecutionId, step.StepNumber, step.StepType, step.StepName, step.Status,
		input, output, nullable(step.Error), step.StartedAt, step.CompletedAt, step.DurationMs)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (d *stepLogDao) ListByExecution(ctx context.Context, executionId string) ([]model.StepLog, error) {
	rows, err := d.db.Query(ctx, `SELECT id, execution_id, step_number, step_type, step_name,
		status, input_data, output_data, error, started_at, completed_at, duration_ms
		FROM workflow_execution_logs WHERE execution_id = $1
		ORDER BY started_at, step_number`, executionId)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()

	var steps []model.StepLog
	for rows.Next() {
		var step model.StepLog
		var input, output []byte
		var errMsg *string
		err := rows.Scan(&step.Id, &step.ExecutionId, &step.StepNumber, &step.StepType,
			&step.StepName, &step.Status, &input, &output, &errMsg, &step.StartedAt,
			&step.CompletedAt, &step.DurationMs)
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		if len(input) > 0 {
			if err := json.Unmarshal(input, &step.InputData); err != nil {
				return nil, err
			}
		}
		if len(output) > 0 {
			if err := json.Unmarshal(output, &step.OutputData); err != nil {
				return nil, err
			}
		}
		if errMsg != nil {
			step.Error = *errMsg
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
