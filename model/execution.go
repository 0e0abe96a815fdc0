package model

import "time"

type ExecutionStatus string

const (
	EXECUTION_RUNNING   ExecutionStatus = "running"
	EXECUTION_COMPLETED ExecutionStatus = "completed"
	EXECUTION_FAILED    ExecutionStatus = "failed"
	EXECUTION_RETRYING  ExecutionStatus = "retrying"
)

// Execution is one run of a workflow in response to one trigger event
// instance. Retries reuse the same row: one business trigger keeps one
// execution identity across attempts.
type Execution struct {
	Id           string          `json:"id"`
	TenantId     string          `json:"tenantId"`
	WorkflowId   string          `json:"workflowId"`
	TriggerEvent string          `json:"triggerEvent"`
	TriggerData  map[string]any  `json:"triggerData"`
	Status       ExecutionStatus `json:"status"`
	Result       map[string]any  `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	ErrorStack   string          `json:"errorStack,omitempty"`
	RetryCount   int             `json:"retryCount"`
	NextRetryAt  *time.Time      `json:"nextRetryAt,omitempty"`
	StartedAt    time.Time       `json:"startedAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	DurationMs   int64           `json:"durationMs"`
}

type StepType string

const (
	STEP_CONDITION StepType = "condition"
	STEP_ACTION    StepType = "action"
)

type StepStatus string

const (
	STEP_RUNNING   StepStatus = "running"
	STEP_COMPLETED StepStatus = "completed"
	STEP_FAILED    StepStatus = "failed"
)

// StepLog is an append-only record of one condition-batch evaluation or one
// action dispatch within an execution. Numbering is contiguous from 1; the
// condition batch always occupies step 1.
type StepLog struct {
	Id          string         `json:"id"`
	ExecutionId string         `json:"executionId"`
	StepNumber  int            `json:"stepNumber"`
	StepType    StepType       `json:"stepType"`
	StepName    string         `json:"stepName"`
	Status      StepStatus     `json:"status"`
	InputData   map[string]any `json:"inputData,omitempty"`
	OutputData  map[string]any `json:"outputData,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	DurationMs  int64          `json:"durationMs"`
}

// ActionResult is one entry of the per-action outcome list collected by the
// orchestrator and embedded in the execution result.
type ActionResult struct {
	Action  ActionType     `json:"action"`
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}
