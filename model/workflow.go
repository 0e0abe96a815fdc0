package model

import "time"

type ConditionLogic string

const LOGIC_AND ConditionLogic = "AND"
const LOGIC_OR ConditionLogic = "OR"

type ConditionOperator string

const (
	OP_EQUALS                ConditionOperator = "equals"
	OP_NOT_EQUALS            ConditionOperator = "not_equals"
	OP_CONTAINS              ConditionOperator = "contains"
	OP_NOT_CONTAINS          ConditionOperator = "not_contains"
	OP_STARTS_WITH           ConditionOperator = "starts_with"
	OP_ENDS_WITH             ConditionOperator = "ends_with"
	OP_GREATER_THAN          ConditionOperator = "greater_than"
	OP_LESS_THAN             ConditionOperator = "less_than"
	OP_GREATER_THAN_OR_EQUAL ConditionOperator = "greater_than_or_equal"
	OP_LESS_THAN_OR_EQUAL    ConditionOperator = "less_than_or_equal"
	OP_IS_EMPTY              ConditionOperator = "is_empty"
	OP_IS_NOT_EMPTY          ConditionOperator = "is_not_empty"
	OP_MATCHES_REGEX         ConditionOperator = "matches_regex"
	OP_IN                    ConditionOperator = "in"
	OP_NOT_IN                ConditionOperator = "not_in"
)

// Condition is one predicate over the trigger data. Field is a dot-path into
// the trigger payload. All conditions of a workflow share the logic of the
// first condition.
type Condition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    any               `json:"value"`
	Logic    ConditionLogic    `json:"logic,omitempty"`
}

type ActionType string

const (
	ACTION_SEND_EMAIL        ActionType = "send_email"
	ACTION_CREATE_TICKET     ActionType = "create_ticket"
	ACTION_UPDATE_FIELD      ActionType = "update_field"
	ACTION_SEND_NOTIFICATION ActionType = "send_notification"
	ACTION_WEBHOOK           ActionType = "webhook"
	ACTION_CALL_WEBHOOK      ActionType = "call_webhook"
	ACTION_UPDATE_CONTACT    ActionType = "update_contact"
	ACTION_ADD_TAG           ActionType = "add_tag"
	ACTION_DELAY             ActionType = "delay"
	ACTION_SYNC_INTEGRATION  ActionType = "sync_integration"
)

// Action is one side effect a workflow performs. Config string values may
// carry {{dot.path}} placeholders resolved against trigger data at dispatch
// time. A critical action failing aborts the remaining sequence.
type Action struct {
	Type     ActionType     `json:"type"`
	Config   map[string]any `json:"config"`
	Critical bool           `json:"critical,omitempty"`
}

// Workflow is a tenant-authored automation rule: trigger + conditions +
// actions, plus rolling execution statistics maintained by the engine.
type Workflow struct {
	Id                string      `json:"id"`
	TenantId          string      `json:"tenantId"`
	Name              string      `json:"name"`
	TriggerEvent      string      `json:"triggerEvent"`
	Conditions        []Condition `json:"conditions"`
	Actions           []Action    `json:"actions"`
	IsActive          bool        `json:"isActive"`
	ExecutionCount    int64       `json:"executionCount"`
	SuccessCount      int64       `json:"successCount"`
	FailureCount      int64       `json:"failureCount"`
	AverageDurationMs float64     `json:"averageDurationMs"`
	LastExecutedAt    *time.Time  `json:"lastExecutedAt,omitempty"`
}
