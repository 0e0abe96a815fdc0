package action

import (
	"context"
	"fmt"
)

// entityTarget is one allowed (entity, table, columns) mapping. Table and
// column identifiers used in generated SQL come exclusively from this closed
// set, never from action config.
type entityTarget struct {
	table     string
	columns   map[string]bool
	tagColumn string
}

var allowedEntities = map[string]entityTarget{
	"contact": {
		table: "contacts",
		columns: map[string]bool{
			"first_name": true, "last_name": true, "email": true, "phone": true,
			"status": true, "owner_id": true, "notes": true, "lifecycle_stage": true,
		},
		tagColumn: "tags",
	},
	"ticket": {
		table: "tickets",
		columns: map[string]bool{
			"status": true, "priority": true, "assignee_id": true,
			"subject": true, "description": true,
		},
		tagColumn: "tags",
	},
	"submission": {
		table: "submissions",
		columns: map[string]bool{
			"status": true, "reviewed": true, "flagged": true,
		},
		tagColumn: "tags",
	},
}

func resolveTarget(entity string, column string) (entityTarget, error) {
	target, ok := allowedEntities[entity]
	if !ok {
		return entityTarget{}, fmt.Errorf("entity %q is not updatable by workflows", entity)
	}
	if column != "" && !target.columns[column] {
		return entityTarget{}, fmt.Errorf("column %q of entity %q is not updatable by workflows", column, entity)
	}
	return target, nil
}

func (d *Dispatcher) updateField(ctx context.Context, conf map[string]any) (map[string]any, error) {
	entity := stringValue(conf, "entity")
	field := stringValue(conf, "field")
	recordId := conf["recordId"]
	if entity == "" || field == "" || recordId == nil {
		return nil, fmt.Errorf("update_field requires 'entity', 'field' and 'recordId'")
	}
	target, err := resolveTarget(entity, field)
	if err != nil {
		return nil, err
	}
	if err := d.records.UpdateColumn(ctx, target.table, field, recordId, conf["value"]); err != nil {
		return nil, fmt.Errorf("update_field failed: %w", err)
	}
	return map[string]any{"entity": entity, "field": field, "recordId": recordId}, nil
}

func (d *Dispatcher) updateContact(ctx context.Context, conf map[string]any) (map[string]any, error) {
	contactId := conf["contactId"]
	fields, _ := conf["fields"].(map[string]any)
	if contactId == nil || len(fields) == 0 {
		return nil, fmt.Errorf("update_contact requires 'contactId' and a non-empty 'fields' map")
	}
	target := allowedEntities["contact"]
	for column := range fields {
		if !target.columns[column] {
			return nil, fmt.Errorf("column %q of entity \"contact\" is not updatable by workflows", column)
		}
	}
	if err := d.records.UpdateColumns(ctx, target.table, contactId, fields); err != nil {
		return nil, fmt.Errorf("update_contact failed: %w", err)
	}
	return map[string]any{"contactId": contactId, "updated": len(fields)}, nil
}

func (d *Dispatcher) addTag(ctx context.Context, conf map[string]any) (map[string]any, error) {
	entity := stringValue(conf, "entity")
	tag := stringValue(conf, "tag")
	recordId := conf["recordId"]
	if entity == "" || tag == "" || recordId == nil {
		return nil, fmt.Errorf("add_tag requires 'entity', 'tag' and 'recordId'")
	}
	target, err := resolveTarget(entity, "")
	if err != nil {
		return nil, err
	}
	if err := d.records.AppendTag(ctx, target.table, target.tagColumn, recordId, tag); err != nil {
		return nil, fmt.Errorf("add_tag failed: %w", err)
	}
	return map[string]any{"entity": entity, "tag": tag, "recordId": recordId}, nil
}
