package action

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/formpulse/automate/logger"
	"github.com/formpulse/automate/model"
	"github.com/formpulse/automate/persistence"
	"github.com/formpulse/automate/util"
	"go.uber.org/zap"
)

// UnknownActionTypeError marks a workflow action whose type is outside the
// closed action set. It is a configuration error: the orchestrator aborts the
// whole action batch on it regardless of the action's critical flag.
type UnknownActionTypeError struct {
	Type model.ActionType
}

func (e UnknownActionTypeError) Error() string {
	return fmt.Sprintf("unknown action type: %s", e.Type)
}

// Email is the payload handed to the transactional mail collaborator.
type Email struct {
	To       string
	Subject  string
	Body     string
	From     string
	TenantId string
}

type Mailer interface {
	SendTransactionalEmail(ctx context.Context, email Email) error
}

// Dispatcher maps an action descriptor to its side effect. Each action is
// independently fallible; the orchestrator decides whether a failure aborts
// the batch.
type Dispatcher struct {
	records        persistence.RecordStore
	mailer         Mailer
	httpClient     *http.Client
	webhookTimeout time.Duration
}

func NewDispatcher(records persistence.RecordStore, mailer Mailer, webhookTimeout time.Duration) *Dispatcher {
	if webhookTimeout <= 0 {
		webhookTimeout = 30 * time.Second
	}
	return &Dispatcher{
		records:        records,
		mailer:         mailer,
		httpClient:     &http.Client{Timeout: webhookTimeout},
		webhookTimeout: webhookTimeout,
	}
}

// Execute resolves {{path}} placeholders in the action config against the
// trigger data, then runs the action. The action type set is closed; an
// unknown type is a configuration error and aborts the whole batch.
func (d *Dispatcher) Execute(ctx context.Context, act model.Action, triggerData map[string]any, tenantId string) (map[string]any, error) {
	conf := util.ResolveConfig(act.Config, triggerData)
	switch act.Type {
	case model.ACTION_SEND_EMAIL:
		return d.sendEmail(ctx, conf, tenantId)
	case model.ACTION_CREATE_TICKET:
		return d.createTicket(ctx, conf, tenantId)
	case model.ACTION_UPDATE_FIELD:
		return d.updateField(ctx, conf)
	case model.ACTION_SEND_NOTIFICATION:
		return d.sendNotification(ctx, conf, tenantId)
	case model.ACTION_WEBHOOK, model.ACTION_CALL_WEBHOOK:
		return d.callWebhook(ctx, conf, triggerData)
	case model.ACTION_UPDATE_CONTACT:
		return d.updateContact(ctx, conf)
	case model.ACTION_ADD_TAG:
		return d.addTag(ctx, conf)
	case model.ACTION_DELAY:
		return d.delay(ctx, conf)
	case model.ACTION_SYNC_INTEGRATION:
		return d.syncIntegration(ctx, conf)
	default:
		return nil, UnknownActionTypeError{Type: act.Type}
	}
}

func (d *Dispatcher) sendEmail(ctx context.Context, conf map[string]any, tenantId string) (map[string]any, error) {
	email := Email{
		To:       stringValue(conf, "to"),
		Subject:  stringValue(conf, "subject"),
		Body:     stringValue(conf, "body"),
		From:     stringValue(conf, "from"),
		TenantId: tenantId,
	}
	if email.To == "" {
		return nil, fmt.Errorf("send_email requires a 'to' address")
	}
	if err := d.mailer.SendTransactionalEmail(ctx, email); err != nil {
		return nil, fmt.Errorf("send_email failed: %w", err)
	}
	return map[string]any{"sent": true, "to": email.To}, nil
}

func (d *Dispatcher) sendNotification(ctx context.Context, conf map[string]any, tenantId string) (map[string]any, error) {
	userId := stringValue(conf, "userId")
	if userId == "" {
		return nil, fmt.Errorf("send_notification requires a 'userId'")
	}
	id, err := d.records.InsertNotification(ctx, tenantId, userId,
		stringValue(conf, "title"), stringValue(conf, "message"))
	if err != nil {
		return nil, fmt.Errorf("send_notification failed: %w", err)
	}
	return map[string]any{"notificationId": id}, nil
}

func (d *Dispatcher) createTicket(ctx context.Context, conf map[string]any, tenantId string) (map[string]any, error) {
	id, err := d.records.InsertTicket(ctx, tenantId, conf)
	if err != nil {
		return nil, fmt.Errorf("create_ticket failed: %w", err)
	}
	return map[string]any{"ticketId": id}, nil
}

func (d *Dispatcher) delay(ctx context.Context, conf map[string]any) (map[string]any, error) {
	durationMs, ok := numberValue(conf, "durationMs")
	if !ok || durationMs <= 0 {
		return nil, fmt.Errorf("delay requires a positive 'durationMs'")
	}
	duration := time.Duration(durationMs) * time.Millisecond
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return map[string]any{"delayedMs": durationMs}, nil
}

func (d *Dispatcher) syncIntegration(ctx context.Context, conf map[string]any) (map[string]any, error) {
	integration := stringValue(conf, "integration")
	logger.Info("integration sync requested", zap.String("integration", integration))
	return map[string]any{"integration": integration, "status": "queued"}, nil
}

func stringValue(conf map[string]any, key string) string {
	v, ok := conf[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func numberValue(conf map[string]any, key string) (float64, bool) {
	switch v := conf[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
