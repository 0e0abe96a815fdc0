package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/formpulse/automate/model"
	"github.com/formpulse/automate/persistence"
	c "github.com/patrickmn/go-cache"
)

// WorkflowService is a read-through cache in front of the workflow store.
// Trigger lookups happen on every business event, so the per-tenant active
// set is cached with a short TTL; stats writes invalidate the affected keys.
type WorkflowService struct {
	dao   persistence.WorkflowDao
	cache *c.Cache
}

var _ persistence.WorkflowDao = new(WorkflowService)

func NewWorkflowService(dao persistence.WorkflowDao, ttl time.Duration) *WorkflowService {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &WorkflowService{
		dao:   dao,
		cache: c.New(ttl, 10*time.Minute),
	}
}

func (s *WorkflowService) Get(ctx context.Context, id string) (*model.Workflow, error) {
	key := "wf_" + id
	if cached, found := s.cache.Get(key); found {
		wf := cached.(model.Workflow)
		return &wf, nil
	}
	wf, err := s.dao.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, *wf)
	return wf, nil
}

func (s *WorkflowService) GetActiveByTrigger(ctx context.Context, tenantId string, triggerEvent string) ([]model.Workflow, error) {
	key := triggerKey(tenantId, triggerEvent)
	if cached, found := s.cache.Get(key); found {
		return cached.([]model.Workflow), nil
	}
	workflows, err := s.dao.GetActiveByTrigger(ctx, tenantId, triggerEvent)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, workflows)
	return workflows, nil
}

func (s *WorkflowService) RecordSuccess(ctx context.Context, id string, durationMs int64) error {
	s.cache.Delete("wf_" + id)
	return s.dao.RecordSuccess(ctx, id, durationMs)
}

func (s *WorkflowService) RecordFailure(ctx context.Context, id string) error {
	s.cache.Delete("wf_" + id)
	return s.dao.RecordFailure(ctx, id)
}

func triggerKey(tenantId string, triggerEvent string) string {
	return fmt.Sprintf("trg_%s_%s", tenantId, triggerEvent)
}
