package workflow

import (
	"context"
	"sort"
	"sync"
)

// MemoryDefinitionRepository keeps definitions in process (STORE_DRIVER=memory
// and tests). One mutex makes CreateVersion atomic.
type MemoryDefinitionRepository struct {
	mu   sync.RWMutex
	defs []Definition
}

func NewMemoryDefinitionRepository() *MemoryDefinitionRepository {
	return &MemoryDefinitionRepository{}
}

func (r *MemoryDefinitionRepository) EnsureIndexes(context.Context) error { return nil }

func (r *MemoryDefinitionRepository) FindActive(_ context.Context, tenantID, workflowID string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Definition
	for i := range r.defs {
		d := &r.defs[i]
		if d.TenantID == tenantID && d.WorkflowID == workflowID && d.IsActive {
			if best == nil || d.Version > best.Version {
				best = d
			}
		}
	}
	if best == nil {
		return nil, ErrWorkflowNotFound
	}
	return cloneDefinition(best), nil
}

func (r *MemoryDefinitionRepository) FindVersion(_ context.Context, tenantID, workflowID string, version int) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.defs {
		d := &r.defs[i]
		if d.TenantID == tenantID && d.WorkflowID == workflowID && d.Version == version {
			return cloneDefinition(d), nil
		}
	}
	return nil, ErrWorkflowNotFound
}

func (r *MemoryDefinitionRepository) ListActive(_ context.Context, tenantID string) ([]Definition, error) {
	return r.filter(func(d *Definition) bool { return d.TenantID == tenantID && d.IsActive }), nil
}

func (r *MemoryDefinitionRepository) ListAllActive(context.Context) ([]Definition, error) {
	return r.filter(func(d *Definition) bool { return d.IsActive }), nil
}

func (r *MemoryDefinitionRepository) filter(keep func(*Definition) bool) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Definition{}
	for i := range r.defs {
		if keep(&r.defs[i]) {
			out = append(out, *cloneDefinition(&r.defs[i]))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].WorkflowID < out[j].WorkflowID
	})
	return out
}

func (r *MemoryDefinitionRepository) CreateVersion(_ context.Context, def *Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	latest := 0
	for i := range r.defs {
		d := &r.defs[i]
		if d.TenantID == def.TenantID && d.WorkflowID == def.WorkflowID && d.Version > latest {
			latest = d.Version
		}
	}
	def.Version = latest + 1

	for i := range r.defs {
		d := &r.defs[i]
		if def.IsActive && d.TenantID == def.TenantID && d.WorkflowID == def.WorkflowID {
			d.IsActive = false
		}
	}

	r.defs = append(r.defs, *cloneDefinition(def))
	return nil
}

func cloneDefinition(d *Definition) *Definition {
	c := *d
	c.Stages = append([]Stage(nil), d.Stages...)
	c.Transitions = append([]Transition(nil), d.Transitions...)
	c.AutoRules = append([]AutoRule(nil), d.AutoRules...)
	return &c
}
