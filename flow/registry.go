package flow

import (
	"sort"
	"strings"

	"chatbet/models"
)

// Registry holds the loaded flow graphs, ordered by activation priority
// (lower first). It is read-only after startup.
type Registry struct {
	flows  []*models.Flow
	byName map[string]*models.Flow
}

func NewRegistry(flows []*models.Flow) *Registry {
	ordered := make([]*models.Flow, len(flows))
	copy(ordered, flows)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	byName := make(map[string]*models.Flow, len(ordered))
	for _, f := range ordered {
		byName[f.Name] = f
	}
	return &Registry{flows: ordered, byName: byName}
}

func (r *Registry) Flows() []*models.Flow {
	return r.flows
}

func (r *Registry) Get(name string) (*models.Flow, bool) {
	f, ok := r.byName[name]
	return f, ok
}

// GetByKeyword resolves a flow from its trigger keyword, case-insensitive.
func (r *Registry) GetByKeyword(keyword string) (*models.Flow, bool) {
	for _, f := range r.flows {
		if f.TriggerKeyword != "" && strings.EqualFold(f.TriggerKeyword, strings.TrimSpace(keyword)) {
			return f, true
		}
	}
	return nil, false
}

// EntryStep returns the step flagged as the flow's entry point. The loader
// guarantees exactly one exists.
func EntryStep(f *models.Flow) *models.FlowStep {
	for i := range f.Steps {
		if f.Steps[i].IsEntryPoint {
			return &f.Steps[i]
		}
	}
	return nil
}

// StepByName does a linear scan; flows are small graphs.
func StepByName(f *models.Flow, name string) *models.FlowStep {
	for i := range f.Steps {
		if f.Steps[i].Name == name {
			return &f.Steps[i]
		}
	}
	return nil
}
