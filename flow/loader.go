package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"chatbet/models"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

type flowDoc struct {
	Name           string    `yaml:"name"`
	TriggerKeyword string    `yaml:"trigger_keyword"`
	EntryAction    string    `yaml:"entry_action"`
	Priority       int       `yaml:"priority"`
	Steps          []stepDoc `yaml:"steps"`
}

type stepDoc struct {
	Name         string          `yaml:"name"`
	StepType     string          `yaml:"step_type"`
	IsEntryPoint bool            `yaml:"is_entry_point"`
	Config       map[string]any  `yaml:"config"`
	Transitions  []transitionDoc `yaml:"transitions"`
}

type transitionDoc struct {
	Priority      int            `yaml:"priority"`
	ConditionType string         `yaml:"condition_type"`
	Condition     map[string]any `yaml:"condition"`
	NextStep      string         `yaml:"next_step"`
}

var validStepTypes = map[string]bool{
	models.StepTypeQuestion:    true,
	models.StepTypeAction:      true,
	models.StepTypeSendMessage: true,
	models.StepTypeEndFlow:     true,
}

var validConditionTypes = map[string]bool{
	models.CondAlwaysTrue:         true,
	models.CondVariableEquals:     true,
	models.CondInteractiveReplyID: true,
	models.CondKeywordMatch:       true,
	models.CondVariableExists:     true,
	models.CondReplyValid:         true,
	models.CondEventTypeEquals:    true,
}

// LoadDir parses every *.yaml / *.yml flow definition in dir and validates
// each graph before it is admitted to the registry.
func LoadDir(dir string) ([]*models.Flow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read flow dir %s: %w", dir, err)
	}

	var flows []*models.Flow
	seen := make(map[string]string)
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		fl, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[fl.Name]; dup {
			return nil, fmt.Errorf("flow %q defined in both %s and %s", fl.Name, prev, path)
		}
		seen[fl.Name] = path
		flows = append(flows, fl)
	}
	return flows, nil
}

func LoadFile(path string) (*models.Flow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fl, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fl, nil
}

// Parse decodes one YAML flow document into the model graph.
func Parse(raw []byte) (*models.Flow, error) {
	var doc flowDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	fl := &models.Flow{
		Name:           doc.Name,
		TriggerKeyword: doc.TriggerKeyword,
		EntryAction:    doc.EntryAction,
		Priority:       doc.Priority,
		IsActive:       true,
	}
	for _, sd := range doc.Steps {
		cfg, err := json.Marshal(sd.Config)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", sd.Name, err)
		}
		step := models.FlowStep{
			Name:         sd.Name,
			StepType:     sd.StepType,
			IsEntryPoint: sd.IsEntryPoint,
			Config:       cfg,
		}
		for _, td := range sd.Transitions {
			cond, err := json.Marshal(td.Condition)
			if err != nil {
				return nil, fmt.Errorf("step %s transition: %w", sd.Name, err)
			}
			step.Transitions = append(step.Transitions, models.FlowTransition{
				Priority:        td.Priority,
				ConditionType:   td.ConditionType,
				ConditionConfig: cond,
				NextStepName:    td.NextStep,
			})
		}
		fl.Steps = append(fl.Steps, step)
	}

	if err := Validate(fl); err != nil {
		return nil, err
	}
	return fl, nil
}

// Validate enforces the graph invariants: a non-empty name, unique step
// names, exactly one entry point, known step and condition types, and
// resolvable transition targets. Cycles are allowed.
func Validate(fl *models.Flow) error {
	if fl.Name == "" {
		return fmt.Errorf("flow has no name")
	}
	if fl.TriggerKeyword == "" && fl.EntryAction == "" {
		return fmt.Errorf("flow %s: no trigger keyword and no entry action", fl.Name)
	}
	if len(fl.Steps) == 0 {
		return fmt.Errorf("flow %s: no steps", fl.Name)
	}

	names := make(map[string]bool, len(fl.Steps))
	entries := 0
	for i := range fl.Steps {
		step := &fl.Steps[i]
		if step.Name == "" {
			return fmt.Errorf("flow %s: step %d has no name", fl.Name, i)
		}
		if names[step.Name] {
			return fmt.Errorf("flow %s: duplicate step name %q", fl.Name, step.Name)
		}
		names[step.Name] = true
		if step.IsEntryPoint {
			entries++
		}
		if !validStepTypes[step.StepType] {
			return fmt.Errorf("flow %s step %s: unknown step type %q", fl.Name, step.Name, step.StepType)
		}
		if step.StepType == models.StepTypeEndFlow && len(step.Transitions) > 0 {
			return fmt.Errorf("flow %s step %s: end_flow steps take no transitions", fl.Name, step.Name)
		}
	}
	if entries != 1 {
		return fmt.Errorf("flow %s: expected exactly one entry point, found %d", fl.Name, entries)
	}

	for i := range fl.Steps {
		step := &fl.Steps[i]
		for _, tr := range step.Transitions {
			if !validConditionTypes[tr.ConditionType] {
				return fmt.Errorf("flow %s step %s: unknown condition type %q",
					fl.Name, step.Name, tr.ConditionType)
			}
			if tr.NextStepName == "" || !names[tr.NextStepName] {
				return fmt.Errorf("flow %s step %s: transition targets unknown step %q",
					fl.Name, step.Name, tr.NextStepName)
			}
		}
		if step.StepType == models.StepTypeQuestion {
			var cfg QuestionConfig
			if err := decodeConfig(step.Config, &cfg); err != nil {
				return fmt.Errorf("flow %s step %s: bad question config: %w", fl.Name, step.Name, err)
			}
			target := cfg.ActionAfterMaxRetries
			if target != "" && target != "end_flow" && !names[target] {
				return fmt.Errorf("flow %s step %s: action_after_max_retries targets unknown step %q",
					fl.Name, step.Name, target)
			}
		}
	}
	return nil
}

// SeedDatabase resyncs the flow tables from the loaded definitions. The DB
// mirror exists for admin visibility and reporting; the engine reads the
// in-memory registry.
func SeedDatabase(db *gorm.DB, flows []*models.Flow) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, fl := range flows {
			var existing models.Flow
			err := tx.Where("name = ?", fl.Name).First(&existing).Error
			if err == nil {
				// FK constraints cascade to steps and transitions.
				if err := tx.Unscoped().Delete(&existing).Error; err != nil {
					return err
				}
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			cp := *fl
			cp.ID = 0
			if err := tx.Create(&cp).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
