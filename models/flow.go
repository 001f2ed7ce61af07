package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StepTypeQuestion    = "question"
	StepTypeAction      = "action"
	StepTypeSendMessage = "send_message"
	StepTypeEndFlow     = "end_flow"
)

const (
	CondAlwaysTrue         = "always_true"
	CondVariableEquals     = "variable_equals"
	CondInteractiveReplyID = "interactive_reply_id_equals"
	CondKeywordMatch       = "keyword_match"
	CondVariableExists     = "variable_exists"
	CondReplyValid         = "reply_valid"
	CondEventTypeEquals    = "event_type_equals"
)

// Flow is a named directed graph of conversational steps. The graph is
// authored declaratively (YAML) and mirrored into these tables; step names
// are unique within a flow and cycles are allowed.
type Flow struct {
	gorm.Model

	Name           string `gorm:"uniqueIndex;size:64" json:"name" yaml:"name"`
	TriggerKeyword string `gorm:"size:64" json:"trigger_keyword" yaml:"trigger_keyword"`
	EntryAction    string `gorm:"size:64" json:"entry_action" yaml:"entry_action"`
	Priority       int    `gorm:"default:100" json:"priority" yaml:"priority"`
	IsActive       bool   `gorm:"default:true" json:"is_active" yaml:"is_active"`

	Steps []FlowStep `gorm:"foreignKey:FlowID;constraint:OnDelete:CASCADE" json:"steps" yaml:"steps"`
}

type FlowStep struct {
	gorm.Model

	FlowID       uint           `gorm:"index:idx_flow_step,unique" json:"-" yaml:"-"`
	Name         string         `gorm:"size:64;index:idx_flow_step,unique" json:"name" yaml:"name"`
	StepType     string         `gorm:"size:32" json:"step_type" yaml:"step_type"`
	IsEntryPoint bool           `gorm:"default:false" json:"is_entry_point" yaml:"is_entry_point"`
	Config       datatypes.JSON `gorm:"type:jsonb" json:"config" yaml:"-"`

	Transitions []FlowTransition `gorm:"foreignKey:StepID;constraint:OnDelete:CASCADE" json:"transitions" yaml:"transitions"`
}

// FlowTransition is one outgoing edge of a step. Lower priority evaluates
// first; the first true condition is taken.
type FlowTransition struct {
	gorm.Model

	StepID          uint           `json:"-" yaml:"-"`
	Priority        int            `gorm:"default:0" json:"priority" yaml:"priority"`
	ConditionType   string         `gorm:"size:48" json:"condition_type" yaml:"condition_type"`
	ConditionConfig datatypes.JSON `gorm:"type:jsonb" json:"condition_config" yaml:"-"`
	NextStepName    string         `gorm:"size:64" json:"next_step" yaml:"next_step"`
}
