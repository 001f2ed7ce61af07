package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"chatbet/metrics"
	"chatbet/models"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

// ActionSwitchFlow is handled by the engine itself: it discards the current
// cursor and re-enters another flow, terminating the current traversal.
const ActionSwitchFlow = "switch_flow"

const traversalBudget = 50

var (
	// ErrDeadEnd marks a configuration defect: an action or send_message
	// step with no matching outgoing transition.
	ErrDeadEnd = errors.New("no matching transition from non-question step")

	ErrTraversalBudget = errors.New("traversal exceeded step budget")
	ErrUnknownAction   = errors.New("unknown action handler")
	ErrUnknownStep     = errors.New("state references unknown step")
)

// Store persists the per-contact cursor between inbound messages. GetState
// returns (nil, nil) when the contact has no live cursor.
type Store interface {
	GetState(contactID uint) (*models.ContactFlowState, error)
	SaveState(st *models.ContactFlowState) error
	DeleteState(contactID uint) error
}

// ActionFunc is the uniform handler contract. Expected business failures are
// outcome values; an error return means a true fault and aborts the traversal
// before the faulting step is persisted.
type ActionFunc func(ctx context.Context, fc Context, params map[string]any) (outcome string, err error)

type Engine struct {
	store    Store
	registry *Registry
	actions  map[string]ActionFunc
	locks    sync.Map // contactID -> *sync.Mutex
	log      zerolog.Logger
}

func NewEngine(store Store, registry *Registry, log zerolog.Logger) *Engine {
	return &Engine{
		store:    store,
		registry: registry,
		actions:  make(map[string]ActionFunc),
		log:      log,
	}
}

func (e *Engine) RegisterAction(name string, fn ActionFunc) {
	e.actions[name] = fn
}

func (e *Engine) contactLock(contactID uint) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(contactID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Advance runs one bounded traversal for one inbound event. Per-contact
// serialization: two concurrent messages for the same contact never
// interleave mutations of the same cursor.
func (e *Engine) Advance(ctx context.Context, contact *models.Contact, ev Event) ([]Outbound, error) {
	mu := e.contactLock(contact.ID)
	mu.Lock()
	defer mu.Unlock()

	st, err := e.store.GetState(contact.ID)
	if err != nil {
		return nil, err
	}

	t := &traversal{engine: e, ctx: ctx, contact: contact, ev: ev}

	if st == nil {
		fl := e.resolveEntry(ctx, ev)
		if fl == nil {
			return nil, nil // no flow wants this message
		}
		entry := EntryStep(fl)
		t.fl = fl
		t.st = &models.ContactFlowState{
			ContactID: contact.ID,
			FlowName:  fl.Name,
			StepName:  entry.Name,
			Context:   seedContext(contact),
		}
		t.fresh = true
	} else {
		fl, ok := e.registry.Get(st.FlowName)
		if !ok {
			// Flow removed from config while a contact was inside it.
			e.log.Warn().Str("flow", st.FlowName).Uint("contact", contact.ID).
				Msg("live cursor references unknown flow, resetting")
			if err := e.store.DeleteState(contact.ID); err != nil {
				return nil, err
			}
			return nil, nil
		}
		t.fl = fl
		t.st = st
		t.fresh = false
	}

	out, err := t.run()
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.FlowTraversalsTotal.WithLabelValues(t.fl.Name, result).Inc()
	return out, err
}

// resolveEntry evaluates every registered flow's entry predicate in priority
// order: a trigger keyword match, or an entry action returning "true".
func (e *Engine) resolveEntry(ctx context.Context, ev Event) *models.Flow {
	for _, fl := range e.registry.Flows() {
		if !fl.IsActive {
			continue
		}
		if fl.TriggerKeyword != "" && ev.Type == EventText &&
			strings.EqualFold(strings.TrimSpace(ev.Text), fl.TriggerKeyword) {
			return fl
		}
		if fl.EntryAction != "" {
			fn, ok := e.actions[fl.EntryAction]
			if !ok {
				e.log.Warn().Str("flow", fl.Name).Str("action", fl.EntryAction).
					Msg("entry action not registered")
				continue
			}
			outcome, err := fn(ctx, Context{}, nil)
			if err != nil {
				e.log.Error().Err(err).Str("flow", fl.Name).Msg("entry action fault")
				continue
			}
			if outcome == "true" {
				return fl
			}
		}
	}
	return nil
}

type traversal struct {
	engine  *Engine
	ctx     context.Context
	contact *models.Contact
	st      *models.ContactFlowState
	fl      *models.Flow
	ev      Event
	fresh   bool // arrived at the current step within this traversal
	out     []Outbound
}

func (t *traversal) fc() Context {
	if t.st.Context == nil {
		t.st.Context = datatypes.JSONMap{}
	}
	return Context(t.st.Context)
}

func (t *traversal) emit(o Outbound) {
	t.out = append(t.out, o)
}

func (t *traversal) save() error {
	return t.engine.store.SaveState(t.st)
}

func (t *traversal) run() ([]Outbound, error) {
	for i := 0; i < traversalBudget; i++ {
		step := StepByName(t.fl, t.st.StepName)
		if step == nil {
			return t.out, fmt.Errorf("flow %s step %s: %w", t.fl.Name, t.st.StepName, ErrUnknownStep)
		}

		var (
			next string
			stop bool
			err  error
		)
		switch step.StepType {
		case models.StepTypeQuestion:
			next, stop, err = t.question(step)
		case models.StepTypeAction:
			next, stop, err = t.action(step)
		case models.StepTypeSendMessage:
			next, stop, err = t.sendMessage(step)
		case models.StepTypeEndFlow:
			return t.out, t.endFlow(step)
		default:
			return t.out, fmt.Errorf("flow %s step %s: unknown step type %q", t.fl.Name, step.Name, step.StepType)
		}

		if err != nil || stop {
			return t.out, err
		}
		t.st.StepName = next
		t.st.RetryCount = 0
		t.fresh = true
		if err := t.save(); err != nil {
			return t.out, err
		}
	}
	return t.out, fmt.Errorf("flow %s: %w", t.fl.Name, ErrTraversalBudget)
}

// question either prompts (fresh arrival) or treats the pending event as the
// contact's reply.
func (t *traversal) question(step *models.FlowStep) (string, bool, error) {
	var cfg QuestionConfig
	if err := decodeConfig(step.Config, &cfg); err != nil {
		return "", true, fmt.Errorf("flow %s step %s: %w", t.fl.Name, step.Name, err)
	}

	if t.fresh {
		if cfg.Prompt != "" {
			t.emit(TextMessage(RenderTemplate(cfg.Prompt, t.fc())))
		}
		return "", true, t.save()
	}

	// Event-gated escape transitions fire before reply validation, so a
	// payment callback can move a contact parked on a text question. Only
	// event_type_equals edges participate: everything else waits for the
	// reply path below, where save_to_variable happens.
	if !t.ev.IsZero() {
		if next, matched, err := t.pickEventTransition(step); err != nil {
			return "", true, err
		} else if matched {
			t.ev = Event{}
			t.st.RetryCount = 0
			return next, false, nil
		}
	}

	value, ok := ValidateReply(cfg, t.ev)
	if !ok {
		return t.invalidReply(step, cfg)
	}

	if cfg.SaveToVariable != "" {
		t.fc().Set(cfg.SaveToVariable, value)
	}
	t.st.RetryCount = 0

	next, matched, err := t.pickTransition(step, true)
	if err != nil {
		return "", true, err
	}
	t.ev = Event{} // reply consumed
	if !matched {
		// Valid for questions: stall and wait for the next inbound event.
		return "", true, t.save()
	}
	return next, false, nil
}

func (t *traversal) invalidReply(step *models.FlowStep, cfg QuestionConfig) (string, bool, error) {
	t.st.RetryCount++
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	if t.st.RetryCount < maxRetries {
		prompt := cfg.RetryPrompt
		if prompt == "" {
			prompt = cfg.Prompt
		}
		if prompt != "" {
			t.emit(TextMessage(RenderTemplate(prompt, t.fc())))
		}
		return "", true, t.save()
	}

	// Retries exhausted.
	t.ev = Event{}
	switch cfg.ActionAfterMaxRetries {
	case "", "end_flow":
		if cfg.MaxRetriesMessage != "" {
			t.emit(TextMessage(RenderTemplate(cfg.MaxRetriesMessage, t.fc())))
		}
		return "", true, t.engine.store.DeleteState(t.st.ContactID)
	default:
		// Treated as a step name to jump to.
		if StepByName(t.fl, cfg.ActionAfterMaxRetries) == nil {
			return "", true, fmt.Errorf("flow %s step %s: action_after_max_retries %q: %w",
				t.fl.Name, step.Name, cfg.ActionAfterMaxRetries, ErrUnknownStep)
		}
		return cfg.ActionAfterMaxRetries, false, nil
	}
}

// action runs each configured handler against a copy of the context, so a
// fault leaves no half-mutated state behind: the cursor is only persisted
// after the whole step completes.
func (t *traversal) action(step *models.FlowStep) (string, bool, error) {
	var cfg ActionConfig
	if err := decodeConfig(step.Config, &cfg); err != nil {
		return "", true, fmt.Errorf("flow %s step %s: %w", t.fl.Name, step.Name, err)
	}

	work := t.fc().Clone()
	for _, spec := range cfg.Actions {
		if spec.Name == ActionSwitchFlow {
			return t.switchFlow(spec, work)
		}
		fn, ok := t.engine.actions[spec.Name]
		if !ok {
			return "", true, fmt.Errorf("flow %s step %s: action %q: %w",
				t.fl.Name, step.Name, spec.Name, ErrUnknownAction)
		}
		outcome, err := fn(t.ctx, work, spec.Params)
		if err != nil {
			return "", true, fmt.Errorf("flow %s step %s: action %q: %w",
				t.fl.Name, step.Name, spec.Name, err)
		}
		if spec.OutputVariable != "" {
			work.Set(spec.OutputVariable, outcome)
		}
	}
	t.st.Context = datatypes.JSONMap(work)

	next, matched, err := t.pickTransition(step, false)
	if err != nil {
		return "", true, err
	}
	if !matched {
		if saveErr := t.save(); saveErr != nil {
			return "", true, saveErr
		}
		return "", true, fmt.Errorf("flow %s step %s: %w", t.fl.Name, step.Name, ErrDeadEnd)
	}
	return next, false, nil
}

// switchFlow discards the current cursor and immediately re-enters another
// flow, without traversing further transitions from the switching step.
func (t *traversal) switchFlow(spec ActionSpec, work Context) (string, bool, error) {
	var target *models.Flow
	if name, _ := spec.Params["flow"].(string); name != "" {
		target, _ = t.engine.registry.Get(name)
	} else if keyword, _ := spec.Params["keyword"].(string); keyword != "" {
		target, _ = t.engine.registry.GetByKeyword(keyword)
	}
	if target == nil {
		return "", true, fmt.Errorf("flow %s: switch_flow target not found", t.fl.Name)
	}

	if err := t.engine.store.DeleteState(t.st.ContactID); err != nil {
		return "", true, err
	}

	carry := seedContext(t.contact)
	if keep := toStringSlice(spec.Params["carry_variables"]); len(keep) > 0 {
		for _, k := range keep {
			if work.Has(k) {
				carry[k] = work[k]
			}
		}
	}

	t.fl = target
	t.st = &models.ContactFlowState{
		ContactID: t.st.ContactID,
		FlowName:  target.Name,
		StepName:  EntryStep(target).Name,
		Context:   carry,
	}
	t.ev = Event{}
	t.fresh = true
	if err := t.save(); err != nil {
		return "", true, err
	}
	return t.st.StepName, true, t.continueRun()
}

// continueRun resumes the main loop after a flow switch.
func (t *traversal) continueRun() error {
	_, err := t.run()
	return err
}

func (t *traversal) sendMessage(step *models.FlowStep) (string, bool, error) {
	var cfg SendMessageConfig
	if err := decodeConfig(step.Config, &cfg); err != nil {
		return "", true, fmt.Errorf("flow %s step %s: %w", t.fl.Name, step.Name, err)
	}

	msgType := cfg.MessageType
	if msgType == "" {
		msgType = "text"
	}
	t.emit(Outbound{Type: msgType, Text: RenderTemplate(cfg.Text, t.fc()), Meta: cfg.Meta})

	next, matched, err := t.pickTransition(step, false)
	if err != nil {
		return "", true, err
	}
	if !matched {
		if saveErr := t.save(); saveErr != nil {
			return "", true, saveErr
		}
		return "", true, fmt.Errorf("flow %s step %s: %w", t.fl.Name, step.Name, ErrDeadEnd)
	}
	return next, false, nil
}

func (t *traversal) endFlow(step *models.FlowStep) error {
	var cfg EndFlowConfig
	if err := decodeConfig(step.Config, &cfg); err != nil {
		return fmt.Errorf("flow %s step %s: %w", t.fl.Name, step.Name, err)
	}
	if cfg.FinalMessage != "" {
		t.emit(TextMessage(RenderTemplate(cfg.FinalMessage, t.fc())))
	}
	return t.engine.store.DeleteState(t.st.ContactID)
}

// pickTransition evaluates outgoing transitions in ascending priority order
// and returns the first match.
func (t *traversal) pickTransition(step *models.FlowStep, replyValid bool) (string, bool, error) {
	for _, tr := range sortedTransitions(step) {
		ok, err := EvaluateCondition(tr, t.ev, t.fc(), replyValid)
		if err != nil {
			return "", false, fmt.Errorf("flow %s step %s: %w", t.fl.Name, step.Name, err)
		}
		if ok {
			if StepByName(t.fl, tr.NextStepName) == nil {
				return "", false, fmt.Errorf("flow %s step %s -> %s: %w",
					t.fl.Name, step.Name, tr.NextStepName, ErrUnknownStep)
			}
			return tr.NextStepName, true, nil
		}
	}
	return "", false, nil
}

// pickEventTransition is the restricted pre-validation pass on question
// steps: only event_type_equals transitions are considered.
func (t *traversal) pickEventTransition(step *models.FlowStep) (string, bool, error) {
	for _, tr := range sortedTransitions(step) {
		if tr.ConditionType != models.CondEventTypeEquals {
			continue
		}
		ok, err := EvaluateCondition(tr, t.ev, t.fc(), false)
		if err != nil {
			return "", false, fmt.Errorf("flow %s step %s: %w", t.fl.Name, step.Name, err)
		}
		if ok {
			if StepByName(t.fl, tr.NextStepName) == nil {
				return "", false, fmt.Errorf("flow %s step %s -> %s: %w",
					t.fl.Name, step.Name, tr.NextStepName, ErrUnknownStep)
			}
			return tr.NextStepName, true, nil
		}
	}
	return "", false, nil
}

func sortedTransitions(step *models.FlowStep) []models.FlowTransition {
	transitions := make([]models.FlowTransition, len(step.Transitions))
	copy(transitions, step.Transitions)
	sort.SliceStable(transitions, func(i, j int) bool { return transitions[i].Priority < transitions[j].Priority })
	return transitions
}

// seedContext pre-populates the identity variables every handler needs.
func seedContext(contact *models.Contact) datatypes.JSONMap {
	return datatypes.JSONMap{
		"wa_id":      contact.WaID,
		"contact_id": int64(contact.ID),
	}
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
