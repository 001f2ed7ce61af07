package flow

import (
	"context"
	"sync"
	"testing"

	"chatbet/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	states map[uint]*models.ContactFlowState
}

func newMemStore() *memStore {
	return &memStore{states: make(map[uint]*models.ContactFlowState)}
}

func (s *memStore) GetState(contactID uint) (*models.ContactFlowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[contactID]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (s *memStore) SaveState(st *models.ContactFlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.states[st.ContactID] = &cp
	return nil
}

func (s *memStore) DeleteState(contactID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, contactID)
	return nil
}

const quizFlow = `
name: quiz
trigger_keyword: start
priority: 1
steps:
  - name: ask_color
    step_type: question
    is_entry_point: true
    config:
      prompt: "Favourite colour?"
      reply_type: text
      save_to_variable: colour
      max_retries: 2
      action_after_max_retries: end_flow
      max_retries_message: "Never mind."
    transitions:
      - condition_type: reply_valid
        next_step: thanks
  - name: thanks
    step_type: send_message
    config:
      text: "Nice, {{colour}}!"
    transitions:
      - condition_type: always_true
        next_step: finish
  - name: finish
    step_type: end_flow
    config:
      final_message: "All done."
`

func mustParse(t *testing.T, raw string) *models.Flow {
	t.Helper()
	fl, err := Parse([]byte(raw))
	require.NoError(t, err)
	return fl
}

func newTestEngine(t *testing.T, store Store, flows ...*models.Flow) *Engine {
	t.Helper()
	return NewEngine(store, NewRegistry(flows), zerolog.Nop())
}

func testContact() *models.Contact {
	c := &models.Contact{WaID: "254700000001"}
	c.ID = 7
	return c
}

func TestAdvanceIgnoresUnmatchedMessage(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, mustParse(t, quizFlow))

	out, err := e.Advance(context.Background(), testContact(), Event{Type: EventText, Text: "what"})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, store.states)
}

func TestAdvanceKeywordEntryPromptsAndParks(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, mustParse(t, quizFlow))

	out, err := e.Advance(context.Background(), testContact(), Event{Type: EventText, Text: "Start"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Favourite colour?", out[0].Text)

	st := store.states[7]
	require.NotNil(t, st)
	assert.Equal(t, "quiz", st.FlowName)
	assert.Equal(t, "ask_color", st.StepName)
	assert.Equal(t, "254700000001", st.Context["wa_id"])
}

func TestAdvanceValidReplyRunsToEnd(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, mustParse(t, quizFlow))
	contact := testContact()

	_, err := e.Advance(context.Background(), contact, Event{Type: EventText, Text: "start"})
	require.NoError(t, err)

	out, err := e.Advance(context.Background(), contact, Event{Type: EventText, Text: "blue"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Nice, blue!", out[0].Text)
	assert.Equal(t, "All done.", out[1].Text)
	assert.Empty(t, store.states, "cursor removed after end_flow")
}

func TestAdvanceRetriesThenGivesUp(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, mustParse(t, quizFlow))
	contact := testContact()

	_, err := e.Advance(context.Background(), contact, Event{Type: EventText, Text: "start"})
	require.NoError(t, err)

	// First invalid reply re-prompts and bumps the retry counter.
	out, err := e.Advance(context.Background(), contact, Event{Type: EventText, Text: "   "})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Favourite colour?", out[0].Text)
	assert.Equal(t, 1, store.states[7].RetryCount)

	// Second invalid reply exhausts max_retries=2 and ends the flow.
	out, err = e.Advance(context.Background(), contact, Event{Type: EventText, Text: ""})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Never mind.", out[0].Text)
	assert.Empty(t, store.states)
}

const routerFlow = `
name: router
trigger_keyword: go
steps:
  - name: decide
    step_type: action
    is_entry_point: true
    config:
      actions:
        - name: classify
          output_variable_name: verdict
    transitions:
      - priority: 1
        condition_type: variable_equals
        condition:
          variable: verdict
          value: good
        next_step: yay
      - priority: 2
        condition_type: always_true
        next_step: nay
  - name: yay
    step_type: end_flow
    config:
      final_message: "yay"
  - name: nay
    step_type: end_flow
    config:
      final_message: "nay"
`

func TestActionOutcomeRouting(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, mustParse(t, routerFlow))
	e.RegisterAction("classify", func(ctx context.Context, fc Context, params map[string]any) (string, error) {
		return "good", nil
	})

	out, err := e.Advance(context.Background(), testContact(), Event{Type: EventText, Text: "go"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "yay", out[0].Text)
}

func TestActionFaultAbortsWithoutPersisting(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, mustParse(t, routerFlow))
	e.RegisterAction("classify", func(ctx context.Context, fc Context, params map[string]any) (string, error) {
		fc.Set("half_done", true)
		return "", assert.AnError
	})

	out, err := e.Advance(context.Background(), testContact(), Event{Type: EventText, Text: "go"})
	require.Error(t, err)
	assert.Empty(t, out)
	if st := store.states[7]; st != nil {
		assert.NotContains(t, st.Context, "half_done", "faulting handler must not leak context writes")
	}
}

const deadEndFlow = `
name: stuck
trigger_keyword: stuck
steps:
  - name: decide
    step_type: action
    is_entry_point: true
    config:
      actions:
        - name: classify
          output_variable_name: verdict
    transitions:
      - condition_type: variable_equals
        condition:
          variable: verdict
          value: never
        next_step: done
  - name: done
    step_type: end_flow
    config: {}
`

func TestActionDeadEndIsAnError(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, mustParse(t, deadEndFlow))
	e.RegisterAction("classify", func(ctx context.Context, fc Context, params map[string]any) (string, error) {
		return "good", nil
	})

	_, err := e.Advance(context.Background(), testContact(), Event{Type: EventText, Text: "stuck"})
	require.ErrorIs(t, err, ErrDeadEnd)
}

const switchSourceFlow = `
name: source
trigger_keyword: begin
steps:
  - name: prep
    step_type: action
    is_entry_point: true
    config:
      actions:
        - name: mint_token
          output_variable_name: token
        - name: switch_flow
          params:
            flow: target
            carry_variables:
              - token
    transitions:
      - condition_type: always_true
        next_step: done
  - name: done
    step_type: end_flow
    config: {}
`

const switchTargetFlow = `
name: target
trigger_keyword: target
steps:
  - name: greet
    step_type: send_message
    is_entry_point: true
    config:
      text: "carried {{token}}"
    transitions:
      - condition_type: always_true
        next_step: bye
  - name: bye
    step_type: end_flow
    config: {}
`

func TestSwitchFlowCarriesVariables(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, mustParse(t, switchSourceFlow), mustParse(t, switchTargetFlow))
	e.RegisterAction("mint_token", func(ctx context.Context, fc Context, params map[string]any) (string, error) {
		return "t123", nil
	})

	out, err := e.Advance(context.Background(), testContact(), Event{Type: EventText, Text: "begin"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "carried t123", out[0].Text)
	assert.Empty(t, store.states, "target flow ran to its end")
}

const waitingFlow = `
name: waiting
trigger_keyword: wait
steps:
  - name: park
    step_type: question
    is_entry_point: true
    config:
      prompt: "Waiting for your payment."
      reply_type: text
      save_to_variable: chatter
    transitions:
      - priority: 1
        condition_type: event_type_equals
        condition:
          event_type: payment_completed
        next_step: paid
      - priority: 2
        condition_type: reply_valid
        next_step: park
  - name: paid
    step_type: end_flow
    config:
      final_message: "Payment received."
`

func TestStructuredEventEscapesQuestion(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, mustParse(t, waitingFlow))
	contact := testContact()

	_, err := e.Advance(context.Background(), contact, Event{Type: EventText, Text: "wait"})
	require.NoError(t, err)
	require.NotNil(t, store.states[7])

	out, err := e.Advance(context.Background(), contact, Event{Type: EventPayment, Payload: map[string]any{"reference": "dep-1"}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Payment received.", out[0].Text)
	assert.Empty(t, store.states)
}

const menuFlow = `
name: menu
trigger_keyword: menu
steps:
  - name: pick
    step_type: question
    is_entry_point: true
    config:
      prompt: "Pick an option."
      reply_type: interactive
      save_to_variable: menu_choice
    transitions:
      - condition_type: interactive_reply_id_equals
        condition:
          reply_id: opt_a
        next_step: chosen
  - name: chosen
    step_type: send_message
    config:
      text: "you chose {{menu_choice}}"
    transitions:
      - condition_type: always_true
        next_step: done
  - name: done
    step_type: end_flow
    config: {}
`

func TestInteractiveReplySavesVariableBeforeRouting(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, mustParse(t, menuFlow))
	contact := testContact()

	_, err := e.Advance(context.Background(), contact, Event{Type: EventText, Text: "menu"})
	require.NoError(t, err)

	out, err := e.Advance(context.Background(), contact, Event{Type: EventInteractive, ReplyID: "opt_a"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "you chose opt_a", out[0].Text)
	assert.Empty(t, store.states)
}

func TestStaleCursorForRemovedFlowResets(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.SaveState(&models.ContactFlowState{
		ContactID: 7,
		FlowName:  "ghost",
		StepName:  "anywhere",
	}))
	e := newTestEngine(t, store, mustParse(t, quizFlow))

	out, err := e.Advance(context.Background(), testContact(), Event{Type: EventText, Text: "hello"})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, store.states, "orphaned cursor dropped")
}

const loopFlow = `
name: loop
trigger_keyword: loop
steps:
  - name: a
    step_type: send_message
    is_entry_point: true
    config:
      text: "a"
    transitions:
      - condition_type: always_true
        next_step: b
  - name: b
    step_type: send_message
    config:
      text: "b"
    transitions:
      - condition_type: always_true
        next_step: a
`

func TestTraversalBudgetStopsCycles(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, store, mustParse(t, loopFlow))

	_, err := e.Advance(context.Background(), testContact(), Event{Type: EventText, Text: "loop"})
	require.ErrorIs(t, err, ErrTraversalBudget)
}
