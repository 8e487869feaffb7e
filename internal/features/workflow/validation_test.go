package workflow

import (
	"testing"

	"github.com/Altroz1812/wfm-sep-loanzen/pkg/sentinel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsWellFormedDraft(t *testing.T) {
	draft := reviewDraft()
	draft.AutoRules = []AutoRule{
		{ID: "r1", Stage: "review", Trigger: TriggerOnEnter, Action: "call:credit_check"},
		{ID: "r2", Stage: "review", Trigger: TriggerScheduled, Action: "call:sla_reminder", Params: map[string]any{"schedule": "*/15 * * * *"}},
		{ID: "r3", Stage: "done", Trigger: TriggerOnExit, Action: "script:tag", Params: map[string]any{"script": "out := 1"}, Condition: "amount > 100"},
	}
	assert.NoError(t, draft.Validate())
}

func TestValidateReportsEveryProblem(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *DefinitionDraft)
		want   string
	}{
		{"missing name", func(d *DefinitionDraft) { d.Name = "" }, "name is required"},
		{"no stages", func(d *DefinitionDraft) { d.Stages = nil; d.Transitions = nil }, "at least one stage"},
		{"duplicate stage", func(d *DefinitionDraft) { d.Stages = append(d.Stages, Stage{ID: "draft"}) }, "duplicate id"},
		{"unknown target", func(d *DefinitionDraft) { d.Transitions[0].To = "limbo" }, `unknown to stage "limbo"`},
		{"no roles", func(d *DefinitionDraft) { d.Transitions[0].Roles = nil }, "at least one role"},
		{"ambiguous action", func(d *DefinitionDraft) {
			d.Transitions = append(d.Transitions, Transition{ID: "t3", From: "draft", To: "done", Roles: []string{"Admin"}, Actions: []string{"submit"}})
		}, `already handled by "t1"`},
		{"bad condition", func(d *DefinitionDraft) { d.Transitions[0].Condition = "amount >" }, `transition "t1"`},
		{"bad trigger", func(d *DefinitionDraft) {
			d.AutoRules = []AutoRule{{ID: "r1", Stage: "draft", Trigger: "onWhim", Action: "call:x"}}
		}, "unknown trigger"},
		{"bad schedule", func(d *DefinitionDraft) {
			d.AutoRules = []AutoRule{{ID: "r1", Stage: "draft", Trigger: TriggerScheduled, Action: "call:x", Params: map[string]any{"schedule": "every tuesday"}}}
		}, "invalid schedule"},
		{"unsupported action", func(d *DefinitionDraft) {
			d.AutoRules = []AutoRule{{ID: "r1", Stage: "draft", Trigger: TriggerOnEnter, Action: "email:someone"}}
		}, "unsupported action"},
		{"script without source", func(d *DefinitionDraft) {
			d.AutoRules = []AutoRule{{ID: "r1", Stage: "draft", Trigger: TriggerOnEnter, Action: "script:tag"}}
		}, "params.script is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := reviewDraft()
			tt.mutate(&draft)
			err := draft.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, sentinel.ErrInvalidDefinition)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFindTransitionUsesFirstMatch(t *testing.T) {
	def := &Definition{
		Stages: []Stage{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		Transitions: []Transition{
			{ID: "t1", From: "a", To: "b", Actions: []string{"go"}},
			{ID: "t2", From: "a", To: "c", Actions: []string{"go", "skip"}},
		},
	}

	tr, ok := def.FindTransition("a", "go")
	require.True(t, ok)
	assert.Equal(t, "t1", tr.ID)

	tr, ok = def.FindTransition("a", "skip")
	require.True(t, ok)
	assert.Equal(t, "c", tr.To)

	_, ok = def.FindTransition("b", "go")
	assert.False(t, ok)

	initial, ok := def.InitialStage()
	require.True(t, ok)
	assert.Equal(t, "a", initial.ID)
	assert.Len(t, def.TransitionsFrom("a"), 2)
}

func TestGuardOfCorruptConditionNeverHolds(t *testing.T) {
	tr := Transition{Condition: "amount >"}
	assert.False(t, tr.Guard().Evaluate(map[string]any{"amount": 5}))

	tr = Transition{Condition: ""}
	assert.True(t, tr.Guard().Evaluate(nil))
}
