package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSuggestPrompt(t *testing.T) {
	t.Run("first why", func(t *testing.T) {
		system, user := buildSuggestPrompt(ProblemContext{Title: "Line down"}, 3)

		assert.Contains(t, system, "JSON array")
		assert.Contains(t, system, `"why"`)
		assert.Contains(t, system, `"rationale"`)
		assert.Contains(t, system, `"likely_root_cause"`)

		assert.Contains(t, user, "Problem: Line down")
		assert.NotContains(t, user, "Why chain so far")
		assert.Contains(t, user, "Propose 3 candidate answers for Why #1.")
	})

	t.Run("with chain and siblings", func(t *testing.T) {
		_, user := buildSuggestPrompt(ProblemContext{
			Title:       "Line down",
			Description: "Conveyor 3 halted for 2h",
			Chain:       []string{"Machine stopped", "Sensor failed"},
			Siblings:    []string{"Cable cut"},
		}, 2)

		assert.Contains(t, user, "Description: Conveyor 3 halted for 2h")
		assert.Contains(t, user, "Why #1: Machine stopped")
		assert.Contains(t, user, "Why #2: Sensor failed")
		assert.Contains(t, user, "- Cable cut")
		assert.Contains(t, user, "for Why #3.")
	})
}

func TestBuildActionPlanPrompt(t *testing.T) {
	system, user := buildActionPlanPrompt("Line down", "No preventive maintenance for sensors")

	assert.Contains(t, system, `"action_plan"`)
	assert.Contains(t, system, "JSON")
	assert.Contains(t, user, "Problem: Line down")
	assert.Contains(t, user, "Root cause: No preventive maintenance for sensors")
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `[{"why":"x"}]`, `[{"why":"x"}]`},
		{"json fence", "```json\n[{\"why\":\"x\"}]\n```", `[{"why":"x"}]`},
		{"bare fence", "```\n{}\n```", `{}`},
		{"whitespace", "  \n{}\n ", `{}`},
		{"fence only", "```", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFence(tt.in))
		})
	}
}

func TestBuildSuggestPromptLongContent(t *testing.T) {
	desc := strings.Repeat("x", 10000)
	_, user := buildSuggestPrompt(ProblemContext{Title: "t", Description: desc}, 1)
	assert.Contains(t, user, desc)
}
