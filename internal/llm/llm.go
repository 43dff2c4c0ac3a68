package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Suggestion is one candidate answer to the next "why" in a chain.
type Suggestion struct {
	Why             string `json:"why"`
	Rationale       string `json:"rationale"`
	LikelyRootCause bool   `json:"likely_root_cause"`
}

// ProblemContext describes the problem and the why chain being extended.
type ProblemContext struct {
	Title       string
	Description string
	// Chain holds the why statements from the top-level why down to the one
	// being answered. Empty when suggesting a first why.
	Chain []string
	// Siblings are answers already recorded at the level being suggested.
	Siblings []string
}

// Client wraps the Anthropic API for 5-Why assistance.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildSuggestPrompt constructs the system and user prompts for next-why suggestions.
func buildSuggestPrompt(pc ProblemContext, count int) (system string, user string) {
	system = `You assist with 5-Why root cause analysis for 8D problem solving. Given a problem and the chain of "why" answers recorded so far, propose candidate answers to the next "why" question. Return ONLY a JSON array of objects with these fields:
- "why": one sentence stating a plausible cause of the last statement in the chain (or of the problem itself when the chain is empty)
- "rationale": one sentence explaining why this cause is plausible
- "likely_root_cause": true when the cause is systemic and actionable (a process, standard or design gap), false when it is still a symptom worth asking "why" about again

Rules:
- Causes must be concrete and verifiable on the shop floor or in records, not vague ("human error" alone is not acceptable)
- Do not repeat answers already recorded at this level
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Problem: ")
	sb.WriteString(pc.Title)
	sb.WriteString("\n")
	if pc.Description != "" {
		sb.WriteString("Description: ")
		sb.WriteString(pc.Description)
		sb.WriteString("\n")
	}
	if len(pc.Chain) > 0 {
		sb.WriteString("\nWhy chain so far:\n")
		for i, why := range pc.Chain {
			sb.WriteString("Why #")
			sb.WriteString(strconv.Itoa(i + 1))
			sb.WriteString(": ")
			sb.WriteString(why)
			sb.WriteString("\n")
		}
	}
	if len(pc.Siblings) > 0 {
		sb.WriteString("\nAlready recorded at this level:\n")
		for _, s := range pc.Siblings {
			sb.WriteString("- ")
			sb.WriteString(s)
			sb.WriteString("\n")
		}
	}
	fmt.Fprintf(&sb, "\nPropose %d candidate answers for Why #%d.", count, len(pc.Chain)+1)
	user = sb.String()
	return
}

// SuggestWhys asks the LLM for up to count candidate answers to the next why.
func (c *Client) SuggestWhys(ctx context.Context, pc ProblemContext, count int) ([]Suggestion, error) {
	if count <= 0 {
		count = 3
	}
	systemPrompt, userPrompt := buildSuggestPrompt(pc, count)

	text, err := c.complete(ctx, systemPrompt, userPrompt, 2048)
	if err != nil {
		return nil, err
	}

	var suggestions []Suggestion
	if err := json.Unmarshal([]byte(text), &suggestions); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	if len(suggestions) > count {
		suggestions = suggestions[:count]
	}
	return suggestions, nil
}

// buildActionPlanPrompt constructs the prompts for drafting a corrective action.
func buildActionPlanPrompt(problemTitle, rootCause string) (system string, user string) {
	system = `You draft corrective action plans for 8D problem solving (discipline D5/D6). Given a problem and its confirmed root cause, return a JSON object with exactly one field:

- "action_plan": 2-5 short imperative steps, separated by newlines, that remove the root cause permanently. Name an owner role and a verification step.

Rules:
- Return valid JSON only, no markdown fencing or explanation
- Address the root cause, not the symptom`

	user = "Problem: " + problemTitle + "\nRoot cause: " + rootCause + "\n"
	return
}

// DraftActionPlan proposes a corrective action for a confirmed root cause.
func (c *Client) DraftActionPlan(ctx context.Context, problemTitle, rootCause string) (string, error) {
	systemPrompt, userPrompt := buildActionPlanPrompt(problemTitle, rootCause)

	text, err := c.complete(ctx, systemPrompt, userPrompt, 1024)
	if err != nil {
		return "", err
	}

	var out struct {
		ActionPlan string `json:"action_plan"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return "", fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return strings.TrimSpace(out.ActionPlan), nil
}

// complete sends one system+user exchange and returns the first text block
// with any markdown fencing removed.
func (c *Client) complete(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return stripFence(text), nil
}

// stripFence removes a surrounding ```json ... ``` block, if present.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) > 1 {
		text = lines[1]
	} else {
		text = ""
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
