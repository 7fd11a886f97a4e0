// Package orchestrator implements the bounded tool-use agent loop (spec
// §4.1): cache probe, provider call, parse, transcript append, termination
// test, tool dispatch, loop. Grounded on internal/gateway/gateway.go's
// request-lifecycle shape (bind session, call collaborator, log, respond)
// generalized from a single external call into the multi-step loop spec.md
// describes.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/stellarlinkco/agentproxy/internal/cache"
	"github.com/stellarlinkco/agentproxy/internal/policy"
	"github.com/stellarlinkco/agentproxy/internal/provider"
	"github.com/stellarlinkco/agentproxy/internal/session"
	"github.com/stellarlinkco/agentproxy/internal/tool"
)

// TerminationReason is one of the fixed set spec §4.1 names.
type TerminationReason string

const (
	ReasonCompletion       TerminationReason = "completion"
	ReasonCacheHit         TerminationReason = "cache_hit"
	ReasonStepLimit        TerminationReason = "step_limit"
	ReasonToolLimitReached TerminationReason = "tool_limit_reached"
	ReasonDurationLimit    TerminationReason = "duration_limit"
	ReasonProviderError    TerminationReason = "provider_error"
)

// ContentBlock is one element of an Anthropic-shaped message's content
// array — text, a tool_use request, or a tool_result reply.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// Message is a single Anthropic-shaped conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// AssistantMessage is the shape of a Messages API response body.
type AssistantMessage struct {
	ID         string          `json:"id,omitempty"`
	Type       string          `json:"type,omitempty"`
	Role       string          `json:"role"`
	Content    []ContentBlock  `json:"content"`
	StopReason string          `json:"stop_reason,omitempty"`
	Model      string          `json:"model,omitempty"`
	Usage      json.RawMessage `json:"usage,omitempty"`
}

// RequestBody is the inbound POST /v1/messages payload.
type RequestBody struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages"`
	System        json.RawMessage `json:"system,omitempty"`
	Tools         json.RawMessage `json:"tools,omitempty"`
	ToolChoice    json.RawMessage `json:"tool_choice,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	MaxTokens     int             `json:"max_tokens,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	MaxSteps      int             `json:"max_steps,omitempty"`
	MaxDurationMs int64           `json:"max_duration_ms,omitempty"`
}

// Result is what processMessage returns to the HTTP surface.
type Result struct {
	Status            int
	Body              json.RawMessage
	TerminationReason TerminationReason
	ToolCallsExecuted int
}

// Orchestrator wires the provider adapter, cache, policy engine, tool
// executor, and session store into the step loop.
type Orchestrator struct {
	Provider            provider.Provider
	ProviderIsDatabricks bool
	Cache               *cache.Cache
	Policy              *policy.Engine
	Tools               *tool.Executor
	Sessions            *session.Store
	MaxStepsPerTurn     int
	MaxToolCallsPerTurn int
}

// ProcessMessage runs the step loop for one client request against the
// bound sessionID (spec §4.1 "processMessage").
func (o *Orchestrator) ProcessMessage(ctx context.Context, sessionID string, rawBody []byte) (*Result, error) {
	var req RequestBody
	if err := json.Unmarshal(rawBody, &req); err != nil {
		return nil, fmt.Errorf("decode request body: %w", err)
	}

	maxSteps := o.MaxStepsPerTurn
	if req.MaxSteps > 0 {
		maxSteps = req.MaxSteps
	}

	if req.MaxDurationMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.MaxDurationMs)*time.Millisecond)
		defer cancel()
	}

	messages := append([]Message(nil), req.Messages...)
	toolCallsExecuted := 0

	for _, m := range req.Messages {
		if m.Role != "user" {
			continue
		}
		b, err := json.Marshal(m)
		if err != nil {
			continue
		}
		o.appendTurn(sessionID, "user", "message", nil, b)
	}

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return &Result{Status: 200, Body: limitReachedBody("request duration limit reached"), TerminationReason: ReasonDurationLimit, ToolCallsExecuted: toolCallsExecuted}, nil
		}

		key := cache.Key(cache.KeyFields{
			Model:       req.Model,
			Messages:    messages,
			Tools:       rawJSONToAny(req.Tools),
			ToolChoice:  rawJSONToAny(req.ToolChoice),
			Temperature: req.Temperature,
			TopP:        req.TopP,
			MaxTokens:   req.MaxTokens,
		})

		if o.Cache != nil {
			if cached, ok := o.Cache.Get(key); ok {
				o.appendTurn(sessionID, "assistant", "cache_hit", nil, cached)
				return &Result{Status: 200, Body: cached, TerminationReason: ReasonCacheHit, ToolCallsExecuted: toolCallsExecuted}, nil
			}
		}

		providerReq := provider.Request{
			Model:       req.Model,
			Messages:    marshalMessages(messages),
			System:      req.System,
			Tools:       req.Tools,
			ToolChoice:  req.ToolChoice,
			Temperature: req.Temperature,
			TopP:        req.TopP,
			MaxTokens:   req.MaxTokens,
		}

		resp, err := o.Provider.Complete(ctx, providerReq)
		if err != nil {
			return &Result{Status: 502, Body: providerErrorBody(err), TerminationReason: ReasonProviderError, ToolCallsExecuted: toolCallsExecuted}, nil
		}
		if resp.Status < 200 || resp.Status >= 300 {
			return &Result{Status: resp.Status, Body: resp.Body, TerminationReason: ReasonProviderError, ToolCallsExecuted: toolCallsExecuted}, nil
		}

		var assistant AssistantMessage
		if err := json.Unmarshal(resp.Body, &assistant); err != nil {
			return &Result{Status: 502, Body: providerErrorBody(fmt.Errorf("parse provider response: %w", err)), TerminationReason: ReasonProviderError, ToolCallsExecuted: toolCallsExecuted}, nil
		}

		o.appendTurn(sessionID, "assistant", "message", statusPtr(200), resp.Body)
		messages = append(messages, Message{Role: "assistant", Content: assistant.Content})

		toolUses := extractToolUses(assistant.Content)
		text := extractText(assistant.Content)

		if len(toolUses) == 0 {
			if o.ProviderIsDatabricks && webFallbackTriggered(text) {
				query := lastUserText(messages)
				toolUses = []ContentBlock{{Type: "tool_use", ID: "web_fallback", Name: "web_fetch", Input: json.RawMessage(fmt.Sprintf(`{"url":%q}`, query))}}
			} else {
				finalBody := o.sanitizeResponse(resp.Body)
				if o.Cache != nil && cache.Admits(true, resp.Status, false) {
					o.Cache.Set(key, finalBody)
				}
				return &Result{Status: 200, Body: finalBody, TerminationReason: ReasonCompletion, ToolCallsExecuted: toolCallsExecuted}, nil
			}
		}

		limitHit := false
		var toolResults []ContentBlock
		for _, use := range toolUses {
			decision := o.Policy.EvaluateToolCall(policy.CallInput{
				ToolName:          use.Name,
				Params:            tool.NormalizeArguments(use.Input),
				ToolCallsExecuted: toolCallsExecuted,
			})

			var resultText string
			var isError bool
			if !decision.Allowed {
				resultText = fmt.Sprintf(`{"error":%q,"code":%q}`, decision.Reason, decision.Code)
				isError = true
				if o.Sessions != nil {
					if err := o.Sessions.RecordPolicyAudit(sessionID, use.Name, "", decision.Rule, "deny"); err != nil {
						log.Printf("[orchestrator] record policy audit: %v", err)
					}
				}
				if decision.Code == "tool_limit_reached" {
					limitHit = true
				}
			} else {
				if o.Sessions != nil {
					if err := o.Sessions.RecordPolicyAudit(sessionID, use.Name, "", decision.Rule, "allow"); err != nil {
						log.Printf("[orchestrator] record policy audit: %v", err)
					}
				}
				call := tool.Call{ID: use.ID, Name: use.Name, Params: tool.NormalizeArguments(use.Input), RawInput: use.Input}
				res := o.Tools.Execute(call, tool.Context{SessionID: sessionID, Ctx: ctx})
				resultText = res.Content
				isError = !res.OK
				toolCallsExecuted++
			}

			resultBlock := ContentBlock{Type: "tool_result", ToolUseID: use.ID, Content: policy.SanitiseText(resultText), IsError: isError}
			toolResults = append(toolResults, resultBlock)

			resultJSON, _ := json.Marshal(resultBlock)
			o.appendTurn(sessionID, "tool", "tool_result", nil, resultJSON)
		}

		if limitHit {
			body := limitReachedBody("per-turn tool call quota exceeded")
			o.appendTurn(sessionID, "assistant", "tool_limit_reached", statusPtr(429), body)
			return &Result{Status: 200, Body: body, TerminationReason: ReasonToolLimitReached, ToolCallsExecuted: toolCallsExecuted}, nil
		}

		messages = append(messages, Message{Role: "user", Content: toolResults})
	}

	body := limitReachedBody("maximum step count reached")
	o.appendTurn(sessionID, "assistant", "step_limit", statusPtr(200), body)
	return &Result{Status: 200, Body: body, TerminationReason: ReasonStepLimit, ToolCallsExecuted: toolCallsExecuted}, nil
}

func (o *Orchestrator) appendTurn(sessionID, role, typ string, status *int, content json.RawMessage) {
	if o.Sessions == nil {
		return
	}
	if _, err := o.Sessions.AppendTurn(sessionID, session.Turn{Role: role, Type: typ, Status: status, Content: content}); err != nil {
		log.Printf("[orchestrator] append turn: %v", err)
	}
}

func (o *Orchestrator) sanitizeResponse(body json.RawMessage) json.RawMessage {
	var msg AssistantMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return body
	}
	changed := false
	for i, block := range msg.Content {
		if block.Type == "text" {
			sanitized := policy.SanitiseText(block.Text)
			if sanitized != block.Text {
				msg.Content[i].Text = sanitized
				changed = true
			}
		}
	}
	if !changed {
		return body
	}
	out, err := json.Marshal(msg)
	if err != nil {
		return body
	}
	return out
}

func extractToolUses(blocks []ContentBlock) []ContentBlock {
	var out []ContentBlock
	for _, b := range blocks {
		if b.Type == "tool_use" {
			out = append(out, b)
		}
	}
	return out
}

func extractText(blocks []ContentBlock) string {
	var b strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

func lastUserText(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" {
			continue
		}
		if text := extractText(messages[i].Content); text != "" {
			return text
		}
	}
	return ""
}

func marshalMessages(messages []Message) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(messages))
	for _, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out
}

// rawJSONToAny unmarshals raw client JSON into a generic value so that
// cache.Key's canonicalization can recursively sort its object keys —
// passed through as json.RawMessage it would re-serialize in whatever key
// order the client happened to send, breaking cache-key determinism.
func rawJSONToAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func statusPtr(v int) *int { return &v }

func limitReachedBody(reason string) json.RawMessage {
	msg := AssistantMessage{
		Type:       "message",
		Role:       "assistant",
		Content:    []ContentBlock{{Type: "text", Text: reason}},
		StopReason: "end_turn",
	}
	b, _ := json.Marshal(msg)
	return b
}

func providerErrorBody(err error) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"type":"error","error":{"type":"internal_error","message":%q}}`, err.Error()))
}

// webFallbackHeuristics matches spec §6's exact pattern list.
var webFallbackHeuristics = []*regexp.Regexp{
	regexp.MustCompile(`(?i)i (do|don't|cannot) have (browser|browsing|internet) (capability|access)`),
	regexp.MustCompile(`(?i)cannot look up information`),
	regexp.MustCompile(`(?i)no web browsing capability`),
	regexp.MustCompile(`(?i)can'?t (access|reach) the internet`),
	regexp.MustCompile(`(?i)(do not|don't) have access to .*web (?:browsing|browser|internet)`),
	regexp.MustCompile(`(?i)(do not|don't) have .*browser`),
	regexp.MustCompile(`(?i)web(fetch|_fetch| search).*(not available|disabled|unavailable)`),
	regexp.MustCompile(`(?i)tool.*(not available|disabled|unavailable)`),
	regexp.MustCompile(`(?i)don't have access to real-time`),
}

var webFallbackExclusions = []*regexp.Regexp{
	regexp.MustCompile(`(?i)closed at \$`),
	regexp.MustCompile(`(?i)previous close`),
	regexp.MustCompile(`(?i)day's range`),
	regexp.MustCompile(`(?i)trading volume`),
}

func webFallbackTriggered(text string) bool {
	matched := false
	for _, re := range webFallbackHeuristics {
		if re.MatchString(text) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for _, re := range webFallbackExclusions {
		if re.MatchString(text) {
			return false
		}
	}
	return true
}
