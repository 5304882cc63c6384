package transform

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/78Spinoza/claudeproxy/pkg/anthropic"
	"github.com/78Spinoza/claudeproxy/pkg/openai"
	"github.com/78Spinoza/claudeproxy/pkg/registry"
)

// callAccum tracks one tool call across backend deltas. The argument buffer
// moves from "not yet parseable" to "parsed once"; the client only ever sees
// the parsed form.
type callAccum struct {
	id         string
	name       string
	blockIndex int
	buf        strings.Builder
	parsed     bool
	open       bool
}

// StreamState rewrites a backend delta stream into the client's event
// sequence. One instance per request; not safe for concurrent use.
type StreamState struct {
	reg   *registry.Registry
	model string

	started   bool
	finished  bool
	nextIndex int

	textOpen  bool
	textIndex int

	calls   map[int]*callAccum
	current int // backend index of the open tool block, -1 when none

	messageID string
	usage     anthropic.Usage
}

// NewStreamState builds the per-request accumulator. The model string is
// echoed back in message_start.
func NewStreamState(reg *registry.Registry, model string) *StreamState {
	return &StreamState{
		reg:     reg,
		model:   model,
		calls:   make(map[int]*callAccum),
		current: -1,
	}
}

// Started reports whether message_start has been emitted.
func (s *StreamState) Started() bool { return s.started }

// Finished reports whether the terminal frames have been emitted.
func (s *StreamState) Finished() bool { return s.finished }

// Push folds one backend frame into the state and returns the client events
// it produces, in order.
func (s *StreamState) Push(frame *openai.StreamResponse) []anthropic.StreamEvent {
	if s.finished {
		return nil
	}

	var events []anthropic.StreamEvent

	if s.messageID == "" && frame.ID != "" {
		s.messageID = frame.ID
	}
	if frame.Usage != nil {
		s.usage = anthropic.Usage{
			InputTokens:  frame.Usage.PromptTokens,
			OutputTokens: frame.Usage.CompletionTokens,
		}
	}

	if len(frame.Choices) == 0 {
		return events
	}
	choice := frame.Choices[0]

	if choice.Delta.Content != "" {
		events = append(events, s.ensureStarted()...)
		events = append(events, s.closeToolBlock()...)
		events = append(events, s.openTextBlock()...)
		events = append(events, anthropic.NewTextDelta(s.textIndex, choice.Delta.Content))
	}

	for _, tc := range choice.Delta.ToolCalls {
		events = append(events, s.pushToolCallDelta(tc)...)
	}

	if choice.FinishReason != "" {
		events = append(events, s.finish(MapFinishReason(choice.FinishReason))...)
	}

	return events
}

// Fail closes the stream after a mid-flight error: open blocks stop, then
// message_delta carries stop_reason "error" and message_stop ends the
// sequence. Returns nil when the stream already finished or never started.
func (s *StreamState) Fail() []anthropic.StreamEvent {
	if s.finished || !s.started {
		return nil
	}
	return s.finish(anthropic.StopError)
}

func (s *StreamState) ensureStarted() []anthropic.StreamEvent {
	if s.started {
		return nil
	}
	s.started = true
	return []anthropic.StreamEvent{anthropic.NewMessageStart(anthropic.MessageResponse{
		ID:      MessageID(s.messageID),
		Type:    "message",
		Role:    anthropic.RoleAssistant,
		Model:   s.model,
		Content: []anthropic.ContentBlock{},
	})}
}

func (s *StreamState) openTextBlock() []anthropic.StreamEvent {
	if s.textOpen {
		return nil
	}
	s.textOpen = true
	s.textIndex = s.nextIndex
	s.nextIndex++
	return []anthropic.StreamEvent{
		anthropic.NewContentBlockStart(s.textIndex, anthropic.TextBlock("")),
	}
}

func (s *StreamState) closeTextBlock() []anthropic.StreamEvent {
	if !s.textOpen {
		return nil
	}
	s.textOpen = false
	return []anthropic.StreamEvent{anthropic.NewContentBlockStop(s.textIndex)}
}

func (s *StreamState) pushToolCallDelta(tc openai.ToolCall) []anthropic.StreamEvent {
	idx := 0
	if tc.Index != nil {
		idx = *tc.Index
	}

	acc, ok := s.calls[idx]
	if !ok {
		acc = &callAccum{}
		s.calls[idx] = acc
	}
	if tc.ID != "" {
		acc.id = tc.ID
	}
	if tc.Function.Name != "" {
		acc.name = tc.Function.Name
	}

	var events []anthropic.StreamEvent

	if s.current != idx {
		events = append(events, s.ensureStarted()...)
		events = append(events, s.closeTextBlock()...)
		events = append(events, s.closeToolBlock()...)

		acc.open = true
		acc.blockIndex = s.nextIndex
		s.nextIndex++
		s.current = idx

		events = append(events, anthropic.NewContentBlockStart(
			acc.blockIndex,
			anthropic.ToolUseBlock(CallID(acc.id), s.reg.CanonicalName(acc.name), nil),
		))
	}

	if tc.Function.Arguments != "" {
		acc.buf.WriteString(tc.Function.Arguments)
	}

	// Emit the arguments exactly once, as soon as the accumulated buffer
	// parses. Partial JSON never reaches the client.
	if !acc.parsed {
		if payload, ok := s.canonicalPayload(acc); ok {
			acc.parsed = true
			events = append(events, anthropic.NewInputJSONDelta(acc.blockIndex, payload))
		}
	}

	return events
}

// canonicalPayload attempts to parse the accumulated argument buffer and
// canonicalise it through the registry. Arguments that parse but fail
// validation still stream out in their renamed form; the final-response path
// owns self-healing.
func (s *StreamState) canonicalPayload(acc *callAccum) (string, bool) {
	buf := acc.buf.String()
	if buf == "" {
		return "", false
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(buf), &args); err != nil {
		return "", false
	}

	_, canonical, err := s.reg.CanonicalArgs(acc.name, args)
	if err != nil && !errors.Is(err, registry.ErrInvalidArgs) {
		return "", false
	}

	raw, err := json.Marshal(canonical)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

func (s *StreamState) closeToolBlock() []anthropic.StreamEvent {
	if s.current < 0 {
		return nil
	}
	acc := s.calls[s.current]
	s.current = -1

	var events []anthropic.StreamEvent
	if !acc.parsed {
		// Last chance at block close: a repair pass may still turn the
		// buffer into valid JSON. If not, the input stays empty.
		if args, ok := ParseToolArguments(acc.buf.String()); ok && len(args) > 0 {
			if _, canonical, err := s.reg.CanonicalArgs(acc.name, args); err == nil || errors.Is(err, registry.ErrInvalidArgs) {
				if raw, merr := json.Marshal(canonical); merr == nil {
					acc.parsed = true
					events = append(events, anthropic.NewInputJSONDelta(acc.blockIndex, string(raw)))
				}
			}
		}
	}
	acc.open = false
	events = append(events, anthropic.NewContentBlockStop(acc.blockIndex))
	return events
}

func (s *StreamState) finish(stopReason string) []anthropic.StreamEvent {
	var events []anthropic.StreamEvent
	events = append(events, s.ensureStarted()...)
	events = append(events, s.closeTextBlock()...)
	events = append(events, s.closeToolBlock()...)
	events = append(events,
		anthropic.NewMessageDelta(stopReason, s.usage),
		anthropic.NewMessageStop(),
	)
	s.finished = true
	return events
}
