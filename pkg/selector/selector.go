// Package selector picks the backend model and reasoning-effort hint for a
// request based on its user-visible text and declared tools. Selection is a
// pure function; the keyword tables are fixed at startup.
package selector

import (
	"strings"

	"github.com/78Spinoza/claudeproxy/pkg/anthropic"
)

type Effort string

const (
	EffortNone   Effort = ""
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// Profile describes one backend's model lineup. WebSearch is empty when the
// backend has no search-capable model.
type Profile struct {
	Name                    string
	General                 string
	HighReasoning           string
	FastCoding              string
	WebSearch               string
	MaxTokens               int
	SupportsReasoningEffort bool
	// WebSearchSupportsTools reports whether the search model accepts
	// function tools. The Groq compound model does not.
	WebSearchSupportsTools bool
}

// XAIProfile returns the xAI model lineup.
func XAIProfile() Profile {
	return Profile{
		Name:                    "xai",
		General:                 "grok-code-fast-1",
		HighReasoning:           "grok-4-0709",
		FastCoding:              "grok-code-fast-1",
		WebSearch:               "",
		MaxTokens:               8192,
		SupportsReasoningEffort: true,
	}
}

// GroqProfile returns the Groq model lineup.
func GroqProfile() Profile {
	return Profile{
		Name:                    "groq",
		General:                 "openai/gpt-oss-120b",
		HighReasoning:           "openai/gpt-oss-120b",
		FastCoding:              "openai/gpt-oss-120b",
		WebSearch:               "groq/compound",
		MaxTokens:               8192,
		SupportsReasoningEffort: true,
		WebSearchSupportsTools:  false,
	}
}

// Decision is the selector's verdict for one request.
type Decision struct {
	Model             string
	Effort            Effort
	WebSearchRequired bool
	// AttachTools is false when the chosen model rejects function tools.
	AttachTools bool
}

var highIntentModelSubstrings = []string{"opus", "reasoning", "think"}

var reasoningKeywords = []string{
	"analyse", "prove", "derive", "explain why", "design", "architecture",
	"trade-off", "complexity", "proof", "theorem",
}

var codingKeywords = []string{
	"code", "function", "compile", "refactor", "bug", "stack trace",
	"test", "lint", "repo",
}

var webSearchTools = map[string]bool{
	"web_search":     true,
	"browser_search": true,
}

// Selector applies the routing policy for one backend profile.
type Selector struct {
	profile       Profile
	haikuFastPath bool
}

func New(profile Profile, haikuFastPath bool) *Selector {
	return &Selector{profile: profile, haikuFastPath: haikuFastPath}
}

func (s *Selector) Profile() Profile { return s.profile }

// Select picks the model and effort. Rules apply in order: web-search tools
// route to the search model when the backend has one; high-reasoning model
// substrings or reasoning keywords route to the high-reasoning model;
// coding keywords route to the fast model; everything else gets the general
// model. Model strings naming a haiku-class model skip the keyword upgrade
// when the fast path is enabled.
func (s *Selector) Select(modelString, userText string, toolNames []string) Decision {
	model := strings.ToLower(modelString)
	text := strings.ToLower(userText)

	if s.profile.WebSearch != "" {
		for _, name := range toolNames {
			if webSearchTools[name] {
				return Decision{
					Model:             s.profile.WebSearch,
					Effort:            EffortNone,
					WebSearchRequired: true,
					AttachTools:       s.profile.WebSearchSupportsTools,
				}
			}
		}
	}

	for _, sub := range highIntentModelSubstrings {
		if strings.Contains(model, sub) {
			return s.decision(s.profile.HighReasoning, EffortHigh)
		}
	}

	haiku := s.haikuFastPath && strings.Contains(model, "haiku")
	if !haiku && containsAny(text, reasoningKeywords) {
		return s.decision(s.profile.HighReasoning, EffortHigh)
	}

	if containsAny(text, codingKeywords) {
		return s.decision(s.profile.FastCoding, EffortMedium)
	}

	return s.decision(s.profile.General, EffortMedium)
}

func (s *Selector) decision(model string, effort Effort) Decision {
	if !s.profile.SupportsReasoningEffort {
		effort = EffortNone
	}
	return Decision{Model: model, Effort: effort, AttachTools: true}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// UserText extracts the user-visible text of a request: all user-role text
// content, in order, joined by newlines.
func UserText(messages []anthropic.Message) string {
	var parts []string
	for _, m := range messages {
		if m.Role != anthropic.RoleUser {
			continue
		}
		if !m.Content.IsList() {
			if m.Content.Text != "" {
				parts = append(parts, m.Content.Text)
			}
			continue
		}
		for _, b := range m.Content.Blocks {
			if b.Type == anthropic.BlockTypeText && b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// ToolNames lists the names of the client-declared tools.
func ToolNames(tools []anthropic.ToolDeclaration) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}
