package registry

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

type todoItem struct {
	Content    string `mapstructure:"content" json:"content"`
	Status     string `mapstructure:"status" json:"status"`
	ActiveForm string `mapstructure:"activeForm" json:"activeForm"`
}

// normalizeTodos repairs the todo list shapes models actually emit: a list
// of plain strings becomes a list of objects with defaulted status and a
// synthesised activeForm, and object items get their mandatory fields
// filled in. The "description" key some models use instead of "content" is
// accepted.
func normalizeTodos(value any) ([]any, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("todos must be a list, got %T", value)
	}

	out := make([]any, 0, len(list))
	for i, elem := range list {
		switch t := elem.(type) {
		case string:
			out = append(out, todoObject(todoItem{Content: t}))
		case map[string]any:
			if desc, ok := t["description"]; ok {
				if _, exists := t["content"]; !exists {
					t["content"] = desc
				}
				delete(t, "description")
			}
			var item todoItem
			if err := mapstructure.Decode(t, &item); err != nil {
				return nil, fmt.Errorf("todo %d: %w", i, err)
			}
			if item.Content == "" {
				return nil, fmt.Errorf("todo %d: missing content", i)
			}
			out = append(out, todoObject(item))
		default:
			return nil, fmt.Errorf("todo %d: unsupported element type %T", i, elem)
		}
	}
	return out, nil
}

func todoObject(item todoItem) map[string]any {
	if item.Status == "" {
		item.Status = "pending"
	}
	if item.ActiveForm == "" {
		item.ActiveForm = ingForm(item.Content)
	}
	return map[string]any{
		"content":    item.Content,
		"status":     item.Status,
		"activeForm": item.ActiveForm,
	}
}

// ingForm synthesises a present-continuous phrase from a task description:
// the first word loses a trailing single "e" and gains "ing", so
// "write spec" becomes "writing spec" and "review" becomes "reviewing".
func ingForm(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return s
	}
	verb := fields[0]
	if strings.HasSuffix(verb, "e") && !strings.HasSuffix(verb, "ee") {
		verb = verb[:len(verb)-1]
	}
	fields[0] = verb + "ing"
	return strings.Join(fields, " ")
}

var windowsBuiltins = []string{
	"dir", "type", "copy", "move", "del", "ren", "md", "rd", "cls",
	"where", "findstr", "tasklist", "taskkill",
}

// wrapWindowsCommand wraps commands that use cmd.exe builtins or Windows
// path syntax in `cmd /c "..."` so they survive the host shell.
func wrapWindowsCommand(cmd string) string {
	trimmed := strings.TrimSpace(cmd)
	lower := strings.ToLower(trimmed)

	if strings.HasPrefix(lower, `cmd /c`) || strings.HasPrefix(lower, `cmd.exe /c`) {
		return cmd
	}

	windows := strings.Contains(trimmed, `\`) ||
		strings.Contains(trimmed, "%") && strings.HasPrefix(lower, "echo ") ||
		driveLetterPath(trimmed)
	if !windows {
		for _, b := range windowsBuiltins {
			if lower == b || strings.HasPrefix(lower, b+" ") {
				windows = true
				break
			}
		}
	}
	if !windows {
		return cmd
	}
	return fmt.Sprintf(`cmd /c "%s"`, trimmed)
}

func driveLetterPath(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		c := s[i]
		if ((c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')) && s[i+1] == ':' {
			if i == 0 || s[i-1] == ' ' || s[i-1] == '"' {
				return true
			}
		}
	}
	return false
}

var htmlEntityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
)

// fixHTMLEntities undoes the HTML escaping some models apply to plan text.
func fixHTMLEntities(s string) string {
	return htmlEntityReplacer.Replace(s)
}
