// Package registry owns the curated tool definitions offered to the backend
// in place of whatever the client declared, and normalises the tool calls the
// backend sends back: alias resolution, argument renames, null dropping, and
// schema validation.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalidArgs reports tool-call arguments that still fail the entry's
// schema after normalisation.
var ErrInvalidArgs = errors.New("invalid tool arguments")

type OSFamily string

const (
	OSWindows OSFamily = "windows"
	OSUnix    OSFamily = "unix"
	OSDarwin  OSFamily = "darwin"
)

// DetectOSFamily resolves the host OS family, honoring an explicit override.
func DetectOSFamily(override string) (OSFamily, error) {
	switch override {
	case "":
	case string(OSWindows), string(OSUnix), string(OSDarwin):
		return OSFamily(override), nil
	default:
		return "", fmt.Errorf("invalid OS family override %q (want windows, unix or darwin)", override)
	}

	switch runtime.GOOS {
	case "windows":
		return OSWindows, nil
	case "darwin":
		return OSDarwin, nil
	default:
		return OSUnix, nil
	}
}

// Entry is one registry tool: the public name both sides see, an OS-annotated
// description, an ultra-simple parameter schema, and the rename map applied
// to arguments the backend returns.
type Entry struct {
	Name        string
	Description string
	Parameters  map[string]any
	Required    []string

	renames map[string]string
}

// Registry is built once at startup and immutable afterwards.
type Registry struct {
	osFamily OSFamily
	entries  []Entry
	byName   map[string]int
	aliases  map[string]string
	schemas  map[string]*jsonschema.Schema
}

// New builds the registry for the given OS family, compiling every entry's
// parameter schema. A schema that fails to compile or an alias pointing at a
// missing entry is a construction error.
func New(osFamily OSFamily) (*Registry, error) {
	r := &Registry{
		osFamily: osFamily,
		entries:  buildEntries(osFamily),
		byName:   make(map[string]int),
		aliases:  toolAliases(),
		schemas:  make(map[string]*jsonschema.Schema),
	}

	compiler := jsonschema.NewCompiler()
	for i, e := range r.entries {
		r.byName[e.Name] = i

		raw, err := json.Marshal(e.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", e.Name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", e.Name, err)
		}
		url := e.Name + ".schema.json"
		if err := compiler.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("tool %s: %w", e.Name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("tool %s: invalid parameter schema: %w", e.Name, err)
		}
		r.schemas[e.Name] = schema
	}

	for alias, target := range r.aliases {
		if _, ok := r.byName[target]; !ok {
			return nil, fmt.Errorf("alias %s points at unknown tool %s", alias, target)
		}
	}

	return r, nil
}

// OSFamily returns the family the registry was built for.
func (r *Registry) OSFamily() OSFamily { return r.osFamily }

// Tools returns the registry entries in their fixed order.
func (r *Registry) Tools() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of registry entries.
func (r *Registry) Len() int { return len(r.entries) }

// CanonicalName maps a backend-returned tool name to the public registry
// name: the functions/ prefix some models invent is stripped and known
// aliases resolve; unknown names pass through unchanged.
func (r *Registry) CanonicalName(name string) string {
	name = strings.TrimPrefix(name, "functions/")
	name = strings.TrimPrefix(name, "functions.")
	if target, ok := r.aliases[name]; ok {
		return target
	}
	return name
}

// CanonicalArgs normalises a backend tool call: resolves the name, applies
// the entry's rename map, drops explicit nulls, repairs structurally wrong
// but salvageable values, and validates the result against the entry's
// schema. Unknown tools pass through untouched. A required property still
// missing after normalisation fails with ErrInvalidArgs.
func (r *Registry) CanonicalArgs(name string, rawArgs map[string]any) (string, map[string]any, error) {
	canonical := r.CanonicalName(name)
	idx, ok := r.byName[canonical]
	if !ok {
		return canonical, rawArgs, nil
	}
	entry := r.entries[idx]

	args := make(map[string]any, len(rawArgs))
	for k, v := range rawArgs {
		if v == nil {
			continue
		}
		if renamed, ok := entry.renames[k]; ok {
			k = renamed
		}
		args[k] = v
	}

	switch canonical {
	case "manage_todos":
		if todos, ok := args["todos"]; ok {
			normalized, err := normalizeTodos(todos)
			if err != nil {
				return canonical, args, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, canonical, err)
			}
			args["todos"] = normalized
		}
	case "run_bash":
		if r.osFamily == OSWindows {
			if cmd, ok := args["command"].(string); ok {
				args["command"] = wrapWindowsCommand(cmd)
			}
		}
	case "exit_plan_mode":
		if plan, ok := args["plan"].(string); ok {
			args["plan"] = fixHTMLEntities(plan)
		}
	}

	for _, req := range entry.Required {
		if _, ok := args[req]; !ok {
			return canonical, args, fmt.Errorf("%w: %s: missing required property %q", ErrInvalidArgs, canonical, req)
		}
	}

	if schema := r.schemas[canonical]; schema != nil {
		if err := schema.Validate(toJSONValue(args)); err != nil {
			return canonical, args, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, canonical, err)
		}
	}

	return canonical, args, nil
}

// toJSONValue coerces argument values into the shapes the schema validator
// accepts. Decoded JSON numbers are already float64, but synthesised values
// may be native Go ints.
func toJSONValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = toJSONValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = toJSONValue(val)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}
