package registry

// Every parameter schema here follows the ultra-simple policy: top-level
// object, property types limited to string/number/boolean/array, required
// lists only what is truly mandatory, and no additionalProperties, unions,
// defaults or format constraints. Stricter backend validators reject
// anything richer.

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func shellDescription(osFamily OSFamily) string {
	switch osFamily {
	case OSWindows:
		return `Run a Windows command and return its output. Examples: dir, cd /d C:\project, type file.txt`
	case OSDarwin:
		return `Run a macOS shell command and return its output. Examples: ls, cd project, cat file.txt`
	default:
		return `Run a shell command and return its output. Examples: ls, cd project, cat file.txt`
	}
}

// buildEntries returns the registry tools in their fixed order. The order is
// stable across runs; tests depend on it.
func buildEntries(osFamily OSFamily) []Entry {
	return []Entry{
		{
			Name:        "read_file",
			Description: "Read a file from the local filesystem and return its contents.",
			Parameters: objectSchema(map[string]any{
				"file_path": prop("string", "Absolute path to the file to read"),
				"offset":    prop("number", "Line number to start reading from"),
				"limit":     prop("number", "Maximum number of lines to read"),
			}, "file_path"),
			Required: []string{"file_path"},
			renames:  map[string]string{"path": "file_path"},
		},
		{
			Name:        "write_file",
			Description: "Write content to a file, creating it if needed and overwriting if it exists.",
			Parameters: objectSchema(map[string]any{
				"file_path": prop("string", "Absolute path to the file to write"),
				"content":   prop("string", "Content to write to the file"),
			}, "file_path", "content"),
			Required: []string{"file_path", "content"},
			renames:  map[string]string{"path": "file_path"},
		},
		{
			Name:        "edit_file",
			Description: "Replace an exact string in a file with a new string.",
			Parameters: objectSchema(map[string]any{
				"file_path":   prop("string", "Absolute path to the file to edit"),
				"old_string":  prop("string", "Exact text to replace"),
				"new_string":  prop("string", "Replacement text"),
				"replace_all": prop("boolean", "Replace every occurrence instead of just the first"),
			}, "file_path", "old_string", "new_string"),
			Required: []string{"file_path", "old_string", "new_string"},
			renames:  map[string]string{"path": "file_path"},
		},
		{
			Name:        "multi_edit_file",
			Description: "Apply several string replacements to one file in a single operation.",
			Parameters: objectSchema(map[string]any{
				"file_path": prop("string", "Absolute path to the file to edit"),
				"edits":     prop("array", "List of edits, each with old_string and new_string"),
			}, "file_path", "edits"),
			Required: []string{"file_path", "edits"},
			renames:  map[string]string{"path": "file_path"},
		},
		{
			Name:        "run_bash",
			Description: shellDescription(osFamily),
			Parameters: objectSchema(map[string]any{
				"command":           prop("string", "Command to execute"),
				"timeout":           prop("number", "Timeout in milliseconds"),
				"run_in_background": prop("boolean", "Run the command in the background"),
			}, "command"),
			Required: []string{"command"},
		},
		{
			Name:        "grep_search",
			Description: "Search file contents for a regular expression pattern.",
			Parameters: objectSchema(map[string]any{
				"pattern": prop("string", "Regular expression to search for"),
				"path":    prop("string", "Directory or file to search in"),
				"glob":    prop("string", "Glob pattern to filter files"),
			}, "pattern"),
			Required: []string{"pattern"},
		},
		{
			Name:        "search_files",
			Description: "Find files whose names match a glob pattern.",
			Parameters: objectSchema(map[string]any{
				"pattern": prop("string", "Glob pattern to match file names against"),
				"path":    prop("string", "Directory to search in"),
			}, "pattern"),
			Required: []string{"pattern"},
		},
		{
			Name:        "web_fetch",
			Description: "Fetch a URL and process its content with the given prompt.",
			Parameters: objectSchema(map[string]any{
				"url":    prop("string", "URL to fetch"),
				"prompt": prop("string", "What to extract from the fetched content"),
			}, "url", "prompt"),
			Required: []string{"url", "prompt"},
		},
		{
			Name:        "web_search",
			Description: "Search the web and return relevant results.",
			Parameters: objectSchema(map[string]any{
				"query": prop("string", "Search query"),
			}, "query"),
			Required: []string{"query"},
		},
		{
			Name:        "manage_todos",
			Description: "Create or update the task list for the current session.",
			Parameters: objectSchema(map[string]any{
				"todos": prop("array", "Task items, each with content, status and activeForm"),
			}, "todos"),
			Required: []string{"todos"},
			renames:  map[string]string{"tasks": "todos"},
		},
		{
			Name:        "edit_notebook",
			Description: "Replace the source of a cell in a Jupyter notebook.",
			Parameters: objectSchema(map[string]any{
				"notebook_path": prop("string", "Absolute path to the notebook file"),
				"new_source":    prop("string", "New cell source"),
				"cell_type":     prop("string", "Cell type (code or markdown)"),
			}, "notebook_path", "new_source"),
			Required: []string{"notebook_path", "new_source"},
			renames:  map[string]string{"path": "notebook_path"},
		},
		{
			Name:        "get_bash_output",
			Description: "Get accumulated output from a background shell.",
			Parameters: objectSchema(map[string]any{
				"bash_id": prop("string", "Identifier of the background shell"),
			}, "bash_id"),
			Required: []string{"bash_id"},
		},
		{
			Name:        "kill_bash_shell",
			Description: "Terminate a background shell.",
			Parameters: objectSchema(map[string]any{
				"shell_id": prop("string", "Identifier of the shell to terminate"),
			}, "shell_id"),
			Required: []string{"shell_id"},
		},
		{
			Name:        "delegate_task",
			Description: "Delegate a self-contained task to a subagent.",
			Parameters: objectSchema(map[string]any{
				"description":   prop("string", "Short description of the task"),
				"prompt":        prop("string", "Full task instructions for the subagent"),
				"subagent_type": prop("string", "Type of subagent to use"),
			}, "description", "prompt", "subagent_type"),
			Required: []string{"description", "prompt", "subagent_type"},
		},
		{
			Name:        "exit_plan_mode",
			Description: "Present the implementation plan and exit plan mode.",
			Parameters: objectSchema(map[string]any{
				"plan": prop("string", "The plan to present to the user"),
			}, "plan"),
			Required: []string{"plan"},
		},
	}
}

// toolAliases maps alternate names models emit to registry names.
func toolAliases() map[string]string {
	return map[string]string{
		"open_file":      "read_file",
		"create_file":    "write_file",
		"run_cmd":        "run_bash",
		"run_shell":      "run_bash",
		"todo_write":     "manage_todos",
		"browser_search": "web_search",
	}
}
