package agent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/achadsiri/gemini-cli/llm"
)

// Core tool names.
const (
	ToolListDirectory = "list_directory"
	ToolReadFile      = "read_file"
	ToolReadManyFiles = "read_many_files"
	ToolWriteFile     = "write_file"
	ToolReplace       = "replace"
	ToolShell         = "run_shell_command"
	ToolGrep          = "search_file_content"
	ToolGlob          = "glob"
	ToolWebFetch      = "web_fetch"
)

const (
	defaultReadLimit  = 2000
	maxLineLength     = 2000
	binaryProbeLength = 4096
)

// CoreToolOptions controls which core tools are registered and how they run.
type CoreToolOptions struct {
	// Allow restricts registration to the named tools. Empty allows all.
	Allow []string
	// Exclude removes the named tools after Allow is applied.
	Exclude []string

	DefaultCommandTimeout time.Duration
	MaxCommandTimeout     time.Duration
	HTTPClient            *http.Client
}

func (o CoreToolOptions) enabled(name string) bool {
	if len(o.Allow) > 0 && !slices.Contains(o.Allow, name) {
		return false
	}
	return !slices.Contains(o.Exclude, name)
}

// RegisterCoreTools registers the built-in tools on reg. Every tool delegates
// to env.
func RegisterCoreTools(reg *ToolRegistry, env ExecutionEnvironment, opts CoreToolOptions) {
	if opts.DefaultCommandTimeout <= 0 {
		opts.DefaultCommandTimeout = 2 * time.Minute
	}
	if opts.MaxCommandTimeout <= 0 {
		opts.MaxCommandTimeout = 10 * time.Minute
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	tools := []*FuncTool{
		listDirectoryTool(env),
		readFileTool(env),
		searchFileContentTool(env),
		globTool(env),
		replaceTool(env),
		writeFileTool(env),
		webFetchTool(opts.HTTPClient),
		readManyFilesTool(env),
		shellTool(env, opts.DefaultCommandTimeout, opts.MaxCommandTimeout),
	}
	for _, t := range tools {
		if opts.enabled(t.Decl.Name) {
			reg.Register(t)
		}
	}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func stringListProp(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}

func requireString(args map[string]any, key string) (string, error) {
	s, ok := GetStringArg(args, key)
	if !ok || s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

func isBinary(content string) bool {
	probe := content
	if len(probe) > binaryProbeLength {
		probe = probe[:binaryProbeLength]
	}
	return strings.IndexByte(probe, 0) >= 0
}

func listDirectoryTool(env ExecutionEnvironment) *FuncTool {
	return &FuncTool{
		Decl: llm.FunctionDeclaration{
			Name:        ToolListDirectory,
			Description: "Lists the names of files and subdirectories directly within a specified directory path. Can optionally ignore entries matching provided glob patterns.",
			Parameters: objectSchema(map[string]any{
				"path":   prop("string", "The path to the directory to list."),
				"ignore": stringListProp("List of glob patterns to ignore."),
			}, "path"),
		},
		Fn: func(ctx context.Context, args map[string]any) (ToolResult, error) {
			path, err := requireString(args, "path")
			if err != nil {
				return ToolResult{}, err
			}
			ignore, _ := GetStringSliceArg(args, "ignore")

			entries, err := env.ListDirectory(path)
			if err != nil {
				return ToolResult{}, err
			}
			entries = slices.DeleteFunc(entries, func(e DirEntry) bool {
				for _, pattern := range ignore {
					if ok, _ := filepath.Match(pattern, e.Name); ok {
						return true
					}
				}
				return false
			})
			if len(entries) == 0 {
				return ToolResult{
					LLMContent:    fmt.Sprintf("Directory %s is empty.", path),
					ReturnDisplay: "Directory is empty.",
				}, nil
			}
			sort.Slice(entries, func(i, j int) bool {
				if entries[i].IsDir != entries[j].IsDir {
					return entries[i].IsDir
				}
				return entries[i].Name < entries[j].Name
			})

			var sb strings.Builder
			fmt.Fprintf(&sb, "Directory listing for %s:\n", path)
			for _, e := range entries {
				if e.IsDir {
					sb.WriteString("[DIR] ")
				}
				sb.WriteString(e.Name)
				sb.WriteString("\n")
			}
			return ToolResult{
				LLMContent:    strings.TrimSuffix(sb.String(), "\n"),
				ReturnDisplay: fmt.Sprintf("Listed %d item(s).", len(entries)),
			}, nil
		},
	}
}

func readFileTool(env ExecutionEnvironment) *FuncTool {
	return &FuncTool{
		Decl: llm.FunctionDeclaration{
			Name:        ToolReadFile,
			Description: "Reads and returns the content of a specified file. For large text files, use 'offset' and 'limit' to page through the file.",
			Parameters: objectSchema(map[string]any{
				"path":   prop("string", "The path to the file to read."),
				"offset": prop("integer", "The 0-based line number to start reading from."),
				"limit":  prop("integer", "Maximum number of lines to read. Default: 2000."),
			}, "path"),
		},
		Fn: func(ctx context.Context, args map[string]any) (ToolResult, error) {
			path, err := requireString(args, "path")
			if err != nil {
				return ToolResult{}, err
			}
			offset, _ := GetIntArg(args, "offset")
			limit, _ := GetIntArg(args, "limit")
			if offset < 0 || limit < 0 {
				return ToolResult{}, errors.New("offset and limit must be non-negative")
			}
			if limit == 0 {
				limit = defaultReadLimit
			}

			content, err := env.ReadFile(path)
			if err != nil {
				return ToolResult{}, err
			}
			if isBinary(content) {
				return ToolResult{
					LLMContent:    fmt.Sprintf("Cannot display content of binary file: %s", path),
					ReturnDisplay: "Skipped binary file.",
				}, nil
			}
			text, truncated := pageLines(content, offset, limit)
			display := ""
			if truncated {
				display = "Read partial file (truncated)."
			}
			return ToolResult{LLMContent: text, ReturnDisplay: display}, nil
		},
	}
}

// pageLines returns limit lines of content starting at offset, shortening
// overly long lines. The header notes when the result is not the whole file.
func pageLines(content string, offset, limit int) (string, bool) {
	lines := strings.Split(content, "\n")
	total := len(lines)
	if offset >= total {
		return "", offset > 0
	}
	end := min(offset+limit, total)

	truncated := offset > 0 || end < total
	selected := make([]string, 0, end-offset)
	for _, line := range lines[offset:end] {
		if len(line) > maxLineLength {
			line = line[:maxLineLength] + "... [truncated]"
			truncated = true
		}
		selected = append(selected, line)
	}

	text := strings.Join(selected, "\n")
	if truncated {
		text = fmt.Sprintf("[File content truncated: showing lines %d-%d of %d total lines. Use offset/limit parameters to view more.]\n%s",
			offset+1, end, total, text)
	}
	return text, truncated
}

func writeFileTool(env ExecutionEnvironment) *FuncTool {
	return &FuncTool{
		Decl: llm.FunctionDeclaration{
			Name:        ToolWriteFile,
			Description: "Writes content to a specified file. Creates the file and parent directories if needed.",
			Parameters: objectSchema(map[string]any{
				"file_path": prop("string", "The path to the file to write to."),
				"content":   prop("string", "The content to write to the file."),
			}, "file_path", "content"),
		},
		Fn: func(ctx context.Context, args map[string]any) (ToolResult, error) {
			path, err := requireString(args, "file_path")
			if err != nil {
				return ToolResult{}, err
			}
			content, ok := GetStringArg(args, "content")
			if !ok {
				return ToolResult{}, errors.New("content is required")
			}
			existed := env.FileExists(path)
			if err := env.WriteFile(path, content); err != nil {
				return ToolResult{}, err
			}
			msg := fmt.Sprintf("Successfully created and wrote to new file: %s", path)
			if existed {
				msg = fmt.Sprintf("Successfully overwrote file: %s", path)
			}
			return ToolResult{LLMContent: msg, ReturnDisplay: fmt.Sprintf("Wrote %d bytes.", len(content))}, nil
		},
	}
}

func replaceTool(env ExecutionEnvironment) *FuncTool {
	return &FuncTool{
		Decl: llm.FunctionDeclaration{
			Name: ToolReplace,
			Description: "Replaces text within a file. By default replaces a single occurrence; set expected_replacements to replace several. " +
				"An empty old_string creates a new file with new_string as its content.",
			Parameters: objectSchema(map[string]any{
				"file_path":             prop("string", "The path to the file to modify."),
				"old_string":            prop("string", "The exact literal text to replace, including surrounding context."),
				"new_string":            prop("string", "The exact literal text to replace old_string with."),
				"expected_replacements": prop("integer", "Number of replacements expected. Defaults to 1."),
			}, "file_path", "old_string", "new_string"),
		},
		Fn: func(ctx context.Context, args map[string]any) (ToolResult, error) {
			path, err := requireString(args, "file_path")
			if err != nil {
				return ToolResult{}, err
			}
			oldString, ok := GetStringArg(args, "old_string")
			if !ok {
				return ToolResult{}, errors.New("old_string is required")
			}
			newString, _ := GetStringArg(args, "new_string")
			expected, ok := GetIntArg(args, "expected_replacements")
			if !ok || expected < 1 {
				expected = 1
			}

			if !env.FileExists(path) {
				if oldString != "" {
					return ToolResult{}, fmt.Errorf("file not found: %s. An empty old_string creates a new file", path)
				}
				if err := env.WriteFile(path, newString); err != nil {
					return ToolResult{}, err
				}
				return ToolResult{
					LLMContent:    fmt.Sprintf("Created new file: %s with provided content.", path),
					ReturnDisplay: "Created new file.",
				}, nil
			}
			if oldString == "" {
				return ToolResult{}, fmt.Errorf("failed to edit: %s already exists and old_string is empty", path)
			}

			content, err := env.ReadFile(path)
			if err != nil {
				return ToolResult{}, err
			}
			count := strings.Count(content, oldString)
			switch {
			case count == 0:
				return ToolResult{}, fmt.Errorf("failed to edit, could not find the string to replace in %s", path)
			case count != expected:
				return ToolResult{}, fmt.Errorf("failed to edit, expected %d occurrence(s) but found %d in %s", expected, count, path)
			}
			if err := env.WriteFile(path, strings.ReplaceAll(content, oldString, newString)); err != nil {
				return ToolResult{}, err
			}
			return ToolResult{
				LLMContent:    fmt.Sprintf("Successfully modified file: %s (%d replacements).", path, count),
				ReturnDisplay: fmt.Sprintf("Replaced %d occurrence(s).", count),
			}, nil
		},
	}
}

func shellTool(env ExecutionEnvironment, defaultTimeout, maxTimeout time.Duration) *FuncTool {
	return &FuncTool{
		Decl: llm.FunctionDeclaration{
			Name: ToolShell,
			Description: fmt.Sprintf("Executes a given shell command as `bash -c <command>`. The command runs in the project root unless a directory is given. "+
				"Default timeout: %s.", defaultTimeout),
			Parameters: objectSchema(map[string]any{
				"command":     prop("string", "Exact bash command to execute."),
				"description": prop("string", "Brief description of the command for the user."),
				"directory":   prop("string", "Directory to run the command in, relative to the project root."),
				"timeout_ms":  prop("integer", "Override the default timeout in milliseconds."),
			}, "command"),
		},
		Fn: func(ctx context.Context, args map[string]any) (ToolResult, error) {
			command, err := requireString(args, "command")
			if err != nil {
				return ToolResult{}, err
			}
			directory, _ := GetStringArg(args, "directory")
			if filepath.IsAbs(directory) {
				return ToolResult{}, errors.New("directory must be relative to the project root")
			}
			timeout := defaultTimeout
			if ms, ok := GetIntArg(args, "timeout_ms"); ok && ms > 0 {
				timeout = min(time.Duration(ms)*time.Millisecond, maxTimeout)
			}

			res, err := env.ExecCommand(ctx, command, timeout, directory)
			if err != nil {
				return ToolResult{}, err
			}

			if directory == "" {
				directory = "(root)"
			}
			var sb strings.Builder
			fmt.Fprintf(&sb, "Command: %s\n", command)
			fmt.Fprintf(&sb, "Directory: %s\n", directory)
			fmt.Fprintf(&sb, "Stdout: %s\n", orNone(res.Stdout))
			fmt.Fprintf(&sb, "Stderr: %s\n", orNone(res.Stderr))
			if res.TimedOut {
				fmt.Fprintf(&sb, "Error: command timed out after %s\n", timeout)
			}
			fmt.Fprintf(&sb, "Exit Code: %d", res.ExitCode)

			display := res.Output()
			if display == "" {
				display = fmt.Sprintf("Command exited with code %d.", res.ExitCode)
			}
			return ToolResult{LLMContent: sb.String(), ReturnDisplay: display}, nil
		},
	}
}

func orNone(s string) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return "(empty)"
	}
	return s
}

func searchFileContentTool(env ExecutionEnvironment) *FuncTool {
	return &FuncTool{
		Decl: llm.FunctionDeclaration{
			Name:        ToolGrep,
			Description: "Searches for a regular expression pattern within the content of files in a directory. Returns matching lines with file paths and line numbers.",
			Parameters: objectSchema(map[string]any{
				"pattern": prop("string", "The regular expression to search for."),
				"path":    prop("string", "The directory to search in. Defaults to the project root."),
				"include": prop("string", "A glob pattern to filter which files are searched, e.g. '*.go'."),
			}, "pattern"),
		},
		Fn: func(ctx context.Context, args map[string]any) (ToolResult, error) {
			pattern, err := requireString(args, "pattern")
			if err != nil {
				return ToolResult{}, err
			}
			path, _ := GetStringArg(args, "path")
			include, _ := GetStringArg(args, "include")

			out, err := env.Grep(ctx, pattern, path, GrepOptions{Include: include})
			if err != nil {
				return ToolResult{}, err
			}
			where := path
			if where == "" {
				where = "."
			}
			filter := ""
			if include != "" {
				filter = fmt.Sprintf(" (filter: %q)", include)
			}

			files, order, count := groupMatches(env.WorkingDirectory(), out)
			if count == 0 {
				return ToolResult{
					LLMContent:    fmt.Sprintf("No matches found for pattern %q in path %q%s.", pattern, where, filter),
					ReturnDisplay: "No matches found.",
				}, nil
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Found %d match(es) for pattern %q in path %q%s:\n---\n", count, pattern, where, filter)
			for _, file := range order {
				fmt.Fprintf(&sb, "File: %s\n", file)
				for _, line := range files[file] {
					sb.WriteString(line)
					sb.WriteString("\n")
				}
				sb.WriteString("---\n")
			}
			return ToolResult{
				LLMContent:    strings.TrimSuffix(sb.String(), "\n"),
				ReturnDisplay: fmt.Sprintf("Found %d match(es).", count),
			}, nil
		},
	}
}

// groupMatches parses "path:line:text" search output into per-file lines.
func groupMatches(root, output string) (map[string][]string, []string, int) {
	files := make(map[string][]string)
	var order []string
	count := 0
	for _, line := range strings.Split(output, "\n") {
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		file := parts[0]
		if rel, err := filepath.Rel(root, file); err == nil && !strings.HasPrefix(rel, "..") {
			file = rel
		}
		if _, ok := files[file]; !ok {
			order = append(order, file)
		}
		files[file] = append(files[file], fmt.Sprintf("L%s: %s", parts[1], strings.TrimSpace(parts[2])))
		count++
	}
	return files, order, count
}

func globTool(env ExecutionEnvironment) *FuncTool {
	return &FuncTool{
		Decl: llm.FunctionDeclaration{
			Name:        ToolGlob,
			Description: "Finds files matching a glob pattern such as 'src/**/*.go', returning absolute paths sorted by modification time, newest first.",
			Parameters: objectSchema(map[string]any{
				"pattern": prop("string", "The glob pattern to match against."),
				"path":    prop("string", "The directory to search within. Defaults to the project root."),
			}, "pattern"),
		},
		Fn: func(ctx context.Context, args map[string]any) (ToolResult, error) {
			pattern, err := requireString(args, "pattern")
			if err != nil {
				return ToolResult{}, err
			}
			path, _ := GetStringArg(args, "path")
			dir, err := env.ResolvePath(path)
			if err != nil {
				return ToolResult{}, err
			}

			matches, err := env.Glob(ctx, pattern, path)
			if err != nil {
				return ToolResult{}, err
			}
			if len(matches) == 0 {
				return ToolResult{
					LLMContent:    fmt.Sprintf("No files found matching pattern %q within %s.", pattern, dir),
					ReturnDisplay: "No files found.",
				}, nil
			}
			return ToolResult{
				LLMContent: fmt.Sprintf("Found %d file(s) matching %q within %s, sorted by modification time (newest first):\n%s",
					len(matches), pattern, dir, strings.Join(matches, "\n")),
				ReturnDisplay: fmt.Sprintf("Found %d matching file(s).", len(matches)),
			}, nil
		},
	}
}

func readManyFilesTool(env ExecutionEnvironment) *FuncTool {
	return &FuncTool{
		Decl: llm.FunctionDeclaration{
			Name: ToolReadManyFiles,
			Description: "Reads content from multiple files specified by paths or glob patterns and concatenates it, " +
				"each file preceded by a '--- path ---' separator. Binary files are skipped.",
			Parameters: objectSchema(map[string]any{
				"paths":   stringListProp("Glob patterns or paths relative to the project root, e.g. ['src/**/*.go']."),
				"include": stringListProp("Additional glob patterns to include."),
				"exclude": stringListProp("Glob patterns for files to exclude."),
			}, "paths"),
		},
		Fn: func(ctx context.Context, args map[string]any) (ToolResult, error) {
			paths, _ := GetStringSliceArg(args, "paths")
			include, _ := GetStringSliceArg(args, "include")
			exclude, _ := GetStringSliceArg(args, "exclude")
			patterns := append(slices.Clone(paths), include...)
			if len(patterns) == 0 {
				return ToolResult{}, errors.New("paths must contain at least one pattern")
			}

			root := env.WorkingDirectory()
			seen := make(map[string]bool)
			var files []string
			for _, pattern := range patterns {
				matches, err := env.Glob(ctx, pattern, "")
				if err != nil {
					if ctx.Err() != nil {
						return ToolResult{}, ctx.Err()
					}
					return ToolResult{}, err
				}
				for _, m := range matches {
					rel, _ := filepath.Rel(root, m)
					if seen[m] || excluded(filepath.ToSlash(rel), exclude) {
						continue
					}
					seen[m] = true
					files = append(files, m)
				}
			}
			sort.Strings(files)

			var sb strings.Builder
			read := 0
			for _, file := range files {
				if err := ctx.Err(); err != nil {
					return ToolResult{}, err
				}
				content, err := env.ReadFile(file)
				if err != nil {
					if errors.Is(err, fs.ErrPermission) {
						continue
					}
					return ToolResult{}, err
				}
				if isBinary(content) {
					continue
				}
				rel, _ := filepath.Rel(root, file)
				fmt.Fprintf(&sb, "--- %s ---\n%s\n\n", rel, content)
				read++
			}
			if read == 0 {
				return ToolResult{
					LLMContent:    "No files matching the criteria were found or all were skipped.",
					ReturnDisplay: "No files read.",
				}, nil
			}
			return ToolResult{
				LLMContent:    strings.TrimSuffix(sb.String(), "\n\n"),
				ReturnDisplay: fmt.Sprintf("Successfully read and concatenated content from %d file(s).", read),
			}, nil
		},
	}
}

func excluded(rel string, patterns []string) bool {
	segs := strings.Split(rel, "/")
	for _, p := range patterns {
		if matchSegments(strings.Split(filepath.ToSlash(p), "/"), segs) {
			return true
		}
	}
	return false
}
