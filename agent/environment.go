package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/achadsiri/gemini-cli/llm"
)

const (
	defaultFolderItems = 200
	fullContextTimeout = 30 * time.Second
	envAcknowledgement = "Got it. Thanks for the context!"
)

// environmentTurns builds the user turn describing the workspace and the
// model acknowledgement that seed a fresh session.
func (c *Client) environmentTurns(ctx context.Context) []*llm.Content {
	root := c.env.WorkingDirectory()
	text := fmt.Sprintf(`Okay, just setting up the context for our chat.
Today is %s.
My operating system is: %s
I'm currently working in the directory: %s
%s`,
		c.now().Format("Monday, January 2, 2006"),
		c.env.Platform(),
		root,
		FolderStructure(c.env, root, defaultFolderItems))

	parts := []llm.Part{llm.TextPart(strings.TrimSpace(text))}
	if c.fullContext {
		parts = append(parts, c.fullFileContext(ctx))
	}
	return []*llm.Content{
		llm.NewContent(llm.RoleUser, parts...),
		llm.ModelText(envAcknowledgement),
	}
}

func (c *Client) fullFileContext(ctx context.Context) llm.Part {
	tool := c.tools.Get(ToolReadManyFiles)
	if tool == nil {
		c.logger.Warn("full context requested but read_many_files is not registered")
		return llm.TextPart("\n--- Full File Context unavailable ---")
	}
	ctx, cancel := context.WithTimeout(ctx, fullContextTimeout)
	defer cancel()

	res, err := tool.Execute(ctx, map[string]any{"paths": []any{"**/*"}})
	if err != nil {
		c.logger.Error("reading full file context", zap.Error(err))
		return llm.TextPart("\n--- Error reading full file context ---")
	}
	return llm.TextPart("\n--- Full File Context ---\n" + res.LLMContent)
}

// FolderStructure renders a breadth-first, bounded tree of dir. Folders whose
// contents were cut short are marked with "...".
func FolderStructure(env ExecutionEnvironment, dir string, maxItems int) string {
	type node struct {
		name      string
		children  []*node
		truncated bool
		isDir     bool
	}

	root := &node{name: dir, isDir: true}
	queue := []struct {
		n    *node
		path string
	}{{root, dir}}
	items := 0
	limitHit := false

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		entries, err := env.ListDirectory(cur.path)
		if err != nil {
			cur.n.truncated = true
			continue
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].IsDir != entries[j].IsDir {
				return !entries[i].IsDir
			}
			return entries[i].Name < entries[j].Name
		})
		for _, e := range entries {
			if items >= maxItems {
				cur.n.truncated = true
				limitHit = true
				break
			}
			child := &node{name: e.Name, isDir: e.IsDir}
			items++
			if e.IsDir && defaultExcludes[e.Name] {
				child.truncated = true
			} else if e.IsDir {
				queue = append(queue, struct {
					n    *node
					path string
				}{child, filepath.Join(cur.path, e.Name)})
			}
			cur.n.children = append(cur.n.children, child)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Showing up to %d items (files + folders).", maxItems)
	if limitHit {
		sb.WriteString(" Folders or files indicated with ... contain more items than were shown, were ignored, or the display limit was reached.")
	}
	sb.WriteString("\n\n")
	sb.WriteString(filepath.Clean(dir) + string(filepath.Separator) + "\n")

	var render func(n *node, indent string)
	render = func(n *node, indent string) {
		for i, child := range n.children {
			last := i == len(n.children)-1 && !n.truncated
			connector, next := "├───", "│   "
			if last {
				connector, next = "└───", "    "
			}
			name := child.name
			if child.isDir {
				name += string(filepath.Separator)
			}
			sb.WriteString(indent + connector + name + "\n")
			if child.isDir && child.truncated && len(child.children) == 0 {
				sb.WriteString(indent + next + "└───...\n")
				continue
			}
			render(child, indent+next)
		}
		if n.truncated && len(n.children) > 0 {
			sb.WriteString(indent + "└───...\n")
		}
	}
	render(root, "")
	return strings.TrimRight(sb.String(), "\n")
}
