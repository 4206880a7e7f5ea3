package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// DefaultContextFileName is the memory file looked up in each directory.
const DefaultContextFileName = "GEMINI.md"

const maxMemoryBytes = 32 * 1024

// LoadMemory concatenates the memory files that apply to target: the global
// file in ~/.gemini, then one per directory from the repository root (or
// target itself outside a repository) down to target. It returns the text and
// the number of files read.
func LoadMemory(target, home, fileName string, logger *zap.Logger) (string, int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fileName == "" {
		fileName = DefaultContextFileName
	}
	if strings.ContainsRune(fileName, filepath.Separator) {
		return "", 0, fmt.Errorf("context file name %q must not contain a path separator", fileName)
	}

	var paths []string
	if home != "" {
		paths = append(paths, filepath.Join(home, SettingsDirName, fileName))
	}
	root := gitRoot(target)
	if root == "" {
		root = target
	}
	for _, dir := range collectPathHierarchy(root, target) {
		paths = append(paths, filepath.Join(dir, fileName))
	}

	var blocks []string
	total := 0
	seen := make(map[string]bool)
	for _, path := range paths {
		if seen[path] {
			continue
		}
		seen[path] = true
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			logger.Warn("skipping unreadable memory file", zap.String("path", path), zap.Error(err))
			continue
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}

		remaining := maxMemoryBytes - total
		if remaining <= 0 {
			blocks = append(blocks, "[Memory truncated at 32KB]")
			break
		}
		if len(text) > remaining {
			text = text[:remaining] + "\n[Memory truncated at 32KB]"
		}
		name := displayPath(path, target)
		blocks = append(blocks, fmt.Sprintf("--- Context from: %s ---\n%s\n--- End of Context from: %s ---", name, text, name))
		total += len(text)
		logger.Debug("loaded memory file", zap.String("path", path))
	}
	return strings.Join(blocks, "\n\n"), len(blocks), nil
}

func displayPath(path, target string) string {
	if rel, err := filepath.Rel(target, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

// collectPathHierarchy returns directories from root to target, inclusive.
// A target outside root yields just target.
func collectPathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	if root == target {
		return []string{root}
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return []string{target}
	}

	dirs := []string{root}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

func gitRoot(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
