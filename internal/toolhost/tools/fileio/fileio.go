// Package fileio provides a built-in "read_file" tool for sandboxed file
// reading. All paths are resolved relative to a configured base directory;
// path traversal attempts (e.g. "../") are rejected with an error.
package fileio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/voxrelay/voxrelay/internal/toolhost"
)

// maxReadBytes is the maximum file size read_file will return. Files larger
// than this limit are rejected with an error.
const maxReadBytes = 1 << 20 // 1 MiB

// safePath resolves relPath against baseDir and verifies that the resolved
// absolute path remains inside baseDir (preventing path traversal attacks).
func safePath(baseDir, relPath string) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("read_file: path must not be empty")
	}

	joined := filepath.Join(baseDir, relPath)
	cleanBase := filepath.Clean(baseDir)
	if !strings.HasPrefix(joined, cleanBase+string(filepath.Separator)) && joined != cleanBase {
		return "", fmt.Errorf("read_file: path %q escapes the sandbox directory", relPath)
	}
	return joined, nil
}

// result is the structured output of the "read_file" tool.
type result struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func makeHandler(baseDir string) toolhost.Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		path, _ := args["path"].(string)

		absPath, err := safePath(baseDir, path)
		if err != nil {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("read_file: %w", ctx.Err())
		default:
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("read_file: %w", err)
		}
		if info.Size() > maxReadBytes {
			return nil, fmt.Errorf("read_file: file %q is too large (%d bytes, max %d)", path, info.Size(), maxReadBytes)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("read_file: failed to read file: %w", err)
		}

		return result{Path: path, Content: string(data)}, nil
	}
}

// Tool constructs the "read_file" built-in sandboxed to baseDir. baseDir
// must be an absolute path to an existing directory.
func Tool(baseDir string) toolhost.Tool {
	return toolhost.Tool{
		Name:        "read_file",
		Description: "Read the text content of a file from the session's sandboxed file store. Returns the full file content. Files larger than 1 MiB are rejected.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "Relative file path within the sandbox (e.g. notes/session1.md). Must not contain '..' path components.",
				},
			},
			"required": []string{"path"},
		},
		Handler: makeHandler(baseDir),
	}
}
