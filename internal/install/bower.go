package install

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const bowerRC = `{
  "analytics": false,
  "interactive": false
}
`

// Bower installs and lists packages with the bower command line tool
type Bower struct {
	// Path is the bower executable
	Path string
	// Dir is the widgets directory bower runs in
	Dir string
}

// NewBower creates a runner for the bower executable at path, working in dir
func NewBower(path, dir string) *Bower {
	if path == "" {
		path = "bower"
	}
	return &Bower{Path: path, Dir: dir}
}

// Install runs a non-interactive production install of pkg
func (b *Bower) Install(ctx context.Context, pkg string) error {
	_, err := b.run(ctx, "install", "--allow-root", "--config.interactive=false", "--production", pkg)
	return err
}

// List returns the installed packages as reported by bower, with
// "bower_" path prefixes rewritten to "/"
func (b *Bower) List(ctx context.Context) (map[string]any, error) {
	out, err := b.run(ctx, "list", "--allow-root", "--config.interactive=false", "-o", "-p", "-j")
	if err != nil {
		return nil, err
	}

	var listing map[string]any
	if err := json.Unmarshal(out, &listing); err != nil {
		return nil, fmt.Errorf("failed to parse bower list output: %w", err)
	}
	return RewritePaths(listing), nil
}

func (b *Bower) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, b.Path, args...)
	cmd.Dir = b.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("bower %s: %w", args[0], err)
		}
		return nil, fmt.Errorf("bower %s: %w: %s", args[0], err, msg)
	}
	return stdout.Bytes(), nil
}

// RewritePaths replaces "bower_" with "/" in every string value and in every
// string element of list values
func RewritePaths(listing map[string]any) map[string]any {
	out := make(map[string]any, len(listing))
	for k, v := range listing {
		switch val := v.(type) {
		case string:
			out[k] = strings.ReplaceAll(val, "bower_", "/")
		case []any:
			rewritten := make([]any, len(val))
			for i, el := range val {
				if s, ok := el.(string); ok {
					rewritten[i] = strings.ReplaceAll(s, "bower_", "/")
				} else {
					rewritten[i] = el
				}
			}
			out[k] = rewritten
		default:
			out[k] = v
		}
	}
	return out
}

// EnsureBowerRC writes a non-interactive .bowerrc into dir unless one exists.
// It reports whether a file was written.
func EnsureBowerRC(dir string) (bool, error) {
	path := filepath.Join(dir, ".bowerrc")
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create widgets directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(bowerRC), 0o644); err != nil {
		return false, fmt.Errorf("failed to write .bowerrc: %w", err)
	}
	return true, nil
}

// ComponentsDir returns the directory bower installs packages into
func ComponentsDir(widgetsDir string) string {
	return filepath.Join(widgetsDir, "bower_components")
}
