package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/appsync/internal/client/config"
	"github.com/spf13/afero"
)

var ErrEmptyCommand = errors.New("transform: empty command")

// Transform renders the remote content of a source file.
type Transform interface {
	Render(ctx context.Context, path string) (string, error)
}

// Passthrough returns the file content unchanged.
type Passthrough struct {
	fs afero.Fs
}

func NewPassthrough(fs afero.Fs) *Passthrough {
	return &Passthrough{fs: fs}
}

func (p *Passthrough) Render(_ context.Context, path string) (string, error) {
	data, err := afero.ReadFile(p.fs, path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// Command runs an external program with the file path appended to its arguments and
// returns its standard output.
type Command struct {
	Args []string
	Dir  string
}

func (c *Command) Render(ctx context.Context, path string) (string, error) {
	if len(c.Args) == 0 {
		return "", ErrEmptyCommand
	}

	args := append(append([]string{}, c.Args[1:]...), path)
	cmd := exec.CommandContext(ctx, c.Args[0], args...)
	cmd.Dir = c.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("%s: %w", c.Args[0], err)
		}
		return "", fmt.Errorf("%s: %w: %s", c.Args[0], err, msg)
	}
	return stdout.String(), nil
}

type rule struct {
	pattern   string
	transform Transform
}

// Registry picks the transform of the first rule whose glob matches a file's path relative
// to the project root, falling back to Passthrough.
type Registry struct {
	root     string
	rules    []rule
	fallback Transform
}

// NewRegistry builds a registry from configured rules.
func NewRegistry(root string, fs afero.Fs, rules []config.Rule) (*Registry, error) {
	r := &Registry{root: root, fallback: NewPassthrough(fs)}
	for _, cfgRule := range rules {
		if !doublestar.ValidatePattern(cfgRule.Match) {
			return nil, fmt.Errorf("transform rule: invalid pattern %q", cfgRule.Match)
		}
		if len(cfgRule.Command) == 0 {
			return nil, fmt.Errorf("transform rule %q: %w", cfgRule.Match, ErrEmptyCommand)
		}
		r.Add(cfgRule.Match, &Command{Args: cfgRule.Command, Dir: root})
	}
	return r, nil
}

// Add appends a rule. Rules are tried in the order they were added.
func (r *Registry) Add(pattern string, t Transform) {
	r.rules = append(r.rules, rule{pattern: pattern, transform: t})
}

// Lookup returns the transform for path.
func (r *Registry) Lookup(path string) Transform {
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	for _, rl := range r.rules {
		if ok, _ := doublestar.Match(rl.pattern, rel); ok {
			return rl.transform
		}
	}
	return r.fallback
}

func (r *Registry) Render(ctx context.Context, path string) (string, error) {
	t := r.Lookup(path)
	slog.Debug("render", "path", path, "transform", fmt.Sprintf("%T", t))
	return t.Render(ctx, path)
}
