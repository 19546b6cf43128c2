package client

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/spf13/afero"
)

// TargetSeparator separates the paths of a push target.
const TargetSeparator = ","

// GitDiffFunc lists the files changed since ref, relative to dir.
type GitDiffFunc func(ctx context.Context, dir, ref string) ([]string, error)

func gitDiffNames(ctx context.Context, dir, ref string) ([]string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", "--relative", ref)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git diff %s: %w: %s", ref, err, strings.TrimSpace(stderr.String()))
	}

	var names []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// Targets selects the files an operation works on.
type Targets struct {
	// Paths is a comma separated list of files, directories or globs relative to the
	// project root.
	Paths string
	// DiffRef selects the files changed since a git ref when Paths is empty.
	DiffRef string
}

// ResolveTargets expands targets into absolute file paths, falling back to every file
// under root. Ignored files are dropped.
func (c *Client) ResolveTargets(ctx context.Context, t Targets, root string) ([]string, error) {
	var paths []string
	var err error

	switch {
	case strings.TrimSpace(t.Paths) != "":
		paths, err = c.expandTargets(t.Paths)
	case t.DiffRef != "":
		paths, err = c.diffTargets(ctx, t.DiffRef)
	default:
		paths, err = c.listFiles(root)
	}
	if err != nil {
		return nil, err
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if c.ignore.ShouldIgnore(p) || !seen.Add(p) {
			continue
		}
		out = append(out, p)
	}
	slices.Sort(out)
	return out, nil
}

func (c *Client) expandTargets(list string) ([]string, error) {
	var paths []string
	for _, target := range strings.Split(list, TargetSeparator) {
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}

		abs := c.workspace.AbsPath(target)
		info, err := c.fs.Stat(abs)
		switch {
		case err == nil && info.IsDir():
			files, err := c.listFiles(abs)
			if err != nil {
				return nil, err
			}
			paths = append(paths, files...)
		case err == nil:
			paths = append(paths, abs)
		default:
			matches, err := c.glob(target)
			if err != nil {
				return nil, err
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("target %q matched no files", target)
			}
			paths = append(paths, matches...)
		}
	}
	return paths, nil
}

func (c *Client) glob(pattern string) ([]string, error) {
	if filepath.IsAbs(pattern) {
		if rel, err := c.workspace.RelPath(pattern); err == nil {
			pattern = rel
		}
	}
	pattern = filepath.ToSlash(pattern)
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid target pattern %q", pattern)
	}

	root := afero.NewIOFS(afero.NewBasePathFs(c.fs, c.workspace.Root))
	matches, err := doublestar.Glob(root, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", pattern, err)
	}

	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		paths = append(paths, c.workspace.AbsPath(m))
	}
	return paths, nil
}

func (c *Client) diffTargets(ctx context.Context, ref string) ([]string, error) {
	names, err := c.gitDiff(ctx, c.workspace.Root, ref)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(names))
	for _, name := range names {
		abs := c.workspace.AbsPath(name)
		// deleted files show up in the diff too
		if ok, _ := afero.Exists(c.fs, abs); ok {
			paths = append(paths, abs)
		}
	}
	return paths, nil
}

// listFiles returns every regular file under dir. A missing dir has no files.
func (c *Client) listFiles(dir string) ([]string, error) {
	if ok, _ := afero.DirExists(c.fs, dir); !ok {
		return nil, nil
	}

	var paths []string
	err := afero.Walk(c.fs, dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return paths, nil
}
