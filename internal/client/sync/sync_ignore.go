package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/appsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

var defaultIgnoreLines = []string{
	// node
	"node_modules/",
	// IDE/Editor-specific
	".vscode",
	".idea",
	"*.swp",
	"*~",
	// General excludes
	".git",
	"*.tmp",
	"*.log",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

// IgnoreList filters paths under a base directory with gitignore rules.
type IgnoreList struct {
	baseDir    string
	ignorePath string
	ignore     *gitignore.GitIgnore
}

func NewIgnoreList(baseDir, ignorePath string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir, ignorePath: ignorePath}
}

// Load compiles the default rules followed by the rules of the ignore file, if any.
func (s *IgnoreList) Load() {
	ignoreLines := append([]string{}, defaultIgnoreLines...)

	if s.ignorePath != "" && utils.FileExists(s.ignorePath) {
		rules := 0
		file, err := os.Open(s.ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", s.ignorePath, "error", err)
		} else {
			defer file.Close()

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line != "" && !strings.HasPrefix(line, "#") {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}

			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", s.ignorePath, "error", err)
			} else {
				slog.Debug("loaded ignore file", "path", s.ignorePath, "rules", rules)
			}
		}
	}

	s.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

// ShouldIgnore reports whether path, absolute or relative to the base directory, is ignored.
// Absolute paths outside the base directory are never ignored.
func (s *IgnoreList) ShouldIgnore(path string) bool {
	if s.ignore == nil {
		s.Load()
	}
	if filepath.IsAbs(path) {
		rel, ok := utils.RelativeTo(s.baseDir, path)
		if !ok {
			return false
		}
		path = rel
	}
	return s.ignore.MatchesPath(filepath.ToSlash(path))
}
