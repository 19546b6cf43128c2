package manifest

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// DiffFile lists paths changed since the last deploy.
type DiffFile struct {
	Changed []string `json:"changed"`
}

// LoadDiffFile reads a diff file. A missing file yields an empty DiffFile.
func LoadDiffFile(path string) (*DiffFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &DiffFile{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("read diff file: %w", err)
	}

	var diff DiffFile
	if err := json.Unmarshal(data, &diff); err != nil {
		return nil, fmt.Errorf("parse diff file %s: %w", path, err)
	}
	return &diff, nil
}
