// Package config loads fripack project files.
//
// A project file maps target names to target settings. Targets may inherit
// from one another; Resolve flattens the chains. JSON files accept comments
// and trailing commas. YAML files use the same field names.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// FileNames are the project file names Find looks for, in priority order.
var FileNames = []string{"fripack.json", "fripack.config.json", "fripack.yaml", "fripack.yml"}

var (
	ErrNotFound      = errors.New("fripack configuration not found")
	ErrExists        = errors.New("configuration file already exists")
	ErrCycle         = errors.New("cyclic inheritance")
	ErrUnknownTarget = errors.New("target not found")
)

// Target is one entry of a project file as written. All fields are pointers
// so a child can tell "not set" from a zero value when inheriting.
type Target struct {
	Inherit              *string `json:"inherit,omitempty" yaml:"inherit,omitempty"`
	Type                 *string `json:"type,omitempty" yaml:"type,omitempty"`
	Platform             *string `json:"platform,omitempty" yaml:"platform,omitempty"`
	Version              *string `json:"version,omitempty" yaml:"version,omitempty"`
	FridaVersion         *string `json:"fridaVersion,omitempty" yaml:"fridaVersion,omitempty"`
	Mode                 *string `json:"mode,omitempty" yaml:"mode,omitempty"`
	Entry                *string `json:"entry,omitempty" yaml:"entry,omitempty"`
	XZ                   *bool   `json:"xz,omitempty" yaml:"xz,omitempty"`
	OverridePrebuildFile *string `json:"overridePrebuildFile,omitempty" yaml:"overridePrebuildFile,omitempty"`
	PackageName          *string `json:"packageName,omitempty" yaml:"packageName,omitempty"`
	Keystore             *string `json:"keystore,omitempty" yaml:"keystore,omitempty"`
	Name                 *string `json:"name,omitempty" yaml:"name,omitempty"`
	Icon                 *string `json:"icon,omitempty" yaml:"icon,omitempty"`
}

// File is a loaded project file.
type File struct {
	// Path is the file the targets were read from.
	Path    string
	Targets map[string]Target
}

// Dir is the directory relative target paths resolve against.
func (f *File) Dir() string {
	return filepath.Dir(f.Path)
}

// Find walks up from start looking for one of FileNames.
func Find(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		for _, name := range FileNames {
			p := filepath.Join(dir, name)
			if st, err := os.Stat(p); err == nil && !st.IsDir() {
				return p, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w in %s or any parent directory", ErrNotFound, start)
		}
		dir = parent
	}
}

// Load reads and decodes a project file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	targets, err := Parse(data, isYAML(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &File{Path: abs, Targets: targets}, nil
}

// Parse decodes project file content. JSON input may contain comments and
// trailing commas.
func Parse(data []byte, yamlInput bool) (map[string]Target, error) {
	targets := map[string]Target{}
	if yamlInput {
		if err := yaml.Unmarshal(data, &targets); err != nil {
			return nil, err
		}
		return targets, nil
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(std, &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
