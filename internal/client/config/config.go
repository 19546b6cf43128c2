package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/joho/godotenv"
	"github.com/openmined/appsync/internal/utils"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	ManifestFileName = "appsync.manifest.json"
	DiffFileName     = "appsync.diff.json"
	EnvFileName      = ".env"
	IgnoreFileName   = ".appsyncignore"
	MetadataDirName  = ".appsync"

	DefaultSourceDirectory = "src"
	DefaultBuildDirectory  = "build"
	DefaultRefreshInterval = 30
	DefaultFileType        = "js"
)

// FileNames are the accepted project config file names, in lookup order.
var FileNames = []string{"appsync.yaml", "appsync.yml", "appsync.json"}

var (
	ErrNoConfig    = errors.New("config: no appsync config found")
	ErrNoSourceDir = errors.New("config: source directory not set")
	ErrNoBuildDir  = errors.New("config: build directory not set")
)

// FileOption is one content field synced for a table.
type FileOption struct {
	Name string `mapstructure:"name" yaml:"name"`
	Type string `mapstructure:"type" yaml:"type,omitempty"`
}

// TableOptions controls how records of a table are fetched and named.
type TableOptions struct {
	Files               []FileOption `mapstructure:"files" yaml:"files"`
	DisplayField        string       `mapstructure:"displayField" yaml:"displayField,omitempty"`
	DifferentiatorField []string     `mapstructure:"differentiatorField" yaml:"differentiatorField,omitempty"`
	Query               string       `mapstructure:"query" yaml:"query,omitempty"`
}

// Rule selects an external transform command for source files matching a glob.
type Rule struct {
	Match   string   `mapstructure:"match" yaml:"match"`
	Command []string `mapstructure:"command" yaml:"command"`
}

// Config is the project configuration.
type Config struct {
	SourceDirectory      string                  `mapstructure:"sourceDirectory" yaml:"sourceDirectory"`
	BuildDirectory       string                  `mapstructure:"buildDirectory" yaml:"buildDirectory"`
	RefreshInterval      int                     `mapstructure:"refreshInterval" yaml:"refreshInterval"`
	Includes             map[string]TableOptions `mapstructure:"includes" yaml:"includes"`
	Excludes             []string                `mapstructure:"excludes" yaml:"excludes,omitempty"`
	Rules                []Rule                  `mapstructure:"rules" yaml:"rules,omitempty"`
	UpdateSetChangeTypes []string                `mapstructure:"updateSetChangeTypes" yaml:"updateSetChangeTypes,omitempty"`

	Path string `mapstructure:"-" yaml:"-"` // config file path
	Root string `mapstructure:"-" yaml:"-"` // project root, the directory of Path
}

// Default returns the starter configuration written by init.
func Default() *Config {
	return &Config{
		SourceDirectory: DefaultSourceDirectory,
		BuildDirectory:  DefaultBuildDirectory,
		RefreshInterval: DefaultRefreshInterval,
		Includes: map[string]TableOptions{
			"sys_script_include": {Files: []FileOption{{Name: "script", Type: "js"}}},
			"sys_script":         {Files: []FileOption{{Name: "script", Type: "js"}}, DifferentiatorField: []string{"collection"}},
			"sys_ui_script":      {Files: []FileOption{{Name: "script", Type: "js"}}},
			"sys_script_client":  {Files: []FileOption{{Name: "script", Type: "js"}}, DifferentiatorField: []string{"table"}},
			"sp_widget": {Files: []FileOption{
				{Name: "script", Type: "js"},
				{Name: "client_script", Type: "js"},
				{Name: "template", Type: "html"},
				{Name: "css", Type: "scss"},
			}},
		},
	}
}

// Discover finds the project config by walking up from dir and loads it.
func Discover(dir string) (*Config, error) {
	path, found := utils.FindUp(dir, FileNames...)
	if !found {
		return nil, ErrNoConfig
	}
	return Load(path)
}

// Load reads the config file at path.
func Load(path string) (*Config, error) {
	abs, err := utils.ResolvePath(path)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(abs)
	v.SetDefault("sourceDirectory", DefaultSourceDirectory)
	v.SetDefault("buildDirectory", DefaultBuildDirectory)
	v.SetDefault("refreshInterval", DefaultRefreshInterval)

	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoConfig
		}
		return nil, fmt.Errorf("config read '%s': %w", abs, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode '%s': %w", abs, err)
	}

	cfg.Path = abs
	cfg.Root = filepath.Dir(abs)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.SourceDirectory == "" {
		return ErrNoSourceDir
	}
	if c.BuildDirectory == "" {
		return ErrNoBuildDir
	}
	return nil
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// SourcePath returns the absolute source directory
func (c *Config) SourcePath() string {
	return c.resolve(c.SourceDirectory)
}

// BuildPath returns the absolute build directory
func (c *Config) BuildPath() string {
	return c.resolve(c.BuildDirectory)
}

func (c *Config) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(c.Root, dir)
}

// Tables returns the included tables that are not excluded, sorted.
func (c *Config) Tables() []string {
	tables := make([]string, 0, len(c.Includes))
	for table := range c.Includes {
		if slices.Contains(c.Excludes, table) {
			continue
		}
		tables = append(tables, table)
	}
	slices.Sort(tables)
	return tables
}

// TableFiles returns the files synced for table with their types defaulted.
func (c *Config) TableFiles(table string) []FileOption {
	opts, ok := c.Includes[table]
	if !ok {
		return nil
	}
	files := make([]FileOption, 0, len(opts.Files))
	for _, f := range opts.Files {
		if f.Name == "" {
			continue
		}
		if f.Type == "" {
			f.Type = DefaultFileType
		}
		files = append(files, f)
	}
	return files
}

// LoadEnv loads KEY=VALUE pairs from the project's .env without overriding the environment.
func LoadEnv(root string) error {
	path := filepath.Join(root, EnvFileName)
	if !utils.FileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// WriteEnvTemplate writes a .env with empty credentials.
func WriteEnvTemplate(root, instance, user string) error {
	env := map[string]string{
		"SN_INSTANCE": instance,
		"SN_USER":     user,
		"SN_PASSWORD": "",
	}
	return godotenv.Write(env, filepath.Join(root, EnvFileName))
}
