package language

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/craftpad/runbox/config"
)

// ErrUnknownLanguage is returned when a language is not in the registry
var ErrUnknownLanguage = errors.New("unknown language")

// ListFormat identifies how a language's package-list stdout is parsed
type ListFormat string

// Supported list output formats
const (
	ListFormatJSONDeps  ListFormat = "json-deps"  // JSON object with a "dependencies" map
	ListFormatJSONArray ListFormat = "json-array" // JSON array of records with a "name" field
	ListFormatLines     ListFormat = "lines"      // one package per line, first field is the name
)

// PackageOps describes how package operations are composed for a
// language. Package specifiers are appended to the command templates;
// RemoveSuffix is appended to each specifier on removal (Go modules are
// removed with "go get pkg@none").
type PackageOps struct {
	InstallCommand string     `yaml:"install"`
	RemoveCommand  string     `yaml:"remove"`
	RemoveSuffix   string     `yaml:"remove_suffix"`
	ListCommand    string     `yaml:"list"`
	InitCommand    string     `yaml:"init"`
	ListFormat     ListFormat `yaml:"list_format"`
	PackageFile    string     `yaml:"package_file"`
	// NoisePrefixes are dropped while parsing line-oriented output
	NoisePrefixes []string `yaml:"noise_prefixes"`
	// SkipLines drops leading lines (tool banners, the root module row)
	SkipLines int `yaml:"skip_lines"`
}

// Config is one immutable language table row
type Config struct {
	Name          string
	Image         string
	RunCommand    string // shell line executed with sh -c, references FileName
	FileName      string
	Extension     string
	SetupCommands []string
	Packages      *PackageOps // nil when the language has no package manager
}

// Registry maps language identifiers to their configuration. The table
// is built at startup (built-ins, config overrides, optional language
// file) and read-only afterwards.
type Registry struct {
	langs map[string]Config
}

// NewRegistry builds the registry from the built-in language table with
// per-language overrides from the application configuration applied on
// top. Overrides may also introduce entirely new languages as long as
// they carry an image, a run command and a file name.
func NewRegistry(overrides map[string]config.Language) (*Registry, error) {
	langs := builtinLanguages()

	for name, o := range overrides {
		name = strings.ToLower(name)
		row, ok := langs[name]
		if !ok {
			if o.Image == "" || o.RunCommand == "" || o.FileName == "" {
				return nil, fmt.Errorf("language %q: new languages need image, run_command and file_name", name)
			}
			row = Config{Name: name}
		}
		if o.Image != "" {
			row.Image = o.Image
		}
		if o.RunCommand != "" {
			row.RunCommand = o.RunCommand
		}
		if o.FileName != "" {
			row.FileName = o.FileName
			row.Extension = filepath.Ext(o.FileName)
		}
		if len(o.SetupCommands) > 0 {
			row.SetupCommands = o.SetupCommands
		}
		langs[name] = row
	}

	return &Registry{langs: langs}, nil
}

// NewFromConfig builds the registry for fx wiring, merging the
// configured language file on top of the inline overrides when set
func NewFromConfig(cfg *config.Config) (*Registry, error) {
	r, err := NewRegistry(cfg.Languages)
	if err != nil {
		return nil, err
	}
	if cfg.LanguagesFile != "" {
		if err := r.LoadFile(cfg.LanguagesFile); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Resolve looks up a language by identifier
func (r *Registry) Resolve(name string) (Config, error) {
	lang, ok := r.langs[strings.ToLower(name)]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownLanguage, name)
	}
	return lang, nil
}

// Languages returns the sorted list of registered language identifiers
func (r *Registry) Languages() []string {
	names := make([]string, 0, len(r.langs))
	for name := range r.langs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PackageLanguages returns the sorted identifiers of languages with
// package manager support
func (r *Registry) PackageLanguages() []string {
	names := make([]string, 0, len(r.langs))
	for name, lang := range r.langs {
		if lang.Packages != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// fileEntry is the YAML shape of one language row in a language file
type fileEntry struct {
	Image         string      `yaml:"image"`
	RunCommand    string      `yaml:"run_command"`
	FileName      string      `yaml:"file_name"`
	SetupCommands []string    `yaml:"setup_commands"`
	Packages      *PackageOps `yaml:"packages"`
}

// LoadFile merges a YAML language file into the registry. The file maps
// language identifiers to rows in the same shape as the built-in table.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read language file: %w", err)
	}

	var entries map[string]fileEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse language file: %w", err)
	}

	for name, e := range entries {
		name = strings.ToLower(name)
		row, ok := r.langs[name]
		if !ok {
			if e.Image == "" || e.RunCommand == "" || e.FileName == "" {
				return fmt.Errorf("language %q: new languages need image, run_command and file_name", name)
			}
			row = Config{Name: name}
		}
		if e.Image != "" {
			row.Image = e.Image
		}
		if e.RunCommand != "" {
			row.RunCommand = e.RunCommand
		}
		if e.FileName != "" {
			row.FileName = e.FileName
			row.Extension = filepath.Ext(e.FileName)
		}
		if len(e.SetupCommands) > 0 {
			row.SetupCommands = e.SetupCommands
		}
		if e.Packages != nil {
			row.Packages = e.Packages
		}
		r.langs[name] = row
	}

	return nil
}
