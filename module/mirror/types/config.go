package types

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/zerocat/extension-mirror/util/common/errors"
)

type SourceType string

var (
	CATALOG   SourceType = "CATALOG"
	DIRECTORY SourceType = "DIRECTORY"
)

const (
	// ConfigVersion is the major configuration format this build reads.
	ConfigVersion = "v1"
	// AuthorIDPlaceholder is replaced by the author id in a catalog authorURL.
	AuthorIDPlaceholder = "%s"

	DefaultDelay      = time.Second
	DefaultTimeout    = 30 * time.Second
	DefaultRetryMax   = 3
	DefaultHeaderScan = 10
)

// Config represents the top-level configuration structure
type Config struct {
	Version string                  `yaml:"version" toml:"version"`
	Delay   time.Duration           `yaml:"delay" toml:"delay"`
	Store   StoreConfig             `yaml:"store" toml:"store"`
	Sources map[string]SourceConfig `yaml:"sources" toml:"sources"`
}

// StoreConfig describes the target backend projects are mirrored into.
type StoreConfig struct {
	Endpoint   string        `yaml:"endpoint" toml:"endpoint"`
	Visibility Visibility    `yaml:"visibility" toml:"visibility"`
	Timeout    time.Duration `yaml:"timeout" toml:"timeout"`
	RetryMax   int           `yaml:"retryMax" toml:"retryMax"`
	Insecure   bool          `yaml:"insecure" toml:"insecure"`
}

// SourceConfig defines one artifact source and the account its projects
// are created under.
type SourceConfig struct {
	Type  SourceType `yaml:"type" toml:"type"`
	Label string     `yaml:"label" toml:"label"`
	// Prefix is prepended to the artifact id to form the project name.
	// An empty prefix uses the bare id.
	Prefix string `yaml:"prefix" toml:"prefix"`
	Token  string `yaml:"token,omitempty" toml:"token"`

	// CATALOG
	ListURL    string `yaml:"listURL" toml:"listURL"`
	ContentURL string `yaml:"contentURL" toml:"contentURL"`
	AuthorURL  string `yaml:"authorURL" toml:"authorURL"`

	// DIRECTORY
	Path    string   `yaml:"path" toml:"path"`
	Include []string `yaml:"include" toml:"include"`

	Select SelectConfig `yaml:"select" toml:"select"`
}

// SelectConfig is the allow-list applied to a source listing. All must be
// set explicitly to mirror every artifact.
type SelectConfig struct {
	IDs     []string `yaml:"ids" toml:"ids"`
	Authors []string `yaml:"authors" toml:"authors"`
	All     bool     `yaml:"all" toml:"all"`
}

// LookupFunc resolves ${VAR} references in configuration files.
type LookupFunc func(key string) string

// LoadConfig loads the configuration from a YAML or TOML file. The format is
// picked from the file extension, defaulting to YAML.
func LoadConfig(path string, lookup LookupFunc) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	expanded := expandEnv(string(data), lookup)

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	applyDefaults(&config)
	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// DefaultConfig returns the built-in configuration: the 40code catalog and a
// SharkPools-Extensions checkout in the working directory.
func DefaultConfig(lookup LookupFunc) *Config {
	if lookup == nil {
		lookup = os.Getenv
	}
	config := &Config{
		Version: "1",
		Store: StoreConfig{
			Endpoint: lookup("ZEROCAT_BACKEND"),
		},
		Sources: map[string]SourceConfig{
			"40code": {
				Type:       CATALOG,
				Label:      "40code",
				Prefix:     "40code",
				Token:      lookup("ZEROCAT_TOKEN_40CODE"),
				ListURL:    "https://api.abc.520gxx.com/work/ext",
				ContentURL: "https://abc.520gxx.com/ext",
				AuthorURL:  "https://www.40code.com/#page=user&id=%s",
				Select: SelectConfig{
					Authors: []string{
						"0832", "NOname", "NOname-awa", "NOname_awa", "白猫", "40code",
						"多bug的啸天犬", "makabakaKUN", "TigerCoder", "主核kernel",
					},
				},
			},
			"sharkpools": {
				Type:   DIRECTORY,
				Label:  "SharkPool",
				Token:  lookup("ZEROCAT_TOKEN_SHARKPOOL"),
				Path:   "SharkPools-Extensions",
				Select: SelectConfig{All: true},
			},
		},
	}
	applyDefaults(config)
	return config
}

// Source returns the named source configuration.
func (c *Config) Source(name string) (SourceConfig, error) {
	src, ok := c.Sources[name]
	if !ok {
		return SourceConfig{}, fmt.Errorf("%w: %q (configured: %s)", ErrUnknownSource, name,
			strings.Join(c.SourceNames(), ", "))
	}
	return src, nil
}

func (c *Config) SourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateForSync checks what a sync against the named source needs beyond
// what LoadConfig already validated.
func (c *Config) ValidateForSync(name string) error {
	if c.Store.Endpoint == "" {
		return errors.NewValidationError("store.endpoint", "backend endpoint is not set (ZEROCAT_BACKEND)")
	}
	src, err := c.Source(name)
	if err != nil {
		return err
	}
	if src.Token == "" {
		return errors.NewValidationError("sources."+name+".token", "token is not set")
	}
	return nil
}

// expandEnv expands ${VAR} references in the file content
func expandEnv(content string, lookup LookupFunc) string {
	if lookup == nil {
		lookup = os.Getenv
	}
	return os.Expand(content, func(key string) string {
		return lookup(key)
	})
}

func applyDefaults(config *Config) {
	if config.Delay == 0 {
		config.Delay = DefaultDelay
	}
	if config.Store.Visibility == "" {
		config.Store.Visibility = VisibilityPublic
	}
	if config.Store.Timeout == 0 {
		config.Store.Timeout = DefaultTimeout
	}
	if config.Store.RetryMax == 0 {
		config.Store.RetryMax = DefaultRetryMax
	}
	for name, src := range config.Sources {
		if src.Label == "" {
			src.Label = name
		}
		if src.Type == DIRECTORY && len(src.Include) == 0 {
			src.Include = []string{"*.js"}
		}
		config.Sources[name] = src
	}
}

// validateConfig performs basic validation on the configuration
func validateConfig(config *Config) error {
	if config.Version != "" {
		v := "v" + strings.TrimPrefix(config.Version, "v")
		if !semver.IsValid(v) {
			return errors.NewValidationError("version", fmt.Sprintf("%q is not a valid version", config.Version))
		}
		if semver.Major(v) != ConfigVersion {
			return errors.NewValidationError("version",
				fmt.Sprintf("unsupported version %s, this build reads %s", config.Version, ConfigVersion))
		}
	}
	if config.Delay < 0 {
		return errors.NewValidationError("delay", "must not be negative")
	}
	if config.Store.RetryMax < 0 {
		return errors.NewValidationError("store.retryMax", "must not be negative")
	}
	switch config.Store.Visibility {
	case VisibilityPublic, VisibilityPrivate:
	default:
		return errors.NewValidationError("store.visibility",
			fmt.Sprintf("unsupported visibility %q, must be 'public' or 'private'", config.Store.Visibility))
	}

	if len(config.Sources) == 0 {
		return errors.NewValidationError("sources", "at least one source must be defined")
	}

	for name, src := range config.Sources {
		field := "sources." + name
		switch src.Type {
		case CATALOG:
			if src.ListURL == "" {
				return errors.NewValidationError(field+".listURL", "cannot be empty for a CATALOG source")
			}
			if src.ContentURL == "" {
				return errors.NewValidationError(field+".contentURL", "cannot be empty for a CATALOG source")
			}
			if src.AuthorURL != "" && strings.Count(src.AuthorURL, AuthorIDPlaceholder) != 1 {
				return errors.NewValidationError(field+".authorURL",
					fmt.Sprintf("must contain %s exactly once", AuthorIDPlaceholder))
			}
		case DIRECTORY:
			if src.Path == "" {
				return errors.NewValidationError(field+".path", "cannot be empty for a DIRECTORY source")
			}
		case "":
			return errors.NewValidationError(field+".type", "source type cannot be empty")
		default:
			return errors.NewValidationError(field+".type", fmt.Sprintf("unsupported source type: %s", src.Type))
		}
	}
	return nil
}
