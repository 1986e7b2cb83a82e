package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"

	"cmod/modules"
	"cmod/plugin"
	"cmod/transform"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	// PluginConfig names a single pipeline step and its options. Name must be
	// known to the plugin registry, hydration fails otherwise.
	PluginConfig struct {
		Name    string         `yaml:"name" validate:"required"`
		Options map[string]any `yaml:"options,omitempty"`
	}

	// ModulesSetting accepts either a plain boolean or a mapping in yaml, so
	// "modules: true" and "modules: {}" both enable the scoped name pipeline.
	ModulesSetting struct {
		Enabled bool
	}

	TransformConfig struct {
		Plugins            []PluginConfig `yaml:"plugins"`
		Modules            ModulesSetting `yaml:"modules"`
		OutputNameTemplate string         `yaml:"output_name_template"`
		FileNameSlugify    bool           `yaml:"file_name_slugify"`
		CachePath          string         `yaml:"cache_path,omitempty" validate:"omitempty,filepath"`
	}

	Config struct {
		Version   int             `yaml:"version" validate:"eq=1"`
		Transform TransformConfig `yaml:"transform"`
		Logging   LoggingConfig   `yaml:"logging"`
	}
)

func (m *ModulesSetting) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&m.Enabled)
	case yaml.MappingNode:
		m.Enabled = true
		return nil
	default:
		return fmt.Errorf("modules setting must be a boolean or a mapping (line %d)", value.Line)
	}
}

func (m ModulesSetting) MarshalYAML() (any, error) {
	return m.Enabled, nil
}

// Hydrate converts the persisted transform section into its runtime form:
// plugin names become registry instances, the modules switch becomes pipeline
// options. Returns nil when the section requests no processing at all.
func (tc *TransformConfig) Hydrate(env plugin.Env) (*transform.Config, error) {
	if len(tc.Plugins) == 0 && !tc.Modules.Enabled {
		return nil, nil
	}
	cfg := &transform.Config{}
	for _, pc := range tc.Plugins {
		p, err := plugin.New(pc.Name, pc.Options, env)
		if err != nil {
			return nil, fmt.Errorf("unable to hydrate transform configuration: %w", err)
		}
		cfg.Plugins = append(cfg.Plugins, p)
	}
	if tc.Modules.Enabled {
		cfg.Modules = &modules.Options{}
	}
	return cfg, nil
}

const OutputNameTemplateFieldName TemplateFieldName = "output_name_template"

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(OutputNameTemplateFieldName)),
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		// sanitize and validate what has been loaded
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}
