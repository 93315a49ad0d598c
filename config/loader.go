package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/grovetools/modelcore/errors"
	"github.com/grovetools/modelcore/logging"
	"github.com/grovetools/modelcore/pkg/paths"
	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Format is the syntax of a configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

var configNames = []string{
	"modelcore.yml",
	"modelcore.yaml",
	"modelcore.toml",
	".modelcore.yml",
	".modelcore.yaml",
}

// FormatOf returns the format implied by the file extension of path.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Load reads, validates and defaults a single configuration file.
func Load(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return finalize(cfg)
}

// LoadDefault loads the configuration that applies to the working directory.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}
	return LoadFrom(cwd)
}

// LoadFrom loads configuration with hierarchical merging starting from startDir:
// 1. Global config (~/.config/modelcore/modelcore.yml) - base layer
// 2. Project config (first modelcore.* found walking up from startDir) - overrides global
// 3. Local override (modelcore.override.yml next to the project config) - overrides all
//
// Without a project config the global config alone is used, and without either the
// defaults are returned.
func LoadFrom(startDir string) (*Config, error) {
	return LoadFromWithLogger(startDir, logging.NewLogger("config"))
}

// LoadFromWithLogger is LoadFrom with an explicit logger.
func LoadFromWithLogger(startDir string, logger *logrus.Entry) (*Config, error) {
	var final *Config

	if globalPath := getXDGConfigPath(); globalPath != "" {
		if _, err := os.Stat(globalPath); err == nil {
			logger.WithField("path", globalPath).Debug("Loading global configuration")
			global, err := readFile(globalPath)
			if err != nil {
				logger.WithError(err).Warn("Failed to load global configuration, continuing without it")
			} else {
				final = global
			}
		}
	}

	projectPath, err := FindConfigFile(startDir)
	if err != nil && !errors.Is(err, errors.ErrCodeConfigNotFound) {
		return nil, err
	}
	if projectPath != "" {
		logger.WithField("path", projectPath).Debug("Loading project configuration")
		project, err := readFile(projectPath)
		if err != nil {
			return nil, err
		}
		final = mergeConfigs(final, project)

		for _, overridePath := range overrideFiles(filepath.Dir(projectPath)) {
			if _, err := os.Stat(overridePath); err != nil {
				continue
			}
			logger.WithField("path", overridePath).Debug("Loading local override configuration")
			override, err := readFile(overridePath)
			if err != nil {
				logger.WithError(err).Warn("Failed to load override file, skipping")
				continue
			}
			final = mergeConfigs(final, override)
		}
	}

	if final == nil {
		logger.Debug("No configuration file found, using defaults")
		final = &Config{}
	}

	cfg, err := finalize(final)
	if err != nil {
		return nil, err
	}

	if logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(cfg); err == nil {
			logger.Debugf("Merged configuration:\n%s", string(data))
		}
	}
	return cfg, nil
}

// LoadFromBytes parses, validates and defaults configuration data.
func LoadFromBytes(data []byte, format Format) (*Config, error) {
	cfg, err := parse(data, format)
	if err != nil {
		return nil, err
	}
	return finalize(cfg)
}

// FindConfigFile searches startDir and its parents for a modelcore configuration file.
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	cfg, err := parse(data, FormatOf(path))
	if err != nil {
		if ce, ok := err.(*errors.CoreError); ok {
			return nil, ce.WithDetail("path", path)
		}
		return nil, err
	}
	return cfg, nil
}

func parse(data []byte, format Format) (*Config, error) {
	expanded := []byte(expandEnvVars(string(data)))

	var cfg Config
	switch format {
	case FormatTOML:
		var raw map[string]interface{}
		if err := toml.Unmarshal(expanded, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
		}
		if err := mapstructure.Decode(raw, &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to decode TOML configuration")
		}
	default:
		if err := yaml.Unmarshal(expanded, &cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
		}
	}
	return &cfg, nil
}

// finalize validates cfg against the schema, applies defaults, then runs the
// semantic checks.
func finalize(cfg *Config) (*Config, error) {
	validator, err := NewSchemaValidator()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create validator")
	}
	if err := validator.Validate(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "schema validation failed")
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideFiles(dir string) []string {
	return []string{
		filepath.Join(dir, "modelcore.override.yml"),
		filepath.Join(dir, "modelcore.override.yaml"),
		filepath.Join(dir, "modelcore.override.toml"),
	}
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

// getXDGConfigPath returns the path of the global configuration file.
func getXDGConfigPath() string {
	dir := paths.ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "modelcore.yml")
}
