package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mimic/internal/models"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// LoadConfig loads a simulator configuration from a YAML file
func LoadConfig(filePath string) (*models.MockServer, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes and validates one YAML document.
func ParseConfig(data []byte) (*models.MockServer, error) {
	var config models.MockServer
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadConfigFromDir loads every .yaml and .yml file below dirPath, in lexical
// order.
func LoadConfigFromDir(dirPath string) ([]*models.MockServer, error) {
	files, err := doublestar.FilepathGlob(filepath.Join(dirPath, "**", "*.{yaml,yml}"))
	if err != nil {
		return nil, fmt.Errorf("error finding YAML files: %w", err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no YAML configuration files found in %s", dirPath)
	}
	sort.Strings(files)

	var configs []*models.MockServer
	for _, file := range files {
		config, err := LoadConfig(file)
		if err != nil {
			return nil, fmt.Errorf("error loading config from %s: %w", file, err)
		}
		configs = append(configs, config)
	}

	return configs, nil
}

// validateConfig runs the struct tags first, then the checks tags cannot
// express.
func validateConfig(config *models.MockServer) error {
	if err := validate.Struct(config); err != nil {
		return err
	}

	names := make(map[string]bool)
	for i, backend := range config.Backends {
		if names[backend.Name] {
			return fmt.Errorf("backend %d: duplicate name %q", i, backend.Name)
		}
		names[backend.Name] = true

		keys := make(map[string]bool)
		for j, endpoint := range backend.Endpoints {
			if err := endpoint.Validate(); err != nil {
				return fmt.Errorf("backend %s, endpoint %d (%s %s): %w", backend.Name, j, endpoint.Method, endpoint.Path, err)
			}
			keys[strings.ToUpper(endpoint.Method)+" "+endpoint.Path] = true
		}

		scenarios := make(map[string]bool)
		for j, scenario := range backend.Scenarios {
			if scenarios[scenario.Name] {
				return fmt.Errorf("backend %s, scenario %d: duplicate name %q", backend.Name, j, scenario.Name)
			}
			scenarios[scenario.Name] = true

			if scenario.Endpoint != "" && scenario.Endpoint != "*" && !keys[normalizeKey(scenario.Endpoint)] {
				return fmt.Errorf("backend %s, scenario %s: unknown endpoint %q", backend.Name, scenario.Name, scenario.Endpoint)
			}
		}
	}

	return nil
}

func normalizeKey(key string) string {
	method, path, found := strings.Cut(strings.TrimSpace(key), " ")
	if !found {
		return key
	}
	return strings.ToUpper(method) + " " + strings.TrimSpace(path)
}

// GetConfigDir returns the directory where configuration files are stored
func GetConfigDir() string {
	configDir := os.Getenv("CONFIG_DIR")
	if configDir != "" {
		return configDir
	}

	return "./config"
}

// GetLogSettings returns the default logging configuration
func GetLogSettings() *models.LogSettings {
	return &models.LogSettings{
		Console:            true,
		BeautifyConsoleLog: true,
		File:               false,
		Path:               "./logs/mimic.log",
		MinLevel:           "info",
		RotationMaxSizeMB:  100,
		MaxAgeDay:          30,
		MaxBackups:         5,
		Compress:           true,
	}
}
