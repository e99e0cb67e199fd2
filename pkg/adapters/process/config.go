package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// CommandConfig binds a handler key to an external agent command.
type CommandConfig struct {
	Handler     string            `yaml:"handler" json:"handler"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of handlers.yaml
type ConfigFile struct {
	Handlers []CommandConfig `yaml:"handlers" json:"handlers"`
}

// LoadCommands reads a configuration file (YAML or JSON) and returns the
// commands keyed by handler.
func LoadCommands(path string) (map[string]CommandConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read handlers config: %w", err)
	}

	var cfg ConfigFile
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	commands := make(map[string]CommandConfig)
	for _, c := range cfg.Handlers {
		if c.Handler == "" || c.Command == "" {
			return nil, fmt.Errorf("handler entry needs both handler and command: %+v", c)
		}
		if _, dup := commands[c.Handler]; dup {
			return nil, fmt.Errorf("duplicate handler %q", c.Handler)
		}
		commands[c.Handler] = c
	}

	return commands, nil
}
