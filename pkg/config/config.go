// Package config handles loading and saving of probectl's configuration
// file.
package config

import (
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v2"
)

const (
	configDirName  = ".probectl"
	configFileName = "config.yml"
)

// Config defines all configuration options available to be set through
// the config file.
type Config struct {
	// BuildFlags are extra flags passed to the compiler when building the
	// probe target.
	BuildFlags string `yaml:"build-flags"`

	// DisasmLines is how many instructions to decode at each trap site
	// when disassembly is requested.
	DisasmLines int `yaml:"disasm-lines"`

	// GlobalOverride, when set, is written over the target's process-wide
	// counter while it is stopped at the first trap.
	GlobalOverride *int `yaml:"global-override,omitempty"`
}

func defaultConfig() *Config {
	return &Config{DisasmLines: 4}
}

// LoadConfig attempts to populate a Config from the config.yml file,
// falling back to defaults when the file is missing or malformed.
func LoadConfig() *Config {
	fullConfigFile, err := GetConfigFilePath(configFileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to get config file path: %v\n", err)
		return defaultConfig()
	}
	return loadConfigAt(fullConfigFile)
}

func loadConfigAt(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return defaultConfig()
	}
	c := defaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		fmt.Fprintf(os.Stderr, "unable to decode config file: %v\n", err)
		return defaultConfig()
	}
	return c
}

// SaveConfig marshals conf and writes it to the config file, creating the
// config directory when needed.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFileName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(path.Dir(fullConfigFile), 0700); err != nil {
		return err
	}
	return saveConfigAt(conf, fullConfigFile)
}

func saveConfigAt(conf *Config, path string) error {
	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0644)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return path.Join(home, configDirName, file), nil
}
