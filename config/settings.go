package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var DefaultPostfixes = []string{
	"main.ba2",
	"materials.ba2",
	"misc.ba2",
	"scripts.ba2",
}

// Settings holds the user-editable filter lists. They live in a YAML file
// rather than the environment because both are lists.
type Settings struct {
	Postfixes    []string `yaml:"postfixes"`
	IgnoredFiles []string `yaml:"ignored_files"`
}

func DefaultSettings() Settings {
	return Settings{
		Postfixes: append([]string(nil), DefaultPostfixes...),
	}
}

// LoadSettings reads path. A missing file yields the defaults.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var parsed Settings
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return settings, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(parsed.Postfixes) > 0 {
		settings.Postfixes = parsed.Postfixes
	}
	settings.IgnoredFiles = parsed.IgnoredFiles

	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

func (s Settings) Validate() error {
	var errs []error
	for _, postfix := range s.Postfixes {
		if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(postfix)), ".ba2") {
			errs = append(errs, fmt.Errorf("postfix %q must end with .ba2", postfix))
		}
	}
	return errors.Join(errs...)
}
