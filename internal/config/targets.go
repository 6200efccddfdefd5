package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dayuer/botlink-go/internal/frame"
)

// Target describes one outbound connection: where to dial and what to
// present during the handshake.
type Target struct {
	APIKey   string `yaml:"api_key" json:"apiKey"`
	Platform string `yaml:"platform" json:"platform"`
	URL      string `yaml:"url" json:"url"`
	Token    string `yaml:"token,omitempty" json:"token,omitempty"`
}

// Key returns the RoutingKey this target serves.
func (t Target) Key() frame.RoutingKey {
	return frame.RoutingKey{APIKey: t.APIKey, Platform: t.Platform}
}

// targetsFile is the top-level structure of targets.yaml.
type targetsFile struct {
	Targets []Target `yaml:"targets"`
}

// LoadTargets reads and parses a targets.yaml file. A missing file is not
// an error: it means no outbound targets (server-only mode).
func LoadTargets(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	var f targetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse targets file: %w", err)
	}

	for i, t := range f.Targets {
		if t.APIKey == "" || t.Platform == "" || t.URL == "" {
			return nil, fmt.Errorf("target %d: api_key, platform and url are required", i)
		}
	}
	return f.Targets, nil
}

// TargetMap indexes targets by RoutingKey. A later duplicate key wins.
func TargetMap(targets []Target) map[frame.RoutingKey]Target {
	m := make(map[frame.RoutingKey]Target, len(targets))
	for _, t := range targets {
		m[t.Key()] = t
	}
	return m
}
