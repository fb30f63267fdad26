// Package config loads YAML manifests describing desired monitoring entities.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yairfalse/vigil/types"
)

// Manifest is a desired-state document
type Manifest struct {
	Version  string             `yaml:"version"`
	Defaults Defaults           `yaml:"defaults,omitempty"`
	Entities []types.EntitySpec `yaml:"entities"`
}

// Defaults are applied to entities that leave the field unset
type Defaults struct {
	Instance    string            `yaml:"instance,omitempty"`
	ApplyConfig *bool             `yaml:"apply_config,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty"`
}

// LoadManifest loads a manifest file, or every *.yaml/*.yml file in a
// directory merged in lexical order.
func LoadManifest(path string) (*Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if !info.IsDir() {
		return loadFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no manifests found in %s", path)
	}
	sort.Strings(files)

	merged := &Manifest{}
	declaredIn := make(map[string]string)
	var clashes []string
	for _, file := range files {
		m, err := loadFile(file)
		if err != nil {
			return nil, err
		}
		if merged.Version == "" {
			merged.Version = m.Version
		}
		for _, e := range m.Entities {
			key := entityKey(e)
			if prev, ok := declaredIn[key]; ok {
				clashes = append(clashes, fmt.Sprintf("%s %s declared in both %s and %s", e.Kind.Label(), e.Identity, prev, file))
				continue
			}
			declaredIn[key] = file
		}
		merged.Entities = append(merged.Entities, m.Entities...)
	}
	if len(clashes) > 0 {
		return nil, fmt.Errorf("invalid manifest: %s", strings.Join(clashes, "; "))
	}
	return merged, nil
}

func entityKey(e types.EntitySpec) string {
	return string(e.Kind) + ":" + e.Identity.String()
}

func loadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes, defaults and validates manifest content
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// applyDefaults folds the defaults block into every entity. Defaults are
// consumed here, entities carry their effective values afterwards.
func (m *Manifest) applyDefaults() {
	for i := range m.Entities {
		e := &m.Entities[i]
		if e.Instance == "" {
			e.Instance = m.Defaults.Instance
		}
		if e.ApplyConfig == nil && m.Defaults.ApplyConfig != nil {
			v := *m.Defaults.ApplyConfig
			e.ApplyConfig = &v
		}
		if len(m.Defaults.Labels) > 0 {
			labels := make(map[string]string, len(m.Defaults.Labels)+len(e.Labels))
			for k, v := range m.Defaults.Labels {
				labels[k] = v
			}
			for k, v := range e.Labels {
				labels[k] = v
			}
			e.Labels = labels
		}
	}
	m.Defaults = Defaults{}
}

// ApplyRuntimeDefaults fills instance and apply_config from runtime config
// for entities still leaving them unset.
func (m *Manifest) ApplyRuntimeDefaults(instance string, applyConfig *bool) {
	m.Defaults = Defaults{Instance: instance, ApplyConfig: applyConfig}
	m.applyDefaults()
}

// Validate ensures every entity is well formed and declared once
func (m *Manifest) Validate() error {
	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if m.Version != "v1" {
		return fmt.Errorf("unsupported version %q", m.Version)
	}

	seen := make(map[string]int, len(m.Entities))
	var problems []string
	for i, e := range m.Entities {
		if err := e.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("entities[%d]: %v", i, err))
			continue
		}
		key := entityKey(e)
		if prev, ok := seen[key]; ok {
			problems = append(problems, fmt.Sprintf("entities[%d]: %s %s already declared at entities[%d]", i, e.Kind.Label(), e.Identity, prev))
			continue
		}
		seen[key] = i
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
