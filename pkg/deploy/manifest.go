package deploy

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/elevlink/pkg/errors"
)

// Link maps a file in the install directory to its place in the data
// directory
type Link struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
}

// Manifest describes one deployment
type Manifest struct {
	InstallPath string   `yaml:"install_path"`
	DataPath    string   `yaml:"data_path"`
	Clean       bool     `yaml:"clean"`
	Links       []Link   `yaml:"links"`
	Remove      []string `yaml:"remove"`
}

// LoadManifest reads and validates a YAML manifest
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInvalidInput, "failed to read manifest %s", path)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates a YAML manifest
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, errors.ErrInvalidInput, "failed to parse manifest")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest has everything a deployment needs
func (m *Manifest) Validate() error {
	if m.DataPath == "" {
		return errors.New(errors.ErrInvalidInput, "manifest has no data_path")
	}
	for i, l := range m.Links {
		if l.Source == "" || l.Destination == "" {
			return errors.Newf(errors.ErrInvalidInput, "link %d needs both source and destination", i).
				WithDetail("index", i)
		}
	}
	for i, p := range m.Remove {
		if p == "" {
			return errors.Newf(errors.ErrInvalidInput, "remove entry %d is empty", i).
				WithDetail("index", i)
		}
	}
	return nil
}
