// Package catalog lists the model variants, devices and precisions the service knows.
package catalog

import (
	_ "embed"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultData []byte

// Model is one whisper variant
type Model struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Catalog of supported settings
type Catalog struct {
	Models       []Model  `yaml:"models"`
	Devices      []string `yaml:"devices"`
	ComputeTypes []string `yaml:"compute_types"`
}

// Default returns the embedded catalog
func Default() *Catalog {
	res, err := Parse(defaultData)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return res
}

// Parse reads a catalog from yaml
func Parse(data []byte) (*Catalog, error) {
	var res Catalog
	if err := yaml.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(res.Models) == 0 {
		return nil, fmt.Errorf("no models in catalog")
	}
	seen := map[string]bool{}
	for _, m := range res.Models {
		if m.Name == "" {
			return nil, fmt.Errorf("model without name")
		}
		if seen[m.Name] {
			return nil, fmt.Errorf("duplicate model '%s'", m.Name)
		}
		seen[m.Name] = true
	}
	return &res, nil
}

// Names returns model names in catalog order
func (c *Catalog) Names() []string {
	res := make([]string, 0, len(c.Models))
	for _, m := range c.Models {
		res = append(res, m.Name)
	}
	return res
}

// Descriptions maps model name to its description
func (c *Catalog) Descriptions() map[string]string {
	res := make(map[string]string, len(c.Models))
	for _, m := range c.Models {
		res[m.Name] = m.Description
	}
	return res
}

func (c *Catalog) HasModel(name string) bool {
	return slices.Contains(c.Names(), name)
}

func (c *Catalog) HasDevice(name string) bool {
	return slices.Contains(c.Devices, name)
}

func (c *Catalog) HasComputeType(name string) bool {
	return slices.Contains(c.ComputeTypes, name)
}
