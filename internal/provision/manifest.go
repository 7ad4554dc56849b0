package provision

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed assets/schema.sql
var embeddedSchemaSQL string

//go:embed assets/manifest.yaml
var embeddedManifestYAML []byte

// Manifest describes what a correctly provisioned database looks like and
// which reference rows get seeded after the DDL lands.
type Manifest struct {
	Namespace      string   `yaml:"namespace"`
	ExpectedTables []string `yaml:"expected_tables"`
	ExpectedTypes  []string `yaml:"expected_types"`
	MinIndexes     int      `yaml:"min_indexes"`
	Seed           SeedSet  `yaml:"seed"`
}

type SeedSet struct {
	SystemConfig []ConfigSeed `yaml:"system_config"`
	AITools      []ToolSeed   `yaml:"ai_tools"`
}

type ConfigSeed struct {
	Key         string `yaml:"key"`
	Value       string `yaml:"value"`
	Description string `yaml:"description"`
}

type ToolSeed struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
}

// DefaultManifest parses the embedded manifest.
func DefaultManifest() (*Manifest, error) {
	return parseManifest(embeddedManifestYAML)
}

// DefaultSchemaSQL returns the embedded DDL batch.
func DefaultSchemaSQL() string {
	return embeddedSchemaSQL
}

func parseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if strings.TrimSpace(m.Namespace) == "" {
		m.Namespace = "public"
	}
	if len(m.ExpectedTables) == 0 {
		return nil, errors.New("manifest lists no expected tables")
	}
	for _, t := range m.ExpectedTables {
		if strings.TrimSpace(t) == "" {
			return nil, errors.New("manifest contains a blank table name")
		}
	}
	return &m, nil
}
