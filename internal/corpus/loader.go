package corpus

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML structure for a reference corpus file.
type File struct {
	Aliases  map[string]string `yaml:"aliases"`
	Rows     []Row             `yaml:"rows"`
	Verified []string          `yaml:"verified"`
	Excluded []string          `yaml:"excluded"`
}

// Load reads a corpus table from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus file: %w", err)
	}
	return Parse(data)
}

// Parse builds a table from YAML bytes.
func Parse(data []byte) (*Table, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse corpus yaml: %w", err)
	}
	for i, r := range f.Rows {
		if r.RowID == "" || r.ErrorSubtype == "" {
			return nil, fmt.Errorf("corpus row %d: row_id and error_subtype are required", i)
		}
	}
	return NewTable(f.Rows, f.Aliases, f.Verified, f.Excluded), nil
}
