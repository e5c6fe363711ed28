package holiday

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"taskrota/internal/core"
)

//go:embed jp_holidays.yaml
var embeddedJP []byte

// Table is a versioned regional holiday calendar covering a closed date range.
type Table struct {
	Region  string
	Version string
	From    core.Date
	Until   core.Date

	days map[core.Date]string
}

type tableFile struct {
	Region  string            `yaml:"region"`
	Version string            `yaml:"version"`
	From    string            `yaml:"from"`
	Until   string            `yaml:"until"`
	Days    map[string]string `yaml:"days"`
}

// Default returns the embedded table.
func Default() *Table {
	t, err := LoadBytes(embeddedJP)
	if err != nil {
		// The embedded table is validated by tests; a parse failure here is
		// a packaging bug.
		panic(fmt.Sprintf("holiday: embedded table: %v", err))
	}
	return t
}

// LoadFile reads a table from a YAML file.
func LoadFile(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("holiday table: %w", err)
	}
	t, err := LoadBytes(b)
	if err != nil {
		return nil, fmt.Errorf("holiday table %s: %w", path, err)
	}
	return t, nil
}

// LoadBytes parses and validates a YAML holiday table.
func LoadBytes(b []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	if strings.TrimSpace(f.Region) == "" {
		return nil, fmt.Errorf("missing region")
	}
	from, err := core.ParseDate(f.From)
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	until, err := core.ParseDate(f.Until)
	if err != nil {
		return nil, fmt.Errorf("until: %w", err)
	}
	if until.Before(from) {
		return nil, fmt.Errorf("until %s before from %s", until, from)
	}

	t := &Table{
		Region:  f.Region,
		Version: f.Version,
		From:    from,
		Until:   until,
		days:    make(map[core.Date]string, len(f.Days)),
	}
	for raw, name := range f.Days {
		d, err := core.ParseDate(raw)
		if err != nil {
			return nil, err
		}
		if d.Before(from) || d.After(until) {
			return nil, fmt.Errorf("day %s outside covered range %s..%s", d, from, until)
		}
		t.days[d] = name
	}
	return t, nil
}

// Covers reports whether d lies inside the table's covered range.
func (t *Table) Covers(d core.Date) bool {
	return !d.Before(t.From) && !d.After(t.Until)
}

// Lookup returns the holiday name for d, if any.
func (t *Table) Lookup(d core.Date) (string, bool) {
	name, ok := t.days[d]
	return name, ok
}

// Len returns the number of holidays in the table.
func (t *Table) Len() int { return len(t.days) }
