package router

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed agents.toml
var defaultTables []byte

// Tables is the versioned keyword and profile data the router scores against.
type Tables struct {
	Version      int                `toml:"version"`
	DefaultAgent string             `toml:"default_agent"`
	Weights      map[string]float64 `toml:"weights"`
	Agents       []Profile          `toml:"agents"`
}

// Profile describes one agent and its keyword categories.
type Profile struct {
	ID           string     `toml:"id"`
	Name         string     `toml:"name"`
	Icon         string     `toml:"icon"`
	Description  string     `toml:"description"`
	Capabilities []string   `toml:"capabilities"`
	Prompt       string     `toml:"prompt"`
	Categories   []Category `toml:"categories"`
}

// Category groups keywords sharing a weight.
type Category struct {
	Name     string   `toml:"name"`
	Keywords []string `toml:"keywords"`
}

// DefaultTables returns the built-in tables.
func DefaultTables() (Tables, error) {
	return ParseTables(string(defaultTables))
}

// LoadTables reads tables from path, or returns the built-in tables when path is empty.
func LoadTables(path string) (Tables, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTables()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read tables: %w", err)
	}
	return ParseTables(string(data))
}

// ParseTables decodes TOML tables and validates them.
func ParseTables(data string) (Tables, error) {
	var t Tables
	if _, err := toml.Decode(data, &t); err != nil {
		return Tables{}, fmt.Errorf("decode tables: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}

// Validate checks ids are unique and the default agent exists.
func (t Tables) Validate() error {
	if len(t.Agents) == 0 {
		return errors.New("tables must define at least one agent")
	}
	seen := make(map[string]struct{}, len(t.Agents))
	for _, a := range t.Agents {
		if strings.TrimSpace(a.ID) == "" {
			return errors.New("agent id is required")
		}
		if _, ok := seen[a.ID]; ok {
			return fmt.Errorf("duplicate agent id %q", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	if t.DefaultAgent != "" {
		if _, ok := seen[t.DefaultAgent]; !ok {
			return fmt.Errorf("default agent %q is not defined", t.DefaultAgent)
		}
	}
	return nil
}

// Weight returns the weight of a category, 1 for unknown categories.
func (t Tables) Weight(category string) float64 {
	if w, ok := t.Weights[category]; ok && w > 0 {
		return w
	}
	return 1
}
