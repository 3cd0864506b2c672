package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_categories.yaml
var defaultHierarchyConfig []byte

const defaultMaxChildren = 12

// HierarchyConfig holds the navigation rules applied on top of raw supplier
// categories.
type HierarchyConfig struct {
	// DisplayGroups maps a trimmed raw main category to its display name.
	DisplayGroups map[string]string `yaml:"display_groups"`
	ExcludedMains []string          `yaml:"excluded_mains"`
	MainOrder     []string          `yaml:"main_order"`
	MaxChildren   int               `yaml:"max_children"`

	excluded map[string]bool
	order    map[string]int
}

// LoadHierarchyConfig reads the YAML file at path, or the built-in defaults
// when path is empty.
func LoadHierarchyConfig(path string) (*HierarchyConfig, error) {
	data := defaultHierarchyConfig
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read category config: %w", err)
		}
		data = raw
	}
	return ParseHierarchyConfig(data)
}

func ParseHierarchyConfig(data []byte) (*HierarchyConfig, error) {
	var cfg HierarchyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse category config: %w", err)
	}
	cfg.index()
	return &cfg, nil
}

func (c *HierarchyConfig) index() {
	groups := make(map[string]string, len(c.DisplayGroups))
	for raw, display := range c.DisplayGroups {
		groups[strings.TrimSpace(raw)] = strings.TrimSpace(display)
	}
	c.DisplayGroups = groups

	c.excluded = make(map[string]bool, len(c.ExcludedMains))
	for _, m := range c.ExcludedMains {
		c.excluded[strings.TrimSpace(m)] = true
	}

	c.order = make(map[string]int, len(c.MainOrder))
	for i, m := range c.MainOrder {
		m = strings.TrimSpace(m)
		if _, dup := c.order[m]; !dup {
			c.order[m] = i
		}
	}

	if c.MaxChildren <= 0 {
		c.MaxChildren = defaultMaxChildren
	}
}

// DisplayName maps a raw main category to its display name. Unmapped mains
// keep their own trimmed value.
func (c *HierarchyConfig) DisplayName(rawMain string) string {
	rawMain = strings.TrimSpace(rawMain)
	if display, ok := c.DisplayGroups[rawMain]; ok && display != "" {
		return display
	}
	return rawMain
}

// RawMains returns every raw spelling that displays as display, including
// display itself.
func (c *HierarchyConfig) RawMains(display string) []string {
	display = strings.TrimSpace(display)
	mains := []string{display}
	for raw, d := range c.DisplayGroups {
		if d == display && raw != display {
			mains = append(mains, raw)
		}
	}
	sort.Strings(mains[1:])
	return mains
}

func (c *HierarchyConfig) Excluded(rawMain string) bool {
	return c.excluded[strings.TrimSpace(rawMain)]
}

func (c *HierarchyConfig) orderOf(display string) (int, bool) {
	i, ok := c.order[display]
	return i, ok
}
