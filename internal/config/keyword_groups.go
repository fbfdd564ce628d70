package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// KeywordGroup is a named set of keywords tracked together on the dashboard.
type KeywordGroup struct {
	ID       int      `yaml:"id" json:"id" validate:"gte=1"`
	Name     string   `yaml:"name" json:"name" validate:"required"`
	Keywords []string `yaml:"keywords" json:"keywords" validate:"required,min=1,dive,required"`
	Sources  []string `yaml:"sources" json:"sources" validate:"dive,oneof=google youtube"`
}

type keywordGroupsFile struct {
	Groups []KeywordGroup `yaml:"groups"`
}

func DefaultKeywordGroups() []KeywordGroup {
	return []KeywordGroup{
		{ID: 1, Name: "My Brands", Keywords: []string{"almond milk", "oat milk"}, Sources: []string{"google", "youtube"}},
		{ID: 2, Name: "Competitors", Keywords: []string{"soy milk"}, Sources: []string{"google", "youtube"}},
	}
}

// LoadKeywordGroups reads the groups YAML file. An empty path yields the
// built-in groups.
func LoadKeywordGroups(path string) ([]KeywordGroup, error) {
	if path == "" {
		return DefaultKeywordGroups(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword groups file: %w", err)
	}

	var file keywordGroupsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse keyword groups file: %w", err)
	}
	if len(file.Groups) == 0 {
		return nil, fmt.Errorf("keyword groups file %s defines no groups", path)
	}

	seen := make(map[int]bool, len(file.Groups))
	for i := range file.Groups {
		g := &file.Groups[i]
		if g.ID == 0 {
			g.ID = i + 1
		}
		if seen[g.ID] {
			return nil, fmt.Errorf("duplicate keyword group id %d", g.ID)
		}
		seen[g.ID] = true
	}
	return file.Groups, nil
}

// FindGroup returns the group with the given id.
func FindGroup(groups []KeywordGroup, id int) (KeywordGroup, bool) {
	for _, g := range groups {
		if g.ID == id {
			return g, true
		}
	}
	return KeywordGroup{}, false
}
