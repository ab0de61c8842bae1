package config

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/blackmichael/social-engage/internal/domain"
)

type rosterFile struct {
	Targets      []domain.Target `yaml:"targets"`
	NewsKeywords []string        `yaml:"news_keywords"`
}

// Roster is the set of watched accounts.
type Roster struct {
	Targets []domain.Target

	// NewsKeywords override the default newsworthiness keywords when set.
	NewsKeywords []string
}

// LoadRoster reads a YAML roster. An empty path returns the built-in roster.
func LoadRoster(path string) (*Roster, error) {
	if path == "" {
		return &Roster{Targets: domain.DefaultTargets()}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	var f rosterFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	if err := validateTargets(f.Targets); err != nil {
		return nil, fmt.Errorf("invalid roster %s: %w", path, err)
	}
	return &Roster{Targets: f.Targets, NewsKeywords: f.NewsKeywords}, nil
}

func validateTargets(targets []domain.Target) error {
	if len(targets) == 0 {
		return domain.ErrNoTargets
	}
	for i, t := range targets {
		if t.Name == "" {
			return fmt.Errorf("target %d: name is required", i)
		}
		hasHandle := false
		for p := range t.Handles {
			if !slices.Contains(domain.AllPlatforms, p) {
				return fmt.Errorf("target %q: unknown platform %q", t.Name, p)
			}
			if _, ok := t.Handle(p); ok {
				hasHandle = true
			}
		}
		if !hasHandle {
			return fmt.Errorf("target %q: at least one handle is required", t.Name)
		}
	}
	return nil
}
