package ratelimit

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Class names a family of actions sharing one budget.
type Class string

// Action classes guarded by the limiter.
const (
	ClassOrgCreate  Class = "org_create"
	ClassInvitation Class = "invitation"
	ClassTeamCreate Class = "team_create"
	ClassMutation   Class = "mutation"
)

// Policy is the ceiling for one action class: at most Limit requests per Window.
type Policy struct {
	Limit  int64
	Window time.Duration
}

// Policies maps each action class to its ceiling.
type Policies map[Class]Policy

// DefaultPolicies returns the built-in ceilings.
func DefaultPolicies() Policies {
	return Policies{
		ClassOrgCreate:  {Limit: 10, Window: time.Hour},
		ClassInvitation: {Limit: 50, Window: time.Hour},
		ClassTeamCreate: {Limit: 20, Window: time.Hour},
		ClassMutation:   {Limit: 100, Window: time.Minute},
	}
}

type policyFile struct {
	Classes map[string]struct {
		Limit  int64  `yaml:"limit"`
		Window string `yaml:"window"`
	} `yaml:"classes"`
}

// ParsePolicies overlays the YAML document data onto the defaults.
//
//	classes:
//	  invitation:
//	    limit: 20
//	    window: 1h
func ParsePolicies(data []byte) (Policies, error) {
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rate limit policies: %w", err)
	}

	policies := DefaultPolicies()
	for name, c := range f.Classes {
		class := Class(name)
		p, known := policies[class]
		if !known && (c.Limit == 0 || c.Window == "") {
			return nil, fmt.Errorf("class %s: limit and window are required for a new class", name)
		}
		if c.Limit < 0 {
			return nil, fmt.Errorf("class %s: limit must not be negative", name)
		}
		if c.Limit > 0 {
			p.Limit = c.Limit
		}
		if c.Window != "" {
			d, err := time.ParseDuration(c.Window)
			if err != nil {
				return nil, fmt.Errorf("class %s: invalid window %q: %w", name, c.Window, err)
			}
			if d <= 0 {
				return nil, fmt.Errorf("class %s: window must be positive", name)
			}
			p.Window = d
		}
		policies[class] = p
	}
	return policies, nil
}

// LoadPolicies reads a YAML policy file. An empty path returns the defaults.
func LoadPolicies(path string) (Policies, error) {
	if path == "" {
		return DefaultPolicies(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate limit policies: %w", err)
	}
	return ParsePolicies(data)
}
