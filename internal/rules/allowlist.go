package rules

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"licensemedic/internal/artifact"
)

// Allow list option names, usable as "<rule>.<option>=a,b" CLI overrides.
const (
	OptionAllowArtifacts = "allow.artifacts"
	OptionAllowPatterns  = "allow.patterns"
	OptionAllowTopics    = "allow.topics"
)

// TopicsMetadataKey is the metadata entry holding an artifact's comma-separated topics.
const TopicsMetadataKey = "topics"

// AllowList exempts artifacts from a single rule.
// It supports allowing by semantic id (exact match), glob pattern, and topics.
type AllowList struct {
	Artifacts map[string]bool
	Patterns  []string
	Topics    []string
}

// Option describes one configurable rule option.
type Option struct {
	Name        string
	Description string
}

// AllowListOptions returns the options accepted by AllowList.Configure.
func AllowListOptions() []Option {
	return []Option{
		{
			Name:        OptionAllowArtifacts,
			Description: "Comma-separated list of allowed artifact ids (source:name@version).",
		},
		{
			Name:        OptionAllowPatterns,
			Description: "Comma-separated list of wildcard patterns matched against the artifact id or name (e.g. github:acme/*, lodash).",
		},
		{
			Name:        OptionAllowTopics,
			Description: "Comma-separated list of topics. An artifact with any of these topics is allowed.",
		},
	}
}

// NewAllowList builds an allow list, normalizing every entry to lower case.
func NewAllowList(artifacts, patterns, topics []string) (AllowList, error) {
	a := AllowList{
		Artifacts: make(map[string]bool),
	}
	for _, s := range artifacts {
		s = strings.TrimSpace(s)
		if s != "" {
			a.Artifacts[strings.ToLower(s)] = true
		}
	}
	for _, s := range patterns {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		p := strings.ToLower(s)
		if _, err := path.Match(p, "x"); err != nil {
			return AllowList{}, fmt.Errorf("invalid allow pattern %q: %w", s, err)
		}
		a.Patterns = append(a.Patterns, p)
	}
	for _, s := range topics {
		s = strings.TrimSpace(s)
		if s != "" {
			a.Topics = append(a.Topics, strings.ToLower(s))
		}
	}
	return a, nil
}

// Configure overrides the lists named in opts. Lists not mentioned are kept.
func (a AllowList) Configure(opts map[string]string) (AllowList, error) {
	artifacts := a.artifactList()
	patterns := append([]string(nil), a.Patterns...)
	topics := append([]string(nil), a.Topics...)

	for name, val := range opts {
		switch name {
		case OptionAllowArtifacts:
			artifacts = strings.Split(val, ",")
		case OptionAllowPatterns:
			patterns = strings.Split(val, ",")
		case OptionAllowTopics:
			topics = strings.Split(val, ",")
		default:
			return AllowList{}, fmt.Errorf("unknown rule option %q", name)
		}
	}
	return NewAllowList(artifacts, patterns, topics)
}

// Empty reports whether the list allows nothing.
func (a AllowList) Empty() bool {
	return len(a.Artifacts) == 0 && len(a.Patterns) == 0 && len(a.Topics) == 0
}

// IsAllowed checks if the artifact is allowed by any of the configured entries.
// It returns true and a reason string if allowed, otherwise false and empty string.
func (a AllowList) IsAllowed(art artifact.Artifact) (bool, string) {
	id := strings.ToLower(art.ID())
	name := strings.ToLower(art.Coordinates().Name)

	if a.Artifacts[id] {
		return true, OptionAllowArtifacts
	}

	for _, pattern := range a.Patterns {
		if matched, _ := path.Match(pattern, id); matched {
			return true, OptionAllowPatterns
		}
		if matched, _ := path.Match(pattern, name); matched {
			return true, OptionAllowPatterns
		}
	}

	if len(a.Topics) > 0 {
		raw, _ := art.Metadata(TopicsMetadataKey)
		for _, t := range strings.Split(raw, ",") {
			t = strings.ToLower(strings.TrimSpace(t))
			if t == "" {
				continue
			}
			for _, at := range a.Topics {
				if t == at {
					return true, OptionAllowTopics
				}
			}
		}
	}

	return false, ""
}

func (a AllowList) artifactList() []string {
	out := make([]string, 0, len(a.Artifacts))
	for id := range a.Artifacts {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (a AllowList) clone() AllowList {
	c := AllowList{
		Artifacts: make(map[string]bool, len(a.Artifacts)),
		Patterns:  append([]string(nil), a.Patterns...),
		Topics:    append([]string(nil), a.Topics...),
	}
	for k, v := range a.Artifacts {
		c.Artifacts[k] = v
	}
	return c
}
