package rules

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"licensemedic/internal/violation"
)

const (
	// BuiltinPrefix marks a ruleset location that refers to an embedded ruleset.
	BuiltinPrefix = "builtin:"

	// DefaultBuiltin is the embedded ruleset used when no location is given.
	DefaultBuiltin = "default"

	// MaxDocumentSize bounds the size of a ruleset document.
	MaxDocumentSize = 4 << 20
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

type document struct {
	Name    string         `yaml:"name"`
	Version string         `yaml:"version"`
	Rules   []ruleDocument `yaml:"rules"`
}

type ruleDocument struct {
	ID          string        `yaml:"id"`
	Title       string        `yaml:"title"`
	Description string        `yaml:"description"`
	Severity    string        `yaml:"severity"`
	Condition   yaml.Node     `yaml:"condition"`
	Message     string        `yaml:"message"`
	Dedup       string        `yaml:"dedup"`
	Allow       allowDocument `yaml:"allow"`
}

type allowDocument struct {
	Artifacts []string `yaml:"artifacts"`
	Patterns  []string `yaml:"patterns"`
	Topics    []string `yaml:"topics"`
}

// Configure loads the ruleset at location: "builtin:<name>" selects an embedded
// ruleset, anything else is a file path. An empty location loads the default
// builtin ruleset.
func Configure(location string) (*RuleSet, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return LoadBuiltin(DefaultBuiltin)
	}
	if name, ok := strings.CutPrefix(location, BuiltinPrefix); ok {
		return LoadBuiltin(name)
	}
	return LoadFile(location)
}

func LoadFile(filePath string) (*RuleSet, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, &ConfigurationError{Source: filePath, Err: err}
	}
	defer f.Close()
	return Load(f, filePath)
}

func LoadFS(fsys fs.FS, name string) (*RuleSet, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, &ConfigurationError{Source: name, Err: err}
	}
	defer f.Close()
	return Load(f, name)
}

// LoadBuiltin loads one of the rulesets embedded in the binary.
func LoadBuiltin(name string) (*RuleSet, error) {
	source := BuiltinPrefix + name
	data, err := builtinFS.ReadFile(path.Join("builtin", name+".yaml"))
	if err != nil {
		return nil, &ConfigurationError{Source: source, Err: fmt.Errorf("unknown builtin ruleset (available: %s)", strings.Join(BuiltinNames(), ", "))}
	}
	return Load(bytes.NewReader(data), source)
}

// BuiltinNames lists the embedded rulesets.
func BuiltinNames() []string {
	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Load parses a ruleset document from r. source labels the document in errors
// and in the RuleSet provenance.
func Load(r io.Reader, source string) (*RuleSet, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxDocumentSize+1))
	if err != nil {
		return nil, &ConfigurationError{Source: source, Err: err}
	}
	if len(data) > MaxDocumentSize {
		return nil, &ConfigurationError{Source: source, Err: fmt.Errorf("document exceeds %d bytes", MaxDocumentSize)}
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ConfigurationError{Source: source, Err: errors.New("empty document")}
		}
		return nil, &ConfigurationError{Source: source, Err: err}
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, &ConfigurationError{Source: source, Err: errors.New("ruleset must be a single YAML document")}
	}

	prov := Provenance{Name: doc.Name, Version: doc.Version, Source: source}

	var errs []error
	rules := make([]Rule, 0, len(doc.Rules))
	for i, rd := range doc.Rules {
		id := strings.TrimSpace(rd.ID)
		label := id
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}

		cond, err := decodeCondition(&rd.Condition)
		if err != nil {
			errs = append(errs, &ConfigurationError{Source: source, RuleID: label, Field: "condition", Err: err})
			continue
		}
		allow, err := NewAllowList(rd.Allow.Artifacts, rd.Allow.Patterns, rd.Allow.Topics)
		if err != nil {
			errs = append(errs, &ConfigurationError{Source: source, RuleID: label, Field: "allow", Err: err})
			continue
		}

		rules = append(rules, Rule{
			ID:          id,
			Title:       strings.TrimSpace(rd.Title),
			Description: strings.TrimSpace(rd.Description),
			Severity:    violation.Severity(strings.TrimSpace(rd.Severity)),
			Condition:   cond,
			Message:     rd.Message,
			Dedup:       DedupMode(rd.Dedup),
			Allow:       allow,
		})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return NewRuleSet(prov, rules)
}
