package rules

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// KindInfo documents one condition kind for listings and error messages.
type KindInfo struct {
	Kind        Kind
	Params      []string
	Description string
}

type kindSpec struct {
	info   KindInfo
	decode func(node *yaml.Node) (Condition, error)
}

var vocabulary = map[Kind]kindSpec{
	KindLicenseDenied: {
		info: KindInfo{Kind: KindLicenseDenied, Params: []string{"licenses"}, Description: "Any declared license matches one of the denied patterns."},
		decode: func(n *yaml.Node) (Condition, error) {
			var p struct {
				Licenses []string `yaml:"licenses"`
			}
			if err := n.Decode(&p); err != nil {
				return nil, err
			}
			return LicenseDenied{Patterns: p.Licenses}, nil
		},
	},
	KindLicenseNotAllowed: {
		info: KindInfo{Kind: KindLicenseNotAllowed, Params: []string{"licenses"}, Description: "Any declared license matches none of the allowed patterns."},
		decode: func(n *yaml.Node) (Condition, error) {
			var p struct {
				Licenses []string `yaml:"licenses"`
			}
			if err := n.Decode(&p); err != nil {
				return nil, err
			}
			return LicenseNotAllowed{Patterns: p.Licenses}, nil
		},
	},
	KindLicenseMissing: {
		info: KindInfo{Kind: KindLicenseMissing, Description: "The artifact declares no license."},
		decode: func(*yaml.Node) (Condition, error) {
			return LicenseMissing{}, nil
		},
	},
	KindCopyrightMissing: {
		info: KindInfo{Kind: KindCopyrightMissing, Description: "The artifact carries no copyright statement."},
		decode: func(*yaml.Node) (Condition, error) {
			return CopyrightMissing{}, nil
		},
	},
	KindCopyrightMatches: {
		info: KindInfo{Kind: KindCopyrightMatches, Params: []string{"pattern"}, Description: "A copyright statement matches the regular expression."},
		decode: func(n *yaml.Node) (Condition, error) {
			var p struct {
				Pattern string `yaml:"pattern"`
			}
			if err := n.Decode(&p); err != nil {
				return nil, err
			}
			if p.Pattern == "" {
				return nil, errors.New("pattern is required")
			}
			re, err := regexp.Compile(p.Pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern: %w", err)
			}
			return CopyrightMatches{Pattern: re}, nil
		},
	},
	KindMetadataFlagSet: {
		info: KindInfo{Kind: KindMetadataFlagSet, Params: []string{"key"}, Description: "The metadata entry is a true boolean. Absent entries count as unset."},
		decode: func(n *yaml.Node) (Condition, error) {
			var p struct {
				Key string `yaml:"key"`
			}
			if err := n.Decode(&p); err != nil {
				return nil, err
			}
			return MetadataFlagSet{Key: strings.TrimSpace(p.Key)}, nil
		},
	},
	KindMetadataEquals: {
		info: KindInfo{Kind: KindMetadataEquals, Params: []string{"key", "values"}, Description: "The metadata entry equals one of the values. The entry is required."},
		decode: func(n *yaml.Node) (Condition, error) {
			var p struct {
				Key    string   `yaml:"key"`
				Values []string `yaml:"values"`
			}
			if err := n.Decode(&p); err != nil {
				return nil, err
			}
			return MetadataEquals{Key: strings.TrimSpace(p.Key), Values: p.Values}, nil
		},
	},
	KindCoordinatesIncomplete: {
		info: KindInfo{Kind: KindCoordinatesIncomplete, Params: []string{"fields"}, Description: "One of the listed coordinates (name, version, source) is empty."},
		decode: func(n *yaml.Node) (Condition, error) {
			var p struct {
				Fields []string `yaml:"fields"`
			}
			if err := n.Decode(&p); err != nil {
				return nil, err
			}
			return CoordinatesIncomplete{Fields: p.Fields}, nil
		},
	},
}

// Kinds lists the condition vocabulary sorted by kind.
func Kinds() []KindInfo {
	out := make([]KindInfo, 0, len(vocabulary))
	for _, spec := range vocabulary {
		out = append(out, spec.info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Kind < out[j].Kind
	})
	return out
}

// LookupKind returns the documentation for kind.
func LookupKind(kind Kind) (KindInfo, bool) {
	spec, ok := vocabulary[kind]
	return spec.info, ok
}

// decodeCondition turns a `condition:` mapping into a typed Condition, rejecting
// unknown kinds and parameters the kind does not declare.
func decodeCondition(node *yaml.Node) (Condition, error) {
	if node == nil || node.Kind == 0 {
		return nil, errors.New("condition is required")
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: condition must be a mapping", node.Line)
	}

	var kind Kind
	var keys []string
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if key == "kind" {
			kind = Kind(strings.TrimSpace(node.Content[i+1].Value))
			continue
		}
		keys = append(keys, key)
	}
	if kind == "" {
		return nil, fmt.Errorf("line %d: condition kind is required", node.Line)
	}

	spec, ok := vocabulary[kind]
	if !ok {
		return nil, fmt.Errorf("line %d: unsupported condition kind %q", node.Line, kind)
	}
	for _, k := range keys {
		if !contains(spec.info.Params, k) {
			return nil, fmt.Errorf("line %d: %s: unknown parameter %q", node.Line, kind, k)
		}
	}

	cond, err := spec.decode(node)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	return cond, nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
