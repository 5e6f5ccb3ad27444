package artifact

import (
	"sort"
	"strings"
)

// Coordinates identify an artifact semantically: what it is, which release, and
// which ecosystem it was resolved from.
type Coordinates struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Source  string `json:"source,omitempty" yaml:"source,omitempty"`
}

// String renders the coordinates as source:name@version, omitting empty parts.
func (c Coordinates) String() string {
	var b strings.Builder
	if c.Source != "" {
		b.WriteString(c.Source)
		b.WriteString(":")
	}
	b.WriteString(c.Name)
	if c.Version != "" {
		b.WriteString("@")
		b.WriteString(c.Version)
	}
	return b.String()
}

// Artifact is one software component under evaluation.
//
// An Artifact is immutable: New copies every input and the accessors hand out
// copies, so rules and callers can share one value across goroutines.
type Artifact struct {
	coords     Coordinates
	licenses   []string
	copyrights []string
	metadata   map[string]string
}

// New builds an Artifact. Licenses and copyrights are treated as sets: blank
// entries are dropped, the rest are trimmed, de-duplicated and sorted.
func New(coords Coordinates, licenses, copyrights []string, metadata map[string]string) Artifact {
	a := Artifact{
		coords: Coordinates{
			Name:    strings.TrimSpace(coords.Name),
			Version: strings.TrimSpace(coords.Version),
			Source:  strings.TrimSpace(coords.Source),
		},
		licenses:   normalizeSet(licenses),
		copyrights: normalizeSet(copyrights),
	}
	if len(metadata) > 0 {
		a.metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			a.metadata[k] = v
		}
	}
	return a
}

func (a Artifact) Coordinates() Coordinates {
	return a.coords
}

// ID returns the semantic id of the artifact (see Coordinates.String).
func (a Artifact) ID() string {
	return a.coords.String()
}

func (a Artifact) Licenses() []string {
	return append([]string(nil), a.licenses...)
}

func (a Artifact) Copyrights() []string {
	return append([]string(nil), a.copyrights...)
}

// Metadata returns the value stored under key and whether it was present.
func (a Artifact) Metadata(key string) (string, bool) {
	v, ok := a.metadata[key]
	return v, ok
}

// MetadataMap returns a copy of all metadata entries.
func (a Artifact) MetadataMap() map[string]string {
	out := make(map[string]string, len(a.metadata))
	for k, v := range a.metadata {
		out[k] = v
	}
	return out
}

func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
