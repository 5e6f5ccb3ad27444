package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is the on-disk form of an artifact collection. YAML and JSON are
// both accepted since JSON is valid YAML.
type Document struct {
	Artifacts []Record `json:"artifacts" yaml:"artifacts"`
}

// Record is the serialized form of one Artifact.
type Record struct {
	Name       string            `json:"name" yaml:"name"`
	Version    string            `json:"version,omitempty" yaml:"version,omitempty"`
	Source     string            `json:"source,omitempty" yaml:"source,omitempty"`
	Licenses   []string          `json:"licenses,omitempty" yaml:"licenses,omitempty"`
	Copyrights []string          `json:"copyrights,omitempty" yaml:"copyrights,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Artifact converts the record into an immutable Artifact.
func (r Record) Artifact() Artifact {
	return New(Coordinates{Name: r.Name, Version: r.Version, Source: r.Source}, r.Licenses, r.Copyrights, r.Metadata)
}

// RecordOf converts an Artifact back into its serialized form.
func RecordOf(a Artifact) Record {
	rec := Record{
		Name:       a.coords.Name,
		Version:    a.coords.Version,
		Source:     a.coords.Source,
		Licenses:   a.Licenses(),
		Copyrights: a.Copyrights(),
	}
	if len(a.metadata) > 0 {
		rec.Metadata = a.MetadataMap()
	}
	return rec
}

// ToArtifacts converts every record of the document.
func (d Document) ToArtifacts() []Artifact {
	out := make([]Artifact, 0, len(d.Artifacts))
	for _, r := range d.Artifacts {
		out = append(out, r.Artifact())
	}
	return out
}

// Decode reads an artifact document. Unknown fields and records without a name
// are rejected.
func Decode(r io.Reader) ([]Artifact, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode artifact document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc.ToArtifacts(), nil
}

// Validate checks that every record carries a name.
func (d Document) Validate() error {
	for i, r := range d.Artifacts {
		if r.Name == "" {
			return fmt.Errorf("artifacts[%d]: name is required", i)
		}
	}
	return nil
}

// LoadFile reads an artifact document from path.
func LoadFile(path string) ([]Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact document: %w", err)
	}
	defer f.Close()

	arts, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return arts, nil
}

// Encode writes the artifacts as a YAML document.
func Encode(w io.Writer, artifacts []Artifact) error {
	doc := Document{Artifacts: make([]Record, 0, len(artifacts))}
	for _, a := range artifacts {
		doc.Artifacts = append(doc.Artifacts, RecordOf(a))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode artifact document: %w", err)
	}
	return enc.Close()
}
