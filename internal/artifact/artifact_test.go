package artifact

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
)

func TestNew_NormalizesSets(t *testing.T) {
	a := New(Coordinates{Name: " lib ", Version: "1.0"}, []string{"MIT", " Apache-2.0", "MIT", ""}, []string{"(c) B", "(c) A", "(c) B"}, map[string]string{"k": "v", " ": "x"})

	if got, want := a.Licenses(), []string{"Apache-2.0", "MIT"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("licenses: got %v want %v", got, want)
	}
	if got, want := a.Copyrights(), []string{"(c) A", "(c) B"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("copyrights: got %v want %v", got, want)
	}
	if a.Coordinates().Name != "lib" {
		t.Fatalf("expected trimmed name, got %q", a.Coordinates().Name)
	}
	if len(a.MetadataMap()) != 1 {
		t.Fatalf("expected blank metadata keys to be dropped: %v", a.MetadataMap())
	}
	if got := a.Licenses(); !slices.Contains(got, "MIT") || slices.Contains(got, "GPL-3.0") {
		t.Fatalf("license membership mismatch for %v", got)
	}
}

func TestNew_CopiesInputs(t *testing.T) {
	licenses := []string{"MIT"}
	meta := map[string]string{"vulnerable": "false"}
	a := New(Coordinates{Name: "lib"}, licenses, nil, meta)

	licenses[0] = "GPL-3.0"
	meta["vulnerable"] = "true"

	if !slices.Contains(a.Licenses(), "MIT") {
		t.Fatalf("artifact licenses changed through caller slice: %v", a.Licenses())
	}
	if v, _ := a.Metadata("vulnerable"); v != "false" {
		t.Fatalf("artifact metadata changed through caller map: %q", v)
	}

	out := a.Licenses()
	out[0] = "changed"
	if !slices.Contains(a.Licenses(), "MIT") {
		t.Fatalf("artifact licenses changed through accessor result")
	}
}

func TestCoordinates_String(t *testing.T) {
	tests := []struct {
		c    Coordinates
		want string
	}{
		{Coordinates{Name: "a"}, "a"},
		{Coordinates{Name: "a", Version: "1"}, "a@1"},
		{Coordinates{Name: "a", Version: "1", Source: "npm"}, "npm:a@1"},
		{Coordinates{Name: "acme/repo", Source: "github"}, "github:acme/repo"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("%+v: got %q want %q", tt.c, got, tt.want)
		}
	}
}

func TestDecode(t *testing.T) {
	doc := `
artifacts:
  - name: commons-lang3
    version: "3.12.0"
    source: maven
    licenses: [Apache-2.0]
    copyrights: ["Copyright 2001 ASF"]
    metadata:
      vulnerable: "false"
  - name: left-pad
    source: npm
`
	arts, err := Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(arts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(arts))
	}
	if arts[0].ID() != "maven:commons-lang3@3.12.0" {
		t.Fatalf("unexpected id %q", arts[0].ID())
	}
	if v, ok := arts[0].Metadata("vulnerable"); !ok || v != "false" {
		t.Fatalf("unexpected metadata %q %v", v, ok)
	}
}

func TestDecode_AcceptsJSON(t *testing.T) {
	arts, err := Decode(strings.NewReader(`{"artifacts":[{"name":"a","licenses":["MIT"]}]}`))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(arts) != 1 || !slices.Contains(arts[0].Licenses(), "MIT") {
		t.Fatalf("unexpected artifacts: %+v", arts)
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown_field", doc: "artifacts:\n  - name: a\n    licence: MIT\n"},
		{name: "missing_name", doc: "artifacts:\n  - version: '1'\n"},
		{name: "bad_yaml", doc: "artifacts: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(tt.doc)); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestEncode_RoundTripsThroughLoadFile(t *testing.T) {
	in := []Artifact{
		New(Coordinates{Name: "acme/repo", Version: "main", Source: "github"}, []string{"MIT"}, []string{"Copyright (c) 2024 Acme"}, map[string]string{"archived": "false"}),
	}
	var buf bytes.Buffer
	if err := Encode(&buf, in); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "artifacts.yaml")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error, got nil")
	}
}
