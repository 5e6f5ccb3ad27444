package rules

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"text/template"
	"text/template/parse"

	"licensemedic/internal/artifact"
	"licensemedic/internal/violation"
)

// DedupMode selects which values identify a violation of a rule.
type DedupMode string

const (
	// DedupValue identifies a violation by rule id and defining values only, so the
	// same offending value on several artifacts is reported once.
	DedupValue DedupMode = "value"
	// DedupArtifact adds the artifact id to the identity.
	DedupArtifact DedupMode = "artifact"
)

// DefaultMessage is used when a rule declares no message template.
const DefaultMessage = "{{.Artifact}} violates {{.RuleID}}{{if .Value}}: {{.Value}}{{end}}"

func ParseDedupMode(raw string) (DedupMode, error) {
	switch m := DedupMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "", DedupValue:
		return DedupValue, nil
	case DedupArtifact:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported dedup mode %q (must be one of: value, artifact)", raw)
	}
}

// Rule is one declarative compliance check. Rules are built by NewRuleSet, which
// validates them and compiles the message template; a Rule obtained from a
// RuleSet must not be modified.
type Rule struct {
	ID          string
	Title       string
	Description string
	Severity    violation.Severity
	Condition   Condition
	Message     string
	Dedup       DedupMode
	Allow       AllowList

	tmpl *template.Template
}

// TemplateData is the value message templates are executed against.
type TemplateData struct {
	RuleID     string
	Title      string
	Artifact   string
	Name       string
	Version    string
	Source     string
	Value      string
	Values     []string
	Licenses   []string
	Copyrights []string
	Metadata   map[string]string
}

// NewTemplateData assembles template data for rule r firing on a with values.
func NewTemplateData(r Rule, a artifact.Artifact, values []string) TemplateData {
	c := a.Coordinates()
	return TemplateData{
		RuleID:     r.ID,
		Title:      r.Title,
		Artifact:   a.ID(),
		Name:       c.Name,
		Version:    c.Version,
		Source:     c.Source,
		Value:      strings.Join(values, ", "),
		Values:     values,
		Licenses:   a.Licenses(),
		Copyrights: a.Copyrights(),
		Metadata:   a.MetadataMap(),
	}
}

// compile parses the message template, checks every field reference in every
// branch, and executes it once against sample data so unknown fields are
// reported at load time.
func (r *Rule) compile() error {
	src := r.Message
	if strings.TrimSpace(src) == "" {
		src = DefaultMessage
	}
	tmpl, err := template.New(r.ID).Option("missingkey=zero").Parse(src)
	if err != nil {
		return err
	}
	if err := checkFields(tmpl.Tree.Root, true); err != nil {
		return err
	}
	sample := artifact.New(artifact.Coordinates{Name: "sample", Version: "0", Source: "sample"}, []string{"MIT"}, []string{"Copyright sample"}, map[string]string{"sample": "true"})
	if err := tmpl.Execute(&bytes.Buffer{}, NewTemplateData(*r, sample, []string{"MIT"})); err != nil {
		return err
	}
	r.tmpl = tmpl
	return nil
}

var templateFields = func() map[string]bool {
	t := reflect.TypeFor[TemplateData]()
	out := make(map[string]bool, t.NumField())
	for i := range t.NumField() {
		out[t.Field(i).Name] = true
	}
	return out
}()

func checkField(name string) error {
	if !templateFields[name] {
		return fmt.Errorf("template references unknown field .%s", name)
	}
	return nil
}

// checkFields walks a template tree. Inside range and with bodies the dot is
// no longer TemplateData, so only $-rooted references are checked there.
func checkFields(node parse.Node, dotIsData bool) error {
	switch n := node.(type) {
	case nil:
		return nil
	case *parse.ListNode:
		if n == nil {
			return nil
		}
		for _, c := range n.Nodes {
			if err := checkFields(c, dotIsData); err != nil {
				return err
			}
		}
	case *parse.ActionNode:
		return checkFields(n.Pipe, dotIsData)
	case *parse.TemplateNode:
		return checkFields(n.Pipe, dotIsData)
	case *parse.PipeNode:
		if n == nil {
			return nil
		}
		for _, c := range n.Cmds {
			if err := checkFields(c, dotIsData); err != nil {
				return err
			}
		}
	case *parse.CommandNode:
		for _, a := range n.Args {
			if err := checkFields(a, dotIsData); err != nil {
				return err
			}
		}
	case *parse.ChainNode:
		return checkFields(n.Node, dotIsData)
	case *parse.FieldNode:
		if dotIsData {
			return checkField(n.Ident[0])
		}
	case *parse.VariableNode:
		if n.Ident[0] == "$" && len(n.Ident) > 1 {
			return checkField(n.Ident[1])
		}
	case *parse.IfNode:
		return checkBranch(&n.BranchNode, dotIsData, dotIsData)
	case *parse.RangeNode:
		return checkBranch(&n.BranchNode, dotIsData, false)
	case *parse.WithNode:
		return checkBranch(&n.BranchNode, dotIsData, false)
	}
	return nil
}

func checkBranch(b *parse.BranchNode, dotIsData, bodyDotIsData bool) error {
	if err := checkFields(b.Pipe, dotIsData); err != nil {
		return err
	}
	if err := checkFields(b.List, bodyDotIsData); err != nil {
		return err
	}
	return checkFields(b.ElseList, dotIsData)
}

// Render executes the rule's message template.
func (r Rule) Render(data TemplateData) (string, error) {
	if r.tmpl == nil {
		return "", fmt.Errorf("rule %s: message template not compiled", r.ID)
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rule %s: render message: %w", r.ID, err)
	}
	return buf.String(), nil
}

// IdentityValues returns the values hashed to identify a violation of r on a.
func (r Rule) IdentityValues(a artifact.Artifact, values []string) []string {
	if r.Dedup != DedupArtifact {
		return values
	}
	out := make([]string, 0, len(values)+1)
	out = append(out, values...)
	return append(out, "artifact="+a.ID())
}

func (r Rule) clone() Rule {
	c := r
	if r.Condition != nil {
		c.Condition = r.Condition.clone()
	}
	c.Allow = r.Allow.clone()
	return c
}
