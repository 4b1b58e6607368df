// Package plan reads and writes epic plan files: an epic with its tasks and
// the dependencies between them, in TOML or YAML.
//
//	name = "auth"
//	prd = "login"
//
//	[[tasks]]
//	key = "schema"
//	name = "Create user tables"
//	estimate = 2
//
//	[[tasks]]
//	key = "api"
//	name = "Login endpoint"
//	depends_on = ["schema"]
package plan

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/untoldecay/ccpm/internal/graph"
	"github.com/untoldecay/ccpm/internal/types"
)

// Format is a plan file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// Plan is one epic to import.
type Plan struct {
	Name    string `toml:"name" yaml:"name"`
	PRD     string `toml:"prd,omitempty" yaml:"prd,omitempty"`
	Content string `toml:"content,omitempty" yaml:"content,omitempty"`
	Tasks   []Task `toml:"tasks" yaml:"tasks"`
}

// Task is one task in a plan. Key is a handle local to the file, used by
// DependsOn; it defaults to the task's 1-based position.
type Task struct {
	Key         string   `toml:"key,omitempty" yaml:"key,omitempty"`
	Name        string   `toml:"name" yaml:"name"`
	Description string   `toml:"description,omitempty" yaml:"description,omitempty"`
	Estimate    float64  `toml:"estimate,omitempty" yaml:"estimate,omitempty"`
	Parallel    bool     `toml:"parallel,omitempty" yaml:"parallel,omitempty"`
	DependsOn   []string `toml:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", &types.ValidationError{Field: "plan", Reason: fmt.Sprintf("unsupported plan file %q (want .toml, .yaml or .yml)", path)}
}

// Load reads and validates a plan file.
func Load(path string) (*Plan, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	return Parse(data, format)
}

// Parse decodes and validates plan data.
func Parse(data []byte, format Format) (*Plan, error) {
	var p Plan
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), &p)
		if err != nil {
			return nil, &types.ValidationError{Field: "plan", Reason: fmt.Sprintf("decoding TOML: %v", err)}
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, &types.ValidationError{Field: "plan", Reason: fmt.Sprintf("unknown key %q", undecoded[0].String())}
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return nil, &types.ValidationError{Field: "plan", Reason: fmt.Sprintf("decoding YAML: %v", err)}
		}
	default:
		return nil, &types.ValidationError{Field: "plan", Reason: fmt.Sprintf("unknown format %q", format)}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode renders the plan in the given format.
func Encode(p *Plan, format Format) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatTOML:
		enc := toml.NewEncoder(&buf)
		enc.Indent = ""
		if err := enc.Encode(p); err != nil {
			return nil, fmt.Errorf("encoding TOML: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return nil, fmt.Errorf("encoding YAML: %w", err)
		}
		_ = enc.Close()
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	return buf.Bytes(), nil
}

// keys fills in default keys and returns key -> index.
func (p *Plan) keys() (map[string]int, error) {
	idx := make(map[string]int, len(p.Tasks))
	for i := range p.Tasks {
		if p.Tasks[i].Key == "" {
			p.Tasks[i].Key = fmt.Sprint(i + 1)
		}
		k := p.Tasks[i].Key
		if _, dup := idx[k]; dup {
			return nil, &types.ValidationError{Field: "tasks", Reason: fmt.Sprintf("duplicate task key %q", k)}
		}
		idx[k] = i
	}
	return idx, nil
}

// Validate checks names, keys and dependency references, and rejects
// dependency cycles.
func (p *Plan) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &types.ValidationError{Field: "name", Reason: "epic name is required"}
	}
	idx, err := p.keys()
	if err != nil {
		return err
	}

	// Synthetic ids are 1-based positions.
	tasks := make([]*types.Task, len(p.Tasks))
	var edges []types.Dependency
	for i, t := range p.Tasks {
		if strings.TrimSpace(t.Name) == "" {
			return &types.ValidationError{Field: "tasks", Reason: fmt.Sprintf("task %q has no name", t.Key)}
		}
		if t.Estimate < 0 {
			return &types.ValidationError{Field: "estimate", Reason: fmt.Sprintf("task %q has a negative estimate", t.Key)}
		}
		tasks[i] = &types.Task{ID: int64(i + 1), EpicID: 1, Number: i + 1, Name: t.Name, Status: types.StatusOpen}
		for _, dep := range t.DependsOn {
			j, ok := idx[dep]
			if !ok {
				return &types.ValidationError{Field: "depends_on", Reason: fmt.Sprintf("task %q depends on unknown task %q", t.Key, dep)}
			}
			if j == i {
				return &types.ValidationError{Field: "depends_on", Reason: fmt.Sprintf("task %q depends on itself", t.Key)}
			}
			edges = append(edges, types.Dependency{TaskID: int64(i + 1), DependsOnID: int64(j + 1)})
		}
	}

	if cycles := graph.New(tasks, edges).Cycles(); len(cycles) > 0 {
		var names []string
		for _, t := range cycles[0] {
			names = append(names, p.Tasks[t.ID-1].Key)
		}
		return &types.ValidationError{Field: "depends_on", Reason: "dependency cycle: " + strings.Join(names, " -> ")}
	}
	return nil
}
