package etl

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"sftocsv/internal/join"
)

// ── Job ────────────────────────────────────────────────────
// A job loads named inputs, joins them into new relations and writes one
// relation (or one input's typed relations) to a destination.

// Trigger types.
const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"
	TriggerFileWatch = "file_watch"
)

// Join kinds.
const (
	JoinInner   = "inner"
	JoinNatural = "natural"
	JoinOuter   = "outer"
)

// Job is a declarative pipeline definition, usually loaded from YAML.
type Job struct {
	ID      string  `yaml:"id" json:"id"`
	Name    string  `yaml:"name" json:"name"`
	Trigger Trigger `yaml:"trigger" json:"trigger"`
	Inputs  []Input `yaml:"inputs" json:"inputs"`
	Joins   []Join  `yaml:"joins,omitempty" json:"joins,omitempty"`
	Output  Output  `yaml:"output" json:"output"`
	// Disabled jobs are listed but never triggered automatically.
	Disabled bool `yaml:"disabled,omitempty" json:"disabled,omitempty"`

	// Path is the file the job was loaded from.
	Path string `yaml:"-" json:"path,omitempty"`
}

// Trigger describes when a job runs on its own.
type Trigger struct {
	Type   string `yaml:"type" json:"type"`     // manual | schedule | file_watch
	Config string `yaml:"config" json:"config"` // cron expression or comma-separated watch paths
}

// Input is one named relation loaded from a source.
type Input struct {
	Name       string            `yaml:"name" json:"name"`
	Source     string            `yaml:"source" json:"source"`
	Config     SourceConfig      `yaml:"config" json:"config"`
	Transforms []TransformConfig `yaml:"transforms,omitempty" json:"transforms,omitempty"`
}

// Join combines two relations into a new one named Name.
type Join struct {
	Name     string `yaml:"name" json:"name"`
	Kind     string `yaml:"kind" json:"kind"` // inner | natural | outer
	Left     string `yaml:"left" json:"left"`
	Right    string `yaml:"right" json:"right"`
	LeftKey  string `yaml:"left_key,omitempty" json:"leftKey,omitempty"`
	RightKey string `yaml:"right_key,omitempty" json:"rightKey,omitempty"`
	// Side selects left/right/full for outer joins.
	Side string `yaml:"side,omitempty" json:"side,omitempty"`
	// Exclusive makes a natural join require every shared field to match.
	Exclusive bool `yaml:"exclusive,omitempty" json:"exclusive,omitempty"`
	// PreserveKey keeps the right key on inner joins (the inner-side key on
	// outer joins) in combined rows.
	PreserveKey bool `yaml:"preserve_key,omitempty" json:"preserveKey,omitempty"`
}

// Output selects what gets written and where.
type Output struct {
	// Relation names an input, a typed input relation ("input.Type") or a join.
	Relation string `yaml:"relation,omitempty" json:"relation,omitempty"`
	// Bag names an input whose typed relations are each written separately.
	Bag         string            `yaml:"bag,omitempty" json:"bag,omitempty"`
	Transforms  []TransformConfig `yaml:"transforms,omitempty" json:"transforms,omitempty"`
	DedupeKey   string            `yaml:"dedupe_key,omitempty" json:"dedupeKey,omitempty"`
	Destination string            `yaml:"destination" json:"destination"` // csv | sqlite
	Config      DestinationConfig `yaml:"config" json:"config"`
	Mode        SyncMode          `yaml:"mode,omitempty" json:"mode,omitempty"`
}

// LoadJob reads and validates a job file. Jobs without an id get one
// derived from their absolute path, stable across restarts.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	job, err := ParseJob(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	job.Path = abs
	if job.ID == "" {
		job.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String()
	}
	if job.Name == "" {
		job.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return job, nil
}

// ParseJob decodes a job document with strict field checking and validates it.
func ParseJob(data []byte) (*Job, error) {
	var job Job
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&job); err != nil {
		return nil, fmt.Errorf("parse job: %w", err)
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("invalid job: %w", err)
	}
	return &job, nil
}

// LoadJobs loads every *.yaml and *.yml file in dir, sorted by file name.
func LoadJobs(dir string) ([]*Job, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read jobs dir: %w", err)
	}
	var jobs []*Job
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		job, err := LoadJob(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Validate checks names, references and join parameters. Relations must be
// defined before they are used.
func (j *Job) Validate() error {
	if len(j.Inputs) == 0 {
		return fmt.Errorf("at least one input is required")
	}
	switch j.Trigger.Type {
	case "", TriggerManual:
	case TriggerSchedule, TriggerFileWatch:
		if j.Trigger.Config == "" {
			return fmt.Errorf("trigger %s needs config", j.Trigger.Type)
		}
	default:
		return fmt.Errorf("unknown trigger type %q", j.Trigger.Type)
	}

	inputs := map[string]bool{}
	defined := map[string]bool{}
	for i, in := range j.Inputs {
		if in.Name == "" {
			return fmt.Errorf("inputs[%d]: name is required", i)
		}
		if strings.Contains(in.Name, ".") {
			return fmt.Errorf("inputs[%d]: name %q must not contain '.'", i, in.Name)
		}
		if defined[in.Name] {
			return fmt.Errorf("inputs[%d]: duplicate name %q", i, in.Name)
		}
		if in.Source == "" {
			return fmt.Errorf("input %q: source is required", in.Name)
		}
		inputs[in.Name] = true
		defined[in.Name] = true
	}

	// A typed reference "input.Type" is only known at run time, so only the
	// input part is checked.
	known := func(rel string) bool {
		if defined[rel] {
			return true
		}
		base, _, ok := strings.Cut(rel, ".")
		return ok && inputs[base]
	}

	for i, jn := range j.Joins {
		if jn.Name == "" {
			return fmt.Errorf("joins[%d]: name is required", i)
		}
		if defined[jn.Name] {
			return fmt.Errorf("joins[%d]: duplicate name %q", i, jn.Name)
		}
		if !known(jn.Left) || !known(jn.Right) {
			return fmt.Errorf("join %q: unknown relation %q or %q", jn.Name, jn.Left, jn.Right)
		}
		switch jn.Kind {
		case JoinInner:
			if jn.LeftKey == "" || jn.RightKey == "" {
				return fmt.Errorf("join %q: left_key and right_key are required", jn.Name)
			}
		case JoinOuter:
			if jn.LeftKey == "" || jn.RightKey == "" {
				return fmt.Errorf("join %q: left_key and right_key are required", jn.Name)
			}
			if _, err := join.ParseSide(jn.Side); err != nil {
				return fmt.Errorf("join %q: %w", jn.Name, err)
			}
		case JoinNatural:
		default:
			return fmt.Errorf("join %q: unknown kind %q", jn.Name, jn.Kind)
		}
		defined[jn.Name] = true
	}

	out := j.Output
	switch {
	case out.Relation == "" && out.Bag == "":
		return fmt.Errorf("output: relation or bag is required")
	case out.Relation != "" && out.Bag != "":
		return fmt.Errorf("output: relation and bag are mutually exclusive")
	case out.Relation != "" && !known(out.Relation):
		return fmt.Errorf("output: unknown relation %q", out.Relation)
	case out.Bag != "" && !inputs[out.Bag]:
		return fmt.Errorf("output: bag must name an input, got %q", out.Bag)
	}
	if out.Destination == "" {
		return fmt.Errorf("output: destination is required")
	}
	switch out.Mode {
	case "", SyncReplace, SyncAppend:
	default:
		return fmt.Errorf("output: unknown mode %q", out.Mode)
	}
	return nil
}

// IsScheduled reports whether the job has an automatic trigger.
func (j *Job) IsScheduled() bool {
	return !j.Disabled && (j.Trigger.Type == TriggerSchedule || j.Trigger.Type == TriggerFileWatch)
}

// WatchPaths returns the trimmed, non-empty paths of a file_watch trigger.
func (j *Job) WatchPaths() []string {
	var paths []string
	for _, p := range strings.Split(j.Trigger.Config, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
