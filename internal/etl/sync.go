package etl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sftocsv/internal/join"
	"sftocsv/internal/record"
)

// ── Run results ────────────────────────────────────────────

// SyncResult is the outcome of running a job.
type SyncResult struct {
	JobID       string        `json:"jobId"`
	JobName     string        `json:"jobName"`
	Status      string        `json:"status"` // "success" | "error"
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	Targets     []string      `json:"targets,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// SyncRunLog is a historical record of a job run.
type SyncRunLog struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId"`
	JobName     string    `json:"jobName"`
	Trigger     string    `json:"trigger"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Status      string    `json:"status"`
	RowsRead    int       `json:"rowsRead"`
	RowsWritten int       `json:"rowsWritten"`
	Error       string    `json:"error,omitempty"`
}

// ── Relations ──────────────────────────────────────────────

// Relations holds every named collection produced while running a job.
type Relations struct {
	mu    sync.Mutex
	rels  map[string]record.Collection
	types map[string][]string // input name → object types in first-seen order
}

func newRelations() *Relations {
	return &Relations{rels: map[string]record.Collection{}, types: map[string][]string{}}
}

// Get returns the named relation. A typed relation of a known input that
// produced no rows of that type is empty, not missing.
func (r *Relations) Get(name string) (record.Collection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.rels[name]; ok {
		return c, true
	}
	if base, _, ok := strings.Cut(name, "."); ok {
		if _, known := r.types[base]; known {
			return record.Collection{}, true
		}
	}
	return nil, false
}

// Types returns the object types an input produced, in first-seen order.
func (r *Relations) Types(input string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types[input]...)
}

// Names returns every relation name.
func (r *Relations) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.rels))
	for n := range r.rels {
		out = append(out, n)
	}
	return out
}

func (r *Relations) put(name string, c record.Collection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rels[name] = c
}

func (r *Relations) putInput(input string, order []string, byName map[string]record.Collection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[input] = order
	for n, c := range byName {
		r.rels[n] = c
	}
}

// RelationName is the name records of type typ from input are filed under.
func RelationName(input, typ string) string {
	if typ == "" {
		return input
	}
	return input + "." + typ
}

// ── Engine ─────────────────────────────────────────────────
// The Engine orchestrates job execution: inputs are read concurrently,
// joins run in declaration order, then the output is written.

// Engine runs jobs using the registered sources and destinations.
type Engine struct {
	Logger *slog.Logger
}

// NewEngine returns an Engine logging to logger (discarded if nil).
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{Logger: logger}
}

// Run executes a job end-to-end. The returned result is populated even when
// an error is returned.
func (e *Engine) Run(ctx context.Context, job *Job) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{JobID: job.ID, JobName: job.Name}
	log := e.Logger.With("job", job.Name)

	fail := func(stage string, err error) (*SyncResult, error) {
		err = fmt.Errorf("%s: %w", stage, err)
		result.Status = "error"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		log.Error("etl job failed", "stage", stage, "err", err, "duration", result.Duration)
		return result, err
	}

	if err := job.Validate(); err != nil {
		return fail("validate", err)
	}
	dest, err := GetDestination(job.Output.Destination)
	if err != nil {
		return fail("destination", err)
	}

	// 1. Read every input concurrently.
	rels, read, err := e.LoadInputs(ctx, job.Inputs)
	result.RowsRead = read
	if err != nil {
		return fail("read", err)
	}

	// 2. Joins, in order; each may use relations defined before it.
	for _, jn := range job.Joins {
		joined, err := applyJoin(rels, jn)
		if err != nil {
			return fail("join "+jn.Name, err)
		}
		log.Debug("join complete", "join", jn.Name, "kind", jn.Kind, "rows", len(joined))
		rels.put(jn.Name, joined)
	}

	// 3. Output.
	outputs, err := selectOutput(rels, job.Output)
	if err != nil {
		return fail("output", err)
	}
	mode := job.Output.Mode
	if mode == "" {
		mode = SyncReplace
	}
	for _, rel := range outputs {
		ts, err := BuildTransformers(job.Output.Transforms, job.Output.DedupeKey)
		if err != nil {
			return fail("output", err)
		}
		rel.Records = TransformAll(rel.Records, ts)
		rel.Schema = InferSchema(rel.Records)

		written, target, err := dest.Write(ctx, job.Output.Config, rel, mode)
		result.RowsWritten += written
		if err != nil {
			return fail("write", err)
		}
		if target != "" {
			result.Targets = append(result.Targets, target)
		}
	}

	result.Status = "success"
	result.Duration = time.Since(start)
	log.Info("etl job finished",
		"rows_read", result.RowsRead,
		"rows_written", result.RowsWritten,
		"targets", result.Targets,
		"duration", result.Duration,
	)
	return result, nil
}

// LoadInputs reads every input concurrently and applies its transforms.
// It returns the relations and the number of rows read before transforms.
func (e *Engine) LoadInputs(ctx context.Context, inputs []Input) (*Relations, int, error) {
	rels := newRelations()
	var (
		mu   sync.Mutex
		read int
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, in := range inputs {
		g.Go(func() error {
			n, err := e.loadInput(gctx, in, rels)
			mu.Lock()
			read += n
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("input %q: %w", in.Name, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return rels, read, err
}

func (e *Engine) loadInput(ctx context.Context, in Input, rels *Relations) (int, error) {
	source, err := GetSource(in.Source)
	if err != nil {
		return 0, err
	}
	if err := source.Spec().Validate(in.Config); err != nil {
		return 0, err
	}
	// Fail on bad transform config before touching the source.
	if _, err := BuildTransformers(in.Transforms, ""); err != nil {
		return 0, err
	}

	start := time.Now()
	recCh, errCh := source.Read(ctx, in.Config)

	var order []string
	byName := map[string]record.Collection{}
	read := 0
	for rec := range recCh {
		read++
		name := RelationName(in.Name, rec.Type)
		if _, ok := byName[name]; !ok && rec.Type != "" {
			order = append(order, rec.Type)
		}
		byName[name] = append(byName[name], rec.Data)
	}
	if err := <-errCh; err != nil {
		return read, err
	}
	if err := ctx.Err(); err != nil {
		return read, err
	}
	// A flat source with no rows still defines an empty relation.
	if len(order) == 0 {
		if _, ok := byName[in.Name]; !ok {
			byName[in.Name] = record.Collection{}
		}
	}

	for name, recs := range byName {
		ts, _ := BuildTransformers(in.Transforms, "")
		byName[name] = TransformAll(recs, ts)
	}
	rels.putInput(in.Name, order, byName)

	e.Logger.Debug("input loaded",
		"input", in.Name,
		"source", in.Source,
		"rows", read,
		"types", order,
		"duration", time.Since(start),
	)
	return read, nil
}

func applyJoin(rels *Relations, jn Join) (record.Collection, error) {
	left, ok := rels.Get(jn.Left)
	if !ok {
		return nil, fmt.Errorf("unknown relation %q", jn.Left)
	}
	right, ok := rels.Get(jn.Right)
	if !ok {
		return nil, fmt.Errorf("unknown relation %q", jn.Right)
	}

	switch jn.Kind {
	case JoinInner:
		return join.Inner(left, right, jn.LeftKey, jn.RightKey, jn.PreserveKey), nil
	case JoinNatural:
		return join.Natural(left, right, jn.Exclusive), nil
	case JoinOuter:
		side, err := join.ParseSide(jn.Side)
		if err != nil {
			return nil, err
		}
		return join.Outer(left, right, jn.LeftKey, jn.RightKey, side, jn.PreserveKey)
	default:
		return nil, fmt.Errorf("unknown join kind %q", jn.Kind)
	}
}

func selectOutput(rels *Relations, out Output) ([]Relation, error) {
	if out.Bag != "" {
		types := rels.Types(out.Bag)
		if len(types) == 0 {
			return nil, fmt.Errorf("input %q produced no typed records", out.Bag)
		}
		outputs := make([]Relation, 0, len(types))
		for _, typ := range types {
			name := RelationName(out.Bag, typ)
			recs, _ := rels.Get(name)
			outputs = append(outputs, Relation{Name: name, Type: typ, Records: recs})
		}
		return outputs, nil
	}

	recs, ok := rels.Get(out.Relation)
	if !ok {
		return nil, fmt.Errorf("unknown relation %q", out.Relation)
	}
	return []Relation{{Name: out.Relation, Records: recs}}, nil
}

// Preview reads a source and returns up to maxRows records of the first
// relation it produces.
func (e *Engine) Preview(ctx context.Context, sourceType string, cfg SourceConfig, maxRows int) (record.Collection, *Schema, error) {
	source, err := GetSource(sourceType)
	if err != nil {
		return nil, nil, err
	}
	if err := source.Spec().Validate(cfg); err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	recCh, errCh := source.Read(ctx, cfg)

	var records record.Collection
	for rec := range recCh {
		records = append(records, rec.Data)
		if len(records) >= maxRows {
			cancel()
			break
		}
	}

	// Drain remaining and check for errors.
	go func() {
		for range recCh {
		}
	}()
	if err := <-errCh; err != nil && ctx.Err() == nil {
		return records, InferSchema(records), err
	}
	return records, InferSchema(records), nil
}
