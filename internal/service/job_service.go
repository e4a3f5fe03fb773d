package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"sftocsv/internal/etl"
	"sftocsv/internal/record"
	"sftocsv/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Job Service: loads job files, runs them and keeps triggers alive
// ─────────────────────────────────────────────────────────────

const (
	defaultRunTimeout = 30 * time.Minute
	debounceDelay     = 500 * time.Millisecond
)

// JobServiceConfig wires a JobService.
type JobServiceConfig struct {
	JobsDir    string
	Engine     *etl.Engine
	Runs       *storage.RunLogStore
	Emitter    EventEmitter
	Logger     *slog.Logger
	RunTimeout time.Duration
}

// JobService manages job definitions, manual runs, cron schedules and
// file watches.
type JobService struct {
	jobsDir    string
	engine     *etl.Engine
	runs       *storage.RunLogStore
	emitter    EventEmitter
	log        *slog.Logger
	runTimeout time.Duration

	mu     sync.RWMutex
	jobs   map[string]*etl.Job
	active activeRuns

	// watcher / cron lifecycle
	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// JobInfo is a job together with its last known run status.
type JobInfo struct {
	Job     *etl.Job           `json:"job"`
	Status  *storage.JobStatus `json:"status,omitempty"`
	Running *ActiveRun         `json:"running,omitempty"`
}

// NewJobService creates a JobService. Call Reload to load job files.
func NewJobService(cfg JobServiceConfig) *JobService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	engine := cfg.Engine
	if engine == nil {
		engine = etl.NewEngine(logger)
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = LogEmitter{Logger: logger}
	}
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	return &JobService{
		jobsDir:    cfg.JobsDir,
		engine:     engine,
		runs:       cfg.Runs,
		emitter:    emitter,
		log:        logger,
		runTimeout: timeout,
		jobs:       map[string]*etl.Job{},
	}
}

// ── Jobs ───────────────────────────────────────────────────

// Reload reads every job file in the jobs directory, replacing the loaded
// set. On error the previous set is kept.
func (s *JobService) Reload() error {
	jobs, err := etl.LoadJobs(s.jobsDir)
	if err != nil {
		return err
	}
	byID := make(map[string]*etl.Job, len(jobs))
	for _, j := range jobs {
		if prev, dup := byID[j.ID]; dup {
			return fmt.Errorf("job id %q used by %s and %s", j.ID, prev.Path, j.Path)
		}
		byID[j.ID] = j
	}

	s.mu.Lock()
	s.jobs = byID
	s.mu.Unlock()
	s.log.Info("jobs loaded", "dir", s.jobsDir, "count", len(byID))
	return nil
}

// Add registers a job that did not come from the jobs directory, such as a
// file passed on the command line.
func (s *JobService) Add(job *etl.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

// GetJob finds a job by id or, failing that, by name.
func (s *JobService) GetJob(ref string) (*etl.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if j, ok := s.jobs[ref]; ok {
		return j, nil
	}
	for _, j := range s.jobs {
		if j.Name == ref {
			return j, nil
		}
	}
	return nil, fmt.Errorf("job not found: %s", ref)
}

// ListJobs returns every loaded job, sorted by name, with its last status.
func (s *JobService) ListJobs() ([]JobInfo, error) {
	s.mu.RLock()
	jobs := make([]*etl.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.RUnlock()
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].Name < jobs[b].Name })

	out := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		info := JobInfo{Job: j}
		if run, ok := s.active.get(j.ID); ok {
			info.Running = &run
		}
		if s.runs != nil {
			st, err := s.runs.GetJobStatus(j.ID)
			if err != nil {
				return nil, err
			}
			info.Status = st
		}
		out = append(out, info)
	}
	return out, nil
}

// ListRunLogs returns the most recent runs of a job; an empty ref lists
// runs of every job.
func (s *JobService) ListRunLogs(ref string, limit int) ([]etl.SyncRunLog, error) {
	if s.runs == nil {
		return nil, nil
	}
	jobID := ""
	if ref != "" {
		job, err := s.GetJob(ref)
		if err != nil {
			return nil, err
		}
		jobID = job.ID
	}
	return s.runs.ListRunLogs(jobID, limit)
}

// ── Run ────────────────────────────────────────────────────

// RunJob executes a job synchronously. A job that is already running is
// not started twice.
func (s *JobService) RunJob(ctx context.Context, ref, trigger string) (*etl.SyncResult, error) {
	job, err := s.GetJob(ref)
	if err != nil {
		return nil, err
	}
	if trigger == "" {
		trigger = etl.TriggerManual
	}
	if !s.active.begin(job.ID, trigger) {
		s.emitter.Emit(ctx, EventJobSkipped, map[string]string{"jobId": job.ID, "trigger": trigger})
		return nil, fmt.Errorf("job %s is already running", job.Name)
	}
	defer s.active.end(job.ID)

	s.emitter.Emit(ctx, EventJobStarted, map[string]string{"jobId": job.ID, "job": job.Name, "trigger": trigger})

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	start := time.Now()
	result, runErr := s.engine.Run(runCtx, job)

	if s.runs != nil {
		runLog := &etl.SyncRunLog{
			JobID:       job.ID,
			JobName:     job.Name,
			Trigger:     trigger,
			StartedAt:   start,
			FinishedAt:  time.Now(),
			Status:      result.Status,
			RowsRead:    result.RowsRead,
			RowsWritten: result.RowsWritten,
			Error:       result.Error,
		}
		if err := s.runs.CreateRunLog(runLog); err != nil {
			s.log.Warn("failed to record run", "job", job.Name, "err", err)
		}
	}

	s.emitter.Emit(ctx, EventJobCompleted, result)
	return result, runErr
}

// ListSources returns the available source descriptors.
func (s *JobService) ListSources() []etl.SourceSpec {
	return etl.ListSources()
}

// PreviewSource reads at most maxRows records from a source.
func (s *JobService) PreviewSource(ctx context.Context, sourceType string, cfg etl.SourceConfig, maxRows int) (*PreviewResult, error) {
	if maxRows <= 0 {
		maxRows = 10
	}
	previewCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	records, schema, err := s.engine.Preview(previewCtx, sourceType, cfg, maxRows)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{Schema: schema, Records: records}, nil
}

// PreviewResult is the response from PreviewSource.
type PreviewResult struct {
	Schema  *etl.Schema       `json:"schema"`
	Records record.Collection `json:"records"`
}

// ── Watchers (cron + file_watch) ──────────────────────────

// RestartWatchers tears down the current watcher and cron scheduler and
// rebuilds them from the loaded jobs. The jobs directory itself is watched
// too: editing a job file reloads the set.
func (s *JobService) RestartWatchers(ctx context.Context) error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.stopWatchersLocked()

	s.mu.RLock()
	var scheduled []*etl.Job
	for _, j := range s.jobs {
		if j.IsScheduled() {
			scheduled = append(scheduled, j)
		}
	}
	s.mu.RUnlock()

	// ── Cron jobs ──
	c := cron.New()
	cronCount := 0
	for _, j := range scheduled {
		if j.Trigger.Type != etl.TriggerSchedule {
			continue
		}
		jid, name := j.ID, j.Name
		_, err := c.AddFunc(j.Trigger.Config, func() {
			s.log.Info("cron: running job", "job", name)
			if _, err := s.RunJob(ctx, jid, etl.TriggerSchedule); err != nil {
				s.log.Error("cron: job failed", "job", name, "err", err)
			}
		})
		if err != nil {
			s.log.Error("cron: invalid expression", "expr", j.Trigger.Config, "job", name, "err", err)
			continue
		}
		cronCount++
	}
	if cronCount > 0 {
		c.Start()
		s.cronSched = c
		s.log.Info("cron: scheduled jobs", "count", cronCount)
	}

	// ── File watchers ──
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	s.watcher = watcher

	pathToJobs := make(map[string][]string)
	watchedDirs := make(map[string]bool)
	watchDir := func(dir string) {
		if watchedDirs[dir] {
			return
		}
		if err := watcher.Add(dir); err != nil {
			s.log.Warn("watcher: failed to watch dir", "dir", dir, "err", err)
			return
		}
		watchedDirs[dir] = true
	}
	for _, j := range scheduled {
		if j.Trigger.Type != etl.TriggerFileWatch {
			continue
		}
		for _, p := range j.WatchPaths() {
			absPath, err := filepath.Abs(p)
			if err != nil {
				s.log.Warn("watcher: bad path", "path", p, "err", err)
				continue
			}
			pathToJobs[absPath] = append(pathToJobs[absPath], j.ID)
			watchDir(filepath.Dir(absPath))
		}
	}

	jobsDir := ""
	if s.jobsDir != "" {
		if abs, err := filepath.Abs(s.jobsDir); err == nil {
			jobsDir = abs
			watchDir(jobsDir)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel
	go s.watchLoop(watchCtx, ctx, watcher, pathToJobs, jobsDir)

	s.log.Info("watcher: watching files", "files", len(pathToJobs), "dirs", len(watchedDirs))
	return nil
}

func (s *JobService) watchLoop(watchCtx, runCtx context.Context, watcher *fsnotify.Watcher, pathToJobs map[string][]string, jobsDir string) {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	debounce := func(key string, fn func()) {
		if t, exists := timers[key]; exists {
			t.Stop()
		}
		timers[key] = time.AfterFunc(debounceDelay, fn)
	}

	for {
		select {
		case <-watchCtx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			absPath, _ := filepath.Abs(event.Name)

			if jobsDir != "" && filepath.Dir(absPath) == jobsDir && isJobFile(absPath) {
				debounce("jobs-dir", func() { s.reloadAndRestart(runCtx) })
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			for _, jid := range pathToJobs[absPath] {
				changed := absPath
				debounce(jid, func() {
					s.log.Info("watcher: file changed", "path", changed, "job", jid)
					if _, err := s.RunJob(runCtx, jid, etl.TriggerFileWatch); err != nil {
						s.log.Error("watcher: run failed", "job", jid, "err", err)
					}
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Error("watcher: error", "err", err)
		}
	}
}

func (s *JobService) reloadAndRestart(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.Reload(); err != nil {
		s.log.Error("watcher: reload failed, keeping previous jobs", "err", err)
		return
	}
	s.emitter.Emit(ctx, EventJobsReloaded, s.jobsDir)
	if err := s.RestartWatchers(ctx); err != nil {
		s.log.Error("watcher: restart failed", "err", err)
	}
}

func isJobFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *JobService) WaitRunning(ctx context.Context) {
	s.active.wait(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *JobService) Stop() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.stopWatchersLocked()
}

func (s *JobService) stopWatchersLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
