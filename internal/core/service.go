package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/nutriclean/internal/logging"
	"github.com/JonMunkholm/nutriclean/internal/output"
	"github.com/google/uuid"
)

// DefaultRunTimeout bounds runs started with Start.
const DefaultRunTimeout = 30 * time.Minute

// DefaultHistorySize is the number of finished runs kept in memory.
const DefaultHistorySize = 50

// TableLoader loads a written CSV output into a database table.
type TableLoader interface {
	Load(ctx context.Context, csvPath string) (int64, error)
}

// Publisher copies a written output file to remote storage and returns its key.
type Publisher interface {
	Publish(ctx context.Context, path string, contentType string) (string, error)
}

// ServiceOptions holds the defaults applied to every run.
type ServiceOptions struct {
	InputPath  string
	OutputPath string
	Format     output.Format

	Headers    []string
	Categories []string
	Countries  []string

	RunTimeout  time.Duration
	HistorySize int

	// Optional post-write steps. Nil disables the step.
	Tables    TableLoader
	Publisher Publisher
}

// RunRequest overrides the service defaults for one run. Empty fields keep the default.
type RunRequest struct {
	Input   string        `json:"input,omitempty"`
	Output  string        `json:"output,omitempty"`
	Format  output.Format `json:"format,omitempty"`
	Trigger string        `json:"-"`
}

// RunResult records one pipeline run.
type RunResult struct {
	ID            string        `json:"id"`
	Trigger       string        `json:"trigger"`
	Status        RunStatus     `json:"status"`
	Input         string        `json:"input"`
	Output        string        `json:"output"`
	Format        output.Format `json:"format"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at,omitzero"`
	RowsRead      int64         `json:"rows_read"`
	RowsWritten   int64         `json:"rows_written"`
	Duration      time.Duration `json:"duration"`
	LoadDuration  time.Duration `json:"load_duration"`
	WriteDuration time.Duration `json:"write_duration"`
	DBRows        int64         `json:"db_rows,omitempty"`
	ObjectKey     string        `json:"object_key,omitempty"`
	Error         string        `json:"error,omitempty"`
	ErrorCode     string        `json:"error_code,omitempty"`
}

// Done reports whether the run has finished.
func (r RunResult) Done() bool {
	return r.Status == RunSucceeded || r.Status == RunFailed
}

// Service runs the pipeline and keeps a bounded history of runs.
type Service struct {
	loader  *Loader
	limiter *RunLimiter
	opts    ServiceOptions

	mu    sync.RWMutex
	runs  map[string]*RunResult
	order []string // run IDs, oldest first
}

// NewService creates a Service.
func NewService(loader *Loader, limiter *RunLimiter, opts ServiceOptions) *Service {
	if opts.OutputPath == "" {
		opts.OutputPath = DefaultOutputPath
	}
	if opts.Format == "" {
		opts.Format = output.FormatCSV
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	return &Service{
		loader:  loader,
		limiter: limiter,
		opts:    opts,
		runs:    make(map[string]*RunResult),
	}
}

// Limiter returns the run limiter for status reporting and shutdown.
func (s *Service) Limiter() *RunLimiter {
	return s.limiter
}

func (s *Service) resolve(req RunRequest) RunRequest {
	if req.Input == "" {
		req.Input = s.opts.InputPath
	}
	if req.Output == "" {
		req.Output = s.opts.OutputPath
	}
	if req.Format == "" {
		req.Format = s.opts.Format
	}
	if req.Trigger == "" {
		req.Trigger = "manual"
	}
	return req
}

// ErrUnsafePath is returned by InDataDir for a file name that could reach
// outside the data directories.
var ErrUnsafePath = errors.New("file name must be a plain base name")

// InDataDir resolves the file names of an untrusted request against the
// directories of the configured input and output paths. Names must be plain
// base names, and the output may not replace the input.
func (s *Service) InDataDir(req RunRequest) (RunRequest, error) {
	var err error
	if req.Input != "" {
		if req.Input, err = joinBaseName(s.opts.InputPath, req.Input); err != nil {
			return RunRequest{}, err
		}
	}
	if req.Output != "" {
		if req.Output, err = joinBaseName(s.opts.OutputPath, req.Output); err != nil {
			return RunRequest{}, err
		}
	}

	r := s.resolve(req)
	if filepath.Clean(r.Input) == filepath.Clean(r.Output) {
		return RunRequest{}, fmt.Errorf("%w: output %q would replace the input", ErrUnsafePath, filepath.Base(r.Output))
	}
	return req, nil
}

// joinBaseName places name in the directory of sibling.
func joinBaseName(sibling, name string) (string, error) {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return filepath.Join(filepath.Dir(sibling), name), nil
}

// Run executes one pipeline run synchronously and returns its result.
// On failure the result is still returned, with Status RunFailed, alongside the error.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	res := s.newRun(s.resolve(req))
	err := s.execute(ctx, res)

	s.mu.RLock()
	out := *res
	s.mu.RUnlock()
	return &out, err
}

// Start begins a run in the background and returns its ID. The run is bounded
// by the service's run timeout and is not cancelled when ctx ends.
// It returns ErrTooManyRuns when no slot frees up in time.
func (s *Service) Start(ctx context.Context, req RunRequest) (string, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	res := s.newRun(s.resolve(req))
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.RunTimeout)

	go func() {
		defer s.limiter.Release()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in run", "run_id", res.ID, "panic", r)
				s.finish(res, fmt.Errorf("internal error: %v", r))
			}
		}()
		_ = s.execute(runCtx, res)
	}()

	return res.ID, nil
}

func (s *Service) newRun(req RunRequest) *RunResult {
	res := &RunResult{
		ID:        uuid.New().String(),
		Trigger:   req.Trigger,
		Status:    RunPending,
		Input:     req.Input,
		Output:    req.Output,
		Format:    req.Format,
		StartedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[res.ID] = res
	s.order = append(s.order, res.ID)
	s.evictLocked()
	return res
}

// evictLocked drops the oldest finished runs beyond the history size.
func (s *Service) evictLocked() {
	for len(s.order) > s.opts.HistorySize {
		evicted := false
		for i, id := range s.order {
			if s.runs[id].Done() {
				delete(s.runs, id)
				s.order = append(s.order[:i], s.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}

func (s *Service) update(res *RunResult, fn func(r *RunResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(res)
}

// execute runs load, write and the optional post-write steps for res.
func (s *Service) execute(ctx context.Context, res *RunResult) error {
	ctx = logging.WithRunID(ctx, res.ID)
	logger := logging.FromContext(ctx)
	start := time.Now()

	s.update(res, func(r *RunResult) { r.Status = RunRunning })
	logger.Info("run started", "trigger", res.Trigger, "input", res.Input, "output", res.Output, "format", res.Format)

	plan, err := s.loader.LoadAndFilter(ctx, res.Input, s.opts.Headers, s.opts.Categories, s.opts.Countries)
	if err != nil {
		return s.finish(res, err)
	}
	loadDur := time.Since(start)

	wr, err := WriteOutput(ctx, plan, res.Output, res.Format)
	if err != nil {
		return s.finish(res, err)
	}
	s.update(res, func(r *RunResult) {
		r.LoadDuration = loadDur
		r.WriteDuration = wr.Duration
		r.RowsRead = wr.RowsRead
		r.RowsWritten = wr.RowsWritten
	})

	if s.opts.Tables != nil {
		if res.Format != output.FormatCSV {
			logger.Warn("database load skipped, it needs csv output", "format", res.Format)
		} else {
			n, err := s.opts.Tables.Load(ctx, wr.Path)
			if err != nil {
				return s.finish(res, err)
			}
			s.update(res, func(r *RunResult) { r.DBRows = n })
		}
	}

	if s.opts.Publisher != nil {
		key, err := s.opts.Publisher.Publish(ctx, wr.Path, res.Format.ContentType())
		if err != nil {
			return s.finish(res, err)
		}
		s.update(res, func(r *RunResult) { r.ObjectKey = key })
	}

	return s.finish(res, nil)
}

// finish records the outcome of res and logs it. It returns err unchanged.
func (s *Service) finish(res *RunResult, err error) error {
	s.update(res, func(r *RunResult) {
		r.FinishedAt = time.Now()
		r.Duration = r.FinishedAt.Sub(r.StartedAt)
		if err != nil {
			msg := MapError(err)
			r.Status = RunFailed
			r.Error = err.Error()
			r.ErrorCode = msg.Code
		} else {
			r.Status = RunSucceeded
		}
	})

	snap, _ := s.Get(res.ID)
	logger := slog.Default().With("run_id", res.ID)
	if err != nil {
		logger.Error("run failed", "code", snap.ErrorCode, "error", err, "elapsed", snap.Duration.String())
		return err
	}
	logger.Info("run finished",
		"rows_read", snap.RowsRead,
		"rows_written", snap.RowsWritten,
		"db_rows", snap.DBRows,
		"object_key", snap.ObjectKey,
		"elapsed", snap.Duration.String(),
	)
	return nil
}

// Get returns a snapshot of the run with id.
func (s *Service) Get(id string) (RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[id]
	if !ok {
		return RunResult{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return *r, nil
}

// List returns snapshots of the known runs, newest first.
func (s *Service) List() []RunResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunResult, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, *s.runs[s.order[i]])
	}
	return out
}
