package harness

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roopchansinghv/pingvin/internal/capability"
	"github.com/roopchansinghv/pingvin/internal/dataset"
	"github.com/roopchansinghv/pingvin/internal/fetch"
	"github.com/roopchansinghv/pingvin/internal/requirement"
	"github.com/roopchansinghv/pingvin/internal/runner"
	"github.com/roopchansinghv/pingvin/internal/spec"
	"github.com/roopchansinghv/pingvin/internal/store"
	"github.com/roopchansinghv/pingvin/internal/validate"
)

// Prober discovers the tool's capabilities.
type Prober interface {
	Probe(ctx context.Context) (*capability.Capabilities, error)
}

// Recorder persists session results. *store.Store implements it.
type Recorder interface {
	BeginRun(ctx context.Context, run store.Run) error
	RecordResult(ctx context.Context, runID string, r store.CaseResult) error
	FinishRun(ctx context.Context, runID string, at time.Time) error
}

// Harness runs test cases against the tool.
type Harness struct {
	cfg      Config
	prober   Prober
	decoder  dataset.Decoder
	recorder Recorder
	ids      IDGenerator
	client   *http.Client
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithProber replaces the "<tool> --info" prober.
func WithProber(p Prober) Option {
	return func(h *Harness) { h.prober = p }
}

// WithDecoder sets the decoder for output and reference files.
func WithDecoder(d dataset.Decoder) Option {
	return func(h *Harness) { h.decoder = d }
}

// WithRecorder records every session and result.
func WithRecorder(r Recorder) Option {
	return func(h *Harness) { h.recorder = r }
}

// WithIDGenerator sets the run ID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(h *Harness) { h.ids = g }
}

// WithHTTPClient sets the client used to fetch data files.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Harness) { h.client = c }
}

// WithClock sets the time source for run timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(h *Harness) { h.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// New creates a Harness after validating cfg. Relative paths in cfg are
// resolved against the current directory.
func New(cfg Config, opts ...Option) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}

	h := &Harness{
		cfg:     cfg,
		decoder: dataset.NDJSONDecoder{},
		ids:     UUIDv7Generator{},
		client:  fetch.NewHTTPClient(),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.prober == nil {
		h.prober = &capability.Prober{Tool: cfg.Tool, Logger: h.logger}
	}
	return h, nil
}

func (h *Harness) fetcher(dir string) *fetch.Fetcher {
	return fetch.New(h.cfg.DataHost, dir,
		fetch.WithClient(h.client),
		fetch.WithLogger(h.logger),
	)
}

// Run executes specs in order and returns the session report.
//
// A failed capability probe or up-front download aborts the session with an
// error. Case failures are reported in the Report, not as an error. If ctx is
// cancelled between cases, the partial report is returned with ctx.Err().
func (h *Harness) Run(ctx context.Context, specs []*spec.Spec) (*Report, error) {
	caps, err := h.prepare(ctx, specs)
	if err != nil {
		return nil, err
	}

	report := h.newReport(caps)
	logger := h.logger.With("run", report.RunID)

	if h.recorder != nil {
		version, _ := caps.Value(capability.Version)
		err := h.recorder.BeginRun(ctx, store.Run{
			ID:          report.RunID,
			StartedAt:   h.now(),
			Tool:        h.cfg.Tool,
			ToolVersion: version,
			CasesDir:    h.cfg.CasesDir,
		})
		if err != nil {
			return nil, err
		}
	}

	for _, s := range specs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res := h.RunCase(ctx, s, caps)
		report.add(res)
		logger.Info("case finished",
			"case", res.Name,
			"status", res.Status,
			"duration", res.Duration.Round(time.Millisecond),
		)

		if h.recorder != nil {
			if err := h.recorder.RecordResult(ctx, report.RunID, res.record()); err != nil {
				logger.Warn("failed to record result", "case", res.Name, "error", err)
			}
		}
	}

	if h.recorder != nil {
		if err := h.recorder.FinishRun(ctx, report.RunID, h.now()); err != nil {
			logger.Warn("failed to finish run", "error", err)
		}
	}
	return report, nil
}

// prepare probes the tool and, when configured, downloads every data file.
func (h *Harness) prepare(ctx context.Context, specs []*spec.Spec) (*capability.Capabilities, error) {
	caps, err := h.prober.Probe(ctx)
	if err != nil {
		return nil, err
	}

	if h.cfg.DownloadAll {
		if _, err := h.fetcher(h.cfg.CachePath).Fetch(ctx, spec.MergeDataFiles(specs)); err != nil {
			return nil, fmt.Errorf("failed to download test data: %w", err)
		}
	}
	return caps, nil
}

func (h *Harness) newReport(caps *capability.Capabilities) *Report {
	return &Report{
		RunID:        h.ids.Generate(),
		Capabilities: caps.Map(),
		Results:      []*Result{},
	}
}

// RunCase gates, runs and validates a single case.
func (h *Harness) RunCase(ctx context.Context, s *spec.Spec, caps *capability.Capabilities) *Result {
	start := h.now()
	res := NewResult(s.ID())
	defer func() { res.Duration = h.now().Sub(start) }()

	decision := requirement.Evaluate(s, caps, requirement.Filter{
		Tags:   h.cfg.Tags,
		Ignore: h.cfg.IgnoreRequirements,
	})
	if !decision.Run {
		res.Skip(decision.Reason)
		return res
	}

	workDir, err := h.workDir(s)
	if err != nil {
		res.AddError(err.Error())
		return res
	}
	if h.cfg.WorkRoot == "" {
		defer os.RemoveAll(workDir)
	} else {
		res.WorkDir = workDir
	}

	h.execute(ctx, s, workDir, res)

	if res.Status == StatusFail && h.cfg.EchoLogOnFailure {
		logs, err := collectLogs(workDir)
		if err != nil {
			h.logger.Warn("failed to collect logs", "case", res.Name, "error", err)
		}
		res.Logs = logs
	}
	if h.cfg.SaveResults != "" {
		dest := filepath.Join(h.cfg.SaveResults, filepath.FromSlash(s.Name))
		if err := copyDir(workDir, dest); err != nil {
			h.logger.Warn("failed to save results", "case", res.Name, "dest", dest, "error", err)
		}
	}
	return res
}

func (h *Harness) execute(ctx context.Context, s *spec.Spec, workDir string, res *Result) {
	dataDir := h.cfg.CachePath
	if h.cfg.CacheDisabled {
		dataDir = workDir
	}
	if !h.cfg.DownloadAll {
		if _, err := h.fetcher(dataDir).Fetch(ctx, s.TestDataFiles()); err != nil {
			res.AddError(fmt.Sprintf("failed to fetch test data: %v", err))
			return
		}
	}
	local := func(name string) string {
		return filepath.Join(dataDir, filepath.FromSlash(name))
	}

	r := runner.New(h.cfg.Tool, workDir, runner.WithLogger(h.logger))
	var output string
	for _, job := range s.Jobs() {
		out, err := r.Run(ctx, job, local(job.DataFile))
		if err != nil {
			res.AddError(err.Error())
			return
		}
		output = out
	}
	if s.Validation == nil {
		return
	}

	v := validate.New(h.decoder, h.logger)
	metrics, err := v.Validate(ctx, s.Validation, output, local(s.Validation.Reference))
	res.Metrics = metrics
	if err != nil {
		res.AddError(err.Error())
	}
}

// workDir creates a fresh working directory for s.
func (h *Harness) workDir(s *spec.Spec) (string, error) {
	root := h.cfg.WorkRoot
	if root != "" {
		if err := os.MkdirAll(root, 0755); err != nil {
			return "", fmt.Errorf("failed to create work root: %w", err)
		}
	}
	pattern := strings.NewReplacer("/", "_", string(filepath.Separator), "_").Replace(s.Name) + "-"
	dir, err := os.MkdirTemp(root, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create working directory: %w", err)
	}
	return dir, nil
}
