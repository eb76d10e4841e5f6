// Package runner executes reconstruction jobs as shell pipelines of tool invocations.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/roopchansinghv/pingvin/internal/spec"
)

// DefaultShell runs the assembled pipeline.
const DefaultShell = "bash"

// ExitError reports a job whose pipeline exited non-zero.
type ExitError struct {
	Job       string
	Code      int
	StderrLog string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s job failed with return code %d, see %s for details", e.Job, e.Code, e.StderrLog)
}

// Runner runs jobs with a given tool inside a working directory.
type Runner struct {
	tool    string
	workDir string
	logger  *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New creates a Runner. Output files and logs are written into workDir.
func New(tool, workDir string, opts ...Option) *Runner {
	r := &Runner{
		tool:    tool,
		workDir: workDir,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OutputPath returns where the output of job is written.
func (r *Runner) OutputPath(job *spec.Job) string {
	return filepath.Join(r.workDir, job.Name+".output.mrd")
}

// LogPaths returns the stdout and stderr log files of job.
func (r *Runner) LogPaths(job *spec.Job) (stdout, stderr string) {
	base := filepath.Join(r.workDir, "pingvin_"+job.Name)
	return base + ".log.out", base + ".log.err"
}

// Command assembles the shell pipeline for job. The input path is passed to
// the first stage and the output path to the last.
func (r *Runner) Command(job *spec.Job, inputPath string) string {
	stages := make([]string, len(job.Args))
	for i, args := range job.Args {
		stages[i] = strings.TrimSpace(r.tool + " " + args)
	}
	if len(stages) == 0 {
		stages = []string{r.tool}
	}
	stages[0] += " --input " + Escape(inputPath)
	stages[len(stages)-1] += " --output " + Escape(r.OutputPath(job))
	return strings.Join(stages, " | ")
}

// Run executes job on inputPath and returns the output path. The tool is not
// subject to any timeout beyond ctx.
func (r *Runner) Run(ctx context.Context, job *spec.Job, inputPath string) (string, error) {
	command := r.Command(job, inputPath)
	stdoutPath, stderrPath := r.LogPaths(job)

	stdout, err := os.Create(stdoutPath)
	if err != nil {
		return "", fmt.Errorf("failed to create log file: %w", err)
	}
	defer stdout.Close()

	stderr, err := os.Create(stderrPath)
	if err != nil {
		return "", fmt.Errorf("failed to create log file: %w", err)
	}
	defer stderr.Close()

	r.logger.Info("running job", "job", job.Name, "command", command)

	cmd := exec.CommandContext(ctx, DefaultShell, "-c", command)
	cmd.Dir = r.workDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ExitError{Job: job.Name, Code: exitErr.ExitCode(), StderrLog: stderrPath}
		}
		return "", fmt.Errorf("failed to run %s job: %w", job.Name, err)
	}
	return r.OutputPath(job), nil
}

// safeRE matches arguments that need no quoting in a shell command line.
var safeRE = regexp.MustCompile(`^[-\w@%+:,./][-\w@%+:,./=]*$`)

// Escape quotes s for inclusion as a single shell argument.
func Escape(s string) string {
	if safeRE.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
