// Package capability probes the runtime capabilities of the reconstruction tool.
package capability

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Capability names.
const (
	Version     = "version"
	Build       = "build"
	Memory      = "memory"
	CUDASupport = "cuda_support"
	CUDADevices = "cuda_devices"
	CUDAMemory  = "cuda_memory"
)

// InfoFlag makes the tool print its diagnostic information.
const InfoFlag = "--info"

type marker struct {
	name  string
	label string
}

// scalarMarkers take the first matching line.
var scalarMarkers = []marker{
	{Version, "Version"},
	{Build, "Git SHA1"},
	{Memory, "System Memory size"},
	{CUDASupport, "CUDA Support"},
	{CUDADevices, "CUDA Device count"},
}

// listMarkers collect every matching line, one value per device.
var listMarkers = []marker{
	{CUDAMemory, "CUDA Device Memory size"},
}

// Capabilities holds probed capability values. Scalars absent from the tool
// output are missing; list capabilities are always present, possibly empty.
type Capabilities struct {
	scalars map[string]string
	lists   map[string][]string
}

// New builds Capabilities from explicit values.
func New(scalars map[string]string, lists map[string][]string) *Capabilities {
	c := &Capabilities{scalars: make(map[string]string), lists: make(map[string][]string)}
	for k, v := range scalars {
		c.scalars[k] = v
	}
	for k, v := range lists {
		c.lists[k] = append([]string(nil), v...)
	}
	return c
}

// Value returns a scalar capability.
func (c *Capabilities) Value(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.scalars[name]
	return v, ok
}

// Values returns a list capability.
func (c *Capabilities) Values(name string) []string {
	if c == nil {
		return nil
	}
	return c.lists[name]
}

// Map returns all capabilities keyed by name. Scalars map to a string and
// lists to a []string.
func (c *Capabilities) Map() map[string]any {
	m := make(map[string]any, len(c.scalars)+len(c.lists))
	for k, v := range c.scalars {
		m[k] = v
	}
	for k, v := range c.lists {
		m[k] = v
	}
	return m
}

// String renders the capabilities one per line, sorted by name.
func (c *Capabilities) String() string {
	names := make([]string, 0, len(c.scalars)+len(c.lists))
	for k := range c.scalars {
		names = append(names, k)
	}
	for k := range c.lists {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		if v, ok := c.scalars[name]; ok {
			fmt.Fprintf(&b, "%s: %s\n", name, v)
			continue
		}
		fmt.Fprintf(&b, "%s: [%s]\n", name, strings.Join(c.lists[name], ", "))
	}
	return b.String()
}

// Parse extracts capabilities from the tool's diagnostic text. A line
// matches a marker when the text before its first colon ends with the
// marker label, compared case-insensitively.
func Parse(text string) *Capabilities {
	fold := cases.Fold()
	c := &Capabilities{scalars: make(map[string]string), lists: make(map[string][]string)}
	for _, m := range listMarkers {
		c.lists[m.name] = []string{}
	}

	for _, line := range strings.Split(text, "\n") {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		label := fold.String(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])

		for _, m := range scalarMarkers {
			if _, seen := c.scalars[m.name]; seen {
				continue
			}
			if strings.HasSuffix(label, fold.String(m.label)) {
				c.scalars[m.name] = value
			}
		}
		for _, m := range listMarkers {
			if strings.HasSuffix(label, fold.String(m.label)) {
				c.lists[m.name] = append(c.lists[m.name], value)
			}
		}
	}
	return c
}

// ProbeError reports a failed capability probe. ExitCode is -1 when the tool
// could not be started, and Err holds the cause.
type ProbeError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProbeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to query capabilities: running %s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("failed to query capabilities: %s returned %d", e.Command, e.ExitCode)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Prober runs the tool to discover its capabilities.
type Prober struct {
	Tool   string
	Logger *slog.Logger
}

// Probe runs "<tool> --info" and parses its stderr. Any failure to run the
// tool, including a non-zero exit, is a *ProbeError.
func (p *Prober) Probe(ctx context.Context) (*Capabilities, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Tool, InfoFlag)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ProbeError{
				Command:  p.Tool + " " + InfoFlag,
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
			}
		}
		return nil, &ProbeError{Command: p.Tool + " " + InfoFlag, ExitCode: -1, Err: err}
	}

	caps := Parse(stderr.String())
	logger.Info("tool capabilities", "capabilities", caps.Map())
	return caps, nil
}
