// Package requirement decides whether a test case can run on the current
// tool, given its tags and declared requirements.
package requirement

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/roopchansinghv/pingvin/internal/capability"
	"github.com/roopchansinghv/pingvin/internal/spec"
)

// Requirement keys understood in case files.
const (
	SystemMemory = "system_memory"
	GPUSupport   = "gpu_support"
	GPUMemory    = "gpu_memory"
)

// Filter carries the user's tag selection and ignored requirement categories.
type Filter struct {
	// Tags lists tags a case must all carry to run. Empty selects every case.
	Tags []string

	// Ignore lists capability names or requirement keys that are not enforced.
	Ignore []string
}

func (f Filter) ignores(r rule) bool {
	for _, name := range f.Ignore {
		if name == r.capability || name == r.key {
			return true
		}
	}
	return false
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Run    bool
	Reason string
}

func skip(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

type rule struct {
	key        string
	capability string
	message    string
	satisfied  func(caps *capability.Capabilities, required string) bool
}

// rules are evaluated in order; the first unmet rule decides the skip reason.
var rules = []rule{
	{
		key:        SystemMemory,
		capability: capability.Memory,
		message:    "not enough system memory",
		satisfied: func(caps *capability.Capabilities, required string) bool {
			v, ok := caps.Value(capability.Memory)
			return ok && hasAtLeast(v, required)
		},
	},
	{
		key:        GPUSupport,
		capability: capability.CUDASupport,
		message:    "CUDA support required",
		satisfied: func(caps *capability.Capabilities, _ string) bool {
			v, ok := caps.Value(capability.CUDASupport)
			return ok && isEnabled(v)
		},
	},
	{
		key:        GPUSupport,
		capability: capability.CUDADevices,
		message:    "not enough CUDA devices",
		satisfied: func(caps *capability.Capabilities, _ string) bool {
			v, ok := caps.Value(capability.CUDADevices)
			if !ok {
				return false
			}
			n, err := strconv.Atoi(v)
			return err == nil && n > 0
		},
	},
	{
		key:        GPUMemory,
		capability: capability.CUDAMemory,
		message:    "not enough graphics memory",
		satisfied: func(caps *capability.Capabilities, required string) bool {
			for _, v := range caps.Values(capability.CUDAMemory) {
				if !hasAtLeast(v, required) {
					return false
				}
			}
			return true
		},
	},
}

// Evaluate decides whether s runs. Tags are checked first, then each declared
// requirement against caps unless the filter ignores it.
func Evaluate(s *spec.Spec, caps *capability.Capabilities, f Filter) Decision {
	for _, tag := range f.Tags {
		if !s.HasTag(tag) {
			return skip("test missing tag: %s", tag)
		}
	}
	if s.HasTag(spec.SkipTag) {
		return skip("test was marked as skipped")
	}

	for _, r := range rules {
		required, ok := s.Requirements[r.key]
		if !ok || f.ignores(r) {
			continue
		}
		if !r.satisfied(caps, required) {
			return skip("%s", r.message)
		}
	}
	return Decision{Run: true}
}

var memoryRE = regexp.MustCompile(`(\d+)(?: MB)?`)

// ParseMemory extracts the first integer amount from strings such as "4096 MB".
func ParseMemory(s string) (float64, bool) {
	m := memoryRE.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func hasAtLeast(value, required string) bool {
	want, ok := ParseMemory(required)
	if !ok {
		return false
	}
	have, ok := ParseMemory(value)
	return ok && want <= have
}

func isEnabled(v string) bool {
	switch v {
	case "YES", "yes", "True", "true", "1":
		return true
	}
	return false
}
