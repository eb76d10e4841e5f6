package spec

import (
	"fmt"
	"sort"
)

// Default comparison thresholds applied when a series test omits them.
const (
	DefaultScaleComparisonThreshold = 0.01
	DefaultValueComparisonThreshold = 0.01
)

// SkipTag marks a case that must never run.
const SkipTag = "skip"

// Job names used for the two job blocks of a case.
const (
	JobDependency     = "dependency"
	JobReconstruction = "reconstruction"
)

// Spec is one parsed test case. It is not modified after parsing.
type Spec struct {
	// Name identifies the case (path relative to the cases directory, without extension).
	Name string

	// Path is the file the case was loaded from.
	Path string

	// Tags is the sorted, de-duplicated tag set.
	Tags []string

	// Requirements maps requirement keys (system_memory, gpu_support, gpu_memory)
	// to their declared values.
	Requirements map[string]string

	// Dependency is an optional job run before the reconstruction.
	Dependency *Job

	// Reconstruction is the job whose output is validated.
	Reconstruction *Job

	// Validation describes how the reconstruction output is checked.
	Validation *Validation
}

// Job is one or more piped invocations of the tool on a single input file.
type Job struct {
	Name     string
	DataFile string
	Checksum string

	// Args holds one argument string per pipeline stage, in order.
	Args []string
}

// Validation compares the reconstruction output against a reference file.
type Validation struct {
	Reference string
	Checksum  string
	Tests     []ImageSeriesTest
}

// ImageSeriesTest declares the thresholds for one image series.
type ImageSeriesTest struct {
	ImageSeries              int
	ScaleComparisonThreshold float64
	ValueComparisonThreshold float64
}

// KeyError reports a mandatory key missing from a case file.
type KeyError struct {
	Key     string
	Section string
}

func (e *KeyError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("missing '%s' key", e.Key)
	}
	return fmt.Sprintf("missing '%s' key in %s configuration", e.Key, e.Section)
}

// ID returns the identifier used for reports and saved results.
func (s *Spec) ID() string {
	return s.Name
}

// HasTag reports whether the case carries tag.
func (s *Spec) HasTag(tag string) bool {
	i := sort.SearchStrings(s.Tags, tag)
	return i < len(s.Tags) && s.Tags[i] == tag
}

// Jobs returns the jobs of the case in execution order.
func (s *Spec) Jobs() []*Job {
	var jobs []*Job
	if s.Dependency != nil {
		jobs = append(jobs, s.Dependency)
	}
	if s.Reconstruction != nil {
		jobs = append(jobs, s.Reconstruction)
	}
	return jobs
}

// TestDataFiles returns every remote file the case needs, mapped to its MD5 checksum.
func (s *Spec) TestDataFiles() map[string]string {
	files := make(map[string]string)
	for _, job := range s.Jobs() {
		files[job.DataFile] = job.Checksum
	}
	if s.Validation != nil {
		files[s.Validation.Reference] = s.Validation.Checksum
	}
	return files
}

// MergeDataFiles collects the data files of several cases into one map.
func MergeDataFiles(specs []*Spec) map[string]string {
	files := make(map[string]string)
	for _, s := range specs {
		for name, sum := range s.TestDataFiles() {
			files[name] = sum
		}
	}
	return files
}
