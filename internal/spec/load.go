package spec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type rawCase struct {
	Tags           yaml.Node      `yaml:"tags"`
	Requirements   yaml.Node      `yaml:"requirements"`
	Dependency     *rawJob        `yaml:"dependency"`
	Reconstruction *rawJob        `yaml:"reconstruction"`
	Validation     *rawValidation `yaml:"validation"`
}

type rawJob struct {
	Data     string     `yaml:"data"`
	Checksum string     `yaml:"checksum"`
	Args     *string    `yaml:"args"`
	Run      []rawStage `yaml:"run"`
}

type rawStage struct {
	Args string `yaml:"args"`
}

type rawValidation struct {
	Reference string    `yaml:"reference"`
	Checksum  string    `yaml:"checksum"`
	Tests     yaml.Node `yaml:"tests"`
}

type rawSeriesTest struct {
	ImageSeries              *int     `yaml:"image_series"`
	ScaleComparisonThreshold *float64 `yaml:"scale_comparison_threshold"`
	ValueComparisonThreshold *float64 `yaml:"value_comparison_threshold"`
}

// LoadFile reads and parses a case file. name becomes Spec.Name.
func LoadFile(path, name string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read case file: %w", err)
	}

	s, err := Parse(data, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	return s, nil
}

// Parse parses a case document.
func Parse(data []byte, name string) (*Spec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, errors.New("empty case file")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("case file must contain a mapping")
	}

	var raw rawCase
	if err := root.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode case: %w", err)
	}

	s := &Spec{Name: name}

	tags, err := parseTags(&raw.Tags)
	if err != nil {
		return nil, err
	}
	s.Tags = tags

	reqs, err := parseRequirements(&raw.Requirements)
	if err != nil {
		return nil, err
	}
	s.Requirements = reqs

	if raw.Dependency != nil {
		if s.Dependency, err = raw.Dependency.build(JobDependency); err != nil {
			return nil, err
		}
	}
	if raw.Reconstruction == nil {
		return nil, &KeyError{Key: JobReconstruction}
	}
	if s.Reconstruction, err = raw.Reconstruction.build(JobReconstruction); err != nil {
		return nil, err
	}
	if raw.Validation == nil {
		return nil, &KeyError{Key: "validation"}
	}
	if s.Validation, err = raw.Validation.build(); err != nil {
		return nil, err
	}

	if err := checkSchema(root); err != nil {
		return nil, err
	}
	return s, nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == 0 || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

func parseTags(n *yaml.Node) ([]string, error) {
	if isNull(n) {
		return nil, nil
	}

	var list []string
	switch n.Kind {
	case yaml.ScalarNode:
		list = []string{n.Value}
	case yaml.SequenceNode:
		if err := n.Decode(&list); err != nil {
			return nil, fmt.Errorf("invalid tags: %w", err)
		}
	default:
		return nil, errors.New("invalid tags: expected a string or a list")
	}

	seen := make(map[string]bool, len(list))
	var tags []string
	for _, t := range list {
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	sort.Strings(tags)
	return tags, nil
}

func parseRequirements(n *yaml.Node) (map[string]string, error) {
	reqs := make(map[string]string)
	if isNull(n) {
		return reqs, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, errors.New("invalid requirements: expected a mapping")
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]
		if value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("invalid requirements: %q must be a scalar", key.Value)
		}
		reqs[key.Value] = value.Value
	}
	return reqs, nil
}

func (r *rawJob) build(name string) (*Job, error) {
	if r.Data == "" {
		return nil, &KeyError{Key: "data", Section: name}
	}
	if r.Checksum == "" {
		return nil, &KeyError{Key: "checksum", Section: name}
	}

	job := &Job{Name: name, DataFile: r.Data, Checksum: strings.ToLower(r.Checksum)}
	switch {
	case r.Run != nil:
		if len(r.Run) == 0 {
			return nil, fmt.Errorf("'run' must not be empty in %s configuration", name)
		}
		for _, stage := range r.Run {
			job.Args = append(job.Args, stage.Args)
		}
	case r.Args != nil:
		job.Args = []string{*r.Args}
	default:
		return nil, &KeyError{Key: "args", Section: name}
	}
	return job, nil
}

func (r *rawValidation) build() (*Validation, error) {
	const section = "validation"
	if r.Reference == "" {
		return nil, &KeyError{Key: "reference", Section: section}
	}
	if r.Checksum == "" {
		return nil, &KeyError{Key: "checksum", Section: section}
	}
	if isNull(&r.Tests) {
		return nil, &KeyError{Key: "tests", Section: section}
	}
	if r.Tests.Kind != yaml.SequenceNode {
		return nil, errors.New("key 'tests' should be a list in validation configuration")
	}
	if len(r.Tests.Content) == 0 {
		return nil, &KeyError{Key: "tests", Section: section}
	}

	var raws []rawSeriesTest
	if err := r.Tests.Decode(&raws); err != nil {
		return nil, fmt.Errorf("invalid validation tests: %w", err)
	}

	v := &Validation{Reference: r.Reference, Checksum: strings.ToLower(r.Checksum)}
	for i, rt := range raws {
		if rt.ImageSeries == nil {
			return nil, &KeyError{Key: "image_series", Section: fmt.Sprintf("validation tests[%d]", i)}
		}
		test := ImageSeriesTest{
			ImageSeries:              *rt.ImageSeries,
			ScaleComparisonThreshold: DefaultScaleComparisonThreshold,
			ValueComparisonThreshold: DefaultValueComparisonThreshold,
		}
		if rt.ScaleComparisonThreshold != nil {
			test.ScaleComparisonThreshold = *rt.ScaleComparisonThreshold
		}
		if rt.ValueComparisonThreshold != nil {
			test.ValueComparisonThreshold = *rt.ValueComparisonThreshold
		}
		v.Tests = append(v.Tests, test)
	}
	return v, nil
}

// Discover loads every *.yml and *.yaml case under dir, sorted by name.
// filter, when non-empty, is a glob matched against case names.
func Discover(dir, filter string) ([]*Spec, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("cases directory not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	var specs []*Spec
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yml" && ext != ".yaml" {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(strings.TrimSuffix(rel, ext))

		if filter != "" {
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		s, err := LoadFile(path, name)
		if err != nil {
			return err
		}
		specs = append(specs, s)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(specs, func(i, j int) bool {
		return specs[i].Name < specs[j].Name
	})
	return specs, nil
}
