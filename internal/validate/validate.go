// Package validate compares reconstruction output against reference data.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/roopchansinghv/pingvin/internal/dataset"
	"github.com/roopchansinghv/pingvin/internal/spec"
)

// Metrics holds the numeric comparison results for one image series.
type Metrics struct {
	Series   int     `json:"series"`
	NormDiff float64 `json:"norm_diff"`
	Scale    float64 `json:"scale"`
}

// Validator reads output and reference files and compares declared image series.
type Validator struct {
	decoder dataset.Decoder
	logger  *slog.Logger
}

// New creates a Validator. A nil logger uses slog.Default().
func New(decoder dataset.Decoder, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{decoder: decoder, logger: logger}
}

// Validate checks every series test of v. Metrics are returned for the series
// compared so far, including the one that failed.
func (val *Validator) Validate(ctx context.Context, v *spec.Validation, outputPath, referencePath string) ([]Metrics, error) {
	refRecords, err := val.decoder.Decode(ctx, referencePath)
	if err != nil {
		return nil, fmt.Errorf("reading reference: %w", err)
	}
	outRecords, err := val.decoder.Decode(ctx, outputPath)
	if err != nil {
		return nil, fmt.Errorf("reading output: %w", err)
	}
	refSeries := dataset.Series(refRecords)
	outSeries := dataset.Series(outRecords)

	var metrics []Metrics
	for _, test := range v.Tests {
		ref, ok := refSeries[test.ImageSeries]
		if !ok {
			return metrics, fmt.Errorf("image series %d not found in reference", test.ImageSeries)
		}
		out, ok := outSeries[test.ImageSeries]
		if !ok {
			return metrics, fmt.Errorf("image series %d not found in output", test.ImageSeries)
		}

		m, err := CompareData(out, ref, test.ScaleComparisonThreshold, test.ValueComparisonThreshold)
		m.Series = test.ImageSeries
		if m.NormDiff != 0 || m.Scale != 0 {
			metrics = append(metrics, m)
		}
		if err != nil {
			return metrics, fmt.Errorf("image series %d: %w", test.ImageSeries, err)
		}
		val.logger.Debug("image series data matches",
			"series", test.ImageSeries,
			"norm_diff", m.NormDiff,
			"scale", m.Scale,
		)

		if len(out) != len(ref) {
			return metrics, fmt.Errorf("image series %d: output has %d images, reference has %d",
				test.ImageSeries, len(out), len(ref))
		}
		for i := range ref {
			if err := CompareHeaders(&out[i].Header, &ref[i].Header); err != nil {
				return metrics, err
			}
		}
	}
	return metrics, nil
}

// stack checks that all images share one dtype and shape, with data matching
// the shape, and returns the
// stacked shape, the dtype and the flattened real data as float32 values.
func stack(images []*dataset.Image) ([]int, string, []float32, error) {
	if len(images) == 0 {
		return nil, "", nil, fmt.Errorf("empty image series")
	}
	first := images[0]
	shape := append([]int{len(images)}, first.Shape...)

	var data []float32
	for i, img := range images {
		if img.DType != first.DType || !slices.Equal(img.Shape, first.Shape) {
			return nil, "", nil, fmt.Errorf("cannot stack image %d: %s%v differs from %s%v",
				i, img.DType, img.Shape, first.DType, first.Shape)
		}
		if err := img.Validate(); err != nil {
			return nil, "", nil, fmt.Errorf("image %d: %w", i, err)
		}
		for _, v := range img.Real() {
			data = append(data, float32(v))
		}
	}
	return shape, first.DType, data, nil
}

// CompareData compares stacked output and reference images. It fails when
// the shapes or dtypes differ, when valueThreshold < ‖out−ref‖/‖ref‖, or when
// scaleThreshold < |1 − (out·out)/(out·ref)|.
func CompareData(out, ref []*dataset.Image, scaleThreshold, valueThreshold float64) (Metrics, error) {
	outShape, outType, outData, err := stack(out)
	if err != nil {
		return Metrics{}, fmt.Errorf("output: %w", err)
	}
	refShape, refType, refData, err := stack(ref)
	if err != nil {
		return Metrics{}, fmt.Errorf("reference: %w", err)
	}
	if !slices.Equal(outShape, refShape) {
		return Metrics{}, fmt.Errorf("shape mismatch: output %v, reference %v", outShape, refShape)
	}
	if outType != refType {
		return Metrics{}, fmt.Errorf("dtype mismatch: output %s, reference %s", outType, refType)
	}

	var diffSq, refSq, outSq, cross float64
	for i := range refData {
		o, r := float64(outData[i]), float64(refData[i])
		d := o - r
		diffSq += d * d
		refSq += r * r
		outSq += o * o
		cross += o * r
	}

	m := Metrics{
		NormDiff: ratio(math.Sqrt(diffSq), math.Sqrt(refSq), 0),
		Scale:    ratio(outSq, cross, 1),
	}

	if valueThreshold < m.NormDiff {
		return m, fmt.Errorf("comparing values, norm diff: %v (threshold: %v)", m.NormDiff, valueThreshold)
	}
	if deviation := math.Abs(1 - m.Scale); scaleThreshold < deviation {
		return m, fmt.Errorf("comparing image scales, ratio: %v (%v) (threshold: %v)", m.Scale, deviation, scaleThreshold)
	}
	return m, nil
}

// ratio divides a by b. Zero over zero yields whenZero; a non-zero value over
// zero yields +Inf.
func ratio(a, b, whenZero float64) float64 {
	if b == 0 {
		if a == 0 {
			return whenZero
		}
		return math.Inf(1)
	}
	return a / b
}
