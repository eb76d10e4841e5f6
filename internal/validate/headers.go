package validate

import (
	"fmt"
	"math"
	"reflect"

	"github.com/google/go-cmp/cmp"

	"github.com/roopchansinghv/pingvin/internal/dataset"
)

// approxTolerance is the absolute tolerance for vector header fields.
const approxTolerance = 1e-6

// matcher reports whether an output header value matches the reference value.
type matcher func(out, ref any) bool

type headerRule struct {
	field string
	get   func(*dataset.ImageHeader) any
	match matcher
}

// headerRules lists the checked header fields in comparison order.
var headerRules = []headerRule{
	{"flags", func(h *dataset.ImageHeader) any { return h.Flags }, equals},
	{"measurement_uid", func(h *dataset.ImageHeader) any { return h.MeasurementUID }, equals},
	{"field_of_view", func(h *dataset.ImageHeader) any { return h.FieldOfView }, eachApprox},
	{"position", func(h *dataset.ImageHeader) any { return h.Position }, eachApprox},
	{"col_dir", func(h *dataset.ImageHeader) any { return h.ColDir }, eachApprox},
	{"line_dir", func(h *dataset.ImageHeader) any { return h.LineDir }, eachApprox},
	{"slice_dir", func(h *dataset.ImageHeader) any { return h.SliceDir }, eachApprox},
	{"patient_table_position", func(h *dataset.ImageHeader) any { return h.PatientTablePosition }, eachApprox},
	{"average", func(h *dataset.ImageHeader) any { return h.Average }, equals},
	{"slice", func(h *dataset.ImageHeader) any { return h.Slice }, equals},
	{"contrast", func(h *dataset.ImageHeader) any { return h.Contrast }, equals},
	{"phase", func(h *dataset.ImageHeader) any { return h.Phase }, equals},
	{"repetition", func(h *dataset.ImageHeader) any { return h.Repetition }, equals},
	{"set", func(h *dataset.ImageHeader) any { return h.Set }, equals},
	{"acquisition_time_stamp", func(h *dataset.ImageHeader) any { return h.AcquisitionTimeStamp }, ignore},
	{"physiology_time_stamp", func(h *dataset.ImageHeader) any { return h.PhysiologyTimeStamp }, ignore},
	{"image_type", func(h *dataset.ImageHeader) any { return h.ImageType }, equals},
	{"image_index", func(h *dataset.ImageHeader) any { return h.ImageIndex }, equals},
	{"image_series_index", func(h *dataset.ImageHeader) any { return h.ImageSeriesIndex }, equals},
	{"user_int", func(h *dataset.ImageHeader) any { return h.UserInt }, ignore},
	{"user_float", func(h *dataset.ImageHeader) any { return h.UserFloat }, ignore},
}

// HeaderMismatchError reports the first header field that differs from the
// reference. Series and Index identify the output image.
type HeaderMismatchError struct {
	Field  string
	Series int
	Index  string
	Out    any
	Ref    any
}

func (e *HeaderMismatchError) Error() string {
	return fmt.Sprintf("image header '%s' does not match reference (series %d, index %s) [%v != %v]",
		e.Field, e.Series, e.Index, e.Out, e.Ref)
}

// CompareHeaders checks out against ref field by field. Absent optional
// fields in the output match a reference value of zero.
func CompareHeaders(out, ref *dataset.ImageHeader) error {
	for _, rule := range headerRules {
		o, r := rule.get(out), rule.get(ref)
		if rule.match(o, r) {
			continue
		}
		index := "<nil>"
		if out.ImageIndex != nil {
			index = fmt.Sprint(*out.ImageIndex)
		}
		return &HeaderMismatchError{
			Field:  rule.field,
			Series: out.SeriesIndex(),
			Index:  index,
			Out:    deref(o),
			Ref:    deref(r),
		}
	}
	return nil
}

func equals(out, ref any) bool {
	o, r := deref(out), deref(ref)
	if cmp.Equal(o, r) {
		return true
	}
	return o == nil && r != nil && reflect.ValueOf(r).IsZero()
}

func eachApprox(out, ref any) bool {
	o, _ := out.([]float32)
	r, _ := ref.([]float32)
	if len(o) != len(r) {
		return false
	}
	for i := range r {
		if math.Abs(float64(o[i])-float64(r[i])) > approxTolerance {
			return false
		}
	}
	return true
}

func ignore(_, _ any) bool { return true }

// deref unwraps a pointer value. A nil pointer becomes a nil interface.
func deref(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer {
		return v
	}
	if rv.IsNil() {
		return nil
	}
	return rv.Elem().Interface()
}
