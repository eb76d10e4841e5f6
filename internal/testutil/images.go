package testutil

import (
	"bytes"
	"testing"

	"github.com/roopchansinghv/pingvin/internal/dataset"
)

// Image returns a float32 image record with the given series and index and
// a one-dimensional shape covering data.
func Image(series, index uint32, data ...float64) dataset.Record {
	return dataset.Record{
		Type: dataset.RecordTypeImage,
		Image: &dataset.Image{
			Header: dataset.ImageHeader{
				ImageSeriesIndex: &series,
				ImageIndex:       &index,
				FieldOfView:      []float32{256, 256, 5},
				Position:         []float32{0, 0, 0},
			},
			DType: "float32",
			Shape: []int{len(data)},
			Data:  data,
		},
	}
}

// NDJSON renders records as newline-delimited JSON.
func NDJSON(t *testing.T, records ...dataset.Record) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := dataset.WriteRecords(&buf, records); err != nil {
		t.Fatalf("encoding records: %v", err)
	}
	return buf.Bytes()
}

// Scaled returns a copy of rec whose image data is multiplied by factor.
func Scaled(rec dataset.Record, factor float64) dataset.Record {
	img := *rec.Image
	img.Data = make([]float64, len(rec.Image.Data))
	for i, v := range rec.Image.Data {
		img.Data[i] = v * factor
	}
	rec.Image = &img
	return rec
}
