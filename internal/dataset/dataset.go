// Package dataset decodes the image records produced by the reconstruction tool.
//
// The binary data file format itself is handled by an external converter;
// this package consumes its newline-delimited JSON rendering, one record per line:
//
//	{"type": "image", "image": {"header": {...}, "dtype": "float32", "shape": [1, 1, 64, 64], "data": [...]}}
//
// Records of any other type are decoded but carry no image. Complex data is
// stored with interleaved real and imaginary parts.
package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// RecordTypeImage is the record type carrying an image.
const RecordTypeImage = "image"

// Record is one item of a data stream.
type Record struct {
	Type  string `json:"type"`
	Image *Image `json:"image,omitempty"`
}

// Image is an image header plus its pixel data.
type Image struct {
	Header ImageHeader         `json:"header"`
	DType  string              `json:"dtype"`
	Shape  []int               `json:"shape"`
	Data   []float64           `json:"data"`
	Meta   map[string][]string `json:"meta,omitempty"`
}

// ImageHeader holds the image header fields. Optional fields are pointers.
type ImageHeader struct {
	Flags                uint64    `json:"flags"`
	MeasurementUID       uint32    `json:"measurement_uid"`
	FieldOfView          []float32 `json:"field_of_view"`
	Position             []float32 `json:"position"`
	ColDir               []float32 `json:"col_dir"`
	LineDir              []float32 `json:"line_dir"`
	SliceDir             []float32 `json:"slice_dir"`
	PatientTablePosition []float32 `json:"patient_table_position"`
	Average              *uint32   `json:"average,omitempty"`
	Slice                *uint32   `json:"slice,omitempty"`
	Contrast             *uint32   `json:"contrast,omitempty"`
	Phase                *uint32   `json:"phase,omitempty"`
	Repetition           *uint32   `json:"repetition,omitempty"`
	Set                  *uint32   `json:"set,omitempty"`
	AcquisitionTimeStamp *uint32   `json:"acquisition_time_stamp,omitempty"`
	PhysiologyTimeStamp  []uint32  `json:"physiology_time_stamp"`
	ImageType            int32     `json:"image_type"`
	ImageIndex           *uint32   `json:"image_index,omitempty"`
	ImageSeriesIndex     *uint32   `json:"image_series_index,omitempty"`
	UserInt              []int32   `json:"user_int"`
	UserFloat            []float32 `json:"user_float"`
}

// SeriesIndex returns the image series index, treating an absent index as 0.
func (h *ImageHeader) SeriesIndex() int {
	if h.ImageSeriesIndex == nil {
		return 0
	}
	return int(*h.ImageSeriesIndex)
}

// IsComplex reports whether the dtype stores interleaved complex values.
func IsComplex(dtype string) bool {
	return dtype == "complex64" || dtype == "complex128"
}

// Real returns the real component of the pixel data.
func (img *Image) Real() []float64 {
	if !IsComplex(img.DType) {
		return img.Data
	}
	out := make([]float64, len(img.Data)/2)
	for i := range out {
		out[i] = img.Data[2*i]
	}
	return out
}

// Validate checks that the data length matches the declared shape.
func (img *Image) Validate() error {
	n := 1
	for _, d := range img.Shape {
		if d < 0 {
			return fmt.Errorf("negative dimension in shape %v", img.Shape)
		}
		n *= d
	}
	if IsComplex(img.DType) {
		n *= 2
	}
	if n != len(img.Data) {
		return fmt.Errorf("shape %v (%s) needs %d values, got %d", img.Shape, img.DType, n, len(img.Data))
	}
	return nil
}

// Decoder reads the records of a data file.
type Decoder interface {
	Decode(ctx context.Context, path string) ([]Record, error)
}

// ReadRecords decodes newline-delimited JSON records from r. Blank lines are skipped.
func ReadRecords(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1<<30)

	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(text, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.Type == RecordTypeImage {
			if rec.Image == nil {
				return nil, fmt.Errorf("line %d: image record without image", line)
			}
			if err := rec.Image.Validate(); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// WriteRecords writes records as newline-delimited JSON.
func WriteRecords(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// NDJSONDecoder reads files that already hold newline-delimited JSON records.
type NDJSONDecoder struct{}

// Decode implements Decoder.
func (NDJSONDecoder) Decode(_ context.Context, path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := ReadRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// CommandDecoder runs an external converter as "<Command...> <path>" and
// decodes its standard output.
type CommandDecoder struct {
	Command []string
}

// Decode implements Decoder.
func (d CommandDecoder) Decode(ctx context.Context, path string) ([]Record, error) {
	if len(d.Command) == 0 {
		return nil, errors.New("no decoder command configured")
	}

	args := append(append([]string(nil), d.Command[1:]...), path)
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.Command[0], args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("decoder %s failed on %s: %w: %s", d.Command[0], path, err, bytes.TrimSpace(stderr.Bytes()))
	}

	records, err := ReadRecords(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return records, nil
}

// Series filters records to images and groups them by image series index,
// preserving stream order within each series.
func Series(records []Record) map[int][]*Image {
	series := make(map[int][]*Image)
	for _, rec := range records {
		if rec.Type != RecordTypeImage || rec.Image == nil {
			continue
		}
		idx := rec.Image.Header.SeriesIndex()
		series[idx] = append(series[idx], rec.Image)
	}
	return series
}
