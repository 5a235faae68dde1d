package checkpoints

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/chges100/AstroNoiseNet/nn"
)

// Wire layout. A weights file is a sequence of tensor messages, each a
// length-delimited record at field 1. Inside a tensor message:
//
//	field 1 (bytes)    parameter name
//	field 2 (packed)   shape as varints
//	field 3 (bytes)    float32 data, little-endian fixed32
//
// A history file is a sequence of series messages at field 1, each with
// the series name at field 1 and packed fixed64 values at field 2.
const (
	fieldRecord = 1

	fieldTensorName  = 1
	fieldTensorShape = 2
	fieldTensorData  = 3

	fieldSeriesName   = 1
	fieldSeriesValues = 2
)

// SaveWeights writes all parameter tensors to path. The write goes
// through a temporary file in the same directory so an interrupted save
// never clobbers an existing checkpoint.
func SaveWeights(path string, params []*nn.Param) error {
	var buf []byte
	for _, p := range params {
		buf = protowire.AppendTag(buf, fieldRecord, protowire.BytesType)
		buf = protowire.AppendBytes(buf, encodeTensor(p))
	}
	return writeAtomic(path, buf)
}

// LoadWeights reads a weights file and copies each stored tensor into
// the parameter with the matching name. Every parameter in params must
// be present in the file with an identical shape.
func LoadWeights(path string, params []*nn.Param) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read weights: %w", err)
	}

	stored := make(map[string]*nn.Param)
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return fmt.Errorf("weights file %s: malformed tag", path)
		}
		raw = raw[n:]
		if num != fieldRecord || typ != protowire.BytesType {
			return fmt.Errorf("weights file %s: unexpected field %d", path, num)
		}
		msg, n := protowire.ConsumeBytes(raw)
		if n < 0 {
			return fmt.Errorf("weights file %s: truncated record", path)
		}
		raw = raw[n:]

		p, err := decodeTensor(msg)
		if err != nil {
			return fmt.Errorf("weights file %s: %w", path, err)
		}
		stored[p.Name] = p
	}

	for _, p := range params {
		src, ok := stored[p.Name]
		if !ok {
			return fmt.Errorf("weights file %s: missing tensor %q", path, p.Name)
		}
		if !shapeEqual(src.Shape, p.Shape) {
			return fmt.Errorf("weights file %s: tensor %q has shape %v, want %v",
				path, p.Name, src.Shape, p.Shape)
		}
		copy(p.Data, src.Data)
	}
	return nil
}

// SaveHistory writes loss/metric series to path.
func SaveHistory(path string, history map[string][]float64) error {
	var buf []byte
	for name, values := range history {
		buf = protowire.AppendTag(buf, fieldRecord, protowire.BytesType)
		buf = protowire.AppendBytes(buf, encodeSeries(name, values))
	}
	return writeAtomic(path, buf)
}

// LoadHistory reads a history file written by SaveHistory.
func LoadHistory(path string) (map[string][]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	history := make(map[string][]float64)
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return nil, fmt.Errorf("history file %s: malformed tag", path)
		}
		raw = raw[n:]
		if num != fieldRecord || typ != protowire.BytesType {
			return nil, fmt.Errorf("history file %s: unexpected field %d", path, num)
		}
		msg, n := protowire.ConsumeBytes(raw)
		if n < 0 {
			return nil, fmt.Errorf("history file %s: truncated record", path)
		}
		raw = raw[n:]

		name, values, err := decodeSeries(msg)
		if err != nil {
			return nil, fmt.Errorf("history file %s: %w", path, err)
		}
		history[name] = values
	}
	return history, nil
}

func encodeTensor(p *nn.Param) []byte {
	var msg []byte
	msg = protowire.AppendTag(msg, fieldTensorName, protowire.BytesType)
	msg = protowire.AppendString(msg, p.Name)

	var shape []byte
	for _, d := range p.Shape {
		shape = protowire.AppendVarint(shape, uint64(d))
	}
	msg = protowire.AppendTag(msg, fieldTensorShape, protowire.BytesType)
	msg = protowire.AppendBytes(msg, shape)

	data := make([]byte, 0, 4*len(p.Data))
	for _, v := range p.Data {
		data = protowire.AppendFixed32(data, math.Float32bits(v))
	}
	msg = protowire.AppendTag(msg, fieldTensorData, protowire.BytesType)
	msg = protowire.AppendBytes(msg, data)
	return msg
}

func decodeTensor(msg []byte) (*nn.Param, error) {
	p := &nn.Param{}
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return nil, fmt.Errorf("malformed tensor tag")
		}
		msg = msg[n:]
		if typ != protowire.BytesType {
			return nil, fmt.Errorf("tensor field %d: unexpected wire type %d", num, typ)
		}
		body, n := protowire.ConsumeBytes(msg)
		if n < 0 {
			return nil, fmt.Errorf("tensor field %d: truncated", num)
		}
		msg = msg[n:]

		switch num {
		case fieldTensorName:
			p.Name = string(body)
		case fieldTensorShape:
			for len(body) > 0 {
				d, n := protowire.ConsumeVarint(body)
				if n < 0 {
					return nil, fmt.Errorf("malformed shape varint")
				}
				body = body[n:]
				p.Shape = append(p.Shape, int(d))
			}
		case fieldTensorData:
			if len(body)%4 != 0 {
				return nil, fmt.Errorf("tensor data length %d not a multiple of 4", len(body))
			}
			p.Data = make([]float32, 0, len(body)/4)
			for len(body) > 0 {
				bits, n := protowire.ConsumeFixed32(body)
				if n < 0 {
					return nil, fmt.Errorf("malformed tensor data")
				}
				body = body[n:]
				p.Data = append(p.Data, math.Float32frombits(bits))
			}
		}
	}
	if p.Name == "" {
		return nil, fmt.Errorf("tensor record without a name")
	}
	return p, nil
}

func encodeSeries(name string, values []float64) []byte {
	var msg []byte
	msg = protowire.AppendTag(msg, fieldSeriesName, protowire.BytesType)
	msg = protowire.AppendString(msg, name)

	data := make([]byte, 0, 8*len(values))
	for _, v := range values {
		data = protowire.AppendFixed64(data, math.Float64bits(v))
	}
	msg = protowire.AppendTag(msg, fieldSeriesValues, protowire.BytesType)
	msg = protowire.AppendBytes(msg, data)
	return msg
}

func decodeSeries(msg []byte) (string, []float64, error) {
	var name string
	var values []float64
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return "", nil, fmt.Errorf("malformed series tag")
		}
		msg = msg[n:]
		if typ != protowire.BytesType {
			return "", nil, fmt.Errorf("series field %d: unexpected wire type %d", num, typ)
		}
		body, n := protowire.ConsumeBytes(msg)
		if n < 0 {
			return "", nil, fmt.Errorf("series field %d: truncated", num)
		}
		msg = msg[n:]

		switch num {
		case fieldSeriesName:
			name = string(body)
		case fieldSeriesValues:
			values = make([]float64, 0, len(body)/8)
			for len(body) > 0 {
				bits, n := protowire.ConsumeFixed64(body)
				if n < 0 {
					return "", nil, fmt.Errorf("malformed series data")
				}
				body = body[n:]
				values = append(values, math.Float64frombits(bits))
			}
		}
	}
	if name == "" {
		return "", nil, fmt.Errorf("series record without a name")
	}
	return name, values, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
