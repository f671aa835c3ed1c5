package embedder

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// projection is a dense layer loaded from a sentence-transformers
// 2_Dense/model.safetensors file: out = W·x (+ b when a bias tensor exists),
// identity activation.
type projection struct {
	weights []float32 // row-major [outDim, inDim]
	bias    []float32 // nil or [outDim]
	inDim   int
	outDim  int
}

type tensorMeta struct {
	Dtype       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

// loadProjection reads a safetensors file holding an F32 "linear.weight"
// tensor and an optional "linear.bias".
func loadProjection(path string) (*projection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("projection: %w", err)
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("projection: file too small: %d bytes", len(data))
	}

	// 8-byte LE header length, then a JSON header, then the tensor bytes.
	headerLen := binary.LittleEndian.Uint64(data[:8])
	if uint64(len(data)) < 8+headerLen {
		return nil, fmt.Errorf("projection: header length %d exceeds file size", headerLen)
	}
	body := data[8+headerLen:]

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerLen], &header); err != nil {
		return nil, fmt.Errorf("projection: failed to parse header: %w", err)
	}

	weights, shape, err := readTensor(header, body, "linear.weight")
	if err != nil {
		return nil, err
	}
	if weights == nil {
		return nil, fmt.Errorf("projection: tensor 'linear.weight' not found in header")
	}
	if len(shape) != 2 {
		return nil, fmt.Errorf("projection: expected 2D weight tensor, got shape %v", shape)
	}

	p := &projection{weights: weights, outDim: shape[0], inDim: shape[1]}

	bias, bshape, err := readTensor(header, body, "linear.bias")
	if err != nil {
		return nil, err
	}
	if bias != nil {
		if len(bshape) != 1 || bshape[0] != p.outDim {
			return nil, fmt.Errorf("projection: bias shape %v does not match output dim %d", bshape, p.outDim)
		}
		p.bias = bias
	}
	return p, nil
}

// readTensor decodes the named F32 tensor. A missing tensor returns nil
// without error.
func readTensor(header map[string]json.RawMessage, body []byte, name string) ([]float32, []int, error) {
	raw, ok := header[name]
	if !ok {
		return nil, nil, nil
	}
	var meta tensorMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, nil, fmt.Errorf("projection: failed to parse %s metadata: %w", name, err)
	}
	if meta.Dtype != "F32" {
		return nil, nil, fmt.Errorf("projection: %s: expected dtype F32, got %s", name, meta.Dtype)
	}

	n := 1
	for _, d := range meta.Shape {
		n *= d
	}
	start, end := meta.DataOffsets[0], meta.DataOffsets[1]
	if end-start != n*4 {
		return nil, nil, fmt.Errorf("projection: %s: data size %d doesn't match shape %v", name, end-start, meta.Shape)
	}
	if start < 0 || end > len(body) {
		return nil, nil, fmt.Errorf("projection: %s: data range [%d:%d] exceeds file size", name, start, end)
	}

	out := make([]float32, n)
	for i := range out {
		off := start + i*4
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[off : off+4]))
	}
	return out, meta.Shape, nil
}

// apply projects a single vector from inDim to outDim.
func (p *projection) apply(vec []float32) []float32 {
	out := make([]float32, p.outDim)
	for i := 0; i < p.outDim; i++ {
		row := p.weights[i*p.inDim : (i+1)*p.inDim]
		var sum float32
		for j, w := range row {
			sum += w * vec[j]
		}
		if p.bias != nil {
			sum += p.bias[i]
		}
		out[i] = sum
	}
	return out
}
