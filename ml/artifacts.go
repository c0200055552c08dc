package ml

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
)

// Artifacts is the portable form of a trained classifier: a JSON topology,
// the specs of every weight tensor and the tensors themselves as base64
// little-endian float32.
type Artifacts struct {
	ModelTopology  json.RawMessage `json:"modelTopology"`
	WeightSpecs    []WeightSpec    `json:"weightSpecs"`
	WeightData     string          `json:"weightData"`
	TrainingBounds *Bounds         `json:"trainingBounds,omitempty"`
}

type WeightSpec struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
	Dtype string `json:"dtype"`
}

// Size is the number of scalars the tensor holds, or -1 when a dimension is
// not positive or the product exceeds limit.
func (s WeightSpec) Size(limit int) int {
	if len(s.Shape) == 0 {
		return -1
	}
	n := 1
	for _, d := range s.Shape {
		if d <= 0 || n > limit/d {
			return -1
		}
		n *= d
	}
	return n
}

// Topology describes the model layout.
type Topology struct {
	ClassName string        `json:"class_name"`
	Layers    []LayerConfig `json:"layers,omitempty"`
	Nodes     []TreeNode    `json:"nodes,omitempty"`
	Classes   int           `json:"classes,omitempty"`
}

type LayerConfig struct {
	ClassName  string `json:"class_name"`
	Units      int    `json:"units"`
	Activation string `json:"activation"`
	InputDim   int    `json:"input_dim"`
}

func (a *Artifacts) Topology() (Topology, error) {
	var t Topology
	if len(a.ModelTopology) == 0 {
		return t, fmt.Errorf("%w: missing topology", ErrUnsupportedModel)
	}
	if err := json.Unmarshal(a.ModelTopology, &t); err != nil {
		return t, fmt.Errorf("decode topology: %w", err)
	}
	return t, nil
}

// Digest identifies an artifact by content.
func (a *Artifacts) Digest() string {
	h := sha256.New()
	h.Write(a.ModelTopology)
	h.Write([]byte{0})
	h.Write([]byte(a.WeightData))
	h.Write([]byte{0})
	for _, spec := range a.WeightSpecs {
		fmt.Fprintf(h, "%s:%v:%s;", spec.Name, spec.Shape, spec.Dtype)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Tensors decodes WeightData according to WeightSpecs, in spec order.
func (a *Artifacts) Tensors() (map[string][]float64, error) {
	raw, err := base64.StdEncoding.DecodeString(a.WeightData)
	if err != nil {
		return nil, fmt.Errorf("decode weight data: %w", err)
	}
	tensors := make(map[string][]float64, len(a.WeightSpecs))
	offset := 0
	for _, spec := range a.WeightSpecs {
		if spec.Dtype != "" && spec.Dtype != "float32" {
			return nil, fmt.Errorf("weight %s: unsupported dtype %s", spec.Name, spec.Dtype)
		}
		n := spec.Size((len(raw) - offset) / 4)
		if n < 0 {
			return nil, fmt.Errorf("%w: weight %s has shape %v for %d remaining bytes", ErrShapeMismatch, spec.Name, spec.Shape, len(raw)-offset)
		}
		end := offset + n*4
		values := make([]float64, n)
		for i := range values {
			bits := binary.LittleEndian.Uint32(raw[offset+i*4:])
			values[i] = float64(math.Float32frombits(bits))
		}
		tensors[spec.Name] = values
		offset = end
	}
	if offset != len(raw) {
		return nil, fmt.Errorf("%w: %d trailing bytes in weight data", ErrShapeMismatch, len(raw)-offset)
	}
	return tensors, nil
}

func packTensors(tensors ...[]float64) string {
	total := 0
	for _, t := range tensors {
		total += len(t)
	}
	buf := make([]byte, 0, total*4)
	for _, t := range tensors {
		for _, v := range t {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v)))
		}
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// LoadClassifier rebuilds a trained classifier from its artifacts.
func LoadClassifier(a *Artifacts) (Classifier, error) {
	if a == nil {
		return nil, ErrNotTrained
	}
	topology, err := a.Topology()
	if err != nil {
		return nil, err
	}
	switch topology.ClassName {
	case denseClassName:
		return loadDense(topology, a)
	case treeClassName:
		return loadDecisionTree(topology)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, topology.ClassName)
	}
}
