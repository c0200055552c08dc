package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const (
	denseClassName = "Sequential"
	adamBeta1      = 0.9
	adamBeta2      = 0.999
	adamEpsilon    = 1e-7
	lossEpsilon    = 1e-7
)

// DenseOptions configures training. Zero fields take the defaults of
// DefaultDenseOptions.
type DenseOptions struct {
	HiddenUnits  int
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         int64
	MaxDepth     int
	OnEpochEnd   func(EpochLog)
}

func DefaultDenseOptions() DenseOptions {
	return DenseOptions{
		HiddenUnits:  80,
		Epochs:       100,
		BatchSize:    32,
		LearningRate: 0.001,
		Seed:         42,
		MaxDepth:     3,
	}
}

func (o DenseOptions) withDefaults() DenseOptions {
	def := DefaultDenseOptions()
	if o.HiddenUnits <= 0 {
		o.HiddenUnits = def.HiddenUnits
	}
	if o.Epochs <= 0 {
		o.Epochs = def.Epochs
	}
	if o.BatchSize <= 0 {
		o.BatchSize = def.BatchSize
	}
	if o.LearningRate <= 0 {
		o.LearningRate = def.LearningRate
	}
	if o.Seed == 0 {
		o.Seed = def.Seed
	}
	return o
}

// DenseClassifier is a two-layer perceptron: ReLU hidden layer, softmax
// output, trained with Adam on categorical cross-entropy. Predict is safe for
// concurrent use once training has finished.
type DenseClassifier struct {
	opts    DenseOptions
	inputs  int
	hidden  int
	outputs int

	w1 *mat.Dense
	b1 []float64
	w2 *mat.Dense
	b2 []float64

	trained bool
}

func NewDenseClassifier(inputs, outputs int, opts DenseOptions) *DenseClassifier {
	opts = opts.withDefaults()
	c := &DenseClassifier{
		opts:    opts,
		inputs:  inputs,
		hidden:  opts.HiddenUnits,
		outputs: outputs,
		b1:      make([]float64, opts.HiddenUnits),
		b2:      make([]float64, outputs),
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	c.w1 = glorotUniform(rng, inputs, c.hidden)
	c.w2 = glorotUniform(rng, c.hidden, outputs)
	return c
}

func glorotUniform(rng *rand.Rand, fanIn, fanOut int) *mat.Dense {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	data := make([]float64, fanIn*fanOut)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return mat.NewDense(fanIn, fanOut, data)
}

func (c *DenseClassifier) Fit(features [][]float64, targets [][]float64) (TrainingSummary, error) {
	if err := checkDataset(features, targets); err != nil {
		return TrainingSummary{}, err
	}
	if len(features[0]) != c.inputs {
		return TrainingSummary{}, fmt.Errorf("%w: expected %d inputs, got %d", ErrShapeMismatch, c.inputs, len(features[0]))
	}
	if len(targets[0]) != c.outputs {
		return TrainingSummary{}, fmt.Errorf("%w: expected %d classes, got %d", ErrShapeMismatch, c.outputs, len(targets[0]))
	}

	rng := rand.New(rand.NewSource(c.opts.Seed + 1))
	params := []*adamParam{
		newAdamParam(c.w1.RawMatrix().Data),
		newAdamParam(c.b1),
		newAdamParam(c.w2.RawMatrix().Data),
		newAdamParam(c.b2),
	}

	summary := TrainingSummary{ModelType: ModelTypeDense, DataPoints: len(features)}
	step := 0
	for epoch := 1; epoch <= c.opts.Epochs; epoch++ {
		order := rng.Perm(len(features))
		var lossSum, correct float64
		for start := 0; start < len(order); start += c.opts.BatchSize {
			end := start + c.opts.BatchSize
			if end > len(order) {
				end = len(order)
			}
			x, y := batch(features, targets, order[start:end])
			step++
			loss, hits, grads := c.backward(x, y)
			for i, p := range params {
				p.update(grads[i], c.opts.LearningRate, step)
			}
			lossSum += loss * float64(end-start)
			correct += hits
		}
		entry := EpochLog{
			Epoch:    epoch,
			Loss:     lossSum / float64(len(features)),
			Accuracy: correct / float64(len(features)),
		}
		summary.Epochs = epoch
		summary.Loss = entry.Loss
		summary.Accuracy = entry.Accuracy
		if c.opts.OnEpochEnd != nil {
			c.opts.OnEpochEnd(entry)
		}
	}
	c.trained = true
	return summary, nil
}

func (c *DenseClassifier) Predict(features []float64) ([]float64, error) {
	if !c.trained {
		return nil, ErrNotTrained
	}
	if len(features) != c.inputs {
		return nil, fmt.Errorf("%w: expected %d inputs, got %d", ErrShapeMismatch, c.inputs, len(features))
	}
	x := mat.NewDense(1, c.inputs, append([]float64(nil), features...))
	_, probs := c.forward(x)
	return mat.Row(nil, 0, probs), nil
}

func (c *DenseClassifier) forward(x *mat.Dense) (hidden, probs *mat.Dense) {
	n, _ := x.Dims()
	hidden = mat.NewDense(n, c.hidden, nil)
	hidden.Mul(x, c.w1)
	hidden.Apply(func(_, j int, v float64) float64 {
		return math.Max(0, v+c.b1[j])
	}, hidden)

	probs = mat.NewDense(n, c.outputs, nil)
	probs.Mul(hidden, c.w2)
	for i := 0; i < n; i++ {
		row := probs.RawRowView(i)
		for j := range row {
			row[j] += c.b2[j]
		}
		softmax(row)
	}
	return hidden, probs
}

// backward returns the batch loss, the number of correct predictions and the
// gradients of w1, b1, w2, b2 in that order.
func (c *DenseClassifier) backward(x, y *mat.Dense) (float64, float64, [][]float64) {
	n, _ := x.Dims()
	hidden, probs := c.forward(x)

	var loss, hits float64
	delta := mat.NewDense(n, c.outputs, nil)
	for i := 0; i < n; i++ {
		p := probs.RawRowView(i)
		t := y.RawRowView(i)
		d := delta.RawRowView(i)
		for j := range p {
			if t[j] > 0 {
				loss -= t[j] * math.Log(math.Min(math.Max(p[j], lossEpsilon), 1-lossEpsilon))
			}
			d[j] = (p[j] - t[j]) / float64(n)
		}
		if argmax(p) == argmax(t) {
			hits++
		}
	}
	loss /= float64(n)

	gw2 := mat.NewDense(c.hidden, c.outputs, nil)
	gw2.Mul(hidden.T(), delta)
	gb2 := columnSums(delta)

	dHidden := mat.NewDense(n, c.hidden, nil)
	dHidden.Mul(delta, c.w2.T())
	dHidden.Apply(func(i, j int, v float64) float64 {
		if hidden.At(i, j) <= 0 {
			return 0
		}
		return v
	}, dHidden)

	gw1 := mat.NewDense(c.inputs, c.hidden, nil)
	gw1.Mul(x.T(), dHidden)
	gb1 := columnSums(dHidden)

	return loss, hits, [][]float64{gw1.RawMatrix().Data, gb1, gw2.RawMatrix().Data, gb2}
}

func (c *DenseClassifier) Artifacts() (*Artifacts, error) {
	if !c.trained {
		return nil, ErrNotTrained
	}
	topology, err := json.Marshal(Topology{
		ClassName: denseClassName,
		Layers: []LayerConfig{
			{ClassName: "Dense", Units: c.hidden, Activation: "relu", InputDim: c.inputs},
			{ClassName: "Dense", Units: c.outputs, Activation: "softmax", InputDim: c.hidden},
		},
		Classes: c.outputs,
	})
	if err != nil {
		return nil, err
	}
	return &Artifacts{
		ModelTopology: topology,
		WeightSpecs: []WeightSpec{
			{Name: "dense_1/kernel", Shape: []int{c.inputs, c.hidden}, Dtype: "float32"},
			{Name: "dense_1/bias", Shape: []int{c.hidden}, Dtype: "float32"},
			{Name: "dense_2/kernel", Shape: []int{c.hidden, c.outputs}, Dtype: "float32"},
			{Name: "dense_2/bias", Shape: []int{c.outputs}, Dtype: "float32"},
		},
		WeightData: packTensors(c.w1.RawMatrix().Data, c.b1, c.w2.RawMatrix().Data, c.b2),
	}, nil
}

func loadDense(t Topology, a *Artifacts) (*DenseClassifier, error) {
	if len(t.Layers) != 2 {
		return nil, fmt.Errorf("%w: expected 2 dense layers, got %d", ErrUnsupportedModel, len(t.Layers))
	}
	inputs, hidden, outputs := t.Layers[0].InputDim, t.Layers[0].Units, t.Layers[1].Units
	if inputs <= 0 || hidden <= 0 || outputs <= 0 {
		return nil, fmt.Errorf("%w: layer sizes %d, %d, %d must be positive", ErrShapeMismatch, inputs, hidden, outputs)
	}
	if t.Layers[1].InputDim != hidden {
		return nil, fmt.Errorf("%w: layer widths do not chain", ErrShapeMismatch)
	}
	tensors, err := a.Tensors()
	if err != nil {
		return nil, err
	}
	want := map[string]int{
		"dense_1/kernel": inputs * hidden,
		"dense_1/bias":   hidden,
		"dense_2/kernel": hidden * outputs,
		"dense_2/bias":   outputs,
	}
	for name, size := range want {
		if len(tensors[name]) != size {
			return nil, fmt.Errorf("%w: %s has %d values, want %d", ErrShapeMismatch, name, len(tensors[name]), size)
		}
	}
	return &DenseClassifier{
		opts:    DenseOptions{HiddenUnits: hidden}.withDefaults(),
		inputs:  inputs,
		hidden:  hidden,
		outputs: outputs,
		w1:      mat.NewDense(inputs, hidden, tensors["dense_1/kernel"]),
		b1:      tensors["dense_1/bias"],
		w2:      mat.NewDense(hidden, outputs, tensors["dense_2/kernel"]),
		b2:      tensors["dense_2/bias"],
		trained: true,
	}, nil
}

func batch(features, targets [][]float64, idx []int) (*mat.Dense, *mat.Dense) {
	x := mat.NewDense(len(idx), len(features[0]), nil)
	y := mat.NewDense(len(idx), len(targets[0]), nil)
	for row, i := range idx {
		x.SetRow(row, features[i])
		y.SetRow(row, targets[i])
	}
	return x, y
}

func columnSums(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	sums := make([]float64, cols)
	for i := 0; i < rows; i++ {
		for j, v := range m.RawRowView(i) {
			sums[j] += v
		}
	}
	return sums
}

func softmax(row []float64) {
	peak := math.Inf(-1)
	for _, v := range row {
		peak = math.Max(peak, v)
	}
	var sum float64
	for j, v := range row {
		row[j] = math.Exp(v - peak)
		sum += row[j]
	}
	for j := range row {
		row[j] /= sum
	}
}

type adamParam struct {
	data []float64
	m    []float64
	v    []float64
}

func newAdamParam(data []float64) *adamParam {
	return &adamParam{data: data, m: make([]float64, len(data)), v: make([]float64, len(data))}
}

func (p *adamParam) update(grad []float64, lr float64, step int) {
	c1 := 1 - math.Pow(adamBeta1, float64(step))
	c2 := 1 - math.Pow(adamBeta2, float64(step))
	for i, g := range grad {
		p.m[i] = adamBeta1*p.m[i] + (1-adamBeta1)*g
		p.v[i] = adamBeta2*p.v[i] + (1-adamBeta2)*g*g
		p.data[i] -= lr * (p.m[i] / c1) / (math.Sqrt(p.v[i]/c2) + adamEpsilon)
	}
}
