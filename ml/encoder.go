package ml

import (
	"math"
	"math/big"
)

// Record is one labeled subject: a numeric attribute and two categorical
// attributes. ID is for display only.
type Record struct {
	ID        string
	Numeric   float64
	CategoryA string
	CategoryB string
}

// FeatureVector is [normalized, ...oneHot(A), ...oneHot(B)].
type FeatureVector []float64

// Bounds are the numeric min/max observed over a batch.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Divisor is Max-Min, falling back to 1 when the range is zero or NaN.
func (b Bounds) Divisor() float64 {
	d := b.Max - b.Min
	if d == 0 || math.IsNaN(d) {
		return 1
	}
	return d
}

// Normalize scales value into the bounds and rounds to two decimals.
func (b Bounds) Normalize(value float64) float64 {
	return roundTo(((value - b.Min) / b.Divisor()), 2)
}

// Encoder maps records to fixed-width feature vectors. It holds no state
// besides the two vocabularies, so one Encoder serves training and inference.
//
// Bounds are taken from the batch being encoded. A single inference record
// therefore always normalizes to 0; callers that need training-time scaling
// must keep the Bounds from Fit and use EncodeWithBounds.
type Encoder struct {
	a *Vocabulary
	b *Vocabulary
}

func NewEncoder(a, b *Vocabulary) *Encoder {
	return &Encoder{a: a, b: b}
}

// DefaultEncoder uses the color and location vocabularies.
func DefaultEncoder() *Encoder {
	return NewEncoder(Colors, Locations)
}

// EncoderFor builds an encoder from configured vocabulary values.
func EncoderFor(valuesA, valuesB []string) (*Encoder, error) {
	a, err := NewVocabulary(valuesA...)
	if err != nil {
		return nil, err
	}
	b, err := NewVocabulary(valuesB...)
	if err != nil {
		return nil, err
	}
	return NewEncoder(a, b), nil
}

func (e *Encoder) VocabularyA() *Vocabulary { return e.a }
func (e *Encoder) VocabularyB() *Vocabulary { return e.b }

// Width is the length of every vector produced by the encoder.
func (e *Encoder) Width() int {
	return 1 + e.a.Len() + e.b.Len()
}

// Fit returns the numeric bounds of records. NaN values propagate into both
// bounds; an empty batch yields zero bounds.
func (e *Encoder) Fit(records []Record) Bounds {
	if len(records) == 0 {
		return Bounds{}
	}
	b := Bounds{Min: records[0].Numeric, Max: records[0].Numeric}
	for _, r := range records[1:] {
		b.Min = math.Min(b.Min, r.Numeric)
		b.Max = math.Max(b.Max, r.Numeric)
	}
	return b
}

// Encode scales by the batch's own bounds.
func (e *Encoder) Encode(records []Record) []FeatureVector {
	return e.EncodeWithBounds(records, e.Fit(records))
}

// EncodeWithBounds encodes records against externally supplied bounds.
// Values outside the bounds fall outside [0, 1].
func (e *Encoder) EncodeWithBounds(records []Record, bounds Bounds) []FeatureVector {
	vectors := make([]FeatureVector, len(records))
	for i, r := range records {
		vec := make(FeatureVector, 0, e.Width())
		vec = append(vec, bounds.Normalize(r.Numeric))
		vec = e.a.OneHot(vec, r.CategoryA)
		vec = e.b.OneHot(vec, r.CategoryB)
		vectors[i] = vec
	}
	return vectors
}

// Matrix flattens vectors into the [][]float64 shape the classifiers take.
func Matrix(vectors []FeatureVector) [][]float64 {
	rows := make([][]float64, len(vectors))
	for i, v := range vectors {
		rows[i] = v
	}
	return rows
}

// roundTo rounds the exact binary value of value to places decimals, ties
// away from zero, as Number.toFixed does: 3/40 is 0.07499... and gives 0.07.
func roundTo(value float64, places int) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil)
	r := new(big.Rat).SetFloat64(math.Abs(value))
	r.Mul(r, new(big.Rat).SetInt(scale))

	n, rem := new(big.Int).QuoRem(r.Num(), r.Denom(), new(big.Int))
	if rem.Lsh(rem, 1).Cmp(r.Denom()) >= 0 {
		n.Add(n, big.NewInt(1))
	}
	out, _ := new(big.Rat).SetFrac(n, scale).Float64()
	return math.Copysign(out, value)
}
