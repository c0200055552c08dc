package ml

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyVocabulary     = errors.New("vocabulary is empty")
	ErrDuplicateVocabEntry = errors.New("duplicate vocabulary entry")
)

// Vocabulary is a fixed, ordered set of categorical values. The lookup table
// is built once; a Vocabulary is immutable and safe for concurrent use.
type Vocabulary struct {
	values []string
	index  map[string]int
}

func NewVocabulary(values ...string) (*Vocabulary, error) {
	if len(values) == 0 {
		return nil, ErrEmptyVocabulary
	}
	v := &Vocabulary{
		values: append([]string(nil), values...),
		index:  make(map[string]int, len(values)),
	}
	for i, value := range values {
		if _, exists := v.index[value]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateVocabEntry, value)
		}
		v.index[value] = i
	}
	return v, nil
}

// MustVocabulary is NewVocabulary for package-level constants.
func MustVocabulary(values ...string) *Vocabulary {
	v, err := NewVocabulary(values...)
	if err != nil {
		panic(err)
	}
	return v
}

func (v *Vocabulary) Len() int {
	return len(v.values)
}

func (v *Vocabulary) Values() []string {
	return append([]string(nil), v.values...)
}

// IndexOf returns the position of value, or -1 when it is not a member.
func (v *Vocabulary) IndexOf(value string) int {
	if i, ok := v.index[value]; ok {
		return i
	}
	return -1
}

func (v *Vocabulary) Contains(value string) bool {
	_, ok := v.index[value]
	return ok
}

// OneHot appends the indicator block for value to dst. Unknown values
// produce an all-zero block.
func (v *Vocabulary) OneHot(dst []float64, value string) []float64 {
	hit := v.IndexOf(value)
	for i := range v.values {
		if i == hit {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	}
	return dst
}

// Default vocabularies of the people classifier demo.
var (
	Colors    = MustVocabulary("azul", "vermelho", "verde")
	Locations = MustVocabulary("São Paulo", "Rio", "Curitiba")
)
