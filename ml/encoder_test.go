package ml

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func people() []Record {
	return []Record{
		{ID: "Erick", Numeric: 30, CategoryA: "azul", CategoryB: "São Paulo"},
		{ID: "Ana", Numeric: 25, CategoryA: "vermelho", CategoryB: "Rio"},
		{ID: "Carlos", Numeric: 40, CategoryA: "verde", CategoryB: "Curitiba"},
	}
}

func TestEncodePeopleScenario(t *testing.T) {
	got := DefaultEncoder().Encode(people())
	want := []FeatureVector{
		{0.33, 1, 0, 0, 1, 0, 0},
		{0, 0, 1, 0, 0, 1, 0},
		{1, 0, 0, 1, 0, 0, 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected encoding:\n got %v\nwant %v", got, want)
	}
}

func TestEncodeEmpty(t *testing.T) {
	got := DefaultEncoder().Encode(nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", got)
	}
}

func TestEncodeShape(t *testing.T) {
	enc := DefaultEncoder()
	if enc.Width() != 7 {
		t.Fatalf("expected width 7, got %d", enc.Width())
	}
	records := append(people(), Record{ID: "x", Numeric: 99, CategoryA: "roxo", CategoryB: "Recife"})
	vectors := enc.Encode(records)
	if len(vectors) != len(records) {
		t.Fatalf("expected %d vectors, got %d", len(records), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != enc.Width() {
			t.Fatalf("vector %d has length %d", i, len(v))
		}
		if v[0] < 0 || v[0] > 1 {
			t.Fatalf("vector %d numeric component %f out of [0,1]", i, v[0])
		}
	}
}

func TestEncodeDegenerateBatch(t *testing.T) {
	enc := DefaultEncoder()
	for _, value := range []float64{0, 17, 30, 1e9} {
		records := []Record{
			{Numeric: value, CategoryA: "azul", CategoryB: "Rio"},
			{Numeric: value, CategoryA: "verde", CategoryB: "Rio"},
		}
		for i, v := range enc.Encode(records) {
			if v[0] != 0 {
				t.Fatalf("value %v record %d: expected 0, got %v", value, i, v[0])
			}
		}
	}

	single := enc.Encode([]Record{{Numeric: 55, CategoryA: "azul", CategoryB: "Rio"}})
	if single[0][0] != 0 {
		t.Fatalf("single record should normalize to 0, got %v", single[0][0])
	}
}

func TestEncodeTwoRecordBounds(t *testing.T) {
	vectors := DefaultEncoder().Encode([]Record{
		{Numeric: 20, CategoryA: "azul", CategoryB: "Rio"},
		{Numeric: 40, CategoryA: "azul", CategoryB: "Rio"},
	})
	if vectors[0][0] != 0 || vectors[1][0] != 1 {
		t.Fatalf("expected 0.00 and 1.00, got %v and %v", vectors[0][0], vectors[1][0])
	}
}

func TestEncodeOneHotBlocks(t *testing.T) {
	enc := DefaultEncoder()
	for i, color := range Colors.Values() {
		v := enc.Encode([]Record{{CategoryA: color, CategoryB: "nowhere"}})[0]
		block := v[1 : 1+Colors.Len()]
		for j, bit := range block {
			want := 0.0
			if j == i {
				want = 1
			}
			if bit != want {
				t.Fatalf("color %q: position %d = %v, want %v", color, j, bit, want)
			}
		}
		for j, bit := range v[1+Colors.Len():] {
			if bit != 0 {
				t.Fatalf("unknown location should encode to zeros, position %d = %v", j, bit)
			}
		}
	}
}

func TestEncodeIsCaseSensitive(t *testing.T) {
	v := DefaultEncoder().Encode([]Record{{CategoryA: "Azul", CategoryB: "rio"}})[0]
	for i, bit := range v[1:] {
		if bit != 0 {
			t.Fatalf("expected exact match only, position %d = %v", i+1, bit)
		}
	}
}

func TestEncodeNaNPropagates(t *testing.T) {
	vectors := DefaultEncoder().Encode([]Record{
		{Numeric: math.NaN(), CategoryA: "azul"},
		{Numeric: 10, CategoryA: "verde"},
	})
	for i, v := range vectors {
		if !math.IsNaN(v[0]) {
			t.Fatalf("record %d: expected NaN, got %v", i, v[0])
		}
	}
	if vectors[0][1] != 1 || vectors[1][3] != 1 {
		t.Fatalf("categorical blocks should be unaffected by NaN: %v", vectors)
	}
}

func TestEncodeWithTrainingBounds(t *testing.T) {
	enc := DefaultEncoder()
	bounds := enc.Fit(people())
	if bounds.Min != 25 || bounds.Max != 40 || bounds.Divisor() != 15 {
		t.Fatalf("unexpected bounds %+v", bounds)
	}
	v := enc.EncodeWithBounds([]Record{{Numeric: 30, CategoryA: "azul", CategoryB: "São Paulo"}}, bounds)[0]
	if v[0] != 0.33 {
		t.Fatalf("expected 0.33 with training bounds, got %v", v[0])
	}
	outside := enc.EncodeWithBounds([]Record{{Numeric: 55}}, bounds)[0]
	if outside[0] != 2 {
		t.Fatalf("expected 2 for value beyond training max, got %v", outside[0])
	}
}

func TestEncodeDoesNotAliasVectors(t *testing.T) {
	enc := DefaultEncoder()
	vectors := enc.Encode(people())
	vectors[0][0] = 42
	if vectors[1][0] == 42 || vectors[2][0] == 42 {
		t.Fatal("vectors share backing storage")
	}
}

func TestNewVocabulary(t *testing.T) {
	if _, err := NewVocabulary(); !errors.Is(err, ErrEmptyVocabulary) {
		t.Fatalf("expected ErrEmptyVocabulary, got %v", err)
	}
	if _, err := NewVocabulary("a", "b", "a"); !errors.Is(err, ErrDuplicateVocabEntry) {
		t.Fatalf("expected ErrDuplicateVocabEntry, got %v", err)
	}
	v, err := NewVocabulary("x", "y")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.IndexOf("y") != 1 || v.IndexOf("z") != -1 || !v.Contains("x") {
		t.Fatalf("unexpected lookups on %v", v.Values())
	}
}

func TestEncoderFor(t *testing.T) {
	enc, err := EncoderFor([]string{"azul", "verde"}, []string{"Rio"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if enc.Width() != 4 {
		t.Fatalf("expected width 4, got %d", enc.Width())
	}
	if _, err := EncoderFor([]string{"azul"}, nil); !errors.Is(err, ErrEmptyVocabulary) {
		t.Fatalf("expected ErrEmptyVocabulary, got %v", err)
	}
}

func TestEncodeRoundsExactValue(t *testing.T) {
	ages := []float64{20, 23, 27, 59, 60}
	records := make([]Record, len(ages))
	for i, age := range ages {
		records[i] = Record{Numeric: age, CategoryA: "azul", CategoryB: "Rio"}
	}
	want := []float64{0, 0.07, 0.17, 0.97, 1}
	for i, v := range DefaultEncoder().Encode(records) {
		if v[0] != want[i] {
			t.Errorf("age %v: got %v want %v", ages[i], v[0], want[i])
		}
	}
}

func TestRoundTo(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.0 / 3, 0.33},
		{2.0 / 3, 0.67},
		{0.125, 0.13},
		{0.5, 0.5},
		{-0.125, -0.13},
		{3.0 / 40, 0.07},
		{7.0 / 40, 0.17},
		{39.0 / 40, 0.97},
		{1, 1},
		{0, 0},
	}
	for _, tt := range tests {
		if got := roundTo(tt.in, 2); got != tt.want {
			t.Errorf("roundTo(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
