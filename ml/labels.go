package ml

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Tier labels, in output-unit order.
const (
	TierPremium = "premium"
	TierMedium  = "medium"
	TierBasic   = "basic"
)

var Tiers = []string{TierPremium, TierMedium, TierBasic}

var ErrUnknownLabel = errors.New("unknown tier label")

// TierIndex returns the output unit of a tier name, or -1.
func TierIndex(name string) int {
	for i, tier := range Tiers {
		if tier == name {
			return i
		}
	}
	return -1
}

// OneHotTargets builds the target matrix for the given tier names.
func OneHotTargets(names []string) ([][]float64, error) {
	targets := make([][]float64, len(names))
	for i, name := range names {
		idx := TierIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q at position %d", ErrUnknownLabel, name, i)
		}
		row := make([]float64, len(Tiers))
		row[idx] = 1
		targets[i] = row
	}
	return targets, nil
}

// DefaultTierTargets is the fixed premium/medium/basic assignment used when a
// training request carries no labels. It only fits a batch of exactly three.
func DefaultTierTargets(n int) ([][]float64, error) {
	if n != len(Tiers) {
		return nil, fmt.Errorf("%w: %d records, %d default labels", ErrShapeMismatch, n, len(Tiers))
	}
	return OneHotTargets(Tiers)
}

// Ranked is one class probability.
type Ranked struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Rank orders probabilities descending; ties keep unit order.
func Rank(probs []float64) []Ranked {
	ranked := make([]Ranked, len(probs))
	for i, p := range probs {
		label := fmt.Sprintf("class_%d", i)
		if i < len(Tiers) {
			label = Tiers[i]
		}
		ranked[i] = Ranked{Label: label, Probability: p}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Probability > ranked[j].Probability
	})
	return ranked
}

// FormatRanking renders one "label (xx.xx%)" line per class.
func FormatRanking(ranked []Ranked) string {
	lines := make([]string, len(ranked))
	for i, r := range ranked {
		lines[i] = fmt.Sprintf("%s (%.2f%%)", r.Label, r.Probability*100)
	}
	return strings.Join(lines, "\n")
}

func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
