package recommend

import "math"

// Context holds the normalization bounds and categorical indexes derived from
// one training payload.
type Context struct {
	Catalog []Product
	Users   []User

	MinAge, MaxAge     float64
	MinPrice, MaxPrice float64

	Colors          []string
	Categories      []string
	ColorsIndex     map[string]int
	CategoriesIndex map[string]int

	// ProductAvgAgeNorm maps a product name to the normalized mean age of the
	// users who bought it, or to the normalized mid-age when nobody did.
	ProductAvgAgeNorm map[string]float64

	// Dimensions is the width of a product feature vector:
	// age, price, one slot per category and one per color.
	Dimensions int
}

func normalize(value, min, max float64) float64 {
	div := max - min
	if div == 0 || math.IsNaN(div) {
		div = 1
	}
	return (value - min) / div
}

// bounds returns 0, 0 for an empty input.
func bounds(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	return min, max
}

// uniqueIndex returns the distinct values in first-seen order with their
// positions.
func uniqueIndex(values []string) ([]string, map[string]int) {
	index := make(map[string]int, len(values))
	unique := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := index[v]; ok {
			continue
		}
		index[v] = len(unique)
		unique = append(unique, v)
	}
	return unique, index
}

func BuildContext(catalog []Product, users []User) *Context {
	ages := make([]float64, len(users))
	for i, u := range users {
		ages[i] = u.Age
	}
	prices := make([]float64, len(catalog))
	colors := make([]string, len(catalog))
	categories := make([]string, len(catalog))
	for i, p := range catalog {
		prices[i] = p.Price
		colors[i] = p.Color
		categories[i] = p.Category
	}

	c := &Context{Catalog: catalog, Users: users}
	c.MinAge, c.MaxAge = bounds(ages)
	c.MinPrice, c.MaxPrice = bounds(prices)
	c.Colors, c.ColorsIndex = uniqueIndex(colors)
	c.Categories, c.CategoriesIndex = uniqueIndex(categories)
	c.Dimensions = 2 + len(c.Categories) + len(c.Colors)

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, u := range users {
		for _, p := range u.Purchases {
			sums[p.Name] += u.Age
			counts[p.Name]++
		}
	}

	midAge := (c.MinAge + c.MaxAge) / 2
	c.ProductAvgAgeNorm = make(map[string]float64, len(catalog))
	for _, p := range catalog {
		avg := midAge
		if n := counts[p.Name]; n > 0 {
			avg = sums[p.Name] / float64(n)
		}
		c.ProductAvgAgeNorm[p.Name] = normalize(avg, c.MinAge, c.MaxAge)
	}
	return c
}
