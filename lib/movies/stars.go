package movies

import "math"

// Stars turns a 0-10 vote average into five star slots, true for filled.
// Halves round to even, so 5.0 fills two stars and 7.0 fills four.
func Stars(vote float64) []bool {
	filled := int(math.RoundToEven(vote / 2))
	stars := make([]bool, 5)
	for i := range stars {
		stars[i] = i < filled
	}
	return stars
}
