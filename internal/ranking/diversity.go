package ranking

// DiversityGroup identifies a (collection, provider) bucket of results.
type DiversityGroup struct {
	Collection string
	Provider   string
}

// DiversityAdjustments returns a multiplier per group so over-represented groups are
// damped and under-represented ones boosted. counts maps each group to its size.
// With factor 0 every multiplier is 1.
func DiversityAdjustments(counts map[DiversityGroup]int, factor float64) map[DiversityGroup]float64 {
	out := make(map[DiversityGroup]float64, len(counts))
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return out
	}
	fair := float64(total) / float64(len(counts))
	for g, n := range counts {
		share := float64(n) / float64(total)
		if float64(n) > fair {
			out[g] = 1.0 - factor*share
		} else {
			out[g] = 1.0 + factor*(1-share)
		}
	}
	return out
}
