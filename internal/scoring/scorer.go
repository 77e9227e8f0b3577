package scoring

import (
	"math"
	"strings"

	"github.com/nestmatch/engine/internal/db"
)

// NeutralPercentage is returned when no factor has data on both sides,
// including when the identity has no preferences at all. Browsing is never
// blocked on incomplete configuration.
const NeutralPercentage = 50

// ReasonNoPreferences is attached to every candidate when the identity has
// not configured preferences yet.
const ReasonNoPreferences = "No preferences set"

// Weights is the factor weight table. Product-configurable, not an
// invariant of the algorithm.
type Weights struct {
	Budget  float64
	Tags    float64
	Pets    float64
	Smoking float64
}

// DefaultWeights returns the default offerer-scoring-a-seeker table.
func DefaultWeights() Weights {
	return Weights{Budget: 30, Tags: 25, Pets: 15, Smoking: 15}
}

// Result is the outcome of scoring one candidate against one preference set.
type Result struct {
	Percentage   int
	Matched      []string
	Incompatible []string
}

// Score computes the weighted compatibility between preferences and a
// candidate.
//
// Behavior:
//   - Each factor contributes weight points to a max-score accumulator only
//     when both sides declare the relevant attribute; absent data skips the
//     factor entirely and is never penalized.
//   - Tag overlap contributes proportionally (|intersection| / |prefTags|).
//     Its reason string is emitted only when the contribution exceeds half
//     the factor weight.
//   - Policy factors (pets, smoking) are compatible iff the offerer allows
//     the thing OR the candidate does not positively require it.
//   - With no scorable factor the result is the neutral default.
//
// Score is pure and deterministic: same inputs, same result. It never fails;
// malformed or missing fields degrade to skipped factors.
func Score(w Weights, prefs *db.Preference, cand db.Profile) Result {
	if prefs == nil {
		return Result{Percentage: NeutralPercentage, Matched: []string{ReasonNoPreferences}}
	}

	var res Result
	var score, maxScore float64

	// Budget window. A zero bound means "unbounded on that side"; the factor
	// applies as long as either bound and the candidate's budget are set.
	if (prefs.MinBudget > 0 || prefs.MaxBudget > 0) && cand.Budget > 0 {
		maxScore += w.Budget
		inRange := (prefs.MinBudget == 0 || cand.Budget >= prefs.MinBudget) &&
			(prefs.MaxBudget == 0 || cand.Budget <= prefs.MaxBudget)
		if inRange {
			score += w.Budget
			res.Matched = append(res.Matched, "Budget matches your requirements")
		} else {
			res.Incompatible = append(res.Incompatible, "Budget outside your range")
		}
	}

	// Lifestyle tag overlap, proportional.
	prefTags := prefs.TagList()
	candTags := cand.TagList()
	if len(prefTags) > 0 && len(candTags) > 0 {
		maxScore += w.Tags
		ratio := overlapRatio(prefTags, candTags)
		contribution := w.Tags * ratio
		score += contribution
		switch {
		case contribution > w.Tags/2:
			res.Matched = append(res.Matched, "Compatible lifestyle")
		case ratio == 0:
			res.Incompatible = append(res.Incompatible, "No shared lifestyle tags")
		}
	}

	// Pet policy.
	if prefs.PetsAllowed != nil && cand.HasPets != nil {
		maxScore += w.Pets
		if *prefs.PetsAllowed || !*cand.HasPets {
			score += w.Pets
			res.Matched = append(res.Matched, "Pet policy compatible")
		} else {
			res.Incompatible = append(res.Incompatible, "Has pets but pets are not allowed")
		}
	}

	// Smoking policy.
	if prefs.SmokingAllowed != nil && cand.Smokes != nil {
		maxScore += w.Smoking
		if *prefs.SmokingAllowed || !*cand.Smokes {
			score += w.Smoking
			res.Matched = append(res.Matched, "Smoking policy compatible")
		} else {
			res.Incompatible = append(res.Incompatible, "Smokes but smoking is not allowed")
		}
	}

	if maxScore <= 0 {
		res.Percentage = NeutralPercentage
		return res
	}

	pct := int(math.Round(score / maxScore * 100))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	res.Percentage = pct
	return res
}

// overlapRatio returns |intersection| / |prefTags|, case-insensitive.
func overlapRatio(prefTags, candTags []string) float64 {
	candSet := make(map[string]struct{}, len(candTags))
	for _, t := range candTags {
		candSet[strings.ToLower(t)] = struct{}{}
	}
	hits := 0
	for _, t := range prefTags {
		if _, ok := candSet[strings.ToLower(t)]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(prefTags))
}
