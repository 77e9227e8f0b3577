package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestmatch/engine/internal/db"
	"github.com/nestmatch/engine/internal/scoring"
)

func boolPtr(b bool) *bool { return &b }

func seekerPrefs() *db.Preference {
	return &db.Preference{
		UserID:         1,
		Role:           db.RoleOfferer,
		MinBudget:      1000,
		MaxBudget:      2000,
		CompatibleTags: "quiet,clean",
	}
}

// TestScoreBudgetAndPartialTagOverlap covers the canonical case: budget in
// range plus half the preferred tags shared.
func TestScoreBudgetAndPartialTagOverlap(t *testing.T) {
	cand := db.Profile{ID: 2, Budget: 1500, LifestyleTags: "quiet"}

	res := scoring.Score(scoring.DefaultWeights(), seekerPrefs(), cand)

	// 30 (budget) + 12.5 (half of 25) over a max of 55 → 77%
	assert.Equal(t, 77, res.Percentage)
	assert.Contains(t, res.Matched, "Budget matches your requirements")
	// A 1/2 overlap contributes exactly half the tag weight, which does not
	// exceed the reason threshold.
	assert.NotContains(t, res.Matched, "Compatible lifestyle")
	assert.Empty(t, res.Incompatible)
}

func TestScoreDeterministic(t *testing.T) {
	prefs := seekerPrefs()
	prefs.PetsAllowed = boolPtr(false)
	cand := db.Profile{ID: 2, Budget: 900, LifestyleTags: "quiet,loud", HasPets: boolPtr(true)}

	first := scoring.Score(scoring.DefaultWeights(), prefs, cand)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, scoring.Score(scoring.DefaultWeights(), prefs, cand))
	}
}

func TestScoreBounds(t *testing.T) {
	candidates := []db.Profile{
		{},
		{Budget: 1},
		{Budget: 999999, LifestyleTags: "a,b,c"},
		{Budget: 1500, LifestyleTags: "quiet,clean", HasPets: boolPtr(false), Smokes: boolPtr(false)},
		{Budget: 500, LifestyleTags: "loud", HasPets: boolPtr(true), Smokes: boolPtr(true)},
	}
	prefs := seekerPrefs()
	prefs.PetsAllowed = boolPtr(false)
	prefs.SmokingAllowed = boolPtr(false)

	for _, cand := range candidates {
		res := scoring.Score(scoring.DefaultWeights(), prefs, cand)
		assert.GreaterOrEqual(t, res.Percentage, 0)
		assert.LessOrEqual(t, res.Percentage, 100)
	}
}

// TestScoreSkipsMissingFactors verifies absent data is skipped, not
// penalized: a candidate without policy data scores the same as if the
// policy factors were removed from the weight table.
func TestScoreSkipsMissingFactors(t *testing.T) {
	prefs := seekerPrefs()
	prefs.PetsAllowed = boolPtr(false)
	prefs.SmokingAllowed = boolPtr(false)

	cand := db.Profile{ID: 2, Budget: 1500, LifestyleTags: "quiet,clean"} // no policy data

	full := scoring.Score(scoring.DefaultWeights(), prefs, cand)

	trimmed := scoring.Weights{Budget: 30, Tags: 25} // policy factors absent
	reference := scoring.Score(trimmed, prefs, cand)

	assert.Equal(t, reference.Percentage, full.Percentage)
	assert.Equal(t, 100, full.Percentage)
}

func TestScoreNoPreferences(t *testing.T) {
	res := scoring.Score(scoring.DefaultWeights(), nil, db.Profile{ID: 2, Budget: 1500})

	assert.Equal(t, scoring.NeutralPercentage, res.Percentage)
	assert.Contains(t, res.Matched, scoring.ReasonNoPreferences)
}

func TestScoreNoScorableFactors(t *testing.T) {
	// Preferences exist but share no declared attribute with the candidate.
	prefs := &db.Preference{UserID: 1}
	res := scoring.Score(scoring.DefaultWeights(), prefs, db.Profile{ID: 2})

	assert.Equal(t, scoring.NeutralPercentage, res.Percentage)
	assert.Empty(t, res.Matched)
	assert.Empty(t, res.Incompatible)
}

// TestScorePolicyRule checks the policy compatibility rule: a restrictive
// offerer is incompatible only with a candidate who positively needs the
// disallowed thing.
func TestScorePolicyRule(t *testing.T) {
	cases := []struct {
		name       string
		allowed    *bool
		requires   *bool
		compatible bool
		applies    bool
	}{
		{"allowed and has pets", boolPtr(true), boolPtr(true), true, true},
		{"allowed and no pets", boolPtr(true), boolPtr(false), true, true},
		{"disallowed and has pets", boolPtr(false), boolPtr(true), false, true},
		{"disallowed and no pets", boolPtr(false), boolPtr(false), true, true},
		{"undeclared preference", nil, boolPtr(true), false, false},
		{"undeclared candidate", boolPtr(false), nil, false, false},
	}

	w := scoring.Weights{Pets: 15}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prefs := &db.Preference{UserID: 1, PetsAllowed: tc.allowed}
			cand := db.Profile{ID: 2, HasPets: tc.requires}

			res := scoring.Score(w, prefs, cand)
			if !tc.applies {
				assert.Equal(t, scoring.NeutralPercentage, res.Percentage, "factor should be skipped")
				return
			}
			if tc.compatible {
				assert.Equal(t, 100, res.Percentage)
			} else {
				assert.Equal(t, 0, res.Percentage)
			}
		})
	}
}

func TestScoreFullTagOverlapEmitsReason(t *testing.T) {
	prefs := seekerPrefs()
	cand := db.Profile{ID: 2, Budget: 1500, LifestyleTags: "clean,quiet,social"}

	res := scoring.Score(scoring.DefaultWeights(), prefs, cand)

	require.Equal(t, 100, res.Percentage)
	assert.Contains(t, res.Matched, "Compatible lifestyle")
}

func TestScoreNoTagOverlap(t *testing.T) {
	prefs := seekerPrefs()
	cand := db.Profile{ID: 2, Budget: 2500, LifestyleTags: "loud,social"}

	res := scoring.Score(scoring.DefaultWeights(), prefs, cand)

	// 0 of 55 possible points.
	assert.Equal(t, 0, res.Percentage)
	assert.Contains(t, res.Incompatible, "Budget outside your range")
	assert.Contains(t, res.Incompatible, "No shared lifestyle tags")
}
