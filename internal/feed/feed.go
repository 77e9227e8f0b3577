package feed

import (
	"context"
	"log/slog"
	"sort"

	"github.com/nestmatch/engine/internal/db"
	engineerr "github.com/nestmatch/engine/internal/errors"
	"github.com/nestmatch/engine/internal/metrics"
	"github.com/nestmatch/engine/internal/scoring"
)

// ScoredCandidate is a candidate profile with its computed compatibility.
// Derived per page, never persisted.
type ScoredCandidate struct {
	Profile      db.Profile `json:"profile"`
	Percentage   int        `json:"percentage"`
	Matched      []string   `json:"matched_reasons"`
	Incompatible []string   `json:"incompatible_reasons"`
}

// Page is one scored, filtered, sorted feed page. NextCursor is nil when the
// feed is exhausted for this session.
type Page struct {
	Candidates []ScoredCandidate
	NextCursor *int
}

// CandidateSource is the slice of the store the feed reads from.
type CandidateSource interface {
	ListCandidates(ctx context.Context, role db.Role, excludeID uint64, limit, offset int) ([]db.Profile, error)
}

// Options tune a feed session.
type Options struct {
	PageSize int
	MinScore int
	Weights  scoring.Weights
}

// DefaultOptions returns the product defaults.
func DefaultOptions() Options {
	return Options{PageSize: 10, MinScore: 10, Weights: scoring.DefaultWeights()}
}

// Feed retrieves paginated, scored, filtered candidates for one identity's
// feed session. Preferences are captured once at construction and reused for
// every page; a session never re-fetches them.
type Feed struct {
	source     CandidateSource
	identityID uint64
	browseRole db.Role
	prefs      *db.Preference
	opts       Options
	seen       map[uint64]struct{}
	log        *slog.Logger
}

// New creates a feed session for the identity. prefs may be nil; every
// candidate then scores the neutral default and browsing proceeds normally.
func New(source CandidateSource, identityID uint64, identityRole db.Role, prefs *db.Preference, opts Options, log *slog.Logger) *Feed {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultOptions().PageSize
	}
	return &Feed{
		source:     source,
		identityID: identityID,
		browseRole: identityRole.Opposite(),
		prefs:      prefs,
		opts:       opts,
		seen:       make(map[uint64]struct{}),
		log:        log,
	}
}

// NextPage fetches and scores one feed page.
//
// Behavior:
//   - Reads a fixed-size raw page at offset cursor*pageSize in the store's
//     native ordering.
//   - Scores every raw candidate against the session preferences, drops
//     those below the minimum percentage and any id already served this
//     session, and sorts the rest by percentage descending with recency
//     (newest profile update) breaking ties.
//   - NextCursor advances only when the raw page was full-sized; a short
//     page signals exhaustion.
//   - Store failures surface as FeedFetchError with no auto-retry.
func (f *Feed) NextPage(ctx context.Context, cursor int) (Page, error) {
	raw, err := f.source.ListCandidates(ctx, f.browseRole, f.identityID, f.opts.PageSize, cursor*f.opts.PageSize)
	if err != nil {
		return Page{}, &engineerr.FeedFetchError{Cursor: cursor, Err: err}
	}

	scored := make([]ScoredCandidate, 0, len(raw))
	for _, cand := range raw {
		if _, dup := f.seen[cand.ID]; dup {
			continue
		}
		f.seen[cand.ID] = struct{}{}

		res := scoring.Score(f.opts.Weights, f.prefs, cand)
		if res.Percentage < f.opts.MinScore {
			continue
		}
		scored = append(scored, ScoredCandidate{
			Profile:      cand,
			Percentage:   res.Percentage,
			Matched:      res.Matched,
			Incompatible: res.Incompatible,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Percentage != scored[j].Percentage {
			return scored[i].Percentage > scored[j].Percentage
		}
		if !scored[i].Profile.UpdatedAt.Equal(scored[j].Profile.UpdatedAt) {
			return scored[i].Profile.UpdatedAt.After(scored[j].Profile.UpdatedAt)
		}
		return scored[i].Profile.ID > scored[j].Profile.ID
	})

	page := Page{Candidates: scored}
	if len(raw) == f.opts.PageSize {
		next := cursor + 1
		page.NextCursor = &next
	}

	metrics.FeedPagesServed.Inc()
	f.log.Debug("feed page served",
		"identity", f.identityID,
		"cursor", cursor,
		"raw", len(raw),
		"served", len(scored),
		"exhausted", page.NextCursor == nil,
	)
	return page, nil
}
