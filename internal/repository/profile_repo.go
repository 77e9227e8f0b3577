package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nestmatch/engine/internal/db"
)

// ProfileRepository provides data access for profiles and their matching
// preferences.
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new repository bound to the given DB connection.
func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

// Get returns a single profile by id.
func (r *ProfileRepository) Get(ctx context.Context, id uint64) (db.Profile, error) {
	var p db.Profile
	err := r.db.WithContext(ctx).First(&p, id).Error
	return p, err
}

// ListCandidates returns one raw feed page of active profiles with the given
// role, in the store's native ordering (insertion id).
//
// Behavior:
//   - Only active profiles are returned.
//   - The browsing identity's own profile is excluded.
//   - Range pagination: offset/limit straight through to the store.
//   - No scoring or filtering happens here; the feed layer owns that.
func (r *ProfileRepository) ListCandidates(
	ctx context.Context,
	role db.Role,
	excludeID uint64,
	limit, offset int,
) ([]db.Profile, error) {
	var profiles []db.Profile
	err := r.db.WithContext(ctx).
		Where("role = ? AND active = ? AND id <> ?", role, true, excludeID).
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&profiles).Error
	return profiles, err
}

// GetPreference returns the user's matching preferences, or nil if the user
// has never configured any. Absence is not an error: the feed falls back to
// neutral scoring.
func (r *ProfileRepository) GetPreference(ctx context.Context, userID uint64) (*db.Preference, error) {
	var pref db.Preference
	err := r.db.WithContext(ctx).First(&pref, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

// SavePreference inserts or replaces the user's preferences.
func (r *ProfileRepository) SavePreference(ctx context.Context, pref db.Preference) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"role", "min_budget", "max_budget", "compatible_tags",
				"pets_allowed", "smoking_allowed", "updated_at",
			}),
		}).
		Create(&pref).Error
}
