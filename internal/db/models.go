package db

import (
	"strings"
	"time"
)

// Role selects which preference/candidate schema applies to an identity.
// Immutable per session.
type Role string

const (
	RoleSeeker  Role = "seeker"
	RoleOfferer Role = "offerer"
)

// Opposite returns the counterpart role browsed by this role.
func (r Role) Opposite() Role {
	if r == RoleSeeker {
		return RoleOfferer
	}
	return RoleSeeker
}

// Direction of a swipe. "up" is a super like and implies interest.
type Direction string

const (
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
	DirectionUp    Direction = "up"
)

// IsInterest reports whether the direction expresses interest in the target.
func (d Direction) IsInterest() bool {
	return d == DirectionRight || d == DirectionUp
}

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionLeft, DirectionRight, DirectionUp:
		return true
	}
	return false
}

// Profile is a browsable party on either side of the marketplace:
// a seeker profile or an offerer listing. Policy fields are pointers so
// "not declared" is distinguishable from false (scoring skips absent data).
type Profile struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	Role          Role   `gorm:"size:16;not null;index:idx_role_active,priority:1"`
	DisplayName   string `gorm:"size:64;not null"`
	Email         string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash  string `gorm:"size:255;not null"`
	AvatarURL     string `gorm:"size:255"`
	Bio           string `gorm:"size:1024"`
	Budget        int64  // monthly budget (seeker) or asking rent (offerer)
	LifestyleTags string `gorm:"size:255"` // comma-separated
	HasPets       *bool
	Smokes        *bool
	Active        bool      `gorm:"default:true;index:idx_role_active,priority:2"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// TagList splits the comma-separated lifestyle tags, dropping empties.
func (p Profile) TagList() []string { return splitTags(p.LifestyleTags) }

// Preference holds an identity's role-specific matching preferences.
// Read-mostly during scoring; fetched once per feed session.
type Preference struct {
	UserID         uint64 `gorm:"primaryKey"`
	Role           Role   `gorm:"size:16;not null"`
	MinBudget      int64
	MaxBudget      int64
	CompatibleTags string `gorm:"size:255"` // comma-separated
	PetsAllowed    *bool
	SmokingAllowed *bool
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// TagList splits the comma-separated compatible tags, dropping empties.
func (p Preference) TagList() []string { return splitTags(p.CompatibleTags) }

// Like represents a swipe decision from one user toward a target.
//
// Composite PK: (FromUser, ToTarget)
//   - Ensures a single row per pair (overwrite guarantee).
//
// Indexes:
//   - idx_target_direction_updated(to_target, direction, updated_at DESC)
//     Optimizes "who liked me" counts and lists.
//   - idx_from_to_direction(from_user, to_target, direction)
//     Optimizes O(1) lookup for mutual interest checks.
type Like struct {
	FromUser  uint64    `gorm:"primaryKey;index:idx_from_to_direction,priority:1"`
	ToTarget  uint64    `gorm:"primaryKey;index:idx_target_direction_updated,priority:1;index:idx_from_to_direction,priority:2"`
	Direction Direction `gorm:"size:8;not null;index:idx_target_direction_updated,priority:2;index:idx_from_to_direction,priority:3"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index:idx_target_direction_updated,priority:3,sort:desc"`
}

// Match is the pairwise relationship row. IsMutual flips false -> true
// exactly once per pair, when both sides have expressed interest.
// The match id doubles as the conversation id for messages.
type Match struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserA     uint64    `gorm:"not null;uniqueIndex:idx_match_pair,priority:1"`
	UserB     uint64    `gorm:"not null;uniqueIndex:idx_match_pair,priority:2"`
	IsMutual  bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Involves reports whether userID is one of the two parties.
func (m Match) Involves(userID uint64) bool {
	return m.UserA == userID || m.UserB == userID
}

// OtherParty returns the counterpart of userID in the pair.
func (m Match) OtherParty(userID uint64) uint64 {
	if m.UserA == userID {
		return m.UserB
	}
	return m.UserA
}

// PairKey returns the canonical (low, high) ordering of a user pair.
// Matches are stored with UserA < UserB so a pair maps to a single row.
func PairKey(a, b uint64) (uint64, uint64) {
	if a > b {
		return b, a
	}
	return a, b
}

// Message is a chat message within a conversation (match).
type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	ConversationID uint64    `gorm:"not null;index:idx_conv_created,priority:1"`
	SenderID       uint64    `gorm:"not null"`
	Body           string    `gorm:"size:2048;not null"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_conv_created,priority:2"`
}

// ConversationRead is the per-user read watermark for a conversation.
// Messages newer than LastReadAt count as unread.
type ConversationRead struct {
	ConversationID uint64    `gorm:"primaryKey"`
	UserID         uint64    `gorm:"primaryKey"`
	LastReadAt     time.Time `gorm:"not null"`
}

func splitTags(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// JoinTags builds the stored comma-separated form.
func JoinTags(tags []string) string { return strings.Join(tags, ",") }
