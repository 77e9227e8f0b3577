package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var seedTags = []string{
	"quiet", "tidy", "social", "early_riser", "night_owl",
	"vegetarian", "remote_worker", "musician", "gym", "cooking",
}

// SeedTestData resets the database and populates it with demo identities.
//
// Behavior:
//  1. Clears existing rows in every engine table.
//  2. Creates 20 profiles (10 seekers, 10 offerers) with hashed passwords,
//     budgets and lifestyle tags, plus role preferences for each.
//  3. Generates swipes with ~70% interest; every 3rd pair is guaranteed
//     mutual and gets its match row flipped plus an opening message.
//
// Compatible with both MySQL and SQLite (AUTO_INCREMENT reset skipped for SQLite).
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// --- Fresh start ---
	for _, table := range []string{"conversation_reads", "messages", "matches", "likes", "preferences", "profiles"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	switch db.Dialector.Name() {
	case "mysql":
		db.Exec("ALTER TABLE profiles AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE matches AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE messages AUTO_INCREMENT = 1")
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence WHERE name IN ('profiles', 'matches', 'messages')")
	}

	log.Println("Cleared existing data")

	// --- Seed profiles (10 seekers, 10 offerers) ---
	for i := 1; i <= 20; i++ {
		hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		role := RoleSeeker
		if i > 10 {
			role = RoleOfferer
		}

		pets := r.Intn(100) < 30
		smokes := r.Intn(100) < 20
		tags := pickTags(r, 3)

		profile := Profile{
			Role:          role,
			DisplayName:   fmt.Sprintf("user%d", i),
			Email:         fmt.Sprintf("user%d@example.com", i),
			PasswordHash:  string(hash),
			Budget:        int64(500 + r.Intn(1500)),
			LifestyleTags: JoinTags(tags),
			HasPets:       &pets,
			Smokes:        &smokes,
			Active:        true,
		}
		if err := db.Create(&profile).Error; err != nil {
			return fmt.Errorf("failed to seed profile: %w", err)
		}

		petsOK := r.Intn(100) < 60
		smokingOK := r.Intn(100) < 40
		pref := Preference{
			UserID:         profile.ID,
			Role:           role,
			MinBudget:      int64(400 + r.Intn(300)),
			MaxBudget:      int64(900 + r.Intn(1200)),
			CompatibleTags: JoinTags(pickTags(r, 4)),
			PetsAllowed:    &petsOK,
			SmokingAllowed: &smokingOK,
		}
		if err := db.Create(&pref).Error; err != nil {
			return fmt.Errorf("failed to seed preference: %w", err)
		}
	}
	log.Println("Seeded 20 profiles with preferences.")

	// --- Seed swipes (~200+) ---
	counter := 0
	for fromID := 1; fromID <= 20; fromID++ {
		for j := 0; j < 12; j++ {
			toID := uint64(r.Intn(20) + 1)
			if uint64(fromID) == toID {
				continue
			}

			var from, to Profile
			if err := db.First(&from, fromID).Error; err != nil {
				continue
			}
			if err := db.First(&to, toID).Error; err != nil {
				continue
			}
			if from.Role == to.Role {
				continue
			}

			// interest probability 70%
			direction := DirectionLeft
			if r.Intn(100) < 70 {
				direction = DirectionRight
			}

			// guarantee mutual interest every 3rd pair
			if counter%3 == 0 {
				direction = DirectionRight
				recip := Like{FromUser: toID, ToTarget: uint64(fromID), Direction: DirectionRight}
				db.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "from_user"}, {Name: "to_target"}},
					DoUpdates: clause.AssignmentColumns([]string{"direction", "updated_at"}),
				}).Create(&recip)

				if err := seedMutual(db, uint64(fromID), toID); err != nil {
					return err
				}
			}

			like := Like{FromUser: uint64(fromID), ToTarget: toID, Direction: direction}
			if err := db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "from_user"}, {Name: "to_target"}},
				DoUpdates: clause.AssignmentColumns([]string{"direction", "updated_at"}),
			}).Create(&like).Error; err != nil {
				return fmt.Errorf("failed to seed like: %w", err)
			}

			counter++
		}
	}
	log.Println("Seeded swipes, matches and opening messages.")

	return nil
}

// seedMutual flips the pair's match row and drops an opening message in.
func seedMutual(db *gorm.DB, a, b uint64) error {
	lo, hi := PairKey(a, b)
	m := Match{UserA: lo, UserB: hi, IsMutual: true}
	err := db.Where("user_a = ? AND user_b = ?", lo, hi).
		Assign(Match{IsMutual: true}).
		FirstOrCreate(&m).Error
	if err != nil {
		return fmt.Errorf("failed to seed match: %w", err)
	}

	msg := Message{
		ConversationID: m.ID,
		SenderID:       a,
		Body:           "Hey! Looks like we matched, is the place still available?",
	}
	if err := db.Create(&msg).Error; err != nil {
		return fmt.Errorf("failed to seed message: %w", err)
	}
	return nil
}

func pickTags(r *rand.Rand, n int) []string {
	perm := r.Perm(len(seedTags))
	tags := make([]string, 0, n)
	for _, idx := range perm[:n] {
		tags = append(tags, seedTags[idx])
	}
	return tags
}
