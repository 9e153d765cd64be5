package models

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"gorm.io/gorm"
)

// All returns every model in migration order.
func All() []interface{} {
	return []interface{}{&Role{}, &User{}, &Follow{}, &Post{}, &Comment{}}
}

var (
	fakeFirst  = []string{"ada", "brian", "carla", "dmitri", "elena", "farah", "gus", "hana", "ivan", "june",
		"kofi", "lena", "marco", "nadia", "omar", "petra", "quinn", "rosa", "sven", "tara"}
	fakeLast   = []string{"stone", "rivers", "marsh", "field", "brook", "hill", "wood", "lake", "frost", "vale"}
	fakeCities = []string{"Lisbon", "Oslo", "Nairobi", "Osaka", "Quito", "Tbilisi", "Hobart", "Leeds"}
	fakeWords  = strings.Fields("lorem ipsum dolor sit amet consectetur adipiscing elit sed do eiusmod " +
		"tempor incididunt ut labore et dolore magna aliqua enim ad minim veniam quis nostrud exercitation")
)

func fakeSentence(rng *rand.Rand, min, max int) string {
	n := min + rng.Intn(max-min+1)
	words := make([]string, n)
	for i := range words {
		words[i] = fakeWords[rng.Intn(len(fakeWords))]
	}
	s := strings.Join(words, " ")
	return capitalize(s) + "."
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func fakeTime(rng *rand.Rand) time.Time {
	return time.Now().UTC().Add(-time.Duration(rng.Int63n(int64(365 * 24 * time.Hour))))
}

// GenerateFakeUsers inserts count confirmed users with the default role. Username or email
// collisions are skipped, so fewer rows may be created than requested.
func GenerateFakeUsers(db *gorm.DB, count int, rng *rand.Rand) (int, error) {
	role, err := DefaultRole(db)
	if err != nil {
		return 0, fmt.Errorf("default role: %w", err)
	}
	created := 0
	for i := 0; i < count; i++ {
		first := fakeFirst[rng.Intn(len(fakeFirst))]
		last := fakeLast[rng.Intn(len(fakeLast))]
		username := fmt.Sprintf("%s.%s%d", first, last, rng.Intn(10000))
		u := User{
			Email:       username + "@example.com",
			Username:    username,
			Confirmed:   true,
			RoleID:      role.ID,
			Name:        capitalize(first) + " " + capitalize(last),
			Location:    fakeCities[rng.Intn(len(fakeCities))],
			AboutMe:     fakeSentence(rng, 4, 12),
			MemberSince: fakeTime(rng),
		}
		if err := u.SetPassword(fakeSentence(rng, 2, 3)); err != nil {
			return created, err
		}
		var exists int64
		db.Model(&User{}).Where("username = ? OR email = ?", u.Username, u.Email).Count(&exists)
		if exists > 0 {
			continue
		}
		if err := db.Create(&u).Error; err != nil {
			return created, fmt.Errorf("create fake user: %w", err)
		}
		created++
	}
	return created, nil
}

// GenerateFakePosts inserts count posts attributed to random existing users.
func GenerateFakePosts(db *gorm.DB, count int, rng *rand.Rand) (int, error) {
	var ids []uint
	if err := db.Model(&User{}).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	for i := 0; i < count; i++ {
		p := Post{
			Body:      fakeSentence(rng, 10, 40),
			Timestamp: fakeTime(rng),
			AuthorID:  ids[rng.Intn(len(ids))],
		}
		if err := db.Create(&p).Error; err != nil {
			return i, fmt.Errorf("create fake post: %w", err)
		}
	}
	return count, nil
}

// AddSelfFollows repairs the self edge for users created before it was enforced.
func AddSelfFollows(db *gorm.DB) error {
	var users []User
	if err := db.Find(&users).Error; err != nil {
		return err
	}
	for i := range users {
		if err := users[i].Follow(db, &users[i]); err != nil {
			return err
		}
	}
	return nil
}
