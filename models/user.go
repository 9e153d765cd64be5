package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/bloghub/utils"
)

// User is a registered account. Passwords are stored as bcrypt hashes only.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	Username     string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"size:128" json:"-"`
	Confirmed    bool      `gorm:"default:false" json:"-"`
	RoleID       uint      `gorm:"index" json:"-"`
	Role         *Role     `json:"-"`
	Name         string    `gorm:"size:64" json:"name"`
	Location     string    `gorm:"size:64" json:"location"`
	AboutMe      string    `gorm:"type:text" json:"about_me"`
	MemberSince  time.Time `json:"member_since"`
	LastSeen     time.Time `json:"last_seen"`
	AvatarHash   string    `gorm:"size:32" json:"-"`
	Posts        []Post    `gorm:"foreignKey:AuthorID" json:"-"`
	Comments     []Comment `gorm:"foreignKey:AuthorID" json:"-"`
}

// NormalizeEmail is the canonical stored form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// BeforeSave keeps the stored email canonical and the avatar hash in step with it.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = NormalizeEmail(u.Email)
	u.AvatarHash = avatarHash(u.Email)
	return nil
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().UTC()
	if u.MemberSince.IsZero() {
		u.MemberSince = now
	}
	if u.LastSeen.IsZero() {
		u.LastSeen = now
	}
	return nil
}

// AfterCreate adds the self-follow edge so followed-post queries include the user's own posts.
func (u *User) AfterCreate(tx *gorm.DB) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Follow{FollowerID: u.ID, FollowedID: u.ID, Timestamp: u.MemberSince}).Error
}

func avatarHash(email string) string {
	sum := md5.Sum([]byte(email))
	return hex.EncodeToString(sum[:])
}

// SetPassword replaces the stored hash. The plain password is never kept.
func (u *User) SetPassword(password string) error {
	hash, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash
	return nil
}

// VerifyPassword reports whether password matches the stored hash.
func (u *User) VerifyPassword(password string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return utils.CheckPassword(u.PasswordHash, password)
}

// Can reports whether the user's role grants perm. The role must be loaded.
func (u *User) Can(perm Permission) bool {
	return u != nil && u.Role.Has(perm)
}

// IsAdministrator is shorthand for Can(PermAdmin).
func (u *User) IsAdministrator() bool {
	return u.Can(PermAdmin)
}

// Gravatar returns the avatar URL for the given pixel size.
func (u *User) Gravatar(size int, secure bool) string {
	base := "http://www.gravatar.com/avatar"
	if secure {
		base = "https://secure.gravatar.com/avatar"
	}
	hash := u.AvatarHash
	if hash == "" {
		hash = avatarHash(NormalizeEmail(u.Email))
	}
	return fmt.Sprintf("%s/%s?s=%d&d=identicon&r=g", base, hash, size)
}

// Ping records activity by refreshing LastSeen.
func (u *User) Ping(db *gorm.DB) error {
	u.LastSeen = time.Now().UTC()
	return db.Model(&User{}).Where("id = ?", u.ID).UpdateColumn("last_seen", u.LastSeen).Error
}

// Follow adds an edge from u to other. Following twice is a no-op.
func (u *User) Follow(db *gorm.DB, other *User) error {
	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Follow{FollowerID: u.ID, FollowedID: other.ID, Timestamp: time.Now().UTC()}).Error
}

// Unfollow removes the edge from u to other. The self edge cannot be removed.
func (u *User) Unfollow(db *gorm.DB, other *User) error {
	if u.ID == other.ID {
		return nil
	}
	return db.Where("follower_id = ? AND followed_id = ?", u.ID, other.ID).Delete(&Follow{}).Error
}

// IsFollowing reports whether u follows other.
func (u *User) IsFollowing(db *gorm.DB, other *User) (bool, error) {
	if u == nil || other == nil || u.ID == 0 {
		return false, nil
	}
	var n int64
	err := db.Model(&Follow{}).
		Where("follower_id = ? AND followed_id = ?", u.ID, other.ID).
		Count(&n).Error
	return n > 0, err
}

// IsFollowedBy reports whether other follows u.
func (u *User) IsFollowedBy(db *gorm.DB, other *User) (bool, error) {
	return other.IsFollowing(db, u)
}

// FollowedPosts scopes a post query to authors u follows, the user itself included.
func (u *User) FollowedPosts(db *gorm.DB) *gorm.DB {
	return db.Model(&Post{}).
		Joins("JOIN follows ON follows.followed_id = posts.author_id").
		Where("follows.follower_id = ?", u.ID)
}

// FindUserByLogin resolves an email or a username to a user with its role loaded.
func FindUserByLogin(db *gorm.DB, login string) (*User, error) {
	var user User
	login = strings.TrimSpace(login)
	query := db.Preload("Role")
	if strings.Contains(login, "@") {
		query = query.Where("email = ?", NormalizeEmail(login))
	} else {
		query = query.Where("username = ?", login)
	}
	if err := query.First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUserByID loads a user with its role.
func FindUserByID(db *gorm.DB, id uint) (*User, error) {
	var user User
	if err := db.Preload("Role").First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
