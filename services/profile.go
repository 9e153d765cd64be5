package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/cppla/bloghub/models"
)

// ErrUnknownRole is returned when an admin edit names a role that does not exist.
var ErrUnknownRole = errors.New("unknown role")

// ProfileEdit carries the fields a user may change on their own profile. Nil means unchanged.
type ProfileEdit struct {
	Name     *string
	Location *string
	AboutMe  *string
}

// AdminEdit is ProfileEdit plus the account fields only an administrator may change.
type AdminEdit struct {
	ProfileEdit
	Email     *string
	Username  *string
	Confirmed *bool
	Role      *string
}

func trimmed(s *string, max int) (string, error) {
	v := strings.TrimSpace(*s)
	if len(v) > max {
		return "", fmt.Errorf("value longer than %d characters", max)
	}
	return v, nil
}

func (e ProfileEdit) apply(user *models.User) error {
	var err error
	if e.Name != nil {
		if user.Name, err = trimmed(e.Name, 64); err != nil {
			return err
		}
	}
	if e.Location != nil {
		if user.Location, err = trimmed(e.Location, 64); err != nil {
			return err
		}
	}
	if e.AboutMe != nil {
		user.AboutMe = strings.TrimSpace(*e.AboutMe)
	}
	return nil
}

// UpdateProfile applies a self-service profile edit.
func (s *AccountService) UpdateProfile(db *gorm.DB, user *models.User, edit ProfileEdit) error {
	if err := edit.apply(user); err != nil {
		return err
	}
	return db.Model(user).Select("name", "location", "about_me").Updates(user).Error
}

// AdminUpdate applies an administrator's edit to user, enforcing the same email and username
// rules as registration.
func (s *AccountService) AdminUpdate(db *gorm.DB, user *models.User, edit AdminEdit) error {
	if edit.Email != nil {
		email, err := validateEmail(*edit.Email)
		if err != nil {
			return err
		}
		if email != user.Email {
			taken, err := s.emailInUse(db, email)
			if err != nil {
				return err
			}
			if taken {
				return ErrEmailTaken
			}
			user.Email = email
		}
	}
	if edit.Username != nil {
		username := strings.TrimSpace(*edit.Username)
		if username == "" || len(username) > 64 || !usernamePattern.MatchString(username) {
			return ErrInvalidUsername
		}
		if username != user.Username {
			var n int64
			if err := db.Model(&models.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return ErrUsernameTaken
			}
			user.Username = username
		}
	}
	if edit.Confirmed != nil {
		user.Confirmed = *edit.Confirmed
	}
	if edit.Role != nil {
		role, err := models.RoleByName(db, *edit.Role)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownRole
			}
			return err
		}
		user.RoleID = role.ID
		user.Role = role
	}
	if err := edit.ProfileEdit.apply(user); err != nil {
		return err
	}
	return db.Omit("Role").Save(user).Error
}
