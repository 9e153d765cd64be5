package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/bloghub/config"
	"github.com/cppla/bloghub/models"
	"github.com/cppla/bloghub/utils"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already in use")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = utils.ErrInvalidToken
	ErrAlreadyConfirmed   = errors.New("account already confirmed")
	ErrInvalidUsername    = errors.New("usernames must have only letters, numbers, dots or underscores")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrPasswordMismatch   = errors.New("passwords must match")
	ErrEmptyPassword      = errors.New("password must not be empty")
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.]*$`)

const pwFingerprintKey = "pw"

// AccountService drives registration, confirmation, password reset and email change.
// Every method takes the *gorm.DB to run against so callers can pass the request transaction.
type AccountService struct {
	cfg     *config.AppConfig
	tokens  *utils.TokenService
	mail    *utils.MailDispatcher
	revoked *utils.TokenBlacklist
}

// NewAccountService creates an AccountService. Revoked access tokens are kept in memory until
// UseBlacklist swaps in a shared store.
func NewAccountService(cfg *config.AppConfig, tokens *utils.TokenService, mail *utils.MailDispatcher) *AccountService {
	return &AccountService{cfg: cfg, tokens: tokens, mail: mail, revoked: utils.NewTokenBlacklist(nil)}
}

// UseBlacklist replaces the store of revoked access tokens.
func (s *AccountService) UseBlacklist(b *utils.TokenBlacklist) {
	s.revoked = b
}

// RegisterInput is the data collected by the registration form.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	Password2 string
}

func validateEmail(email string) (string, error) {
	email = models.NormalizeEmail(email)
	if email == "" || len(email) > 64 {
		return "", ErrInvalidEmail
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (s *AccountService) emailInUse(db *gorm.DB, email string) (bool, error) {
	var n int64
	err := db.Model(&models.User{}).Where("email = ?", email).Count(&n).Error
	return n > 0, err
}

// Register creates an unconfirmed user and mails the confirmation link. The configured admin
// address receives the Administrator role and a notification about every other signup.
func (s *AccountService) Register(db *gorm.DB, in RegisterInput, baseURL string) (*models.User, error) {
	email, err := validateEmail(in.Email)
	if err != nil {
		return nil, err
	}
	username := strings.TrimSpace(in.Username)
	if username == "" || len(username) > 64 || !usernamePattern.MatchString(username) {
		return nil, ErrInvalidUsername
	}
	if in.Password == "" {
		return nil, ErrEmptyPassword
	}
	if in.Password != in.Password2 {
		return nil, ErrPasswordMismatch
	}

	taken, err := s.emailInUse(db, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}
	var n int64
	if err := db.Model(&models.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrUsernameTaken
	}

	var role *models.Role
	if s.cfg.AdminEmail != "" && email == s.cfg.AdminEmail {
		role, err = models.RoleByName(db, models.RoleAdministrator)
	} else {
		role, err = models.DefaultRole(db)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve role: %w", err)
	}

	user := &models.User{Email: email, Username: username, RoleID: role.ID, Role: role}
	if err := user.SetPassword(in.Password); err != nil {
		return nil, err
	}
	if err := db.Omit("Role").Create(user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.sendConfirmation(user, baseURL); err != nil {
		return nil, err
	}
	if s.cfg.AdminEmail != "" && email != s.cfg.AdminEmail {
		s.send(s.cfg.AdminEmail, "New User", newUserEmail, map[string]interface{}{"User": user})
	}
	utils.Logger.Info("user registered", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Authenticate resolves login (email or username) and checks the password.
func (s *AccountService) Authenticate(db *gorm.DB, login, password string) (*models.User, error) {
	user, err := models.FindUserByLogin(db, login)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.VerifyPassword(password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *AccountService) sendConfirmation(user *models.User, baseURL string) error {
	token, _, err := s.tokens.Issue(user.ID, utils.PurposeConfirm, nil, s.cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("issue confirm token: %w", err)
	}
	s.send(user.Email, "Confirm Your Account", confirmEmail, map[string]interface{}{
		"User": user,
		"Link": baseURL + "/confirm/" + token,
	})
	return nil
}

// ResendConfirmation mails a fresh confirmation link. Earlier links stay valid until they expire.
func (s *AccountService) ResendConfirmation(user *models.User, baseURL string) error {
	if user.Confirmed {
		return ErrAlreadyConfirmed
	}
	return s.sendConfirmation(user, baseURL)
}

// Confirm marks user as confirmed when token is a live confirm token issued to that user.
// Confirming an already confirmed user is a no-op.
func (s *AccountService) Confirm(db *gorm.DB, user *models.User, token string) error {
	if user.Confirmed {
		return nil
	}
	if _, err := s.tokens.VerifyFor(token, utils.PurposeConfirm, user.ID); err != nil {
		return ErrInvalidToken
	}
	user.Confirmed = true
	return db.Model(user).Update("confirmed", true).Error
}

// RequestPasswordReset mails a reset link when email belongs to a user. Unknown addresses get
// the same nil result so the response does not reveal which emails exist.
func (s *AccountService) RequestPasswordReset(db *gorm.DB, email, baseURL string) error {
	var user models.User
	err := db.Where("email = ?", models.NormalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	token, _, err := s.tokens.Issue(user.ID, utils.PurposeReset, nil, s.cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	s.send(user.Email, "Reset Your Password", resetEmail, map[string]interface{}{
		"User": &user,
		"Link": baseURL + "/reset/" + token,
	})
	return nil
}

// ResetPassword sets a new password for the user named by a live reset token.
func (s *AccountService) ResetPassword(db *gorm.DB, token, newPassword string) error {
	if newPassword == "" {
		return ErrEmptyPassword
	}
	subject, _, err := s.tokens.Verify(token, utils.PurposeReset)
	if err != nil {
		return ErrInvalidToken
	}
	var user models.User
	if err := db.First(&user, subject).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if err := user.SetPassword(newPassword); err != nil {
		return err
	}
	return db.Model(&user).Update("password_hash", user.PasswordHash).Error
}

// ChangePassword replaces the password after checking the current one. Existing sessions and API
// tokens stop verifying because they carry a fingerprint of the old hash.
func (s *AccountService) ChangePassword(db *gorm.DB, user *models.User, oldPassword, newPassword string) error {
	if !user.VerifyPassword(oldPassword) {
		return ErrInvalidCredentials
	}
	if newPassword == "" {
		return ErrEmptyPassword
	}
	if err := user.SetPassword(newPassword); err != nil {
		return err
	}
	return db.Model(user).Update("password_hash", user.PasswordHash).Error
}

// RequestEmailChange mails a change_email link to newEmail after checking the password and that
// the address is free.
func (s *AccountService) RequestEmailChange(db *gorm.DB, user *models.User, newEmail, password, baseURL string) error {
	if !user.VerifyPassword(password) {
		return ErrInvalidCredentials
	}
	email, err := validateEmail(newEmail)
	if err != nil {
		return err
	}
	taken, err := s.emailInUse(db, email)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}
	token, _, err := s.tokens.Issue(user.ID, utils.PurposeChangeEmail, map[string]string{"new_email": email}, s.cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("issue change_email token: %w", err)
	}
	s.send(email, "Confirm your email address", changeEmail, map[string]interface{}{
		"User": user,
		"Link": baseURL + "/change_email/" + token,
	})
	return nil
}

// ChangeEmail applies a change_email token issued to user. Uniqueness is checked again because
// the address may have been claimed since the link was sent.
func (s *AccountService) ChangeEmail(db *gorm.DB, user *models.User, token string) error {
	payload, err := s.tokens.VerifyFor(token, utils.PurposeChangeEmail, user.ID)
	if err != nil {
		return ErrInvalidToken
	}
	email := models.NormalizeEmail(payload["new_email"])
	if email == "" {
		return ErrInvalidToken
	}
	taken, err := s.emailInUse(db, email)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}
	user.Email = email
	return db.Omit("Role").Save(user).Error
}

func passwordFingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}

// IssueAccessToken mints a credential of the given purpose (api or session) for user.
func (s *AccountService) IssueAccessToken(user *models.User, purpose string, ttl time.Duration) (string, time.Time, error) {
	return s.tokens.Issue(user.ID, purpose, map[string]string{pwFingerprintKey: passwordFingerprint(user.PasswordHash)}, ttl)
}

// UserForAccessToken resolves an api or session token to its user. Tokens minted before the
// last password change, and tokens revoked by RevokeAccessToken, are rejected.
func (s *AccountService) UserForAccessToken(db *gorm.DB, token, purpose string) (*models.User, error) {
	claims, err := s.tokens.Parse(token, purpose)
	if err != nil {
		return nil, ErrInvalidToken
	}
	subject, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || subject == 0 {
		return nil, ErrInvalidToken
	}
	if s.revoked.IsRevoked(dbContext(db), claims.ID) {
		return nil, ErrInvalidToken
	}
	user, err := models.FindUserByID(db, uint(subject))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if claims.Payload[pwFingerprintKey] != passwordFingerprint(user.PasswordHash) {
		return nil, ErrInvalidToken
	}
	return user, nil
}

// RevokeAccessToken invalidates a single api or session token before it expires. Invalid
// tokens are ignored.
func (s *AccountService) RevokeAccessToken(ctx context.Context, token, purpose string) {
	claims, err := s.tokens.Parse(token, purpose)
	if err != nil || claims.ExpiresAt == nil {
		return
	}
	s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

func dbContext(db *gorm.DB) context.Context {
	if db.Statement != nil && db.Statement.Context != nil {
		return db.Statement.Context
	}
	return context.Background()
}
