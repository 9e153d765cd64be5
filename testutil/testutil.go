// Package testutil holds fixtures shared by package tests: an isolated in-memory database per
// test, a recording mailer, and user factories.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cppla/bloghub/config"
	"github.com/cppla/bloghub/models"
	"github.com/cppla/bloghub/utils"
)

// DefaultPassword is the password given to users created by CreateUser.
const DefaultPassword = "cat"

// TestConfig returns the testing profile with a database private to t.
func TestConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg, err := config.Load(config.ProfileTesting)
	if err != nil {
		t.Fatalf("load testing config: %v", err)
	}
	cfg.DatabaseURI = fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", uuid.NewString())
	cfg.SecretKey = "test-secret"
	cfg.AdminEmail = ""
	utils.SetPasswordCost(cfg.PasswordCost)
	return cfg
}

// SetupTestDB opens a fresh migrated database with the canonical roles inserted.
func SetupTestDB(t *testing.T, cfg *config.AppConfig) *gorm.DB {
	t.Helper()
	db, err := config.InitDatabase(cfg, nil, models.All()...)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := models.InsertRoles(db); err != nil {
		t.Fatalf("insert roles: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// RecordingMailer keeps every delivered message in memory.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []utils.Message
}

// Deliver implements utils.Mailer.
func (m *RecordingMailer) Deliver(_ context.Context, msg utils.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of the delivered messages.
func (m *RecordingMailer) Sent() []utils.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]utils.Message(nil), m.sent...)
}

// SentTo returns the messages addressed to to.
func (m *RecordingMailer) SentTo(to string) []utils.Message {
	var out []utils.Message
	for _, msg := range m.Sent() {
		if msg.To == to {
			out = append(out, msg)
		}
	}
	return out
}

// LinkIn extracts the first URL in msg that contains marker, e.g. "/confirm/".
func LinkIn(msg utils.Message, marker string) string {
	for _, field := range strings.Fields(msg.Text) {
		if strings.Contains(field, marker) {
			return field
		}
	}
	return ""
}

// TokenAfter returns the path segment following marker in link.
func TokenAfter(link, marker string) string {
	i := strings.Index(link, marker)
	if i < 0 {
		return ""
	}
	return link[i+len(marker):]
}

// CreateUser inserts a user with the named role and DefaultPassword.
func CreateUser(t *testing.T, db *gorm.DB, username string, confirmed bool, roleName string) *models.User {
	t.Helper()
	role, err := models.RoleByName(db, roleName)
	if err != nil {
		t.Fatalf("role %s: %v", roleName, err)
	}
	u := &models.User{
		Email:     username + "@example.com",
		Username:  username,
		Confirmed: confirmed,
		RoleID:    role.ID,
	}
	if err := u.SetPassword(DefaultPassword); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	u.Role = role
	return u
}

// CreatePost inserts a post authored by author.
func CreatePost(t *testing.T, db *gorm.DB, author *models.User, body string) *models.Post {
	t.Helper()
	p := &models.Post{Body: body, AuthorID: author.ID}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	return p
}
