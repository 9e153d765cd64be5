package templates

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/bloghub/models"
)

func TestLoadParsesEveryPage(t *testing.T) {
	r, err := Load()
	require.NoError(t, err)

	for _, page := range []string{
		"index.html", "user.html", "post.html", "edit_post.html", "edit_profile.html",
		"followers.html", "moderate.html", "login.html", "register.html", "unconfirmed.html",
		"change_password.html", "reset_request.html", "reset_password.html", "change_email.html",
		"error.html",
	} {
		assert.Contains(t, r.pages, page)
	}
	assert.NotContains(t, r.pages, "layout.html")
	assert.NotContains(t, r.pages, "_macros.html")
}

func TestErrorPageRendersInsideLayout(t *testing.T) {
	r, err := Load()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	require.NoError(t, r.Instance("error.html", gin.H{
		"Status":  404,
		"Title":   "Not Found",
		"Message": "nothing here",
	}).Render(w))

	body := w.Body.String()
	assert.Contains(t, body, "<title>Bloghub - Not Found</title>")
	assert.Contains(t, body, "404 Not Found")
	assert.Contains(t, body, "nothing here")
	assert.Contains(t, body, `href="/login"`)
}

func TestUnknownPageFallsBackToError(t *testing.T) {
	r, err := Load()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	require.NoError(t, r.Instance("missing.html", gin.H{"Status": 500, "Title": "Oops"}).Render(w))
	assert.Contains(t, w.Body.String(), "500 Oops")
}

func TestCanChecksNamedPermission(t *testing.T) {
	can := funcs["can"].(func(*models.User, string) bool)
	mod := &models.User{Role: &models.Role{Permissions: models.PermFollow | models.PermModerate}}

	assert.True(t, can(mod, "MODERATE"))
	assert.False(t, can(mod, "ADMIN"))
	assert.False(t, can(mod, "BOGUS"))
	assert.False(t, can(nil, "FOLLOW"))
}
