package controllers_test

import (
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/bloghub/models"
	"github.com/cppla/bloghub/testutil"
)

func TestHomePageAnonymous(t *testing.T) {
	app := newTestApp(t)
	john := testutil.CreateUser(t, app.db, "john", true, models.RoleUser)
	testutil.CreatePost(t, app.db, john, "hello *world*")

	rec := app.browser().get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Stranger")
	assert.Contains(t, rec.Body.String(), "<em>world</em>")
	assert.NotContains(t, rec.Body.String(), "<textarea")
}

func TestRegisterConfirmLogin(t *testing.T) {
	app := newTestApp(t)
	b := app.browser()

	rec := b.post("/register", url.Values{
		"email":     {"john@example.com"},
		"username":  {"john"},
		"password":  {"cat"},
		"password2": {"cat"},
	})
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	b.login(t, "john@example.com", "cat")
	rec = b.get("/")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/unconfirmed", rec.Header().Get("Location"))

	rec = b.get("/unconfirmed")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "You have not confirmed your account yet")

	app.dispatch.Wait()
	msgs := app.mailer.SentTo("john@example.com")
	require.Len(t, msgs, 1)
	link := testutil.LinkIn(msgs[0], "/confirm/")
	require.NotEmpty(t, link)

	rec = b.get(pathOf(t, link))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = b.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "You have confirmed your account")
	assert.Contains(t, rec.Body.String(), "Hello, john!")
}

func TestUnconfirmedUserReachesAccountPages(t *testing.T) {
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "john", false, models.RoleUser)
	b := app.browser()
	b.login(t, "john", "cat")

	for _, target := range []string{"/change_email", "/change-password"} {
		rec := b.get(target)
		assert.Equal(t, http.StatusOK, rec.Code, target)
	}

	rec := b.get("/change_email/not-a-token")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestRegisterShowsFieldErrors(t *testing.T) {
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "john", true, models.RoleUser)

	rec := app.browser().post("/register", url.Values{
		"email":     {"john@example.com"},
		"username":  {"johnny"},
		"password":  {"cat"},
		"password2": {"cat"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "email already registered")

	var n int64
	require.NoError(t, app.db.Model(&models.User{}).Where("username = ?", "johnny").Count(&n).Error)
	assert.Zero(t, n)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "john", true, models.RoleUser)
	b := app.browser()

	rec := b.post("/login", url.Values{"email": {"john@example.com"}, "password": {"dog"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid email or password.")
	assert.NotContains(t, b.cookies, "session")
}

func TestLoginHonoursNext(t *testing.T) {
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "john", true, models.RoleUser)
	b := app.browser()

	rec := b.get("/edit-profile")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?next=%2Fedit-profile", rec.Header().Get("Location"))

	rec = b.post("/login?next=%2Fedit-profile", url.Values{"email": {"john"}, "password": {"cat"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/edit-profile", rec.Header().Get("Location"))

	rec = b.post("/login?next=https%3A%2F%2Fevil.example", url.Values{"email": {"john"}, "password": {"cat"}})
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestLogoutFlashes(t *testing.T) {
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "john", true, models.RoleUser)
	b := app.browser()
	b.login(t, "john", "cat")
	session := b.cookies["session"]

	rec := b.get("/logout")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.NotContains(t, b.cookies, "session")

	replay := app.browser()
	replay.cookies["session"] = session
	rec = replay.get("/edit-profile")
	assert.Equal(t, http.StatusFound, rec.Code, "revoked session must not authenticate")

	rec = b.get("/")
	assert.Contains(t, rec.Body.String(), "You have been logged out.")
	rec = b.get("/")
	assert.NotContains(t, rec.Body.String(), "You have been logged out.")
}

func TestPostAndCommentPages(t *testing.T) {
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "john", true, models.RoleUser)
	b := app.browser()
	b.login(t, "john", "cat")

	rec := b.post("/", url.Values{"body": {"my **first** post"}})
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())

	var post models.Post
	require.NoError(t, app.db.First(&post).Error)
	assert.Equal(t, "<p>my <strong>first</strong> post</p>", post.BodyHTML)

	target := fmt.Sprintf("/post/%d", post.ID)
	rec = b.post(target, url.Values{"body": {"nice *work*"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, target+"?page=-1#comments", rec.Header().Get("Location"))

	rec = b.get(target + "?page=-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Your comment has been published.")
	assert.Contains(t, rec.Body.String(), "<em>work</em>")
	assert.Contains(t, rec.Body.String(), fmt.Sprintf(`href="/edit/%d"`, post.ID))
}

func TestEditPostForbiddenForOthers(t *testing.T) {
	app := newTestApp(t)
	john := testutil.CreateUser(t, app.db, "john", true, models.RoleUser)
	testutil.CreateUser(t, app.db, "susan", true, models.RoleUser)
	post := testutil.CreatePost(t, app.db, john, "john's post")
	b := app.browser()
	b.login(t, "susan", "cat")

	rec := b.get(fmt.Sprintf("/edit/%d", post.ID))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = b.post(fmt.Sprintf("/edit/%d", post.ID), url.Values{"body": {"mine now"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var stored models.Post
	require.NoError(t, app.db.First(&stored, post.ID).Error)
	assert.Equal(t, "john's post", stored.Body)
}

func TestFollowPages(t *testing.T) {
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "john", true, models.RoleUser)
	susan := testutil.CreateUser(t, app.db, "susan", true, models.RoleUser)
	testutil.CreatePost(t, app.db, susan, "susan's news")
	b := app.browser()
	b.login(t, "john", "cat")

	rec := b.get("/follow/susan")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/user/susan", rec.Header().Get("Location"))

	rec = b.get("/user/susan")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "You are now following susan.")
	assert.Contains(t, rec.Body.String(), "Followers: 1")
	assert.Contains(t, rec.Body.String(), "/unfollow/susan")

	rec = b.get("/followers/susan")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `href="/user/john"`)

	b.get("/followed")
	rec = b.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "news")

	rec = b.get("/follow/nobody")
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestModerationPages(t *testing.T) {
	app := newTestApp(t)
	john := testutil.CreateUser(t, app.db, "john", true, models.RoleUser)
	testutil.CreateUser(t, app.db, "mod", true, models.RoleModerator)
	post := testutil.CreatePost(t, app.db, john, "post")
	comment := models.Comment{Body: "rude remark", AuthorID: john.ID, PostID: post.ID}
	require.NoError(t, app.db.Create(&comment).Error)

	anon := app.browser()
	rec := anon.get("/moderate")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?next=%2Fmoderate", rec.Header().Get("Location"))

	user := app.browser()
	user.login(t, "john", "cat")
	assert.Equal(t, http.StatusForbidden, user.get("/moderate").Code)

	mod := app.browser()
	mod.login(t, "mod", "cat")
	rec = mod.get("/moderate")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rude remark")

	rec = mod.get(fmt.Sprintf("/moderate/disable/%d?page=1", comment.ID))
	require.Equal(t, http.StatusFound, rec.Code)
	var stored models.Comment
	require.NoError(t, app.db.First(&stored, comment.ID).Error)
	assert.True(t, stored.Disabled)

	rec = user.get(fmt.Sprintf("/post/%d", post.ID))
	assert.Contains(t, rec.Body.String(), "disabled by a moderator")
	assert.NotContains(t, rec.Body.String(), "rude remark")
}

func TestPasswordResetFlow(t *testing.T) {
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "john", true, models.RoleUser)
	b := app.browser()

	rec := b.post("/reset", url.Values{"email": {"john@example.com"}})
	require.Equal(t, http.StatusFound, rec.Code)
	app.dispatch.Wait()
	msgs := app.mailer.SentTo("john@example.com")
	require.Len(t, msgs, 1)
	link := testutil.LinkIn(msgs[0], "/reset/")

	rec = b.post(pathOf(t, link), url.Values{"password": {"dog"}, "password2": {"dog"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	b.login(t, "john", "dog")
}

func TestChangePasswordEndsSession(t *testing.T) {
	app := newTestApp(t)
	testutil.CreateUser(t, app.db, "john", true, models.RoleUser)
	b := app.browser()
	b.login(t, "john", "cat")
	oldSession := b.cookies["session"]

	rec := b.post("/change-password", url.Values{"old_password": {"dog"}, "password": {"x"}, "password2": {"x"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid password.")

	rec = b.post("/change-password", url.Values{"old_password": {"cat"}, "password": {"dog"}, "password2": {"dog"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	stale := app.browser()
	stale.cookies["session"] = oldSession
	rec = stale.get("/edit-profile")
	assert.Equal(t, http.StatusFound, rec.Code, "the old session no longer verifies")
}

func TestChangeEmailFlow(t *testing.T) {
	app := newTestApp(t)
	john := testutil.CreateUser(t, app.db, "john", true, models.RoleUser)
	b := app.browser()
	b.login(t, "john", "cat")

	rec := b.post("/change_email", url.Values{"email": {"John.New@Example.com"}, "password": {"cat"}})
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	app.dispatch.Wait()
	msgs := app.mailer.SentTo("john.new@example.com")
	require.Len(t, msgs, 1)

	rec = b.get(pathOf(t, testutil.LinkIn(msgs[0], "/change_email/")))
	require.Equal(t, http.StatusFound, rec.Code)

	var stored models.User
	require.NoError(t, app.db.First(&stored, john.ID).Error)
	assert.Equal(t, "john.new@example.com", stored.Email)
}

func TestAdminEditProfile(t *testing.T) {
	app := newTestApp(t)
	john := testutil.CreateUser(t, app.db, "john", true, models.RoleUser)
	testutil.CreateUser(t, app.db, "boss", true, models.RoleAdministrator)
	target := fmt.Sprintf("/edit-profile/%d", john.ID)

	user := app.browser()
	user.login(t, "john", "cat")
	assert.Equal(t, http.StatusForbidden, user.get(target).Code)

	admin := app.browser()
	admin.login(t, "boss", "cat")
	rec := admin.get(target)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "john@example.com")

	rec = admin.post(target, url.Values{
		"email":     {"john@example.com"},
		"username":  {"johnny"},
		"confirmed": {"true"},
		"role":      {models.RoleModerator},
		"name":      {"John Doe"},
	})
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, "/user/johnny", rec.Header().Get("Location"))

	found, err := models.FindUserByID(app.db, john.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleModerator, found.Role.Name)
	assert.Equal(t, "John Doe", found.Name)
}

func TestUnknownPageIsHTML404(t *testing.T) {
	app := newTestApp(t)
	rec := app.browser().get("/wrong/url")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not Found")

	req := apiRequest(http.MethodGet, "/wrong/url", "", "", nil)
	rec = app.serve(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", decode(t, rec)["error"])
}
