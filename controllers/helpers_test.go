package controllers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cppla/bloghub/config"
	"github.com/cppla/bloghub/routes"
	"github.com/cppla/bloghub/services"
	"github.com/cppla/bloghub/testutil"
	"github.com/cppla/bloghub/utils"
)

// testApp is a full router over a private database with mail captured in memory.
type testApp struct {
	t        *testing.T
	cfg      *config.AppConfig
	db       *gorm.DB
	router   *gin.Engine
	mailer   *testutil.RecordingMailer
	dispatch *utils.MailDispatcher
	accounts *services.AccountService
	tokens   *utils.TokenService
}

func newTestApp(t *testing.T, tweak ...func(*config.AppConfig)) *testApp {
	t.Helper()
	return newTestAppWithCache(t, utils.NewCache(nil, 0), tweak...)
}

func newTestAppWithCache(t *testing.T, cache *utils.Cache, tweak ...func(*config.AppConfig)) *testApp {
	t.Helper()
	cfg := testutil.TestConfig(t)
	for _, f := range tweak {
		f(cfg)
	}
	db := testutil.SetupTestDB(t, cfg)
	mailer := &testutil.RecordingMailer{}
	dispatch := utils.NewMailDispatcher(mailer, cfg.MailSubjectPrefix)
	tokens := utils.NewTokenService(cfg.SecretKey)
	accounts := services.NewAccountService(cfg, tokens, dispatch)

	router, err := routes.SetupRouter(cfg, db, routes.Deps{Accounts: accounts, Cache: cache})
	require.NoError(t, err)
	return &testApp{
		t:        t,
		cfg:      cfg,
		db:       db,
		router:   router,
		mailer:   mailer,
		dispatch: dispatch,
		accounts: accounts,
		tokens:   tokens,
	}
}

func (a *testApp) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// apiRequest builds a JSON request. user and password feed HTTP Basic auth when user is set.
func apiRequest(method, target, user, password string, body interface{}) *http.Request {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.SetBasicAuth(user, password)
	}
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// pathOf strips scheme and host from an absolute URL returned by the API.
func pathOf(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.RequestURI()
}

// browser keeps cookies across requests to the web UI.
type browser struct {
	app     *testApp
	cookies map[string]string
}

func (a *testApp) browser() *browser {
	return &browser{app: a, cookies: map[string]string{}}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	for name, value := range b.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	rec := b.app.serve(req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c.Value
	}
	return rec
}

func (b *browser) get(target string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (b *browser) post(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) login(t *testing.T, login, password string) {
	t.Helper()
	rec := b.post("/login", url.Values{"email": {login}, "password": {password}})
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	require.Contains(t, b.cookies, "session")
}
