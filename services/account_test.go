package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/cppla/bloghub/config"
	"github.com/cppla/bloghub/models"
	"github.com/cppla/bloghub/services"
	"github.com/cppla/bloghub/testutil"
	"github.com/cppla/bloghub/utils"
)

const baseURL = "http://blog.test"

type AccountServiceSuite struct {
	suite.Suite
	cfg      *config.AppConfig
	db       *gorm.DB
	mailer   *testutil.RecordingMailer
	dispatch *utils.MailDispatcher
	tokens   *utils.TokenService
	svc      *services.AccountService
}

func (s *AccountServiceSuite) SetupTest() {
	s.cfg = testutil.TestConfig(s.T())
	s.cfg.AdminEmail = "admin@example.com"
	s.db = testutil.SetupTestDB(s.T(), s.cfg)
	s.mailer = &testutil.RecordingMailer{}
	s.dispatch = utils.NewMailDispatcher(s.mailer, s.cfg.MailSubjectPrefix)
	s.tokens = utils.NewTokenService(s.cfg.SecretKey)
	s.svc = services.NewAccountService(s.cfg, s.tokens, s.dispatch)
}

func (s *AccountServiceSuite) register(email, username string) *models.User {
	u, err := s.svc.Register(s.db, services.RegisterInput{
		Email: email, Username: username, Password: "cat", Password2: "cat",
	}, baseURL)
	s.Require().NoError(err)
	s.dispatch.Wait()
	return u
}

func (s *AccountServiceSuite) confirmToken(u *models.User) string {
	msgs := s.mailer.SentTo(u.Email)
	s.Require().NotEmpty(msgs)
	link := testutil.LinkIn(msgs[len(msgs)-1], "/confirm/")
	s.Require().NotEmpty(link)
	return testutil.TokenAfter(link, "/confirm/")
}

func (s *AccountServiceSuite) TestRegisterCreatesUnconfirmedUser() {
	u := s.register("John@Example.com", "john")

	s.Equal("john@example.com", u.Email)
	s.False(u.Confirmed)
	s.Equal(models.RoleUser, u.Role.Name)

	var stored models.User
	s.Require().NoError(s.db.First(&stored, u.ID).Error)
	s.NotEqual("cat", stored.PasswordHash)

	msgs := s.mailer.SentTo("john@example.com")
	s.Require().Len(msgs, 1)
	s.Equal("[Bloghub] Confirm Your Account", msgs[0].Subject)
	s.Contains(msgs[0].Text, baseURL+"/confirm/")

	s.Len(s.mailer.SentTo("admin@example.com"), 1)
}

func (s *AccountServiceSuite) TestRegisterAdminEmailGetsAdministrator() {
	u := s.register("admin@example.com", "boss")
	s.Equal(models.RoleAdministrator, u.Role.Name)
	s.True(u.IsAdministrator())
}

func (s *AccountServiceSuite) TestRegisterValidation() {
	s.register("john@example.com", "john")

	cases := []struct {
		in   services.RegisterInput
		want error
	}{
		{services.RegisterInput{Email: "JOHN@example.com", Username: "other", Password: "a", Password2: "a"}, services.ErrEmailTaken},
		{services.RegisterInput{Email: "x@example.com", Username: "john", Password: "a", Password2: "a"}, services.ErrUsernameTaken},
		{services.RegisterInput{Email: "y@example.com", Username: "1john", Password: "a", Password2: "a"}, services.ErrInvalidUsername},
		{services.RegisterInput{Email: "y@example.com", Username: "jo hn", Password: "a", Password2: "a"}, services.ErrInvalidUsername},
		{services.RegisterInput{Email: "y@example.com", Username: "y", Password: "a", Password2: "b"}, services.ErrPasswordMismatch},
		{services.RegisterInput{Email: "y@example.com", Username: "y", Password: "", Password2: ""}, services.ErrEmptyPassword},
		{services.RegisterInput{Email: "not-an-email", Username: "y", Password: "a", Password2: "a"}, services.ErrInvalidEmail},
	}
	for _, tc := range cases {
		_, err := s.svc.Register(s.db, tc.in, baseURL)
		s.ErrorIs(err, tc.want, "%+v", tc.in)
	}
}

func (s *AccountServiceSuite) TestAuthenticate() {
	s.register("john@example.com", "john.doe")

	u, err := s.svc.Authenticate(s.db, "JOHN@example.com", "cat")
	s.Require().NoError(err)
	s.Equal("john.doe", u.Username)
	s.NotNil(u.Role)

	_, err = s.svc.Authenticate(s.db, "john.doe", "cat")
	s.NoError(err)

	_, err = s.svc.Authenticate(s.db, "john.doe", "dog")
	s.ErrorIs(err, services.ErrInvalidCredentials)
	_, err = s.svc.Authenticate(s.db, "nobody@example.com", "cat")
	s.ErrorIs(err, services.ErrInvalidCredentials)
}

func (s *AccountServiceSuite) TestConfirm() {
	u := s.register("john@example.com", "john")
	token := s.confirmToken(u)

	s.Require().NoError(s.svc.Confirm(s.db, u, token))
	s.True(u.Confirmed)

	var stored models.User
	s.Require().NoError(s.db.First(&stored, u.ID).Error)
	s.True(stored.Confirmed)

	// confirmation never reverts, even with a bad token
	s.NoError(s.svc.Confirm(s.db, u, "garbage"))
	s.True(u.Confirmed)
}

func (s *AccountServiceSuite) TestConfirmRejectsOtherUsersToken() {
	john := s.register("john@example.com", "john")
	susan := s.register("susan@example.com", "susan")

	err := s.svc.Confirm(s.db, susan, s.confirmToken(john))
	s.ErrorIs(err, services.ErrInvalidToken)
	s.False(susan.Confirmed)
}

func (s *AccountServiceSuite) TestConfirmRejectsExpiredToken() {
	u := s.register("john@example.com", "john")
	token := s.confirmToken(u)

	late := services.NewAccountService(s.cfg, s.tokens.WithClock(func() time.Time {
		return time.Now().Add(2 * time.Hour)
	}), s.dispatch)
	s.ErrorIs(late.Confirm(s.db, u, token), services.ErrInvalidToken)
}

func (s *AccountServiceSuite) TestResendConfirmationKeepsOlderTokens() {
	u := s.register("john@example.com", "john")
	first := s.confirmToken(u)

	s.Require().NoError(s.svc.ResendConfirmation(u, baseURL))
	s.dispatch.Wait()
	second := s.confirmToken(u)
	s.NotEqual(first, second)

	s.NoError(s.svc.Confirm(s.db, u, first))
	s.ErrorIs(s.svc.ResendConfirmation(u, baseURL), services.ErrAlreadyConfirmed)
}

func (s *AccountServiceSuite) TestPasswordReset() {
	u := s.register("john@example.com", "john")

	s.Require().NoError(s.svc.RequestPasswordReset(s.db, "JOHN@example.com", baseURL))
	s.dispatch.Wait()
	msgs := s.mailer.SentTo("john@example.com")
	s.Require().Len(msgs, 2)
	token := testutil.TokenAfter(testutil.LinkIn(msgs[1], "/reset/"), "/reset/")
	s.Require().NotEmpty(token)

	// a reset token is not a confirm token
	s.ErrorIs(s.svc.Confirm(s.db, u, token), services.ErrInvalidToken)

	s.Require().NoError(s.svc.ResetPassword(s.db, token, "dog"))
	_, err := s.svc.Authenticate(s.db, "john", "dog")
	s.NoError(err)

	var stored models.User
	s.Require().NoError(s.db.First(&stored, u.ID).Error)
	s.False(stored.Confirmed)

	s.ErrorIs(s.svc.ResetPassword(s.db, "garbage", "x"), services.ErrInvalidToken)
}

func (s *AccountServiceSuite) TestPasswordResetUnknownEmailIsSilent() {
	s.NoError(s.svc.RequestPasswordReset(s.db, "ghost@example.com", baseURL))
	s.dispatch.Wait()
	s.Empty(s.mailer.SentTo("ghost@example.com"))
}

func (s *AccountServiceSuite) TestChangePasswordRevokesAccessTokens() {
	u := s.register("john@example.com", "john")
	token, _, err := s.svc.IssueAccessToken(u, utils.PurposeSession, time.Hour)
	s.Require().NoError(err)

	got, err := s.svc.UserForAccessToken(s.db, token, utils.PurposeSession)
	s.Require().NoError(err)
	s.Equal(u.ID, got.ID)
	_, err = s.svc.UserForAccessToken(s.db, token, utils.PurposeAPI)
	s.ErrorIs(err, services.ErrInvalidToken)

	s.ErrorIs(s.svc.ChangePassword(s.db, u, "wrong", "dog"), services.ErrInvalidCredentials)
	s.Require().NoError(s.svc.ChangePassword(s.db, u, "cat", "dog"))

	_, err = s.svc.UserForAccessToken(s.db, token, utils.PurposeSession)
	s.ErrorIs(err, services.ErrInvalidToken)
}

func (s *AccountServiceSuite) TestRevokeAccessTokenOnlyAffectsThatToken() {
	u := s.register("john@example.com", "john")
	first, _, err := s.svc.IssueAccessToken(u, utils.PurposeSession, time.Hour)
	s.Require().NoError(err)
	second, _, err := s.svc.IssueAccessToken(u, utils.PurposeSession, time.Hour)
	s.Require().NoError(err)

	s.svc.RevokeAccessToken(context.Background(), first, utils.PurposeSession)
	s.svc.RevokeAccessToken(context.Background(), "garbage", utils.PurposeSession)

	_, err = s.svc.UserForAccessToken(s.db, first, utils.PurposeSession)
	s.ErrorIs(err, services.ErrInvalidToken)
	got, err := s.svc.UserForAccessToken(s.db, second, utils.PurposeSession)
	s.Require().NoError(err)
	s.Equal(u.ID, got.ID)
}

func (s *AccountServiceSuite) TestChangeEmail() {
	u := s.register("john@example.com", "john")
	oldHash := u.AvatarHash

	s.ErrorIs(s.svc.RequestEmailChange(s.db, u, "new@example.com", "wrong", baseURL), services.ErrInvalidCredentials)
	s.Require().NoError(s.svc.RequestEmailChange(s.db, u, "New@Example.com", "cat", baseURL))
	s.dispatch.Wait()

	msgs := s.mailer.SentTo("new@example.com")
	s.Require().Len(msgs, 1)
	token := testutil.TokenAfter(testutil.LinkIn(msgs[0], "/change_email/"), "/change_email/")

	s.Require().NoError(s.svc.ChangeEmail(s.db, u, token))
	s.Equal("new@example.com", u.Email)
	s.NotEqual(oldHash, u.AvatarHash)

	var stored models.User
	s.Require().NoError(s.db.First(&stored, u.ID).Error)
	s.Equal("new@example.com", stored.Email)
}

func (s *AccountServiceSuite) TestChangeEmailRechecksUniqueness() {
	u := s.register("john@example.com", "john")
	s.Require().NoError(s.svc.RequestEmailChange(s.db, u, "new@example.com", "cat", baseURL))
	s.dispatch.Wait()
	token := testutil.TokenAfter(testutil.LinkIn(s.mailer.SentTo("new@example.com")[0], "/change_email/"), "/change_email/")

	// someone claims the address before the link is used
	s.register("new@example.com", "susan")
	s.ErrorIs(s.svc.ChangeEmail(s.db, u, token), services.ErrEmailTaken)

	s.NoError(s.svc.RequestEmailChange(s.db, u, "other@example.com", "cat", baseURL))
	s.ErrorIs(s.svc.RequestEmailChange(s.db, u, "new@example.com", "cat", baseURL), services.ErrEmailTaken)
}

func (s *AccountServiceSuite) TestChangeEmailRejectsOtherUsersToken() {
	john := s.register("john@example.com", "john")
	susan := s.register("susan@example.com", "susan")
	s.Require().NoError(s.svc.RequestEmailChange(s.db, john, "new@example.com", "cat", baseURL))
	s.dispatch.Wait()
	token := testutil.TokenAfter(testutil.LinkIn(s.mailer.SentTo("new@example.com")[0], "/change_email/"), "/change_email/")

	s.ErrorIs(s.svc.ChangeEmail(s.db, susan, token), services.ErrInvalidToken)
}

func TestAccountService(t *testing.T) {
	suite.Run(t, new(AccountServiceSuite))
}

func TestRegisterWithoutAdminSendsNoNotification(t *testing.T) {
	cfg := testutil.TestConfig(t)
	db := testutil.SetupTestDB(t, cfg)
	mailer := &testutil.RecordingMailer{}
	d := utils.NewMailDispatcher(mailer, "")
	svc := services.NewAccountService(cfg, utils.NewTokenService(cfg.SecretKey), d)

	_, err := svc.Register(db, services.RegisterInput{Email: "a@example.com", Username: "a", Password: "p", Password2: "p"}, baseURL)
	require.NoError(t, err)
	d.Wait()
	assert.Len(t, mailer.Sent(), 1)
}
