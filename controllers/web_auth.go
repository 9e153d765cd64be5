package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/bloghub/middleware"
	"github.com/cppla/bloghub/services"
	"github.com/cppla/bloghub/utils"
)

type loginForm struct {
	Email      string `form:"email"`
	Password   string `form:"password"`
	RememberMe bool   `form:"remember_me"`
}

type registerForm struct {
	Email     string `form:"email"`
	Username  string `form:"username"`
	Password  string `form:"password"`
	Password2 string `form:"password2"`
}

type passwordForm struct {
	OldPassword string `form:"old_password"`
	Password    string `form:"password"`
	Password2   string `form:"password2"`
}

type emailForm struct {
	Email    string `form:"email"`
	Password string `form:"password"`
}

// LoginPage shows the login form.
func (w *WebController) LoginPage(ctx *gin.Context) {
	w.render(ctx, http.StatusOK, "login.html", gin.H{"Title": "Login", "Form": loginForm{}, "Next": ctx.Query("next")})
}

// Login checks the credentials and starts a session.
func (w *WebController) Login(ctx *gin.Context) {
	var form loginForm
	_ = ctx.ShouldBind(&form)
	data := gin.H{"Title": "Login", "Form": loginForm{Email: form.Email}, "Next": ctx.Query("next")}
	if form.Email == "" || form.Password == "" {
		data["Errors"] = fieldErrors{"email": "Email and password are required."}
		w.render(ctx, http.StatusOK, "login.html", data)
		return
	}

	user, err := w.accounts.Authenticate(middleware.DB(ctx), form.Email, form.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		data["Errors"] = fieldErrors{"password": "Invalid email or password."}
		w.render(ctx, http.StatusOK, "login.html", data)
		return
	}
	if err != nil {
		w.internalError(ctx, err)
		return
	}

	ttl, maxAge := w.cfg.SessionTTL, 0
	if form.RememberMe {
		ttl = w.cfg.RememberMeTTL
		maxAge = int(ttl.Seconds())
	}
	token, _, err := w.accounts.IssueAccessToken(user, utils.PurposeSession, ttl)
	if err != nil {
		w.internalError(ctx, err)
		return
	}
	middleware.SetSession(ctx, token, maxAge)
	w.redirect(ctx, safeNext(ctx.Query("next")))
}

// Logout ends the session.
func (w *WebController) Logout(ctx *gin.Context) {
	if token, err := ctx.Cookie(middleware.SessionCookie); err == nil {
		w.accounts.RevokeAccessToken(ctx.Request.Context(), token, utils.PurposeSession)
	}
	middleware.ClearSession(ctx)
	middleware.Flash(ctx, "You have been logged out.")
	w.redirect(ctx, "/")
}

// RegisterPage shows the registration form.
func (w *WebController) RegisterPage(ctx *gin.Context) {
	w.render(ctx, http.StatusOK, "register.html", gin.H{"Title": "Register", "Form": registerForm{}})
}

// Register creates the account and sends the confirmation mail.
func (w *WebController) Register(ctx *gin.Context) {
	var form registerForm
	_ = ctx.ShouldBind(&form)
	_, err := w.accounts.Register(middleware.DB(ctx), services.RegisterInput{
		Email:     form.Email,
		Username:  form.Username,
		Password:  form.Password,
		Password2: form.Password2,
	}, baseURL(ctx))

	errs := fieldErrors{}
	switch {
	case err == nil:
		middleware.Flash(ctx, "A confirmation email has been sent to you by email.")
		w.redirect(ctx, "/login")
		return
	case errors.Is(err, services.ErrInvalidEmail), errors.Is(err, services.ErrEmailTaken):
		errs["email"] = err.Error()
	case errors.Is(err, services.ErrInvalidUsername), errors.Is(err, services.ErrUsernameTaken):
		errs["username"] = err.Error()
	case errors.Is(err, services.ErrEmptyPassword), errors.Is(err, services.ErrPasswordMismatch):
		errs["password"] = err.Error()
	default:
		w.internalError(ctx, err)
		return
	}
	form.Password, form.Password2 = "", ""
	w.render(ctx, http.StatusOK, "register.html", gin.H{"Title": "Register", "Form": form, "Errors": errs})
}

// Confirm redeems a confirmation link for the logged-in user.
func (w *WebController) Confirm(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	if user.Confirmed {
		w.redirect(ctx, "/")
		return
	}
	err := w.accounts.Confirm(middleware.DB(ctx), user, ctx.Param("token"))
	switch {
	case err == nil:
		middleware.Flash(ctx, "You have confirmed your account. Thanks!")
	case errors.Is(err, services.ErrInvalidToken):
		middleware.Flash(ctx, "The confirmation link is invalid or has expired.")
	default:
		w.internalError(ctx, err)
		return
	}
	w.redirect(ctx, "/")
}

// Unconfirmed is where the unconfirmed gate sends users.
func (w *WebController) Unconfirmed(ctx *gin.Context) {
	user := middleware.CurrentUser(ctx)
	if user == nil || user.Confirmed {
		w.redirect(ctx, "/")
		return
	}
	w.render(ctx, http.StatusOK, "unconfirmed.html", gin.H{"Title": "Confirm your account"})
}

// ResendConfirmation mails a fresh confirmation link.
func (w *WebController) ResendConfirmation(ctx *gin.Context) {
	err := w.accounts.ResendConfirmation(middleware.CurrentUser(ctx), baseURL(ctx))
	if err != nil && !errors.Is(err, services.ErrAlreadyConfirmed) {
		w.internalError(ctx, err)
		return
	}
	if err == nil {
		middleware.Flash(ctx, "A new confirmation email has been sent to you by email.")
	}
	w.redirect(ctx, "/")
}

// ChangePasswordPage shows the change password form.
func (w *WebController) ChangePasswordPage(ctx *gin.Context) {
	w.render(ctx, http.StatusOK, "change_password.html", gin.H{"Title": "Change Password"})
}

// ChangePassword replaces the password and ends the session, which no longer verifies.
func (w *WebController) ChangePassword(ctx *gin.Context) {
	var form passwordForm
	_ = ctx.ShouldBind(&form)
	render := func(errs fieldErrors) {
		w.render(ctx, http.StatusOK, "change_password.html", gin.H{"Title": "Change Password", "Errors": errs})
	}
	if form.Password != form.Password2 {
		render(fieldErrors{"password": services.ErrPasswordMismatch.Error()})
		return
	}
	err := w.accounts.ChangePassword(middleware.DB(ctx), middleware.CurrentUser(ctx), form.OldPassword, form.Password)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrInvalidCredentials):
		render(fieldErrors{"old_password": "Invalid password."})
		return
	case errors.Is(err, services.ErrEmptyPassword):
		render(fieldErrors{"password": err.Error()})
		return
	default:
		w.internalError(ctx, err)
		return
	}
	middleware.ClearSession(ctx)
	middleware.Flash(ctx, "Your password has been updated. Please log in again.")
	w.redirect(ctx, "/login")
}

// ResetRequestPage shows the forgotten password form.
func (w *WebController) ResetRequestPage(ctx *gin.Context) {
	if middleware.CurrentUser(ctx) != nil {
		w.redirect(ctx, "/")
		return
	}
	w.render(ctx, http.StatusOK, "reset_request.html", gin.H{"Title": "Reset Password", "Form": emailForm{}})
}

// ResetRequest mails a reset link. The response is the same whether or not the address is known.
func (w *WebController) ResetRequest(ctx *gin.Context) {
	if middleware.CurrentUser(ctx) != nil {
		w.redirect(ctx, "/")
		return
	}
	var form emailForm
	_ = ctx.ShouldBind(&form)
	if form.Email == "" {
		w.render(ctx, http.StatusOK, "reset_request.html", gin.H{
			"Title":  "Reset Password",
			"Form":   form,
			"Errors": fieldErrors{"email": services.ErrInvalidEmail.Error()},
		})
		return
	}
	if err := w.accounts.RequestPasswordReset(middleware.DB(ctx), form.Email, baseURL(ctx)); err != nil {
		w.internalError(ctx, err)
		return
	}
	middleware.Flash(ctx, "An email with instructions to reset your password has been sent to you.")
	w.redirect(ctx, "/login")
}

// ResetPage shows the new password form for a reset link.
func (w *WebController) ResetPage(ctx *gin.Context) {
	if middleware.CurrentUser(ctx) != nil {
		w.redirect(ctx, "/")
		return
	}
	w.render(ctx, http.StatusOK, "reset_password.html", gin.H{"Title": "Reset Password", "Token": ctx.Param("token")})
}

// Reset sets the new password named by a reset link.
func (w *WebController) Reset(ctx *gin.Context) {
	if middleware.CurrentUser(ctx) != nil {
		w.redirect(ctx, "/")
		return
	}
	var form passwordForm
	_ = ctx.ShouldBind(&form)
	token := ctx.Param("token")
	errs := fieldErrors{}
	if form.Password != form.Password2 {
		errs["password"] = services.ErrPasswordMismatch.Error()
	} else {
		err := w.accounts.ResetPassword(middleware.DB(ctx), token, form.Password)
		switch {
		case err == nil:
			middleware.Flash(ctx, "Your password has been updated.")
			w.redirect(ctx, "/login")
			return
		case errors.Is(err, services.ErrInvalidToken):
			middleware.Flash(ctx, "The reset link is invalid or has expired.")
			w.redirect(ctx, "/")
			return
		case errors.Is(err, services.ErrEmptyPassword):
			errs["password"] = err.Error()
		default:
			w.internalError(ctx, err)
			return
		}
	}
	w.render(ctx, http.StatusOK, "reset_password.html", gin.H{"Title": "Reset Password", "Token": token, "Errors": errs})
}

// ChangeEmailPage shows the change email form.
func (w *WebController) ChangeEmailPage(ctx *gin.Context) {
	w.render(ctx, http.StatusOK, "change_email.html", gin.H{"Title": "Change Email Address", "Form": emailForm{}})
}

// ChangeEmailRequest mails a confirmation link to the new address.
func (w *WebController) ChangeEmailRequest(ctx *gin.Context) {
	var form emailForm
	_ = ctx.ShouldBind(&form)
	err := w.accounts.RequestEmailChange(middleware.DB(ctx), middleware.CurrentUser(ctx), form.Email, form.Password, baseURL(ctx))
	errs := fieldErrors{}
	switch {
	case err == nil:
		middleware.Flash(ctx, "An email with instructions to confirm your new email address has been sent to you.")
		w.redirect(ctx, "/")
		return
	case errors.Is(err, services.ErrInvalidCredentials):
		errs["password"] = "Invalid email or password."
	case errors.Is(err, services.ErrInvalidEmail), errors.Is(err, services.ErrEmailTaken):
		errs["email"] = err.Error()
	default:
		w.internalError(ctx, err)
		return
	}
	w.render(ctx, http.StatusOK, "change_email.html", gin.H{
		"Title":  "Change Email Address",
		"Form":   emailForm{Email: form.Email},
		"Errors": errs,
	})
}

// ChangeEmail redeems a change_email link.
func (w *WebController) ChangeEmail(ctx *gin.Context) {
	err := w.accounts.ChangeEmail(middleware.DB(ctx), middleware.CurrentUser(ctx), ctx.Param("token"))
	switch {
	case err == nil:
		middleware.Flash(ctx, "Your email address has been updated.")
	case errors.Is(err, services.ErrInvalidToken), errors.Is(err, services.ErrEmailTaken):
		middleware.Flash(ctx, "Invalid request.")
	default:
		w.internalError(ctx, err)
		return
	}
	w.redirect(ctx, "/")
}
