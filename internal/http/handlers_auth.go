package http

import (
	"errors"
	"net/http"

	"spendwise/internal/auth"
	"spendwise/internal/log"
)

func (s *Server) handleSignInPage(w http.ResponseWriter, r *http.Request) {
	if auth.UserID(r.Context()) != "" {
		http.Redirect(w, r, pathList, http.StatusSeeOther)
		return
	}
	data := pageData{Title: "Login"}
	if r.URL.Query().Get("created") == "1" {
		data.Dialog = &Dialog{Title: TitleSuccess, Message: "Your account has been created. Please log in."}
	}
	s.render(w, r, http.StatusOK, "signin.html", data)
}

func (s *Server) handleSignUpPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "signup.html", pageData{Title: "Create Account"})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	p := parseBody(w, r)
	if p == nil {
		return
	}
	email, password := p.Get("email"), p.Secret("password")
	if email == "" || password == "" {
		ValidationError(auth.ErrMissingCredentials.Error()).Write(w)
		return
	}

	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentAuth)

	id, err := s.deps.Accounts.SignIn(ctx, email, password)
	if err != nil {
		logger.WarnContext(ctx, "Sign-in failed",
			log.FieldOperation, log.OpSignIn,
			log.FieldClientIP, s.detector.ClientIP(r),
			log.FieldError, err)
		DialogResponse(authStatus(err), TitleLoginError, err.Error()).Write(w)
		return
	}

	sess, err := s.deps.Sessions.Start(id)
	if err != nil {
		logger.ErrorContext(ctx, "Session start failed", log.FieldUserID, id.UserID, log.FieldError, err)
		DialogResponse(http.StatusInternalServerError, TitleLoginError, err.Error()).Write(w)
		return
	}
	auth.SetCookie(w, sess, int(s.deps.Sessions.TTL().Seconds()), s.opts.SecureCookies)

	logger.InfoContext(ctx, "User signed in", log.FieldOperation, log.OpSignIn, log.FieldUserID, id.UserID)
	s.navigate(w, r, pathList)
}

// handleSignUp creates the account and the user's zero-total document, then
// sends the browser back to sign-in.
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	p := parseBody(w, r)
	if p == nil {
		return
	}
	email, password := p.Get("email"), p.Secret("password")
	if email == "" || password == "" {
		ValidationError(auth.ErrMissingCredentials.Error()).Write(w)
		return
	}

	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentAuth)

	id, err := s.deps.Accounts.CreateAccount(ctx, email, password)
	if err != nil {
		logger.WarnContext(ctx, "Account creation failed",
			log.FieldOperation, log.OpSignUp,
			log.FieldClientIP, s.detector.ClientIP(r),
			log.FieldError, err)
		DialogResponse(authStatus(err), TitleAccountError, err.Error()).Write(w)
		return
	}

	if err := s.deps.Ledger.CreateUser(ctx, id.UserID); err != nil {
		logger.ErrorContext(ctx, "User document creation failed",
			log.FieldOperation, log.OpSignUp,
			log.FieldUserID, id.UserID,
			log.FieldError, err)
		DialogResponse(http.StatusInternalServerError, TitleDatabaseError, "Error: "+err.Error()).Write(w)
		return
	}

	logger.InfoContext(ctx, "Account created", log.FieldOperation, log.OpSignUp, log.FieldUserID, id.UserID)
	s.navigate(w, r, pathCreated)
}

// handleSignOut ends the provider session first; if that fails the browser
// stays signed in.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := auth.SessionFrom(ctx)
	logger := log.FromContext(ctx).WithComponent(log.ComponentAuth)

	if err := s.deps.Accounts.SignOut(ctx, sess.Identity); err != nil {
		logger.ErrorContext(ctx, "Sign-out failed",
			log.FieldOperation, log.OpSignOut,
			log.FieldUserID, sess.Identity.UserID,
			log.FieldError, err)
		DialogResponse(http.StatusInternalServerError, TitleLogoutError, err.Error()).Write(w)
		return
	}

	s.deps.Sessions.End(sess.Token)
	auth.ClearCookie(w, s.opts.SecureCookies)
	logger.InfoContext(ctx, "User signed out", log.FieldOperation, log.OpSignOut, log.FieldUserID, sess.Identity.UserID)
	s.navigate(w, r, pathSignIn)
}

// navigate moves the browser to path: HX-Redirect for htmx, 303 otherwise.
func (s *Server) navigate(w http.ResponseWriter, r *http.Request, path string) {
	if r.Header.Get("HX-Request") == "true" {
		NewHTMXResponse().Redirect(path).Write(w)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

func authStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrMissingCredentials):
		return http.StatusUnprocessableEntity
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}
