package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/ksiportal/internal/backend"
	"github.com/hitoshi/ksiportal/internal/middleware"
	"github.com/hitoshi/ksiportal/internal/model"
	"github.com/hitoshi/ksiportal/internal/validation"
)

// パスワード再設定まわりの文言
const (
	msgForgotPasswordFailed = "Failed to send reset email. Please try again."
	msgForgotPasswordSent   = "If an account exists for this email, a password reset link has been sent."
	msgResetPasswordFailed  = "Failed to reset password"
	msgResetPasswordDone    = "Password has been reset successfully."
	msgResetTokenMissing    = "Invalid or missing token."
	msgValidateTokenFailed  = "Failed to validate reset token"
	msgRegistrationDone     = "Registration successful. Please sign in."
	msgPasswordChanged      = "Password changed successfully."
)

// AuthHandler はセッションと認証関連のHTTPハンドラー。
type AuthHandler struct{}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token string `json:"token"`
	validation.ResetPasswordForm
}

type validateTokenRequest struct {
	Token string `json:"token"`
}

type validateTokenResponse struct {
	Valid bool `json:"valid"`
}

// Session は現在のセッション状態を返す。
// GET /api/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws.Session.Status())
}

// Login は認証を行い、成功時にセッション状態を返す。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	var form validation.LoginForm
	if !decodeJSON(w, r, &form) {
		return
	}
	if errs := validation.ValidateLogin(form); !errs.Valid() {
		middleware.WriteValidationErrors(w, errs)
		return
	}

	if !ws.Login(r.Context(), strings.TrimSpace(form.UserName), form.Password) {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError(ws.Session.Err()))
		return
	}

	writeJSON(w, http.StatusOK, ws.Session.Status())
}

// Register はアカウントを登録する。登録してもログイン状態にはならない。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	var form validation.RegistrationForm
	if !decodeJSON(w, r, &form) {
		return
	}
	if errs := validation.ValidateRegistration(form); !errs.Valid() {
		middleware.WriteValidationErrors(w, errs)
		return
	}

	data := model.RegisterData{
		FirstName:       strings.TrimSpace(form.FirstName),
		LastName:        strings.TrimSpace(form.LastName),
		Phone:           strings.TrimSpace(form.Phone),
		Email:           strings.TrimSpace(form.Email),
		Password:        form.Password,
		ConfirmPassword: form.ConfirmPassword,
	}
	if !ws.Session.Register(r.Context(), data) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewBackendError(ws.Session.Err()))
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{Message: msgRegistrationDone})
}

// Logout はセッションと利用者に紐づく状態を破棄する。失敗しない。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}
	ws.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword はログイン中のパスワードを変更する。
// POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	var form validation.ChangePasswordForm
	if !decodeJSON(w, r, &form) {
		return
	}
	if errs := validation.ValidateChangePassword(form); !errs.Valid() {
		middleware.WriteValidationErrors(w, errs)
		return
	}

	if !ws.Session.ChangePassword(r.Context(), form.CurrentPassword, form.NewPassword) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewBackendError(ws.Session.Err()))
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgPasswordChanged})
}

// ForgotPassword はパスワード再設定メールの送信を依頼する。
// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	var req forgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidateEmail(req.Email); !errs.Valid() {
		middleware.WriteValidationErrors(w, errs)
		return
	}

	if err := ws.API.ForgotPassword(r.Context(), strings.TrimSpace(req.Email)); err != nil {
		slog.Warn("forgot password request failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewBackendError(msgForgotPasswordFailed))
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgForgotPasswordSent})
}

// ResetPassword はメールのトークンを使ってパスワードを再設定する。
// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errs := validation.ValidateResetPassword(req.ResetPasswordForm); !errs.Valid() {
		middleware.WriteValidationErrors(w, errs)
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError(msgResetTokenMissing))
		return
	}

	err := ws.API.ResetPassword(r.Context(), model.ResetPasswordData{
		Token:           req.Token,
		NewPassword:     req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadGateway,
			model.NewBackendError(backend.MessageOf(err, msgResetPasswordFailed)))
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgResetPasswordDone})
}

// ValidateResetToken は再設定トークンが有効かを返す。
// POST /api/auth/validate-reset-token
func (h *AuthHandler) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	ws, ok := currentWorkspace(w, r)
	if !ok {
		return
	}

	var req validateTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeJSON(w, http.StatusOK, validateTokenResponse{Valid: false})
		return
	}

	valid, err := ws.API.ValidateResetToken(r.Context(), req.Token)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadGateway,
			model.NewBackendError(backend.MessageOf(err, msgValidateTokenFailed)))
		return
	}
	writeJSON(w, http.StatusOK, validateTokenResponse{Valid: valid})
}
