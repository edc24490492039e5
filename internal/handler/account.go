package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/showdex/internal/service"
)

const (
	msgRegisterRequired   = "All fields are required."
	msgLoginRequired      = "Login and password are required."
	msgVerifyRequired     = "Identifier and code required."
	msgIdentifierRequired = "Identifier required."
	msgResetRequired      = "Identifier, reset token, and new password required."

	msgAccountVerified  = "Account verified successfully!"
	msgPasswordReset    = "Password has been reset successfully!"
	msgResendUnknown    = "If your account exists and is not verified, a code will be sent."
	msgResendSent       = "A new verification code has been sent to your email."
	msgForgotUnknown    = "If your account exists, a reset code has been sent to your email."
	msgForgotSent       = "If your account exists, a reset email has been sent."
	msgForgotStillValid = "A reset token was already sent. Please wait until it expires before requesting another."
)

// displayLayout renders expiry times the way the frontend shows them,
// e.g. "7/14/2025, 2:10:00 PM EDT".
const displayLayout = "1/2/2006, 3:04:05 PM MST"

// AccountHandler serves registration, login and the verification and
// password reset flows.
type AccountHandler struct {
	accounts    *service.AccountService
	flows       *service.VerificationService
	validator   *requestValidator
	location    *time.Location
	exposeCodes bool
	logger      *slog.Logger
}

// NewAccountHandler creates an AccountHandler. Expiry times in messages are
// rendered in loc. With exposeCodes set, the register response includes the
// raw verification code, which is only acceptable in development.
func NewAccountHandler(
	accounts *service.AccountService,
	flows *service.VerificationService,
	loc *time.Location,
	exposeCodes bool,
	logger *slog.Logger,
) *AccountHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &AccountHandler{
		accounts:    accounts,
		flows:       flows,
		validator:   newRequestValidator(),
		location:    loc,
		exposeCodes: exposeCodes,
		logger:      logger,
	}
}

func (h *AccountHandler) formatTime(t time.Time) string {
	return t.In(h.location).Format(displayLayout)
}

type registerRequest struct {
	Login     string `json:"login" validate:"required,max=64"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
}

type registerResponse struct {
	UserID                  string    `json:"userId"`
	FirstName               string    `json:"firstName"`
	LastName                string    `json:"lastName"`
	Email                   string    `json:"email"`
	IsVerified              bool      `json:"isVerified"`
	VerificationCode        string    `json:"verificationCode,omitempty"`
	VerificationCodeExpires time.Time `json:"verificationCodeExpires"`
	Message                 string    `json:"message"`
	Error                   string    `json:"error"`
}

// HandleRegister creates an account and emails its verification code.
//
// HTTP: POST /api/register
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.validator.decode(w, r, &req, msgRegisterRequired); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Login:     req.Login,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	body := registerResponse{
		UserID:                  res.User.ID,
		FirstName:               res.User.FirstName,
		LastName:                res.User.LastName,
		Email:                   res.User.Email,
		IsVerified:              res.User.IsVerified,
		VerificationCodeExpires: res.Code.Expires,
		Message:                 res.Message,
	}
	if h.exposeCodes {
		body.VerificationCode = res.Code.Value
	}
	writeJSON(w, r, http.StatusOK, body)
}

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	ID               string `json:"id"`
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Email            string `json:"email"`
	IsVerified       bool   `json:"isVerified"`
	VerificationCode string `json:"verificationCode,omitempty"`
	Message          string `json:"message"`
	Error            string `json:"error"`
}

// HandleLogin checks credentials. An unverified account gets its still
// active verification code back so the client can continue verification.
//
// HTTP: POST /api/login
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.validator.decode(w, r, &req, msgLoginRequired); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.accounts.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, r, http.StatusOK, loginResponse{
		ID:               res.User.ID,
		FirstName:        res.User.FirstName,
		LastName:         res.User.LastName,
		Email:            res.User.Email,
		IsVerified:       res.User.IsVerified,
		VerificationCode: res.VerificationCode,
		Message:          res.Message,
	})
}

type verifyRequest struct {
	Identifier       string `json:"identifier" validate:"required"`
	VerificationCode string `json:"verificationCode" validate:"required"`
}

// HandleVerify consumes a verification code.
//
// HTTP: POST /api/verify
func (h *AccountHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := h.validator.decode(w, r, &req, msgVerifyRequired); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.flows.Verify(r.Context(), req.Identifier, req.VerificationCode); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, MessageResponse{Message: msgAccountVerified})
}

type identifierRequest struct {
	Identifier string `json:"identifier" validate:"required"`
}

// HandleResendVerification emails a new code unless one is still active, in
// which case it says until when.
//
// HTTP: POST /api/resendverification
func (h *AccountHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req identifierRequest
	if err := h.validator.decode(w, r, &req, msgIdentifierRequired); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.flows.Resend(r.Context(), req.Identifier)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var msg string
	switch res.Outcome {
	case service.OutcomeUnknownAccount:
		msg = msgResendUnknown
	case service.OutcomeActive:
		msg = "Your current code is still active until " + h.formatTime(res.Expires) + "."
	default:
		msg = msgResendSent
	}
	writeJSON(w, r, http.StatusOK, MessageResponse{Message: msg})
}

type forgotResponse struct {
	Message                string `json:"message,omitempty"`
	NextAllowedRequestTime string `json:"nextAllowedRequestTime,omitempty"`
	Error                  string `json:"error"`
}

// HandleForgotPassword emails a reset token. nextAllowedRequestTime tells
// the client when another token may be requested.
//
// HTTP: POST /api/forgotpassword
func (h *AccountHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req identifierRequest
	if err := h.validator.decode(w, r, &req, msgIdentifierRequired); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.flows.ForgotPassword(r.Context(), req.Identifier)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	switch res.Outcome {
	case service.OutcomeUnknownAccount:
		writeJSON(w, r, http.StatusOK, forgotResponse{Message: msgForgotUnknown})
	case service.OutcomeActive:
		writeJSON(w, r, http.StatusOK, forgotResponse{
			Error:                  msgForgotStillValid,
			NextAllowedRequestTime: h.formatTime(res.Expires),
		})
	default:
		writeJSON(w, r, http.StatusOK, forgotResponse{
			Message:                msgForgotSent,
			NextAllowedRequestTime: h.formatTime(res.Expires),
		})
	}
}

type resetRequest struct {
	Identifier  string `json:"identifier" validate:"required"`
	ResetToken  string `json:"resetToken" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// HandleResetPassword consumes a reset token and sets the new password.
//
// HTTP: POST /api/resetpassword
func (h *AccountHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := h.validator.decode(w, r, &req, msgResetRequired); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.flows.ResetPassword(r.Context(), req.Identifier, req.ResetToken, req.NewPassword); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, r, http.StatusOK, MessageResponse{Message: msgPasswordReset})
}
