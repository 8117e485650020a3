package api

import (
	"errors"
	"net/http"
	"net/url"

	"url-shortener/internal/auth"

	"github.com/gin-gonic/gin"
)

// CredentialsRequest is the body for register and login.
type CredentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// PasswordRequest is the body for PUT /api/auth/password.
type PasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// ResetRequest is the body for POST /api/auth/password/reset.
type ResetRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResetConfirmRequest is the body for POST /api/auth/password/reset/confirm.
type ResetConfirmRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register creates an account.
func (h *Handler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	account, err := h.Auth.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

// Login exchanges credentials for a session token, returned in the body and
// as the auth_token cookie.
func (h *Handler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	token, account, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(authCookieName, token, int(h.Config.TokenTTL.Seconds()), "/", "", h.Config.IsProduction(), true)
	c.JSON(http.StatusOK, gin.H{"token": token, "account": account})
}

// Logout revokes the current session token and clears the cookie.
func (h *Handler) Logout(c *gin.Context) {
	if err := h.Auth.Logout(c.GetString(tokenKey)); err != nil {
		h.respondAuthError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(authCookieName, "", -1, "/", "", h.Config.IsProduction(), true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the current account.
func (h *Handler) Me(c *gin.Context) {
	account, _ := CurrentAccount(c)
	c.JSON(http.StatusOK, account)
}

// UpdatePassword sets a new password for the current account.
func (h *Handler) UpdatePassword(c *gin.Context) {
	account, _ := CurrentAccount(c)

	var req PasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if err := h.Auth.UpdatePassword(c.Request.Context(), account.ID, req.Password); err != nil {
		h.respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// RequestPasswordReset issues a reset token. The response never reveals
// whether the email belongs to an account.
func (h *Handler) RequestPasswordReset(c *gin.Context) {
	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	token, err := h.Auth.RequestPasswordReset(c.Request.Context(), req.Email)
	switch {
	case err == nil:
		// No mail transport is wired in; the link goes to the log for delivery.
		link := h.baseURL(c) + "/reset-password?token=" + url.QueryEscape(token)
		h.Logger.Infow("Password reset requested", "email", req.Email, "reset_link", link)
	case errors.Is(err, auth.ErrAccountNotFound):
		h.Logger.Debugw("Password reset for unknown email", "email", req.Email)
	default:
		h.Logger.Errorw("Password reset failed", "error", err)
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "If the account exists, a reset link has been sent."})
}

// ConfirmPasswordReset consumes a reset token and sets the new password.
func (h *Handler) ConfirmPasswordReset(c *gin.Context) {
	var req ResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if err := h.Auth.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		h.respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

func (h *Handler) respondAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		h.Logger.Errorw("Auth request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
