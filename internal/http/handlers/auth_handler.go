// Authentication HTTP handlers.
//
// This file exposes POST /login, the only unauthenticated mutating endpoint.
// Credentials are checked once against the credential store; the issued
// bearer token binds the session to exactly one role for its fixed lifetime.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// LoginRequest is the JSON payload for authenticating.
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"hospital_a"`
	Password string `json:"password" binding:"required" example:"s3cret"`
}

// LoginResponse carries the bearer token and the role it is bound to.
type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	Role    string `json:"role"`
}

// Login godoc
// @ID          login
// @Summary     Authenticate and obtain a role-bound bearer token
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body body handlers.LoginRequest true "Credentials"
// @Success     200 {object} handlers.LoginResponse
// @Failure     400 {object} handlers.ErrorResponse "Missing fields"
// @Failure     401 {object} handlers.ErrorResponse "Unknown user or wrong password"
// @Router      /login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "missing username or password")
		return
	}

	token, role, err := h.authSvc.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		failFromService(c, err)
		return
	}
	ok(c, http.StatusOK, LoginResponse{Message: "login successful", Token: token, Role: role})
}
