package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"studiobook/auth"
	"studiobook/config"
	"studiobook/utils"
)

// LoginRequest carries the admin credential.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the session token to send as a bearer token.
type LoginResponse struct {
	Token string `json:"token"`
}

// SessionResponse reports whether an admin session exists.
type SessionResponse struct {
	Authenticated bool `json:"authenticated"`
}

// LoginHandler checks the admin credential and starts a session.
// @Summary      Admin login
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        credentials body LoginRequest true "Admin username and password"
// @Success      200  {object}  LoginResponse
// @Failure      401  {object}  utils.APIError "Invalid credentials"
// @Router       /auth/login [post]
func LoginHandler(c *gin.Context, gate *auth.Gate, cfg *config.Config) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	token, ok, err := gate.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		utils.GinInternalServerError(c, fmt.Sprintf("Login failed: %v", err))
		return
	}
	if !ok {
		utils.GinUnauthorized(c, "Invalid credentials")
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Token: token})
}

// LogoutHandler ends the admin session.
func LogoutHandler(c *gin.Context, gate *auth.Gate, cfg *config.Config) {
	if err := gate.Logout(c.Request.Context()); err != nil {
		utils.GinInternalServerError(c, fmt.Sprintf("Logout failed: %v", err))
		return
	}
	c.Status(http.StatusNoContent)
}

func SessionHandler(c *gin.Context, gate *auth.Gate, cfg *config.Config) {
	c.JSON(http.StatusOK, SessionResponse{Authenticated: gate.IsAuthenticated()})
}
