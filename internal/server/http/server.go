// Package httpserver exposes the account API over HTTP.
package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/goph-auth/internal/model"
	"github.com/and161185/goph-auth/internal/service"
)

// Server wires the auth service into gin handlers.
type Server struct {
	auth service.AuthService
	log  *zap.Logger
}

// New constructs an HTTP server with the injected service.
func New(auth service.AuthService, log *zap.Logger) *Server {
	setupValidator()
	return &Server{auth: auth, log: log}
}

// Router builds the gin engine with middleware and routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), AccessLog(s.log), Recover(s.log))

	api := r.Group("/api")
	api.POST("/register", s.Register)
	api.POST("/login", s.Login)
	api.POST("/token/refresh", s.Refresh)
	api.POST("/logout", s.Logout)

	authed := api.Group("/", s.RequireAuth())
	authed.GET("/profile", s.Profile)
	authed.POST("/profile/password", s.ChangePassword)

	return r
}

// --- Auth ---

// Register creates an account and returns it with a token pair.
func (s *Server) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bindError(err))
		return
	}
	va, tok, err := s.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Profile: model.Profile{
			Username:  req.Username,
			FirstName: req.FirstName,
			LastName:  req.LastName,
		},
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, registerResponse{User: toUser(va), tokensResponse: toTokens(tok)})
}

// Login authenticates by email and password.
func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bindError(err))
		return
	}
	tok, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTokens(tok))
}

// Refresh rotates a refresh token.
func (s *Server) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bindError(err))
		return
	}
	tok, err := s.auth.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTokens(tok))
}

// Logout revokes a refresh token.
func (s *Server) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bindError(err))
		return
	}
	if err := s.auth.Logout(c.Request.Context(), req.Refresh); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Profile ---

// Profile returns the caller's account.
func (s *Server) Profile(c *gin.Context) {
	id, ok := AccountIDFromCtx(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody{Error: "Invalid token"})
		return
	}
	va, err := s.auth.Profile(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUser(va))
}

// ChangePassword replaces the caller's password.
func (s *Server) ChangePassword(c *gin.Context) {
	id, ok := AccountIDFromCtx(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody{Error: "Invalid token"})
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, bindError(err))
		return
	}
	if err := s.auth.ChangePassword(c.Request.Context(), id, req.Current, req.New); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
